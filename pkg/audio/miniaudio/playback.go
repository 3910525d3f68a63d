package miniaudio

import (
	"errors"
	"sync"

	"github.com/gen2brain/malgo"
)

type playbackDevice struct {
	device *malgo.Device

	mu     sync.Mutex
	queued []byte
}

func (p *playbackDevice) init(audioContext *malgo.AllocatedContext, cfg Config) error {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(cfg.SampleRate)
	config.Playback.Format = format
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(cfg.SampleRate / 10)

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			p.fill(pOutput, int(frameCount)*bytesPerFrame)
		},
	})
	if err != nil {
		return err
	}
	p.device = device
	return nil
}

// fill copies queued audio into the device buffer; the remainder stays zeroed
// as silence.
func (p *playbackDevice) fill(out []byte, need int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queued) == 0 {
		return
	}
	n := need
	if n > len(p.queued) {
		n = len(p.queued)
	}
	copy(out, p.queued[:n])
	p.queued = p.queued[n:]
}

func (p *playbackDevice) play(pcm []byte) error {
	if p.device == nil {
		return errors.New("playback device not initialized")
	}
	p.mu.Lock()
	p.queued = append(p.queued, pcm...)
	p.mu.Unlock()
	return nil
}

func (p *playbackDevice) clear() {
	p.mu.Lock()
	p.queued = nil
	p.mu.Unlock()
}

func (p *playbackDevice) start() error {
	if p.device == nil {
		return errors.New("playback device not initialized")
	}
	if p.device.IsStarted() {
		return nil
	}
	return p.device.Start()
}

func (p *playbackDevice) uninit() {
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	p.clear()
}
