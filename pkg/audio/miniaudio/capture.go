package miniaudio

import (
	"errors"
	"sync"

	"github.com/gen2brain/malgo"
)

type captureDevice struct {
	device *malgo.Device

	frames     chan []byte
	frameBytes int

	mu      sync.Mutex
	pending []byte
	closed  bool
}

func (c *captureDevice) init(audioContext *malgo.AllocatedContext, cfg Config) error {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format)

	c.frameBytes = cfg.SampleRate * cfg.FrameDuration / 1000 * bytesPerFrame
	c.frames = make(chan []byte, 64)

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(cfg.SampleRate)
	config.Capture.Format = format
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			c.push(pInput[:n])
		},
	})
	if err != nil {
		return err
	}
	c.device = device
	return nil
}

// push re-chunks device callbacks into exact frameBytes frames. A full channel
// drops the oldest pending frame rather than blocking the audio thread.
func (c *captureDevice) push(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = append(c.pending, data...)
	for len(c.pending) >= c.frameBytes {
		frame := make([]byte, c.frameBytes)
		copy(frame, c.pending[:c.frameBytes])
		c.pending = c.pending[c.frameBytes:]
		select {
		case c.frames <- frame:
		default:
			select {
			case <-c.frames:
			default:
			}
			select {
			case c.frames <- frame:
			default:
			}
		}
	}
}

func (c *captureDevice) start() error {
	if c.device == nil {
		return errors.New("capture device not initialized")
	}
	if c.device.IsStarted() {
		return nil
	}
	return c.device.Start()
}

func (c *captureDevice) uninit() {
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	c.pending = nil
	c.mu.Unlock()
}
