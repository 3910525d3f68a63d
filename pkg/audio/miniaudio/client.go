// Package miniaudio binds the microphone and speaker through malgo. The
// capture side re-chunks the device callback into fixed-duration PCM16 frames
// so the endpoint detector sees a uniform stream.
package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Config describes the device format. Devices run mono S16.
type Config struct {
	SampleRate int
	// FrameDuration is the capture frame length in milliseconds.
	FrameDuration int
}

// Client owns the malgo context and both devices. It serves as the frame
// source and the playback sink of a session.
type Client struct {
	audioContext *malgo.AllocatedContext
	capture      captureDevice
	playback     playbackDevice

	closeOnce sync.Once
	closeErr  error
}

// New initializes both devices and starts them.
func New(cfg Config) (*Client, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 30
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	c := &Client{audioContext: audioCtx}
	if err := c.capture.init(audioCtx, cfg); err != nil {
		c.Close()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := c.playback.init(audioCtx, cfg); err != nil {
		c.Close()
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	if err := c.capture.start(); err != nil {
		c.Close()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	if err := c.playback.start(); err != nil {
		c.Close()
		return nil, fmt.Errorf("start playback device: %w", err)
	}
	return c, nil
}

// Frames returns the stream of fixed-duration capture frames.
func (c *Client) Frames() <-chan []byte {
	return c.capture.frames
}

// Play queues response audio for the speaker.
func (c *Client) Play(pcm []byte) error {
	return c.playback.play(pcm)
}

// ClearPlayback drops any queued but unplayed audio.
func (c *Client) ClearPlayback() {
	c.playback.clear()
}

// Close stops and releases both devices. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.capture.uninit()
		c.playback.uninit()
		if c.audioContext != nil {
			c.closeErr = c.audioContext.Uninit()
			c.audioContext.Free()
			c.audioContext = nil
		}
	})
	return c.closeErr
}
