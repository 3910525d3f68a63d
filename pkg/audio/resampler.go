package audio

import (
	"errors"

	resampler "github.com/godeps/go-audio-soxr"
)

// StreamResampler converts a continuous PCM16 stream between sample rates,
// keeping filter state across calls so frame boundaries stay seamless.
type StreamResampler struct {
	engine *resampler.SimpleResamplerFloat32
	outBuf []float32
}

// NewStreamResampler creates a streaming resampler from inRate to outRate.
func NewStreamResampler(inRate, outRate int) (*StreamResampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, errors.New("audio: sample rates must be positive")
	}
	engine, err := resampler.NewEngineFloat32(float64(inRate), float64(outRate), resampler.QualityHigh)
	if err != nil {
		return nil, err
	}
	return &StreamResampler{engine: engine}, nil
}

// Process folds PCM16 samples into the resampler.
func (s *StreamResampler) Process(pcm []int16) error {
	if s.engine == nil {
		return errors.New("audio: resampler is closed")
	}
	if len(pcm) == 0 {
		return nil
	}
	out, err := s.engine.Process(Int16ToFloat32(pcm))
	if err != nil {
		return err
	}
	s.outBuf = append(s.outBuf, out...)
	return nil
}

// Flush drains the filter tail into the output buffer.
func (s *StreamResampler) Flush() error {
	if s.engine == nil {
		return errors.New("audio: resampler is closed")
	}
	out, err := s.engine.Flush()
	if err != nil {
		return err
	}
	s.outBuf = append(s.outBuf, out...)
	return nil
}

// PopFrame returns the next frameSize PCM16 samples, if that many are ready.
func (s *StreamResampler) PopFrame(frameSize int) ([]int16, bool) {
	if frameSize <= 0 || len(s.outBuf) < frameSize {
		return nil, false
	}
	frame := Float32ToInt16(s.outBuf[:frameSize])
	s.outBuf = s.outBuf[frameSize:]
	return frame, true
}

// Pending reports buffered output samples not yet popped.
func (s *StreamResampler) Pending() int {
	return len(s.outBuf)
}

// Close releases the underlying engine.
func (s *StreamResampler) Close() {
	if s.engine != nil {
		s.engine.Reset()
		s.engine = nil
	}
	s.outBuf = nil
}
