package audio

import "fmt"

// ResampledFrames adapts a frame stream captured at one sample rate into
// fixed-duration frames at another. It sits between a capture device that
// only supports its native rate and a consumer with a fixed format.
type ResampledFrames struct {
	out       chan []byte
	resampler *StreamResampler
	closer    func() error
}

// NewResampledFrames starts converting frames read from in. The closer is
// invoked by Close so the upstream device is released with the pipe.
func NewResampledFrames(in <-chan []byte, closer func() error, inRate, outRate, frameDurationMs int) (*ResampledFrames, error) {
	if frameDurationMs <= 0 {
		return nil, fmt.Errorf("audio: invalid frame duration %d", frameDurationMs)
	}
	resampler, err := NewStreamResampler(inRate, outRate)
	if err != nil {
		return nil, err
	}

	f := &ResampledFrames{
		out:       make(chan []byte, 64),
		resampler: resampler,
		closer:    closer,
	}
	outSamples := outRate * frameDurationMs / 1000
	go f.run(in, outSamples)
	return f, nil
}

// Frames returns the converted frame stream. It closes when the upstream
// stream ends.
func (f *ResampledFrames) Frames() <-chan []byte {
	return f.out
}

// Close releases the upstream device; the conversion goroutine drains and
// exits once the upstream channel closes.
func (f *ResampledFrames) Close() error {
	if f.closer != nil {
		return f.closer()
	}
	return nil
}

func (f *ResampledFrames) run(in <-chan []byte, outSamples int) {
	defer close(f.out)
	defer f.resampler.Close()

	for frame := range in {
		if err := f.resampler.Process(BytesToInt16(frame)); err != nil {
			return
		}
		f.drain(outSamples)
	}
	if err := f.resampler.Flush(); err == nil {
		f.drain(outSamples)
	}
}

func (f *ResampledFrames) drain(outSamples int) {
	for {
		samples, ok := f.resampler.PopFrame(outSamples)
		if !ok {
			return
		}
		f.out <- Int16ToBytes(samples)
	}
}
