// Package endpoint decides where a spoken turn begins and ends within a
// continuous stream of audio frames.
package endpoint

import (
	"encoding/binary"
	"math"
)

// SignalKind discriminates detector signals.
type SignalKind int

const (
	// SignalNone means the frame changed nothing observable.
	SignalNone SignalKind = iota
	// SignalTurnBegan means speech onset was detected.
	SignalTurnBegan
	// SignalTurnEnded means the turn completed; Signal.Audio holds it.
	SignalTurnEnded
)

// Signal is the result of observing one frame.
type Signal struct {
	Kind SignalKind
	// Audio is the accumulated turn audio, set only for SignalTurnEnded.
	Audio []byte
}

// Classifier labels a single frame as speech or non-speech.
type Classifier interface {
	IsSpeech(frame []byte) bool
}

// Config parameterizes the detector window and thresholds.
type Config struct {
	// WindowFrames is the ring size W; WindowFrames * frame duration equals
	// the configured silence window.
	WindowFrames int
	// TriggerRatio is the voiced fraction of the ring that starts a turn.
	TriggerRatio float64
	// ReleaseRatio is the unvoiced fraction of the ring that ends a turn.
	ReleaseRatio float64
}

// WindowFrames computes the ring size for a silence window.
func WindowFrames(silenceWindowMs, frameDurationMs int) int {
	if frameDurationMs <= 0 {
		return 1
	}
	frames := silenceWindowMs / frameDurationMs
	if frames < 1 {
		return 1
	}
	return frames
}

type observation struct {
	frame  []byte
	speech bool
}

// Detector is a fold over the frame stream. It is not safe for concurrent
// use; call Observe once per captured frame, in arrival order.
type Detector struct {
	classifier   Classifier
	windowFrames int
	triggerRatio float64
	releaseRatio float64

	ring      []observation
	triggered bool
	turn      []byte
	voiced    int
}

// New creates a detector. Zero or out-of-range config values fall back to the
// 2 s / 0.7 / 0.9 defaults.
func New(classifier Classifier, cfg Config) *Detector {
	if cfg.WindowFrames < 1 {
		cfg.WindowFrames = 1
	}
	if cfg.TriggerRatio <= 0 || cfg.TriggerRatio > 1 {
		cfg.TriggerRatio = 0.7
	}
	if cfg.ReleaseRatio <= 0 || cfg.ReleaseRatio > 1 {
		cfg.ReleaseRatio = 0.9
	}
	return &Detector{
		classifier:   classifier,
		windowFrames: cfg.WindowFrames,
		triggerRatio: cfg.TriggerRatio,
		releaseRatio: cfg.ReleaseRatio,
		ring:         make([]observation, 0, cfg.WindowFrames),
	}
}

// Observe folds one frame into the detector state and reports any
// turn-boundary signal. Frames accepted into the turn buffer are never
// dropped or reordered.
func (d *Detector) Observe(frame []byte) Signal {
	speech := d.classifier.IsSpeech(frame)

	if !d.triggered {
		d.push(observation{frame: frame, speech: speech})
		voiced := 0
		for _, obs := range d.ring {
			if obs.speech {
				voiced++
			}
		}
		if float64(voiced) > d.triggerRatio*float64(d.windowFrames) {
			d.triggered = true
			d.voiced = voiced
			for _, obs := range d.ring {
				d.turn = append(d.turn, obs.frame...)
			}
			d.ring = d.ring[:0]
			return Signal{Kind: SignalTurnBegan}
		}
		return Signal{Kind: SignalNone}
	}

	d.turn = append(d.turn, frame...)
	d.push(observation{frame: frame, speech: speech})
	if speech {
		d.voiced++
	}
	unvoiced := 0
	for _, obs := range d.ring {
		if !obs.speech {
			unvoiced++
		}
	}
	if float64(unvoiced) > d.releaseRatio*float64(d.windowFrames) {
		audio := d.turn
		d.Reset()
		return Signal{Kind: SignalTurnEnded, Audio: audio}
	}
	return Signal{Kind: SignalNone}
}

// Reset clears all per-turn state.
func (d *Detector) Reset() {
	d.ring = d.ring[:0]
	d.triggered = false
	d.turn = nil
	d.voiced = 0
}

// Triggered reports whether a turn is currently in progress.
func (d *Detector) Triggered() bool {
	return d.triggered
}

// VoicedFrames reports voiced frames accumulated since the trigger.
func (d *Detector) VoicedFrames() int {
	return d.voiced
}

func (d *Detector) push(obs observation) {
	if len(d.ring) == d.windowFrames {
		copy(d.ring, d.ring[1:])
		d.ring = d.ring[:len(d.ring)-1]
	}
	d.ring = append(d.ring, obs)
}

// EnergyClassifier labels frames by RMS energy over 16-bit PCM samples.
type EnergyClassifier struct {
	Threshold float64
}

// NewEnergyClassifier creates a classifier with the given RMS threshold; a
// non-positive threshold falls back to 300.
func NewEnergyClassifier(threshold float64) *EnergyClassifier {
	if threshold <= 0 {
		threshold = 300
	}
	return &EnergyClassifier{Threshold: threshold}
}

// IsSpeech reports whether the frame's RMS energy crosses the threshold.
func (c *EnergyClassifier) IsSpeech(frame []byte) bool {
	samples := len(frame) / 2
	if samples == 0 {
		return false
	}
	var sum float64
	for i := 0; i < samples; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2]))
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(samples))
	return rms >= c.Threshold
}
