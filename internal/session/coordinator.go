// Package session coordinates one duplex conversation between the microphone,
// the realtime engine, and the speaker.
//
// The coordinator runs two loops. The sender folds captured frames through the
// endpoint detector (or forwards them raw when the engine detects turns
// itself). The receiver is the only goroutine that touches turn state: it
// consumes engine events and local turn signals from a single select, so the
// one-response-in-flight rule never needs a lock.
package session

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/carebot-ai/voice-edge/internal/agent"
	"github.com/carebot-ai/voice-edge/internal/endpoint"
	"github.com/carebot-ai/voice-edge/internal/journal"
	"github.com/carebot-ai/voice-edge/internal/session/fsm"
	"github.com/carebot-ai/voice-edge/pkg/realtime"
)

// Engine is the duplex connection to the conversational engine.
type Engine interface {
	Events() <-chan realtime.Event
	SendAudio(ctx context.Context, pcm []byte) error
	Commit(ctx context.Context) error
	CreateResponse(ctx context.Context) error
	CancelResponse(ctx context.Context) error
	Close() error
}

// Source delivers captured PCM16 frames in arrival order.
type Source interface {
	Frames() <-chan []byte
	Close() error
}

// Sink plays response PCM16 audio.
type Sink interface {
	Play(pcm []byte) error
	Close() error
}

// Transcriber turns one sealed turn of audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// Options configures the optional collaborators of a coordinator.
type Options struct {
	Logger *zap.Logger
	// Source is the capture device. Nil means audio arrives out of band.
	Source Source
	// Sink is the playback device. Nil discards response audio.
	Sink Sink
	// Detector, when set, decides turn boundaries locally. Nil defers
	// turn detection to the engine.
	Detector *endpoint.Detector
	// Transcriber, when set, transcribes locally detected turns for the
	// journal. Remote turn detection gets transcripts from the engine.
	Transcriber Transcriber
	// OnTurn is invoked after each completed turn is journaled.
	OnTurn func(journal.Entry)
	// OnFailure is invoked when a response fails or is canceled, or when
	// the engine reports a transport error. The session continues.
	OnFailure func(reason string)
}

// Coordinator drives the turn-taking conversation loop.
type Coordinator struct {
	logger      *zap.Logger
	engine      Engine
	store       *journal.Journal
	source      Source
	sink        Sink
	detector    *endpoint.Detector
	transcriber Transcriber
	machine     *fsm.Machine
	onTurn      func(journal.Entry)
	onFailure   func(string)

	signals    chan endpoint.Signal
	interrupts chan struct{}

	// Turn state below is owned by the receive loop and never read or
	// written anywhere else.
	awaiting   bool
	transcript strings.Builder
	userText   string
}

// New creates a coordinator around a connected engine and an initialized
// journal.
func New(engine Engine, store *journal.Journal, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		logger:      logger,
		engine:      engine,
		store:       store,
		source:      opts.Source,
		sink:        opts.Sink,
		detector:    opts.Detector,
		transcriber: opts.Transcriber,
		machine:     fsm.New(),
		onTurn:      opts.OnTurn,
		onFailure:   opts.OnFailure,
		signals:     make(chan endpoint.Signal, 8),
		interrupts:  make(chan struct{}, 1),
	}
}

// State reports the current turn state.
func (c *Coordinator) State() fsm.State {
	return c.machine.State()
}

// Interrupt requests cancellation of the in-flight response, if any. It is
// safe to call from any goroutine.
func (c *Coordinator) Interrupt() {
	select {
	case c.interrupts <- struct{}{}:
	default:
	}
}

// Run blocks until the engine's event stream ends or the context is canceled.
// It owns both loops; callers stop it by canceling the context or closing the
// engine.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if c.source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.sendLoop(ctx)
		}()
	}

	err := c.receiveLoop(ctx)
	cancel()
	wg.Wait()
	return err
}

func (c *Coordinator) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.source.Frames():
			if !ok {
				return
			}
			if c.detector == nil {
				if err := c.engine.SendAudio(ctx, frame); err != nil {
					c.logger.Warn("send frame failed", zap.Error(err))
					return
				}
				continue
			}
			if sig := c.detector.Observe(frame); sig.Kind != endpoint.SignalNone {
				select {
				case c.signals <- sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (c *Coordinator) receiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-c.signals:
			c.handleSignal(ctx, sig)
		case <-c.interrupts:
			c.handleInterrupt(ctx)
		case event, ok := <-c.engine.Events():
			if !ok {
				return nil
			}
			c.handleEvent(ctx, event)
		}
	}
}

func (c *Coordinator) handleSignal(ctx context.Context, sig endpoint.Signal) {
	switch sig.Kind {
	case endpoint.SignalTurnBegan:
		c.machine.OnSpeechStart()
		c.logger.Debug("turn began")
	case endpoint.SignalTurnEnded:
		c.logger.Debug("turn ended", zap.Int("bytes", len(sig.Audio)))
		if c.transcriber != nil {
			text, err := c.transcriber.Transcribe(ctx, sig.Audio)
			if err != nil {
				c.logger.Warn("turn transcription failed", zap.Error(err))
			} else {
				c.userText = text
			}
		}
		if err := c.engine.SendAudio(ctx, sig.Audio); err != nil {
			c.logger.Warn("send turn audio failed", zap.Error(err))
			return
		}
		if err := c.engine.Commit(ctx); err != nil {
			c.logger.Warn("commit failed", zap.Error(err))
		}
	}
}

func (c *Coordinator) handleInterrupt(ctx context.Context) {
	if !c.awaiting {
		return
	}
	c.machine.OnCancel()
	if err := c.engine.CancelResponse(ctx); err != nil {
		c.logger.Warn("cancel response failed", zap.Error(err))
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, event realtime.Event) {
	switch event.Kind {
	case realtime.EventSpeechStarted:
		c.machine.OnSpeechStart()
	case realtime.EventSpeechStopped:
		// The engine commits the buffer itself; nothing to do until then.
	case realtime.EventBufferCommitted:
		if c.awaiting {
			c.logger.Debug("commit while response in flight, not requesting another")
			return
		}
		c.machine.OnCommit()
		c.awaiting = true
		c.machine.OnResponseRequested()
		if err := c.engine.CreateResponse(ctx); err != nil {
			c.logger.Warn("create response failed", zap.Error(err))
			c.awaiting = false
			c.machine.OnResponseDone()
		}
	case realtime.EventResponseCreated:
		c.machine.OnResponseStart()
		c.transcript.Reset()
	case realtime.EventAudioDelta:
		if c.sink == nil {
			return
		}
		if err := c.sink.Play(event.Audio); err != nil {
			c.logger.Warn("playback failed", zap.Error(err))
		}
	case realtime.EventTextDelta:
		c.transcript.WriteString(event.Text)
	case realtime.EventUserTranscript:
		c.userText = event.Text
	case realtime.EventCompleted:
		c.finishTurn()
	case realtime.EventFailed:
		c.logger.Warn("response failed", zap.String("reason", event.Reason))
		c.notifyFailure("response failed: " + event.Reason)
		c.clearTurn()
	case realtime.EventCanceled:
		c.logger.Info("response canceled")
		c.notifyFailure("response canceled")
		c.clearTurn()
	case realtime.EventError:
		c.logger.Error("engine error", zap.String("reason", event.Reason))
		c.notifyFailure(event.Reason)
	}
}

// finishTurn parses the accumulated response text, journals the turn, and
// re-arms the session for the next commit.
func (c *Coordinator) finishTurn() {
	raw := c.transcript.String()
	result := agent.Parse(raw)
	entry := journal.NewEntry(c.userText, result.MovementRequired, result.VerbalOutput, result.MotionPlan)
	if err := c.store.Append(entry); err != nil {
		c.logger.Error("journal append failed", zap.Error(err))
	}
	c.logger.Info("turn completed",
		zap.String("user_text", entry.UserText),
		zap.Bool("movement_required", result.MovementRequired),
		zap.String("motion_info", result.MotionPlan),
	)
	if c.onTurn != nil {
		c.onTurn(entry)
	}
	c.clearTurn()
}

func (c *Coordinator) clearTurn() {
	c.awaiting = false
	c.transcript.Reset()
	c.userText = ""
	c.machine.OnResponseDone()
}

func (c *Coordinator) notifyFailure(reason string) {
	if c.onFailure != nil {
		c.onFailure(reason)
	}
}
