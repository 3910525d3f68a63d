package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/carebot-ai/voice-edge/internal/endpoint"
	"github.com/carebot-ai/voice-edge/internal/journal"
	"github.com/carebot-ai/voice-edge/pkg/realtime"
)

type fakeEngine struct {
	events chan realtime.Event
	calls  chan string

	mu      sync.Mutex
	sent    [][]byte
	commits int
	creates int
	cancels int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		events: make(chan realtime.Event, 64),
		calls:  make(chan string, 64),
	}
}

func (e *fakeEngine) Events() <-chan realtime.Event { return e.events }

func (e *fakeEngine) SendAudio(_ context.Context, pcm []byte) error {
	e.mu.Lock()
	e.sent = append(e.sent, append([]byte(nil), pcm...))
	e.mu.Unlock()
	e.calls <- "send"
	return nil
}

func (e *fakeEngine) Commit(context.Context) error {
	e.mu.Lock()
	e.commits++
	e.mu.Unlock()
	e.calls <- "commit"
	return nil
}

func (e *fakeEngine) CreateResponse(context.Context) error {
	e.mu.Lock()
	e.creates++
	e.mu.Unlock()
	e.calls <- "create"
	return nil
}

func (e *fakeEngine) CancelResponse(context.Context) error {
	e.mu.Lock()
	e.cancels++
	e.mu.Unlock()
	e.calls <- "cancel"
	return nil
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) counts() (sends, commits, creates, cancels int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent), e.commits, e.creates, e.cancels
}

type fakeSink struct {
	mu     sync.Mutex
	played [][]byte
}

func (s *fakeSink) Play(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, append([]byte(nil), pcm...))
	return nil
}

func (s *fakeSink) Close() error { return nil }

type fakeSource struct {
	frames chan []byte
}

func (s *fakeSource) Frames() <-chan []byte { return s.frames }
func (s *fakeSource) Close() error          { return nil }

func newTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j := journal.New(filepath.Join(t.TempDir(), "conversation.json"))
	if err := j.Initialize(); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	return j
}

func waitCall(t *testing.T, calls <-chan string, want string) {
	t.Helper()
	select {
	case got := <-calls:
		if got != want {
			t.Fatalf("call=%q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q call", want)
	}
}

func runCoordinator(t *testing.T, c *Coordinator) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	return func() {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for Run to return")
		}
	}
}

func TestCoordinatorCompletedTurn(t *testing.T) {
	eng := newFakeEngine()
	sink := &fakeSink{}
	store := newTestJournal(t)

	var turns []journal.Entry
	c := New(eng, store, Options{
		Sink:   sink,
		OnTurn: func(entry journal.Entry) { turns = append(turns, entry) },
	})
	wait := runCoordinator(t, c)

	eng.events <- realtime.Event{Kind: realtime.EventSpeechStarted}
	eng.events <- realtime.Event{Kind: realtime.EventSpeechStopped}
	eng.events <- realtime.Event{Kind: realtime.EventBufferCommitted}
	eng.events <- realtime.Event{Kind: realtime.EventResponseCreated, ResponseID: "resp_1"}
	eng.events <- realtime.Event{Kind: realtime.EventUserTranscript, Text: "please come here"}
	eng.events <- realtime.Event{Kind: realtime.EventAudioDelta, Audio: []byte{1, 2, 3}}
	eng.events <- realtime.Event{Kind: realtime.EventTextDelta, Text: "True %,% "}
	eng.events <- realtime.Event{Kind: realtime.EventTextDelta, Text: "Hi %,% Walk"}
	eng.events <- realtime.Event{Kind: realtime.EventCompleted, ResponseID: "resp_1"}
	close(eng.events)
	wait()

	_, _, creates, _ := eng.counts()
	if creates != 1 {
		t.Fatalf("creates=%d, want 1", creates)
	}

	entries := store.LoadAll()
	if len(entries) != 1 {
		t.Fatalf("journal len=%d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.UserText != "please come here" {
		t.Fatalf("user_text=%q, want %q", entry.UserText, "please come here")
	}
	if entry.MovementRequired != "True" {
		t.Fatalf("movement_required=%q, want %q", entry.MovementRequired, "True")
	}
	if entry.VerbalOutput != "Hi" {
		t.Fatalf("verbal_output=%q, want %q", entry.VerbalOutput, "Hi")
	}
	if entry.MotionInfo != "Walk" {
		t.Fatalf("motion_info=%q, want %q", entry.MotionInfo, "Walk")
	}

	if len(turns) != 1 || turns[0] != entry {
		t.Fatalf("OnTurn received %+v, want [%+v]", turns, entry)
	}
	if len(sink.played) != 1 || !bytes.Equal(sink.played[0], []byte{1, 2, 3}) {
		t.Fatalf("played=%v, want one chunk [1 2 3]", sink.played)
	}
}

func TestCoordinatorSingleResponseInFlight(t *testing.T) {
	eng := newFakeEngine()
	store := newTestJournal(t)
	c := New(eng, store, Options{})
	wait := runCoordinator(t, c)

	// Two rapid commits with no completion in between must produce exactly
	// one outbound request.
	eng.events <- realtime.Event{Kind: realtime.EventBufferCommitted}
	eng.events <- realtime.Event{Kind: realtime.EventBufferCommitted}
	eng.events <- realtime.Event{Kind: realtime.EventResponseCreated}
	eng.events <- realtime.Event{Kind: realtime.EventTextDelta, Text: "False %,% ok"}
	eng.events <- realtime.Event{Kind: realtime.EventCompleted}
	// After completion the next commit is allowed through again.
	eng.events <- realtime.Event{Kind: realtime.EventBufferCommitted}
	close(eng.events)
	wait()

	_, _, creates, _ := eng.counts()
	if creates != 2 {
		t.Fatalf("creates=%d, want 2", creates)
	}
	if store.Len() != 1 {
		t.Fatalf("journal len=%d, want 1", store.Len())
	}
}

func TestCoordinatorFailureClearsInFlight(t *testing.T) {
	eng := newFakeEngine()
	store := newTestJournal(t)
	var failures []string
	c := New(eng, store, Options{
		OnFailure: func(reason string) { failures = append(failures, reason) },
	})
	wait := runCoordinator(t, c)

	eng.events <- realtime.Event{Kind: realtime.EventBufferCommitted}
	eng.events <- realtime.Event{Kind: realtime.EventResponseCreated}
	eng.events <- realtime.Event{Kind: realtime.EventTextDelta, Text: "partial"}
	eng.events <- realtime.Event{Kind: realtime.EventFailed, Reason: "server error"}
	eng.events <- realtime.Event{Kind: realtime.EventError, Reason: "bad frame"}
	eng.events <- realtime.Event{Kind: realtime.EventBufferCommitted}
	close(eng.events)
	wait()

	_, _, creates, _ := eng.counts()
	if creates != 2 {
		t.Fatalf("creates=%d, want 2", creates)
	}
	if store.Len() != 0 {
		t.Fatalf("journal len=%d after failure, want 0", store.Len())
	}
	if len(failures) != 2 {
		t.Fatalf("failures=%v, want the failed response and the engine error surfaced", failures)
	}
	if failures[0] != "response failed: server error" {
		t.Fatalf("failures[0]=%q, want the failure reason", failures[0])
	}
	if failures[1] != "bad frame" {
		t.Fatalf("failures[1]=%q, want the engine error", failures[1])
	}
}

func TestCoordinatorInterruptCancelsResponse(t *testing.T) {
	eng := newFakeEngine()
	store := newTestJournal(t)
	var failures []string
	c := New(eng, store, Options{
		OnFailure: func(reason string) { failures = append(failures, reason) },
	})
	wait := runCoordinator(t, c)

	eng.events <- realtime.Event{Kind: realtime.EventBufferCommitted}
	waitCall(t, eng.calls, "create")

	c.Interrupt()
	waitCall(t, eng.calls, "cancel")

	eng.events <- realtime.Event{Kind: realtime.EventCanceled}
	eng.events <- realtime.Event{Kind: realtime.EventBufferCommitted}
	close(eng.events)
	wait()

	_, _, creates, cancels := eng.counts()
	if cancels != 1 {
		t.Fatalf("cancels=%d, want 1", cancels)
	}
	if creates != 2 {
		t.Fatalf("creates=%d, want 2", creates)
	}
	if store.Len() != 0 {
		t.Fatalf("journal len=%d after cancel, want 0", store.Len())
	}
	if len(failures) != 1 || failures[0] != "response canceled" {
		t.Fatalf("failures=%v, want the cancellation surfaced", failures)
	}
}

func TestCoordinatorInterruptWithoutResponseIsNoop(t *testing.T) {
	eng := newFakeEngine()
	store := newTestJournal(t)
	c := New(eng, store, Options{})
	wait := runCoordinator(t, c)

	c.Interrupt()
	eng.events <- realtime.Event{Kind: realtime.EventSpeechStarted}
	close(eng.events)
	wait()

	_, _, _, cancels := eng.counts()
	if cancels != 0 {
		t.Fatalf("cancels=%d, want 0", cancels)
	}
}

func pcmFrame(sample int16, samples int) []byte {
	frame := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(sample))
	}
	return frame
}

type fakeTranscriber struct {
	text string

	mu    sync.Mutex
	heard [][]byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, pcm []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heard = append(f.heard, append([]byte(nil), pcm...))
	return f.text, nil
}

func TestCoordinatorLocalEndpointing(t *testing.T) {
	eng := newFakeEngine()
	store := newTestJournal(t)
	source := &fakeSource{frames: make(chan []byte, 16)}
	detector := endpoint.New(endpoint.NewEnergyClassifier(300), endpoint.Config{
		WindowFrames: 2,
		TriggerRatio: 0.5,
		ReleaseRatio: 0.5,
	})
	transcriber := &fakeTranscriber{text: "come here"}
	c := New(eng, store, Options{Source: source, Detector: detector, Transcriber: transcriber})
	wait := runCoordinator(t, c)

	loud := pcmFrame(8000, 160)
	quiet := pcmFrame(0, 160)
	for _, frame := range [][]byte{loud, loud, quiet, quiet} {
		source.frames <- frame
	}

	// The turn's audio is sent as one buffer, then committed.
	waitCall(t, eng.calls, "send")
	waitCall(t, eng.calls, "commit")

	eng.events <- realtime.Event{Kind: realtime.EventBufferCommitted}
	eng.events <- realtime.Event{Kind: realtime.EventResponseCreated}
	eng.events <- realtime.Event{Kind: realtime.EventTextDelta, Text: "False %,% Hello %,% N/A"}
	eng.events <- realtime.Event{Kind: realtime.EventCompleted}
	close(eng.events)
	wait()

	want := bytes.Join([][]byte{loud, loud, quiet, quiet}, nil)
	eng.mu.Lock()
	sent := eng.sent
	eng.mu.Unlock()
	if len(sent) != 1 || !bytes.Equal(sent[0], want) {
		t.Fatalf("sent %d buffers, want exactly the accumulated turn audio", len(sent))
	}

	_, commits, creates, _ := eng.counts()
	if commits != 1 || creates != 1 {
		t.Fatalf("commits=%d creates=%d, want 1 and 1", commits, creates)
	}

	entries := store.LoadAll()
	if len(entries) != 1 {
		t.Fatalf("journal len=%d, want 1", len(entries))
	}
	if entries[0].UserText != "come here" {
		t.Fatalf("user_text=%q, want the local transcript", entries[0].UserText)
	}
	if len(transcriber.heard) != 1 || !bytes.Equal(transcriber.heard[0], want) {
		t.Fatal("transcriber did not receive the sealed turn audio")
	}
}
