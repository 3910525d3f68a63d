package realtime

// Config describes one engine session.
type Config struct {
	URL        string
	Model      string
	Voice      string
	APIKey     string
	SampleRate int
	// Instructions is the session-level system prompt.
	Instructions string
	// TranscribeModel, when set, asks the engine to transcribe user audio.
	TranscribeModel string
	// ServerVAD asks the engine to detect turn boundaries itself.
	ServerVAD bool
}

// EventKind discriminates inbound engine events.
type EventKind int

const (
	// EventSpeechStarted means the engine's VAD heard speech begin.
	EventSpeechStarted EventKind = iota
	// EventSpeechStopped means the engine's VAD heard speech stop.
	EventSpeechStopped
	// EventBufferCommitted means the input audio buffer was committed as a turn.
	EventBufferCommitted
	// EventResponseCreated means the engine started generating a response.
	EventResponseCreated
	// EventAudioDelta carries one chunk of response audio.
	EventAudioDelta
	// EventTextDelta carries one fragment of response text.
	EventTextDelta
	// EventUserTranscript carries the engine's transcript of the user's turn.
	EventUserTranscript
	// EventCompleted means the in-flight response finished successfully.
	EventCompleted
	// EventFailed means the in-flight response failed.
	EventFailed
	// EventCanceled means the in-flight response was canceled.
	EventCanceled
	// EventError is a transport or protocol level error.
	EventError
)

// String returns the wire-style name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventSpeechStarted:
		return "speech_started"
	case EventSpeechStopped:
		return "speech_stopped"
	case EventBufferCommitted:
		return "buffer_committed"
	case EventResponseCreated:
		return "response_created"
	case EventAudioDelta:
		return "audio_delta"
	case EventTextDelta:
		return "text_delta"
	case EventUserTranscript:
		return "user_transcript"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventCanceled:
		return "canceled"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one inbound engine message. Events for a response are delivered
// in the order the engine sent them.
type Event struct {
	Kind EventKind
	// Audio holds decoded PCM16 bytes for EventAudioDelta.
	Audio []byte
	// Text holds the fragment for EventTextDelta.
	Text string
	// Reason holds the failure or error detail for EventFailed and EventError.
	Reason string
	// ResponseID identifies the response the event belongs to, when known.
	ResponseID string
}
