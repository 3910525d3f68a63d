package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned by send operations after the client is closed.
var ErrClosed = errors.New("realtime: client closed")

// Client is a duplex websocket connection to the conversational engine.
// Inbound events are decoded by a single read loop and delivered, in arrival
// order, on the Events channel. Outbound writes may come from any goroutine;
// they are serialized by a write mutex.
type Client struct {
	cfg    Config
	logger *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// Dial connects to the engine, configures the session, and starts the read
// loop. The returned client owns the connection until Close.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return nil, errors.New("realtime: engine url is empty")
	}

	url := cfg.URL
	if cfg.Model != "" && !strings.Contains(url, "model=") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "model=" + cfg.Model
	}

	headers := http.Header{}
	if cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}

	if err := c.sendSessionUpdate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Info("engine connected",
		zap.String("url", cfg.URL),
		zap.String("model", cfg.Model),
		zap.Bool("server_vad", cfg.ServerVAD),
	)

	go c.readLoop()
	return c, nil
}

// Events returns the ordered inbound event channel. It is closed when the
// connection ends, whether by Close or by a transport failure.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SendAudio appends one chunk of PCM16 audio to the engine's input buffer.
func (c *Client) SendAudio(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return c.sendJSON(ctx, map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// Commit marks the buffered input audio as one completed turn.
func (c *Client) Commit(ctx context.Context) error {
	return c.sendJSON(ctx, map[string]any{"type": "input_audio_buffer.commit"})
}

// CreateResponse asks the engine to generate a response for the committed
// turn. Callers must enforce the one-in-flight invariant.
func (c *Client) CreateResponse(ctx context.Context) error {
	return c.sendJSON(ctx, map[string]any{"type": "response.create"})
}

// CancelResponse aborts the in-flight response, if any.
func (c *Client) CancelResponse(ctx context.Context) error {
	return c.sendJSON(ctx, map[string]any{"type": "response.cancel"})
}

// Close tears the connection down. The Events channel closes once the read
// loop drains.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) sendSessionUpdate(ctx context.Context) error {
	session := map[string]any{
		"modalities":          []string{"text", "audio"},
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
	}
	if c.cfg.Voice != "" {
		session["voice"] = c.cfg.Voice
	}
	if c.cfg.Instructions != "" {
		session["instructions"] = c.cfg.Instructions
	}
	if c.cfg.TranscribeModel != "" {
		session["input_audio_transcription"] = map[string]any{"model": c.cfg.TranscribeModel}
	}
	if c.cfg.ServerVAD {
		session["turn_detection"] = map[string]any{"type": "server_vad"}
	} else {
		session["turn_detection"] = nil
	}
	return c.sendJSON(ctx, map[string]any{
		"type":    "session.update",
		"session": session,
	})
}

func (c *Client) sendJSON(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(payload)
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.logger.Warn("engine connection lost", zap.Error(err))
				c.emit(Event{Kind: EventError, Reason: err.Error()})
			}
			return
		}
		event, ok := decodeEvent(data)
		if !ok {
			continue
		}
		if !c.emit(event) {
			return
		}
	}
}

// emit delivers one event, giving up when the client is closed so the read
// loop never blocks on a consumer that stopped draining.
func (c *Client) emit(event Event) bool {
	select {
	case c.events <- event:
		return true
	case <-c.done:
		return false
	}
}

type wireEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	ResponseID string `json:"response_id"`
	Response   struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		StatusDetail struct {
			Reason string `json:"reason"`
			Error  struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"status_details"`
	} `json:"response"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeEvent maps one wire message to a typed event. Unrecognized message
// types are dropped: the engine emits many bookkeeping events the session
// does not act on.
func decodeEvent(data []byte) (Event, bool) {
	var msg wireEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{Kind: EventError, Reason: "malformed engine frame: " + err.Error()}, true
	}

	switch msg.Type {
	case "input_audio_buffer.speech_started":
		return Event{Kind: EventSpeechStarted}, true
	case "input_audio_buffer.speech_stopped":
		return Event{Kind: EventSpeechStopped}, true
	case "input_audio_buffer.committed":
		return Event{Kind: EventBufferCommitted}, true
	case "response.created":
		return Event{Kind: EventResponseCreated, ResponseID: msg.Response.ID}, true
	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(msg.Delta)
		if err != nil {
			return Event{Kind: EventError, Reason: "malformed audio delta: " + err.Error()}, true
		}
		return Event{Kind: EventAudioDelta, Audio: audio, ResponseID: msg.ResponseID}, true
	case "response.text.delta", "response.audio_transcript.delta":
		return Event{Kind: EventTextDelta, Text: msg.Delta, ResponseID: msg.ResponseID}, true
	case "conversation.item.input_audio_transcription.completed":
		return Event{Kind: EventUserTranscript, Text: msg.Transcript}, true
	case "response.done":
		switch msg.Response.Status {
		case "failed":
			reason := msg.Response.StatusDetail.Error.Message
			if reason == "" {
				reason = msg.Response.StatusDetail.Reason
			}
			return Event{Kind: EventFailed, Reason: reason, ResponseID: msg.Response.ID}, true
		case "cancelled", "canceled":
			return Event{Kind: EventCanceled, ResponseID: msg.Response.ID}, true
		default:
			return Event{Kind: EventCompleted, ResponseID: msg.Response.ID}, true
		}
	case "error":
		return Event{Kind: EventError, Reason: msg.Error.Message}, true
	default:
		return Event{}, false
	}
}
