package bridge

import (
	"time"

	"github.com/carebot-ai/voice-edge/internal/journal"
)

// Command types accepted on the commands topic.
const (
	CommandRunAgent = "run_agent"
	CommandSay      = "say"
	CommandPing     = "ping"
)

// Event types published on the events topic.
const (
	EventTranscript  = "transcript"
	EventAgentResult = "agent_result"
	EventStatus      = "status"
	EventError       = "error"
)

// Command is one inbound request from a remote operator.
type Command struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Event is one outbound message on the events topic. Commands carrying a
// req_id receive exactly one terminal event correlated by the same req_id;
// status events carry it inside detail.
type Event struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	TS    string `json:"ts"`

	// transcript
	Text string `json:"text,omitempty"`

	// agent_result
	Movement     *bool  `json:"movement,omitempty"`
	VerbalOutput string `json:"verbal_output,omitempty"`
	MotionPlan   string `json:"motion_plan,omitempty"`

	// status
	Status string `json:"status,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	Detail map[string]any `json:"detail,omitempty"`
}

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func transcriptEvent(reqID, text string) Event {
	return Event{Type: EventTranscript, ReqID: reqID, TS: stamp(), Text: text}
}

func agentResultEvent(reqID string, movement bool, verbalOutput, motionPlan string) Event {
	return Event{
		Type:         EventAgentResult,
		ReqID:        reqID,
		TS:           stamp(),
		Movement:     &movement,
		VerbalOutput: verbalOutput,
		MotionPlan:   motionPlan,
	}
}

func resultFromEntry(reqID string, entry journal.Entry) Event {
	return agentResultEvent(reqID, entry.MovementRequired == "True", entry.VerbalOutput, entry.MotionInfo)
}

func statusEvent(status string, detail map[string]any) Event {
	return Event{Type: EventStatus, TS: stamp(), Status: status, Detail: detail}
}

func errorEvent(reqID, message string, detail map[string]any) Event {
	return Event{Type: EventError, ReqID: reqID, TS: stamp(), Message: message, Detail: detail}
}
