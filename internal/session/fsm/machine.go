package fsm

import (
	"fmt"
	"sync"
)

// State describes the high-level turn state of the conversation.
type State string

const (
	StateIdle             State = "idle"
	StateListening        State = "listening"
	StateCommitted        State = "committed"
	StateAwaitingResponse State = "awaiting_response"
	StateSpeaking         State = "speaking"
	StateCanceling        State = "canceling"
)

// Machine is a lightweight deterministic turn state machine.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// New creates a machine in the idle state.
func New() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnSpeechStart moves the session into listening.
func (m *Machine) OnSpeechStart() {
	m.transition(StateListening)
}

// OnCommit marks the user's turn audio as sealed.
func (m *Machine) OnCommit() {
	m.transition(StateCommitted)
}

// OnResponseRequested marks one outbound response request in flight.
func (m *Machine) OnResponseRequested() {
	m.transition(StateAwaitingResponse)
}

// OnResponseStart marks the engine streaming a response back.
func (m *Machine) OnResponseStart() {
	m.transition(StateSpeaking)
}

// OnResponseDone clears the in-flight response, whatever its outcome.
func (m *Machine) OnResponseDone() {
	m.transition(StateIdle)
}

// OnCancel marks an in-flight response being torn down.
func (m *Machine) OnCancel() {
	m.transition(StateCanceling)
}

// Force sets state unconditionally.
func (m *Machine) Force(state State) error {
	switch state {
	case StateIdle, StateListening, StateCommitted, StateAwaitingResponse, StateSpeaking, StateCanceling:
		m.transition(state)
		return nil
	default:
		return fmt.Errorf("invalid state: %s", state)
	}
}

func (m *Machine) transition(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}
