package fsm

import "testing"

func TestMachineDefault(t *testing.T) {
	m := New()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineTurnLifecycle(t *testing.T) {
	m := New()
	m.OnSpeechStart()
	if got := m.State(); got != StateListening {
		t.Fatalf("state=%s, want %s", got, StateListening)
	}
	m.OnCommit()
	if got := m.State(); got != StateCommitted {
		t.Fatalf("state=%s, want %s", got, StateCommitted)
	}
	m.OnResponseRequested()
	if got := m.State(); got != StateAwaitingResponse {
		t.Fatalf("state=%s, want %s", got, StateAwaitingResponse)
	}
	m.OnResponseStart()
	if got := m.State(); got != StateSpeaking {
		t.Fatalf("state=%s, want %s", got, StateSpeaking)
	}
	m.OnResponseDone()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineCancel(t *testing.T) {
	m := New()
	m.OnResponseStart()
	m.OnCancel()
	if got := m.State(); got != StateCanceling {
		t.Fatalf("state=%s, want %s", got, StateCanceling)
	}
	m.OnResponseDone()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineInvalidForce(t *testing.T) {
	m := New()
	if err := m.Force(State("unknown")); err == nil {
		t.Fatal("Force(unknown) error=nil, want non-nil")
	}
	if err := m.Force(StateSpeaking); err != nil {
		t.Fatalf("Force(speaking) error=%v, want nil", err)
	}
	if got := m.State(); got != StateSpeaking {
		t.Fatalf("state=%s, want %s", got, StateSpeaking)
	}
}
