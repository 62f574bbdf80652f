package core

import "testing"

func TestRunState_String(t *testing.T) {
	tests := []struct {
		state    RunState
		expected string
	}{
		{StateCreated, "CREATED"},
		{StateConnecting, "CONNECTING"},
		{StateReady, "READY"},
		{StateDegradedReady, "DEGRADED_READY"},
		{StateRunning, "RUNNING"},
		{StateCompleted, "COMPLETED"},
		{StateFailed, "FAILED"},
		{StateClosed, "CLOSED"},
		{RunState(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("RunState(%d).String() = %q, want %q", tt.state, got, tt.expected)
		}
	}
}

func TestRunState_IsTerminal(t *testing.T) {
	terminal := []RunState{StateCompleted, StateFailed, StateClosed}
	nonTerminal := []RunState{StateCreated, StateConnecting, StateReady, StateDegradedReady, StateRunning}

	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}

func TestRunState_CanTransition(t *testing.T) {
	legal := [][2]RunState{
		{StateCreated, StateConnecting},
		{StateConnecting, StateReady},
		{StateConnecting, StateDegradedReady},
		{StateConnecting, StateCompleted},
		{StateConnecting, StateFailed},
		{StateReady, StateRunning},
		{StateDegradedReady, StateRunning},
		{StateDegradedReady, StateFailed},
		{StateRunning, StateCompleted},
		{StateRunning, StateFailed},
		{StateCompleted, StateClosed},
		{StateFailed, StateClosed},
	}
	for _, tr := range legal {
		if !tr[0].CanTransition(tr[1]) {
			t.Errorf("%s -> %s should be legal", tr[0], tr[1])
		}
	}

	illegal := [][2]RunState{
		{StateCreated, StateRunning},
		{StateReady, StateCompleted},
		{StateClosed, StateCreated},
		{StateCompleted, StateRunning},
	}
	for _, tr := range illegal {
		if tr[0].CanTransition(tr[1]) {
			t.Errorf("%s -> %s should be illegal", tr[0], tr[1])
		}
	}
}

func TestReadiness_String(t *testing.T) {
	if Ready.String() != "ready" {
		t.Errorf("Ready.String() = %q", Ready.String())
	}
	if DegradedReady.String() != "degraded" {
		t.Errorf("DegradedReady.String() = %q", DegradedReady.String())
	}
}

func TestErrorCategory_String(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected string
	}{
		{ErrCategoryNone, "none"},
		{ErrCategoryConnection, "connection"},
		{ErrCategoryElement, "element"},
		{ErrCategoryGesture, "gesture"},
		{ErrCategoryConfig, "config"},
		{ErrCategoryUnsupported, "unsupported"},
		{ErrorCategory(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.category.String(); got != tt.expected {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", tt.category, got, tt.expected)
		}
	}
}
