package core

// RunState is the lifecycle position of one device run.
type RunState int

const (
	StateCreated       RunState = iota // Worker allocated, nothing dialed yet
	StateConnecting                    // Opening the automation session
	StateReady                         // Home marker seen
	StateDegradedReady                 // Home marker wait timed out, session still usable
	StateRunning                       // Behavior script executing
	StateCompleted                     // Script returned without error
	StateFailed                        // Connection failure, panic, or script error
	StateClosed                        // Session released
)

// String returns the string representation of RunState
func (s RunState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateDegradedReady:
		return "DEGRADED_READY"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true if the script has finished, one way or the other
func (s RunState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateClosed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal step.
func (s RunState) CanTransition(next RunState) bool {
	switch s {
	case StateCreated:
		return next == StateConnecting
	case StateConnecting:
		// Completed here means the run was stopped while connecting.
		return next == StateReady || next == StateDegradedReady || next == StateCompleted || next == StateFailed
	case StateReady, StateDegradedReady:
		return next == StateRunning || next == StateFailed
	case StateRunning:
		return next == StateCompleted || next == StateFailed
	case StateCompleted, StateFailed:
		return next == StateClosed
	default:
		return false
	}
}

// Readiness describes how a session came up.
type Readiness int

const (
	Ready         Readiness = iota // Home marker found within the timeout
	DegradedReady                  // Timed out; caller decides whether to proceed
)

func (r Readiness) String() string {
	if r == Ready {
		return "ready"
	}
	return "degraded"
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone        ErrorCategory = iota // No error
	ErrCategoryConnection                       // Server unreachable, capabilities rejected, session gone
	ErrCategoryElement                          // Locator matched nothing
	ErrCategoryGesture                          // Pointer action rejected
	ErrCategoryConfig                           // Missing or invalid configuration
	ErrCategoryUnsupported                      // Known capability gap
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryElement:
		return "element"
	case ErrCategoryGesture:
		return "gesture"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}
