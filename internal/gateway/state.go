package gateway

// State tracks the execution session lifecycle.
type State int

const (
	// StateCreated is the initial state.
	StateCreated State = iota
	// StateAuthenticated means the bearer credential (if any) is set.
	StateAuthenticated
	// StateKernelStarted means the remote kernel exists.
	StateKernelStarted
	// StateExecuting means the execute request is in flight.
	StateExecuting
	// StateCompleted is the normal terminal state, including degraded
	// completion after a receive timeout.
	StateCompleted
	// StateFailed is the terminal state reached from any non-terminal
	// state on an unrecoverable error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAuthenticated:
		return "authenticated"
	case StateKernelStarted:
		return "kernel_started"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
