package httpclient

// State is the lifecycle state of a Task.
type State int

// Lifecycle states.
const (
	StateCreated State = iota
	StateRunning
	StateIntercepting
	StateSuspended
	StateCancelled
	StateCompleted
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateIntercepting:
		return "intercepting"
	case StateSuspended:
		return "suspended"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can leave s.
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateCompleted
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateCreated:      {StateRunning, StateCancelled},
	StateRunning:      {StateIntercepting, StateSuspended, StateCancelled, StateCompleted},
	StateIntercepting: {StateRunning, StateCancelled, StateCompleted},
	StateSuspended:    {StateRunning, StateCancelled},
}

// CanTransition reports whether moving from one state to another is legal.
// Self transitions are never legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
