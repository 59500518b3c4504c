package tts

import "sync"

// State is a generation session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateFinalizing
	StateComplete
	StateCancelled
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session has reached an end state. A new
// session may be started once the previous one is terminal.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateCancelled, StateFailed:
		return true
	}
	return false
}

// transitions defines the legal state graph. Cancellation is reachable
// from every non-terminal state; failure only once a request exists.
var transitions = map[State][]State{
	StateIdle:       {StateRequesting, StateCancelled},
	StateRequesting: {StateStreaming, StateCancelled, StateFailed},
	StateStreaming:  {StateFinalizing, StateCancelled, StateFailed},
	StateFinalizing: {StateComplete, StateCancelled, StateFailed},
	StateComplete:   {},
	StateCancelled:  {},
	StateFailed:     {},
}

// Machine guards a session's state against invalid transitions. The
// zero value is not usable; create one with NewMachine.
type Machine struct {
	mu      sync.Mutex
	current State
}

// NewMachine returns a state machine in StateIdle.
func NewMachine() *Machine {
	return &Machine{current: StateIdle}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Can reports whether a transition to the given state is legal now.
func (m *Machine) Can(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return canTransition(m.current, to)
}

// To attempts a transition and reports whether it happened. Once a
// terminal state is reached every further To fails, which is how
// racing finishers (a cancel against an in-flight error) settle on a
// single outcome.
func (m *Machine) To(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !canTransition(m.current, to) {
		return false
	}
	m.current = to
	return true
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
