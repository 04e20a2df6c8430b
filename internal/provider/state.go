package provider

import (
	"fmt"
	"sync"
)

// State is the lifecycle phase of a provider.
type State int

const (
	Uninitialized State = iota
	NotReady
	Ready
	Working
	Error
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	case Working:
		return "working"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name for status endpoints.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TransitionError reports a rejected lifecycle transition.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("provider: invalid transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var allowed = map[State][]State{
	Uninitialized: {Ready, NotReady},
	NotReady:      {Ready, Error},
	Ready:         {NotReady, Working, Error},
	Working:       {Ready, NotReady, Error},
}

// CanTransition reports whether from -> to is a legal edge. Staying put is
// legal everywhere; nothing leaves Error.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateMachine guards one provider's state. It is safe for concurrent use.
type StateMachine struct {
	mu       sync.Mutex
	state    State
	onChange func(from, to State)
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: Uninitialized}
}

// OnChange registers fn to run after every effective transition, outside the lock.
func (m *StateMachine) OnChange(fn func(from, to State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *StateMachine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	m.state = to
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil && from != to {
		fn(from, to)
	}
	return nil
}

// CompareAndTransition moves from -> to only when the current state is from.
func (m *StateMachine) CompareAndTransition(from, to State) bool {
	m.mu.Lock()
	if m.state != from || !CanTransition(from, to) {
		m.mu.Unlock()
		return false
	}
	m.state = to
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil && from != to {
		fn(from, to)
	}
	return true
}

// Fail enters the sticky Error state from any initialized state.
func (m *StateMachine) Fail() {
	m.mu.Lock()
	from := m.state
	if from == Error || from == Uninitialized {
		m.mu.Unlock()
		return
	}
	m.state = Error
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(from, Error)
	}
}
