package model

import "sync"

// ConnectionState is the authentication lifecycle position of one connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateAuthenticating
	StateAuthenticated
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// validTransitions maps each state to the states it may move to.
var validTransitions = map[ConnectionState][]ConnectionState{
	StateDisconnected:   {StateConnecting},
	StateConnecting:     {StateAuthenticating, StateError},
	StateAuthenticating: {StateAuthenticated, StateError},
	StateAuthenticated:  {StateDisconnected, StateError},
	StateError:          {StateDisconnected},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to ConnectionState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateMachine tracks one connection's state. The zero value starts in
// StateDisconnected and is ready to use. Safe for concurrent use.
type StateMachine struct {
	mu     sync.RWMutex
	state  ConnectionState
	errMsg string
}

// NewStateMachine returns a machine in StateDisconnected.
func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

// Transition moves to target if the table allows it and reports whether it did.
// Entering any state other than StateError clears the error message.
func (m *StateMachine) Transition(target ConnectionState) bool {
	return m.transition(target, "")
}

// TransitionError moves to StateError with a diagnostic message.
func (m *StateMachine) TransitionError(msg string) bool {
	return m.transition(StateError, msg)
}

func (m *StateMachine) transition(target ConnectionState, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state, target) {
		return false
	}
	m.state = target
	if target == StateError {
		m.errMsg = msg
	} else {
		m.errMsg = ""
	}
	return true
}

// State returns the current state.
func (m *StateMachine) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ErrorMessage returns the diagnostic attached on entering StateError.
func (m *StateMachine) ErrorMessage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errMsg
}

// IsAuthenticated reports whether the connection may exchange chat traffic.
func (m *StateMachine) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// HasError reports whether the machine is in StateError.
func (m *StateMachine) HasError() bool {
	return m.State() == StateError
}
