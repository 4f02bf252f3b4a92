package model

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid single letter", "A", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"contains @", "@bob", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"tab character", "user\tname", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

var allStates = []ConnectionState{
	StateDisconnected,
	StateConnecting,
	StateAuthenticating,
	StateAuthenticated,
	StateError,
}

// machineAt walks a fresh machine along allowed edges until it reaches s.
func machineAt(t *testing.T, s ConnectionState) *StateMachine {
	t.Helper()
	paths := map[ConnectionState][]ConnectionState{
		StateDisconnected:   nil,
		StateConnecting:     {StateConnecting},
		StateAuthenticating: {StateConnecting, StateAuthenticating},
		StateAuthenticated:  {StateConnecting, StateAuthenticating, StateAuthenticated},
		StateError:          {StateConnecting, StateError},
	}
	m := NewStateMachine()
	for _, step := range paths[s] {
		if !m.Transition(step) {
			t.Fatalf("setup: transition to %s failed from %s", step, m.State())
		}
	}
	if m.State() != s {
		t.Fatalf("setup: machine in %s, want %s", m.State(), s)
	}
	return m
}

func TestTransitionMatrix(t *testing.T) {
	allowed := map[[2]ConnectionState]bool{
		{StateDisconnected, StateConnecting}:      true,
		{StateConnecting, StateAuthenticating}:    true,
		{StateConnecting, StateError}:             true,
		{StateAuthenticating, StateAuthenticated}: true,
		{StateAuthenticating, StateError}:         true,
		{StateAuthenticated, StateDisconnected}:   true,
		{StateAuthenticated, StateError}:          true,
		{StateError, StateDisconnected}:           true,
	}

	for _, from := range allStates {
		for _, to := range allStates {
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				m := machineAt(t, from)
				want := allowed[[2]ConnectionState{from, to}]
				if got := m.Transition(to); got != want {
					t.Fatalf("Transition(%s -> %s) = %v, want %v", from, to, got, want)
				}
				wantState := from
				if want {
					wantState = to
				}
				if m.State() != wantState {
					t.Fatalf("state after %s -> %s = %s, want %s", from, to, m.State(), wantState)
				}
				if CanTransition(from, to) != want {
					t.Fatalf("CanTransition(%s, %s) disagrees with Transition", from, to)
				}
			})
		}
	}
}

func TestAuthenticatedCannotReconnect(t *testing.T) {
	m := machineAt(t, StateAuthenticated)
	if m.Transition(StateConnecting) {
		t.Fatal("AUTHENTICATED -> CONNECTING should be rejected")
	}
	if !m.IsAuthenticated() {
		t.Fatalf("state changed to %s after rejected transition", m.State())
	}
}

func TestErrorMessageLifecycle(t *testing.T) {
	m := machineAt(t, StateAuthenticating)
	if !m.TransitionError("handshake failed") {
		t.Fatal("AUTHENTICATING -> ERROR should be allowed")
	}
	if !m.HasError() || m.ErrorMessage() != "handshake failed" {
		t.Fatalf("got state=%s msg=%q", m.State(), m.ErrorMessage())
	}

	// ERROR always recovers to DISCONNECTED and clears the diagnostic.
	if !m.Transition(StateDisconnected) {
		t.Fatal("ERROR -> DISCONNECTED should be allowed")
	}
	if m.ErrorMessage() != "" {
		t.Fatalf("error message not cleared: %q", m.ErrorMessage())
	}

	// A rejected error transition leaves the message untouched.
	if m.TransitionError("nope") {
		t.Fatal("DISCONNECTED -> ERROR should be rejected")
	}
	if m.ErrorMessage() != "" {
		t.Fatalf("rejected transition set message %q", m.ErrorMessage())
	}
}

func TestZeroValueMachine(t *testing.T) {
	var m StateMachine
	if m.State() != StateDisconnected {
		t.Fatalf("zero value state = %s, want DISCONNECTED", m.State())
	}
	if m.IsAuthenticated() || m.HasError() {
		t.Fatal("zero value should be neither authenticated nor errored")
	}
}
