package client

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/quicchat/pkg/model"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr error
	}{
		{"hello everyone", Command{Kind: CmdBroadcast, Body: "hello everyone"}, nil},
		{"  padded  ", Command{Kind: CmdBroadcast, Body: "padded"}, nil},
		{"", Command{Kind: CmdNone}, nil},
		{"   ", Command{Kind: CmdNone}, nil},
		{"/quit", Command{Kind: CmdQuit}, nil},
		{"/QUIT", Command{Kind: CmdQuit}, nil},
		{"/Quit\n", Command{Kind: CmdQuit}, nil},
		{"@bob secret", Command{Kind: CmdPrivate, To: "bob", Body: "secret"}, nil},
		{"@bob two words", Command{Kind: CmdPrivate, To: "bob", Body: "two words"}, nil},
		{"@bob", Command{}, ErrPrivateUsage},
		{"@bob   ", Command{}, ErrPrivateUsage},
		{"@ hi", Command{}, ErrPrivateUsage},
		{"/quitting", Command{Kind: CmdBroadcast, Body: "/quitting"}, nil},
		{"email me@example.com", Command{Kind: CmdBroadcast, Body: "email me@example.com"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseLine(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseLine(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestCheckUsername(t *testing.T) {
	tests := []struct {
		name    string
		wantErr error
	}{
		{"alice", nil},
		{"bob_2-x", nil},
		{"", model.ErrUsernameEmpty},
		{"bob smith", model.ErrUsernameInvalidChars},
		{"grüße", model.ErrUsernameInvalidChars},
		{strings.Repeat("a", 33), model.ErrUsernameTooLong},
	}
	for _, tt := range tests {
		err := CheckUsername(tt.name)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("CheckUsername(%q) = %v, want %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !strings.Contains(err.Error(), UsernameRules) {
			t.Errorf("CheckUsername(%q) error %q does not state the rules", tt.name, err)
		}
	}
}
