package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NicolasHaas/quicchat/pkg/model"
)

// UsernameRules describes accepted usernames for prompts and help text.
const UsernameRules = "1-32 characters: ASCII letters, digits, '_' or '-'"

// CheckUsername rejects a name the server would refuse, before dialing.
func CheckUsername(name string) error {
	if err := model.ValidateUsername(name); err != nil {
		return fmt.Errorf("invalid username %q (%s): %w", name, UsernameRules, err)
	}
	return nil
}

// CommandKind classifies a line of user input.
type CommandKind int

const (
	CmdNone      CommandKind = iota // blank line, nothing to send
	CmdQuit                         // end the session
	CmdBroadcast                    // chat to everyone
	CmdPrivate                      // chat to one user
)

// Command is a parsed input line.
type Command struct {
	Kind CommandKind
	To   string
	Body string
}

// ErrPrivateUsage is returned for a private message line without a body.
var ErrPrivateUsage = errors.New("invalid private message format, use '@username message'")

// ParseLine interprets one input line. "@name message" addresses a single
// user, "/quit" (any case) ends the session, and anything else is broadcast.
func ParseLine(line string) (Command, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Command{Kind: CmdNone}, nil
	case strings.EqualFold(line, "/quit"):
		return Command{Kind: CmdQuit}, nil
	case strings.HasPrefix(line, "@"):
		name, body, ok := strings.Cut(line, " ")
		name = strings.TrimPrefix(name, "@")
		if !ok || name == "" {
			return Command{}, ErrPrivateUsage
		}
		return Command{Kind: CmdPrivate, To: name, Body: body}, nil
	default:
		return Command{Kind: CmdBroadcast, Body: line}, nil
	}
}
