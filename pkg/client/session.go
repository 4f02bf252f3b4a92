// Package client implements the interactive chat client session.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/NicolasHaas/quicchat/pkg/model"
	"github.com/NicolasHaas/quicchat/pkg/protocol"
	"github.com/NicolasHaas/quicchat/pkg/transport"
)

// DefaultHeartbeatInterval is how often an authenticated client pings the server.
const DefaultHeartbeatInterval = 15 * time.Second

// unknownCommand is the server's answer to any non-chat message after login,
// heartbeats included.
const unknownCommand = "Unknown command."

// ErrAuthRejected is returned by Run when the server answers AUTH_BAD.
var ErrAuthRejected = errors.New("client: authentication rejected")

// Conn is the message transport used by a Session.
type Conn interface {
	Send(ctx context.Context, msg protocol.Message) error
	Receive(ctx context.Context) ([]byte, error)
	Done() <-chan struct{}
	Close(code quic.ApplicationErrorCode, reason string) error
}

// Dialer opens a connection to the server.
type Dialer func(ctx context.Context) (Conn, error)

// QUICDialer returns a Dialer for addr. Server certificates are not verified.
func QUICDialer(addr string, alpn []string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		return transport.Dial(ctx, addr, transport.ClientTLS(alpn, true), nil)
	}
}

// Options configures a Session.
type Options struct {
	Username string
	Password string
	Token    string // optional bearer token for resuming without a password

	HeartbeatInterval time.Duration // default DefaultHeartbeatInterval

	Dial   Dialer
	Input  io.Reader // user lines
	Output io.Writer // chat display
}

// Session drives one client connection from dial to disconnect.
type Session struct {
	opts  Options
	state *model.StateMachine
	out   *printer

	mu    sync.RWMutex
	token string

	pings atomic.Int64 // heartbeats not yet answered
}

// NewSession creates a Session in the DISCONNECTED state.
func NewSession(opts Options) *Session {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Session{
		opts:  opts,
		state: model.NewStateMachine(),
		out:   &printer{w: opts.Output},
	}
}

// State returns the current connection state.
func (s *Session) State() model.ConnectionState {
	return s.state.State()
}

// ErrorMessage returns the diagnostic recorded when the session entered ERROR.
func (s *Session) ErrorMessage() string {
	return s.state.ErrorMessage()
}

// Token returns the bearer token issued by the server, if any.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Run connects, authenticates, and then relays chat until the user quits,
// ctx is cancelled, or the connection is lost. A quit or cancellation
// returns nil.
func (s *Session) Run(ctx context.Context) error {
	if s.opts.Dial == nil {
		return errors.New("client: no dialer configured")
	}

	s.state.Transition(model.StateConnecting)
	conn, err := s.opts.Dial(ctx)
	if err != nil {
		s.state.TransitionError(err.Error())
		return fmt.Errorf("client: connect: %w", err)
	}
	defer func() { _ = conn.Close(transport.CodeNormal, "") }()

	s.state.Transition(model.StateAuthenticating)
	if err := s.authenticate(ctx, conn); err != nil {
		return err
	}

	s.out.println("Logged in. Type messages to chat. Type '/quit' to exit.")
	return s.chat(ctx, conn)
}

func (s *Session) authenticate(ctx context.Context, conn Conn) error {
	req := protocol.NewAuthRequest(s.opts.Username, s.opts.Password).WithToken(s.opts.Token)
	if err := conn.Send(ctx, req); err != nil {
		s.state.TransitionError(err.Error())
		return fmt.Errorf("client: send auth: %w", err)
	}

	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			s.state.TransitionError(err.Error())
			return fmt.Errorf("client: read auth response: %w", err)
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			slog.Warn("discarding malformed message", "err", err)
			continue
		}
		switch msg.Type {
		case protocol.AuthOK:
			s.display(msg)
			s.setToken(msg.Token)
			s.state.Transition(model.StateAuthenticated)
			slog.Debug("authenticated", "user", s.opts.Username)
			return nil
		case protocol.AuthBad:
			s.display(msg)
			s.state.TransitionError(msg.Body)
			return fmt.Errorf("%w: %s", ErrAuthRejected, msg.Body)
		default:
			// Broadcasts can race ahead of the reply.
			s.display(msg)
		}
	}
}

// chat runs the receive, heartbeat, and input loops until one of them ends
// the session.
func (s *Session) chat(ctx context.Context, conn Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := readLines(s.opts.Input)
	results := make(chan error, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); results <- s.receiveLoop(ctx, conn) }()
	go func() { defer wg.Done(); results <- s.heartbeatLoop(ctx, conn) }()
	go func() { defer wg.Done(); results <- s.inputLoop(ctx, conn, lines) }()

	err := <-results
	cancel()
	wg.Wait()

	if err != nil {
		s.state.TransitionError(err.Error())
		return err
	}
	s.state.Transition(model.StateDisconnected)
	return nil
}

func (s *Session) receiveLoop(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client: connection lost: %w", err)
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			slog.Warn("discarding malformed message", "err", err)
			continue
		}
		if s.pingReply(msg) {
			continue
		}
		s.display(msg)
	}
}

// pingReply reports whether msg answers an outstanding heartbeat and, if so,
// consumes it.
func (s *Session) pingReply(msg protocol.Message) bool {
	if msg.Type != protocol.Sys || msg.Body != unknownCommand {
		return false
	}
	for {
		n := s.pings.Load()
		if n <= 0 {
			return false
		}
		if s.pings.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (s *Session) heartbeatLoop(ctx context.Context, conn Conn) error {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.state.IsAuthenticated() {
				continue
			}
			s.pings.Add(1)
			if err := conn.Send(ctx, protocol.NewSystem("ping").WithToken(s.Token())); err != nil {
				s.pings.Add(-1)
				// The receive loop reports the loss.
				slog.Debug("heartbeat failed", "err", err)
				continue
			}
			slog.Debug("heartbeat sent")
		}
	}
}

func (s *Session) inputLoop(ctx context.Context, conn Conn, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil // end of input
			}
			if quit := s.handleLine(ctx, conn, line); quit {
				return nil
			}
		}
	}
}

// handleLine sends the message a line describes and reports whether the
// user asked to quit.
func (s *Session) handleLine(ctx context.Context, conn Conn, line string) bool {
	cmd, err := ParseLine(line)
	if err != nil {
		s.out.println("Invalid private message format. Use '@username message'")
		return false
	}
	var msg protocol.Message
	switch cmd.Kind {
	case CmdNone:
		return false
	case CmdQuit:
		s.out.println("Exiting chat.")
		return true
	case CmdPrivate:
		msg = protocol.NewPrivateChat(cmd.To, cmd.Body)
	default:
		msg = protocol.NewChat(cmd.Body)
	}
	if err := conn.Send(ctx, msg.WithToken(s.Token())); err != nil {
		slog.Error("send failed", "err", err)
	}
	return false
}

// display renders an inbound message.
func (s *Session) display(msg protocol.Message) {
	switch msg.Type {
	case protocol.Chat:
		s.out.println(msg.Body)
	case protocol.AuthBad:
		s.out.println("[AUTH ERROR] " + msg.Body)
	default:
		s.out.println("[SYSTEM] " + msg.Body)
	}
}

// readLines feeds input lines to a channel that is closed at EOF. Reads from
// a terminal cannot be interrupted, so the goroutine is never joined.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	if r == nil {
		close(ch)
		return ch
	}
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// printer serializes writes from the session goroutines.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) println(line string) {
	if p.w == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, line)
}
