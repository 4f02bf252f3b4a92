package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/NicolasHaas/quicchat/pkg/model"
	"github.com/NicolasHaas/quicchat/pkg/protocol"
)

// Replies sent by the routing engine.
const (
	msgAuthFirst       = "Please authenticate first."
	msgAuthRequired    = "Username and password required."
	msgAuthFailed      = "Authentication failed."
	msgInvalidToken    = "Invalid or expired token."
	msgUnknownCommand  = "Unknown command."
	heartbeatBody      = "ping"
	rosterPrefix       = "Online users: "
	invalidUserPrefix  = "Invalid username: "
	decodeErrorPrefix  = "Error: "
	welcomePrefix      = "Welcome, "
	privateEchoPattern = "[Private to %s] %s"
	privatePattern     = "[Private] %s: %s"
)

// Authenticator verifies credentials and manages bearer tokens.
type Authenticator interface {
	VerifyOrRegister(username, password string) (ok, registered bool, err error)
	IssueToken(username string) (string, error)
	ValidateToken(token string) (string, bool)
}

// Router interprets inbound messages and drives the registry.
type Router struct {
	registry *Registry
	auth     Authenticator
	metrics  *Metrics
}

// NewRouter creates a Router. metrics may be nil.
func NewRouter(reg *Registry, auth Authenticator, metrics *Metrics) *Router {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Router{registry: reg, auth: auth, metrics: metrics}
}

// connHandler is the per-connection actor. It is owned by exactly one
// goroutine, so its fields need no locking.
type connHandler struct {
	router   *Router
	connID   string
	peer     Peer
	state    *model.StateMachine
	username string
}

// newConnHandler creates the handler for a freshly accepted connection.
func (rt *Router) newConnHandler(connID string, peer Peer) *connHandler {
	h := &connHandler{
		router: rt,
		connID: connID,
		peer:   peer,
		state:  model.NewStateMachine(),
	}
	h.state.Transition(model.StateConnecting)
	h.state.Transition(model.StateAuthenticating)
	return h
}

// handleFrame decodes one inbound payload and dispatches it.
func (h *connHandler) handleFrame(ctx context.Context, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		h.rejectMalformed(ctx, err)
		return
	}
	h.handle(ctx, msg)
}

// rejectMalformed reports a decode failure to the peer. State is unchanged.
func (h *connHandler) rejectMalformed(ctx context.Context, err error) {
	h.router.metrics.DecodeErrors.Add(1)
	reason := err.Error()
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		reason = de.Reason
	}
	slog.Warn("malformed message", "conn", h.connID, "user", h.username, "err", err)
	h.reply(ctx, protocol.NewSystem(decodeErrorPrefix+reason))
}

func (h *connHandler) handle(ctx context.Context, msg protocol.Message) {
	if !h.state.IsAuthenticated() {
		h.handleAuth(ctx, msg)
		return
	}
	h.handleChat(ctx, msg)
}

func (h *connHandler) handleAuth(ctx context.Context, msg protocol.Message) {
	if msg.Type != protocol.AuthReq {
		h.reply(ctx, protocol.NewAuthBad(msgAuthFirst))
		return
	}

	username, password := msg.To, msg.Body
	if username == "" || (password == "" && msg.Token == "") {
		h.rejectAuth(ctx, msgAuthRequired)
		return
	}
	if err := model.ValidateUsername(username); err != nil {
		h.rejectAuth(ctx, invalidUserPrefix+err.Error())
		return
	}

	if msg.Token != "" {
		sub, ok := h.router.auth.ValidateToken(msg.Token)
		if ok && sub == username {
			h.router.metrics.TokenLogins.Add(1)
			h.completeLogin(ctx, username)
			return
		}
		if password == "" {
			h.rejectAuth(ctx, msgInvalidToken)
			return
		}
	}

	ok, registered, err := h.router.auth.VerifyOrRegister(username, password)
	if err != nil {
		slog.Error("credential check failed", "conn", h.connID, "user", username, "err", err)
		h.rejectAuth(ctx, msgAuthFailed)
		return
	}
	if !ok {
		h.rejectAuth(ctx, msgAuthFailed)
		return
	}
	if registered {
		h.router.metrics.Registrations.Add(1)
	}
	h.completeLogin(ctx, username)
}

func (h *connHandler) rejectAuth(ctx context.Context, reason string) {
	h.router.metrics.FailedAuths.Add(1)
	slog.Info("authentication rejected", "conn", h.connID, "reason", reason)
	h.reply(ctx, protocol.NewAuthBad(reason))
}

// completeLogin registers the session, replies AUTH_OK, and announces the
// join. The registry add comes first so a concurrent login for the same
// name is rejected before any token is delivered.
func (h *connHandler) completeLogin(ctx context.Context, username string) {
	token, err := h.router.auth.IssueToken(username)
	if err != nil {
		slog.Error("issue token failed", "conn", h.connID, "user", username, "err", err)
		h.rejectAuth(ctx, msgAuthFailed)
		return
	}

	reg := h.router.registry
	if !reg.Add(username, h.connID, h.peer) {
		h.rejectAuth(ctx, fmt.Sprintf("User '%s' is already logged in.", username))
		return
	}
	reg.SetToken(username, h.connID, token)
	h.username = username
	h.state.Transition(model.StateAuthenticated)
	h.router.metrics.SuccessfulAuths.Add(1)
	slog.Info("client authenticated", "conn", h.connID, "user", username)

	h.reply(ctx, protocol.NewAuthOK(welcomePrefix+username, token))
	reg.BroadcastSystem(ctx, fmt.Sprintf("User '%s' joined the chat.", username))
	h.router.broadcastRoster(ctx)
}

func (h *connHandler) handleChat(ctx context.Context, msg protocol.Message) {
	if msg.Type != protocol.Chat {
		// Heartbeats get the same answer as any other command; the client
		// hides the replies to its own pings.
		if msg.Type == protocol.Sys && msg.Body == heartbeatBody {
			h.router.metrics.Heartbeats.Add(1)
		}
		h.reply(ctx, protocol.NewSystem(msgUnknownCommand))
		return
	}

	body := sanitizeText(msg.Body)
	if msg.IsPrivate() {
		h.sendPrivate(ctx, msg.To, body)
		return
	}
	h.router.registry.Broadcast(ctx, h.username, body)
	h.router.metrics.ChatMessagesSent.Add(1)
}

func (h *connHandler) sendPrivate(ctx context.Context, target, body string) {
	reg := h.router.registry
	delivered := reg.SendTo(ctx, target, protocol.NewChat(fmt.Sprintf(privatePattern, h.username, body)))
	if !delivered {
		if _, online := reg.Get(target); !online {
			h.router.metrics.PrivateUndelivered.Add(1)
			h.reply(ctx, protocol.NewSystem(fmt.Sprintf("User '%s' is not online.", target)))
		}
		return
	}
	h.router.metrics.PrivateMessagesSent.Add(1)
	h.reply(ctx, protocol.NewChat(fmt.Sprintf(privateEchoPattern, target, body)))
}

// disconnect releases the session after the transport has gone away.
func (h *connHandler) disconnect(ctx context.Context) {
	if h.username == "" {
		if h.state.State() == model.StateAuthenticating {
			h.state.TransitionError("connection closed before authentication")
		}
		h.state.Transition(model.StateDisconnected)
		return
	}

	h.state.Transition(model.StateDisconnected)
	if !h.router.registry.RemoveConn(h.username, h.connID) {
		return
	}
	slog.Info("client disconnected", "conn", h.connID, "user", h.username)
	if ctx.Err() != nil {
		return // server shutting down
	}
	h.router.registry.BroadcastSystem(ctx, fmt.Sprintf("User '%s' left the chat.", h.username))
	h.router.broadcastRoster(ctx)
}

// reply sends msg to this connection's own peer.
func (h *connHandler) reply(ctx context.Context, msg protocol.Message) {
	sendCtx, cancel := context.WithTimeout(ctx, h.router.registry.sendTimeout)
	defer cancel()
	if err := h.peer.Send(sendCtx, msg); err != nil {
		h.router.metrics.SendFailures.Add(1)
		slog.Warn("reply failed", "conn", h.connID, "user", h.username, "type", msg.Type, "err", err)
	}
}

func (rt *Router) broadcastRoster(ctx context.Context) {
	rt.registry.BroadcastSystem(ctx, rosterMessage(rt.registry.Usernames()))
}

func rosterMessage(names []string) string {
	return rosterPrefix + strings.Join(names, ", ")
}

// sanitizeText strips control characters from user-supplied text and
// collapses newlines to spaces.
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' ' // collapse newlines to spaces
		}
		if unicode.IsControl(r) {
			return -1 // strip all other control chars (null, bell, ANSI escapes, etc.)
		}
		return r
	}, s)
}
