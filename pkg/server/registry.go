package server

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/quicchat/pkg/model"
	"github.com/NicolasHaas/quicchat/pkg/protocol"
)

// DefaultSendTimeout bounds a single delivery to one peer.
const DefaultSendTimeout = 5 * time.Second

// Peer is the send capability of a connected client.
type Peer interface {
	Send(ctx context.Context, msg protocol.Message) error
}

type entry struct {
	session model.Session
	peer    Peer
}

type target struct {
	username string
	peer     Peer
}

// Registry maps usernames to live authenticated sessions.
// A username is present if and only if that client is online.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	sendTimeout time.Duration
	now         func() time.Time
	metrics     *Metrics
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(metrics *Metrics) *Registry {
	return &Registry{
		sessions:    make(map[string]*entry),
		sendTimeout: DefaultSendTimeout,
		now:         time.Now,
		metrics:     metrics,
	}
}

// Add inserts an authenticated session for username. It returns false and
// leaves the registry unchanged if username is already online.
func (r *Registry) Add(username, connID string, peer Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[username]; exists {
		return false
	}
	r.sessions[username] = &entry{
		session: model.Session{
			Username:    username,
			ConnID:      connID,
			State:       model.StateAuthenticated,
			ConnectedAt: r.now(),
		},
		peer: peer,
	}
	return true
}

// SetToken records the token issued to the session held by connID.
func (r *Registry) SetToken(username, connID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[username]; ok && e.session.ConnID == connID {
		e.session.Token = token
	}
}

// Remove deletes username. Removing an absent username is a no-op.
func (r *Registry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}

// RemoveConn deletes username only if its session belongs to connID.
func (r *Registry) RemoveConn(username, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[username]
	if !ok || e.session.ConnID != connID {
		return false
	}
	delete(r.sessions, username)
	return true
}

// Get returns a copy of the session for username.
func (r *Registry) Get(username string) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[username]
	if !ok {
		return model.Session{}, false
	}
	return e.session, true
}

// Usernames returns the online usernames in sorted order.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Count returns the number of online sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// snapshot copies the current members so sends happen outside the lock.
func (r *Registry) snapshot(exclude string) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]target, 0, len(r.sessions))
	for name, e := range r.sessions {
		if name == exclude {
			continue
		}
		out = append(out, target{username: name, peer: e.peer})
	}
	return out
}

// Broadcast delivers CHAT "<sender>: <body>" to every session except the
// sender's own and returns the number of successful deliveries.
func (r *Registry) Broadcast(ctx context.Context, sender, body string) int {
	return r.deliver(ctx, r.snapshot(sender), protocol.NewChat(sender+": "+body))
}

// BroadcastSystem delivers a SYS notice to every session.
func (r *Registry) BroadcastSystem(ctx context.Context, body string) int {
	return r.deliver(ctx, r.snapshot(""), protocol.NewSystem(body))
}

// SendTo delivers msg to username. It returns false if the user is offline
// or the send failed.
func (r *Registry) SendTo(ctx context.Context, username string, msg protocol.Message) bool {
	r.mu.RLock()
	e, ok := r.sessions[username]
	var peer Peer
	if ok {
		peer = e.peer
	}
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.send(ctx, target{username: username, peer: peer}, msg)
}

func (r *Registry) deliver(ctx context.Context, targets []target, msg protocol.Message) int {
	delivered := 0
	for _, t := range targets {
		if r.send(ctx, t, msg) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) send(ctx context.Context, t target, msg protocol.Message) bool {
	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	if err := t.peer.Send(sendCtx, msg); err != nil {
		slog.Warn("send failed", "user", t.username, "type", msg.Type, "err", err)
		if r.metrics != nil {
			r.metrics.SendFailures.Add(1)
		}
		return false
	}
	return true
}
