package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/NicolasHaas/quicchat/pkg/auth"
	"github.com/NicolasHaas/quicchat/pkg/protocol"
	"github.com/NicolasHaas/quicchat/pkg/store"
)

var errPeerGone = errors.New("peer gone")

// fakePeer records every message sent to it.
type fakePeer struct {
	mu   sync.Mutex
	msgs []protocol.Message
	fail bool
}

func (p *fakePeer) Send(_ context.Context, msg protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errPeerGone
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

// take returns and clears the recorded messages.
func (p *fakePeer) take() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.msgs
	p.msgs = nil
	return out
}

func newTestAuth(t *testing.T) *auth.Manager {
	t.Helper()
	am, err := auth.NewManager(store.NewMemory(), auth.Options{
		Secret:     []byte("test-secret"),
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return am
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	metrics := NewMetrics()
	return NewRouter(NewRegistry(metrics), newTestAuth(t), metrics)
}

// login opens a handler for username and authenticates it, discarding the
// replies it produced.
func login(t *testing.T, rt *Router, username, password string) (*connHandler, *fakePeer) {
	t.Helper()
	peer := &fakePeer{}
	h := rt.newConnHandler("conn-"+username, peer)
	h.handle(context.Background(), protocol.NewAuthRequest(username, password))
	msgs := peer.take()
	if len(msgs) == 0 || msgs[0].Type != protocol.AuthOK {
		t.Fatalf("login %s: got %+v, want AUTH_OK first", username, msgs)
	}
	return h, peer
}
