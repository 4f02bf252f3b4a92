// Package server implements the chat relay: session registry, routing
// engine, and the QUIC accept loop.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/NicolasHaas/quicchat/pkg/auth"
	"github.com/NicolasHaas/quicchat/pkg/crypto"
	"github.com/NicolasHaas/quicchat/pkg/store"
	"github.com/NicolasHaas/quicchat/pkg/transport"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store store.CredentialStore
}

// Server is the chat relay server.
type Server struct {
	cfg      Config
	store    store.CredentialStore
	auth     *auth.Manager
	registry *Registry
	router   *Router
	metrics  *Metrics

	listener *transport.Listener
	conns    sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new Server instance. A nil Store selects an in-memory store.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st := deps.Store
	if st == nil {
		st = store.NewMemory()
	}

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		key, err := crypto.GenerateKey(crypto.DefaultSecretSize)
		if err != nil {
			return nil, fmt.Errorf("server: token secret: %w", err)
		}
		secret = key
		slog.Warn("no token secret configured; tokens will not survive a restart", "env", EnvTokenSecret)
	}

	am, err := auth.NewManager(st, auth.Options{
		Secret:     secret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	metrics := NewMetrics()
	registry := NewRegistry(metrics)
	if cfg.SendTimeout > 0 {
		registry.sendTimeout = cfg.SendTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		store:    st,
		auth:     am,
		registry: registry,
		router:   NewRouter(registry, am, metrics),
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Auth returns the credential and token manager.
func (s *Server) Auth() *auth.Manager {
	return s.auth
}

// Addr returns the bound QUIC address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
