package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/NicolasHaas/quicchat/pkg/protocol"
	"github.com/NicolasHaas/quicchat/pkg/transport"
)

// StartListener loads TLS material and starts the QUIC accept loop.
func (s *Server) StartListener() error {
	certPath, keyPath := s.cfg.certPaths()
	cert, err := transport.LoadOrGenerateCert(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("server: tls: %w", err)
	}

	ln, err := transport.Listen(s.cfg.Addr(), transport.ServerTLS(cert, s.cfg.ALPN), nil)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	s.listener = ln
	slog.Info("chat listener started", "addr", ln.Addr().String(), "alpn", s.cfg.ALPN)

	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln *transport.Listener) {
	for {
		conn, err := ln.Accept(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			slog.Error("accept error", "err", err)
			return
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn runs one connection's lifecycle. Inbound streams are read
// sequentially so the connection's messages are handled in arrival order.
func (s *Server) handleConn(conn *transport.Conn) {
	connID := uuid.NewString()
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Debug("new connection", "conn", connID, "remote", conn.RemoteAddr().String())

	out := newOutbox(s.ctx, conn, s.cfg.OutboxSize, s.registry.sendTimeout, s.metrics, func(reason string) {
		slog.Warn("dropping slow peer", "conn", connID, "reason", reason)
		_ = conn.Close(transport.CodeSlowPeer, reason)
	})
	h := s.router.newConnHandler(connID, out)
	defer func() {
		h.disconnect(s.ctx)
		out.Close()
		code, reason := transport.CodeNormal, ""
		if s.ctx.Err() != nil {
			code, reason = transport.CodeShutdown, "server shutting down"
		}
		_ = conn.Close(code, reason)
		<-out.Done()
		s.metrics.ActiveConnections.Add(-1)
		s.metrics.TotalDisconnects.Add(1)
		slog.Debug("connection closed", "conn", connID)
	}()

	for {
		data, err := conn.Receive(s.ctx)
		if err != nil {
			if protocol.IsDecodeError(err) {
				h.rejectMalformed(s.ctx, err)
				continue
			}
			if !errors.Is(err, transport.ErrClosed) && !errors.Is(err, context.Canceled) {
				slog.Warn("receive failed", "conn", connID, "user", h.username, "err", err)
			}
			return
		}
		h.handleFrame(s.ctx, data)
	}
}
