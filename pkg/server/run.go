package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start starts the listener, the metrics endpoint, and periodic metric logs.
func (s *Server) Start() error {
	if err := s.StartListener(); err != nil {
		return err
	}
	s.StartMetricsHTTP()
	s.metrics.StartPeriodicLog(60*time.Second, s.registry.Count, s.ctx.Done())
	return nil
}

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		s.Shutdown()
		return fmt.Errorf("server: start: %w", err)
	}
	slog.Info("chat server running", "addr", s.cfg.Addr())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown stops accepting connections, waits for connection goroutines to
// finish their cleanup, and closes the store.
func (s *Server) Shutdown() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.conns.Wait()
	if err := s.store.Close(); err != nil {
		slog.Error("close store", "err", err)
	}
}
