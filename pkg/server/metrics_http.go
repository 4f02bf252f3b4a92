package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format and /healthz. It runs in the
// background and shuts down when the server context is cancelled.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

func (s *Server) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snap := s.metrics.Snapshot(s.registry.Count())
	uptime := time.Since(s.metrics.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("quicchat_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("quicchat_connections_active", "Current open QUIC connections.", "gauge", snap.ActiveConnections)
	write("quicchat_connections_total", "Lifetime QUIC connections accepted.", "counter", snap.TotalConnections)
	write("quicchat_disconnects_total", "Total client disconnects.", "counter", snap.TotalDisconnects)
	write("quicchat_users_online", "Authenticated sessions in the registry.", "gauge", snap.OnlineUsers)

	write("quicchat_auth_success_total", "Successful authentication attempts.", "counter", snap.SuccessfulAuths)
	write("quicchat_auth_failed_total", "Failed authentication attempts.", "counter", snap.FailedAuths)
	write("quicchat_registrations_total", "First-use account registrations.", "counter", snap.Registrations)
	write("quicchat_token_logins_total", "Logins resumed from a bearer token.", "counter", snap.TokenLogins)

	write("quicchat_chat_messages_total", "Broadcast chat messages relayed.", "counter", snap.ChatMessagesSent)
	write("quicchat_private_messages_total", "Private chat messages delivered.", "counter", snap.PrivateMessagesSent)
	write("quicchat_private_undelivered_total", "Private messages addressed to offline users.", "counter", snap.PrivateUndelivered)
	write("quicchat_heartbeats_total", "Client heartbeats received.", "counter", snap.Heartbeats)

	write("quicchat_decode_errors_total", "Malformed inbound messages.", "counter", snap.DecodeErrors)
	write("quicchat_send_failures_total", "Outbound deliveries that failed.", "counter", snap.SendFailures)
	write("quicchat_dropped_peers_total", "Peers disconnected for falling behind.", "counter", snap.DroppedPeers)
}
