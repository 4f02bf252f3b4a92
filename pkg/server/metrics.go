package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime QUIC connections accepted
	ActiveConnections atomic.Int64 // current open connections
	TotalDisconnects  atomic.Int64 // connections closed (clean + unclean)

	// Auth counters
	SuccessfulAuths atomic.Int64 // logins accepted
	FailedAuths     atomic.Int64 // logins rejected
	Registrations   atomic.Int64 // first-use registrations
	TokenLogins     atomic.Int64 // logins resumed from a bearer token

	// Chat counters
	ChatMessagesSent    atomic.Int64 // broadcast chat messages relayed
	PrivateMessagesSent atomic.Int64 // private chat messages delivered
	PrivateUndelivered  atomic.Int64 // private messages to offline users
	Heartbeats          atomic.Int64 // client pings received

	// Error counters
	DecodeErrors atomic.Int64 // malformed inbound messages
	SendFailures atomic.Int64 // outbound deliveries that failed
	DroppedPeers atomic.Int64 // peers disconnected for falling behind
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	SuccessfulAuths int64 `json:"successful_auths"`
	FailedAuths     int64 `json:"failed_auths"`
	Registrations   int64 `json:"registrations"`
	TokenLogins     int64 `json:"token_logins"`

	OnlineUsers int64 `json:"online_users"`

	ChatMessagesSent    int64 `json:"chat_messages_sent"`
	PrivateMessagesSent int64 `json:"private_messages_sent"`
	PrivateUndelivered  int64 `json:"private_undelivered"`
	Heartbeats          int64 `json:"heartbeats"`

	DecodeErrors int64 `json:"decode_errors"`
	SendFailures int64 `json:"send_failures"`
	DroppedPeers int64 `json:"dropped_peers"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
// online is the current registry size.
func (m *Metrics) Snapshot(online int) MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:              uptime.Truncate(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		ActiveConnections:   m.ActiveConnections.Load(),
		TotalConnections:    m.TotalConnections.Load(),
		TotalDisconnects:    m.TotalDisconnects.Load(),
		SuccessfulAuths:     m.SuccessfulAuths.Load(),
		FailedAuths:         m.FailedAuths.Load(),
		Registrations:       m.Registrations.Load(),
		TokenLogins:         m.TokenLogins.Load(),
		OnlineUsers:         int64(online),
		ChatMessagesSent:    m.ChatMessagesSent.Load(),
		PrivateMessagesSent: m.PrivateMessagesSent.Load(),
		PrivateUndelivered:  m.PrivateUndelivered.Load(),
		Heartbeats:          m.Heartbeats.Load(),
		DecodeErrors:        m.DecodeErrors.Load(),
		SendFailures:        m.SendFailures.Load(),
		DroppedPeers:        m.DroppedPeers.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON(online int) string {
	data, err := json.MarshalIndent(m.Snapshot(online), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary(online int) {
	s := m.Snapshot(online)
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"online", s.OnlineUsers,
		"total_connections", s.TotalConnections,
		"chat_msgs", s.ChatMessagesSent,
		"private_msgs", s.PrivateMessagesSent,
		"decode_errors", s.DecodeErrors,
		"dropped_peers", s.DroppedPeers,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, online func() int, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary(online())
			}
		}
	}()
}
