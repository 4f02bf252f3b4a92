package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.TotalConnections.Add(3)
	m.ChatMessagesSent.Add(2)

	s := m.Snapshot(1)
	assert.EqualValues(t, 3, s.TotalConnections)
	assert.EqualValues(t, 2, s.ChatMessagesSent)
	assert.EqualValues(t, 1, s.OnlineUsers)

	var decoded MetricsSnapshot
	require.NoError(t, json.Unmarshal([]byte(m.JSON(1)), &decoded))
	assert.Equal(t, s.TotalConnections, decoded.TotalConnections)
}

func TestMetricsHTTP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenSecret = "k"
	srv, err := New(cfg, Dependencies{})
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	srv.registry.Add("alice", "c1", &fakePeer{})
	srv.metrics.SuccessfulAuths.Add(1)

	ts := httptest.NewServer(srv.metricsMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "quicchat_users_online 1\n")
	assert.Contains(t, body.String(), "quicchat_auth_success_total 1\n")
	assert.Contains(t, body.String(), "# TYPE quicchat_connections_total counter")

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	_ = health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
