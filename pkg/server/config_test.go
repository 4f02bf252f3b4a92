package server

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:4433", cfg.Addr())
}

func TestLoadConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	const doc = `
host: 127.0.0.1
port: 5555
alpn_protocols: [chat/1, chat/2]
cert_path: /etc/quicchat/cert.pem
key_path: /etc/quicchat/key.pem
db_path: /var/lib/quicchat/users.db
token_ttl: 30m
bcrypt_cost: 12
`
	require.NoError(t, afero.WriteFile(fs, "/server.yaml", []byte(doc), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(fs, "/server.yaml", &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:5555", cfg.Addr())
	assert.Equal(t, []string{"chat/1", "chat/2"}, cfg.ALPN)
	assert.Equal(t, "/var/lib/quicchat/users.db", cfg.DBPath)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	// Unset keys keep their defaults.
	assert.Equal(t, ":9602", cfg.MetricsAddr)

	certPath, keyPath := cfg.certPaths()
	assert.Equal(t, "/etc/quicchat/cert.pem", certPath)
	assert.Equal(t, "/etc/quicchat/key.pem", keyPath)
}

func TestLoadConfigFileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := DefaultConfig()
	assert.Error(t, LoadConfigFile(fs, "/missing.yaml", &cfg))

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("port: [oops"), 0o644))
	assert.Error(t, LoadConfigFile(fs, "/bad.yaml", &cfg))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"no alpn", func(c *Config) { c.ALPN = nil }},
		{"empty alpn entry", func(c *Config) { c.ALPN = []string{""} }},
		{"bad host", func(c *Config) { c.Host = "not a host" }},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "nowhere" }},
		{"bcrypt cost too low", func(c *Config) { c.BcryptCost = 2 }},
		{"no data dir", func(c *Config) { c.DataDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCertPathsDefaultToDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data"
	certPath, keyPath := cfg.certPaths()
	assert.Equal(t, "/data/server.crt", certPath)
	assert.Equal(t, "/data/server.key", keyPath)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvTokenSecret, "from-env")
	cfg := DefaultConfig()
	cfg.TokenSecret = "from-file"
	ApplyEnv(&cfg)
	assert.Equal(t, "from-env", cfg.TokenSecret)
}
