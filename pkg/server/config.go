package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EnvTokenSecret names the environment variable holding the token signing key.
const EnvTokenSecret = "QUICCHAT_TOKEN_SECRET"

// Config holds server configuration.
type Config struct {
	Host        string        `yaml:"host" validate:"omitempty,hostname|ip"`
	Port        int           `yaml:"port" validate:"min=0,max=65535"`
	ALPN        []string      `yaml:"alpn_protocols" validate:"min=1,dive,required"`
	CertFile    string        `yaml:"cert_path"`                                       // TLS certificate (generated if missing)
	KeyFile     string        `yaml:"key_path"`                                        // TLS private key (generated if missing)
	DataDir     string        `yaml:"data_dir" validate:"required"`                    // directory for generated certs
	DBPath      string        `yaml:"db_path"`                                         // SQLite credential database (empty = in-memory)
	MetricsAddr string        `yaml:"metrics_addr" validate:"omitempty,hostname_port"` // HTTP bind address for /metrics (empty = disabled)
	TokenSecret string        `yaml:"token_secret"`                                    // overridden by QUICCHAT_TOKEN_SECRET
	TokenTTL    time.Duration `yaml:"token_ttl"`
	BcryptCost  int           `yaml:"bcrypt_cost" validate:"omitempty,min=4,max=31"`
	SendTimeout time.Duration `yaml:"send_timeout"`
	OutboxSize  int           `yaml:"outbox_size" validate:"min=0"` // messages queued per peer before it is dropped

	// CLI-only actions (run and exit)
	ExportUsers bool `yaml:"-"` // export registered users as YAML and exit
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        4433,
		ALPN:        []string{"chat/1"},
		DataDir:     ".",
		MetricsAddr: ":9602",
		TokenTTL:    time.Hour,
		SendTimeout: DefaultSendTimeout,
		OutboxSize:  DefaultOutboxSize,
	}
}

// Addr returns the QUIC listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// certPaths resolves the TLS file locations, defaulting into DataDir.
func (c Config) certPaths() (certPath, keyPath string) {
	certPath, keyPath = c.CertFile, c.KeyFile
	if certPath == "" {
		certPath = filepath.Join(c.DataDir, "server.crt")
	}
	if keyPath == "" {
		keyPath = filepath.Join(c.DataDir, "server.key")
	}
	return certPath, keyPath
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("server: config: invalid %s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("server: config: %w", err)
	}
	return nil
}

// LoadConfigFile reads a YAML config file from fs over the values already in cfg.
func LoadConfigFile(fs afero.Fs, path string, cfg *Config) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("server: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("server: parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with values from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvTokenSecret); v != "" {
		cfg.TokenSecret = v
	}
}
