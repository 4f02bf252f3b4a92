package client

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config is the client configuration file.
type Config struct {
	ServerHost        string        `yaml:"server_host" validate:"required"`
	ServerPort        int           `yaml:"server_port" validate:"min=1,max=65535"`
	ALPN              []string      `yaml:"alpn_protocols" validate:"min=1,dive,required"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	BookmarksFile     string        `yaml:"bookmarks_file"` // saved tokens (empty = disabled)
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServerHost:        "localhost",
		ServerPort:        4433,
		ALPN:              []string{"chat/1"},
		HeartbeatInterval: DefaultHeartbeatInterval,
	}
}

// Addr returns the server address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("client: config: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML config from fs over the values already in cfg.
// A missing file leaves cfg unchanged.
func LoadConfig(fs afero.Fs, path string, cfg *Config) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		exists, _ := afero.Exists(fs, path)
		if !exists {
			return nil
		}
		return fmt.Errorf("client: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("client: parse config: %w", err)
	}
	return nil
}
