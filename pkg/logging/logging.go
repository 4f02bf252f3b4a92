// Package logging configures log/slog for the quicchat binaries.
//
// The server logs to stdout and takes its level from flags. The client logs
// to stderr so records never interleave with chat lines, and takes its level
// from QUICCHAT_LOG_LEVEL / QUICCHAT_LOG_FORMAT. Every record carries a
// "component" attribute naming the binary.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by Options.WithEnv.
const (
	EnvLevel  = "QUICCHAT_LOG_LEVEL"
	EnvFormat = "QUICCHAT_LOG_FORMAT"
)

// Components.
const (
	Server = "server"
	Client = "client"
)

// Options controls how logging is configured.
type Options struct {
	Component string    // Server or Client; omitted from records when empty
	Level     string    // "debug", "info", "warn", "error" (default: "info")
	Format    string    // "text" or "json" (default: "text")
	Output    io.Writer // default: stdout for Server, stderr otherwise
}

// WithEnv returns opts with Level and Format overridden by EnvLevel and
// EnvFormat when those are set.
func (opts Options) WithEnv() Options {
	if v := os.Getenv(EnvLevel); v != "" {
		opts.Level = v
	}
	if v := os.Getenv(EnvFormat); v != "" {
		opts.Format = v
	}
	return opts
}

// New builds a logger from opts without installing it.
func New(opts Options) (*slog.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))

	out := opts.Output
	if out == nil {
		out = os.Stderr
		if opts.Component == Server {
			out = os.Stdout
		}
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // include file:line in debug mode
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q (valid: text, json)", opts.Format)
	}

	logger := slog.New(handler)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	return logger, nil
}

// Setup installs the logger described by opts as the slog default.
// Call it early in main() before any logging occurs.
func Setup(opts Options) error {
	logger, err := New(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// LevelNames returns all valid level names, useful for --help text.
func LevelNames() string {
	return "debug, info, warn, error"
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q (valid: %s)", level, LevelNames())
	}
}
