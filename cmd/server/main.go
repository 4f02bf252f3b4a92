package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/NicolasHaas/quicchat/pkg/logging"
	"github.com/NicolasHaas/quicchat/pkg/server"
	"github.com/NicolasHaas/quicchat/pkg/store"
	"github.com/NicolasHaas/quicchat/pkg/version"
)

func main() {
	// A missing .env file is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.Host, "host", cfg.Host, "QUIC bind host")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "QUIC bind port (0 picks a free port)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite credential database (empty keeps users in memory)")
	flag.StringVar(&cfg.CertFile, "cert", "", "TLS certificate file (auto-generated if missing)")
	flag.StringVar(&cfg.KeyFile, "key", "", "TLS private key file (auto-generated if missing)")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory for generated files")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.BoolVar(&cfg.ExportUsers, "export-users", false, "Export all registered users as YAML and exit")
	configFile := flag.String("config", "", "YAML config file (flags override its values)")
	showVersion := flag.Bool("version", false, "Print version and exit")

	logOpts := logging.Options{Component: logging.Server, Level: "info", Format: "text"}.WithEnv()
	flag.StringVar(&logOpts.Level, "log-level", logOpts.Level, "Log level: "+logging.LevelNames())
	flag.StringVar(&logOpts.Format, "log-format", logOpts.Format, "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current().Banner("quicchat-server"))
		return
	}

	// Configure structured logging
	if err := logging.Setup(logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if *configFile != "" {
		if err := server.LoadConfigFile(afero.NewOsFs(), *configFile, &cfg); err != nil {
			slog.Error("load config", "err", err)
			os.Exit(1)
		}
		// Re-apply explicit flags on top of the file.
		_ = flag.CommandLine.Parse(os.Args[1:])
	}
	server.ApplyEnv(&cfg)

	st, err := openStore(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	// Handle export command (run and exit)
	if cfg.ExportUsers {
		defer st.Close()
		data, err := server.ExportUsersYAML(st)
		if err != nil {
			slog.Error("export users", "err", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		return
	}

	slog.Info("starting", "version", version.Current().String())
	srv, err := server.New(cfg, server.Dependencies{Store: st})
	if err != nil {
		_ = st.Close()
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func openStore(dbPath string) (store.CredentialStore, error) {
	if dbPath == "" {
		slog.Warn("no database configured, registered users will not survive a restart")
		return store.NewMemory(), nil
	}
	return store.New(dbPath)
}
