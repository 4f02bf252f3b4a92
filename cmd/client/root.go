package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/NicolasHaas/quicchat/pkg/client"
	"github.com/NicolasHaas/quicchat/pkg/logging"
)

var flags struct {
	config   string
	host     string
	port     int
	username string
	token    string
	noSave   bool
}

var rootCmd = &cobra.Command{
	Use:   "quicchat",
	Short: "Interactive QUIC chat client",
	Long: `quicchat connects to a chat server over QUIC and relays lines typed on stdin.

  @name message    send a private message
  /quit            leave the chat
  anything else    broadcast to everyone online

The first login with a new username registers it. Usernames are
` + client.UsernameRules + `. Tokens issued by the server are saved so the
next login can skip the password.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// The session already printed the server's rejection.
		if !errors.Is(err, client.ErrAuthRejected) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.config, "config", defaultPath("client.yaml"), "YAML config file")
	f.StringVar(&flags.host, "host", "", "server host (overrides config)")
	f.IntVar(&flags.port, "port", 0, "server port (overrides config)")
	f.StringVarP(&flags.username, "username", "u", "", "username, "+client.UsernameRules+" (prompted if empty)")
	f.StringVar(&flags.token, "token", "", "resume with a token instead of a password")
	f.BoolVar(&flags.noSave, "no-save", false, "do not save the issued token")
}

func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".quicchat", name)
}

func runChat(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	if err := logging.Setup(logging.Options{Component: logging.Client}.WithEnv()); err != nil {
		return err
	}

	fs := afero.NewOsFs()
	cfg := client.DefaultConfig()
	if err := client.LoadConfig(fs, flags.config, &cfg); err != nil {
		return err
	}
	if flags.host != "" {
		cfg.ServerHost = flags.host
	}
	if flags.port != 0 {
		cfg.ServerPort = flags.port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.BookmarksFile == "" {
		cfg.BookmarksFile = defaultPath("servers.yaml")
	}

	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	username := flags.username
	if username == "" {
		username = prompt(in, out, "Enter username: ")
	}
	if err := client.CheckUsername(username); err != nil {
		return err
	}

	bookmarks := client.NewBookmarkStore(fs, cfg.BookmarksFile)
	if err := bookmarks.Load(); err != nil {
		slog.Warn("ignoring saved tokens", "err", err)
	}

	token := flags.token
	var password string
	if token == "" {
		password = promptPassword(in, out, cmd.InOrStdin())
		if b := bookmarks.Find(cfg.Addr(), username); password == "" && b != nil {
			token = b.Token
			slog.Debug("using saved token", "server", cfg.Addr(), "user", username)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := client.NewSession(client.Options{
		Username:          username,
		Password:          password,
		Token:             token,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Dial:              client.QUICDialer(cfg.Addr(), cfg.ALPN),
		Input:             in,
		Output:            out,
	})
	runErr := session.Run(ctx)

	if !flags.noSave {
		saveToken(bookmarks, cfg.Addr(), username, session.Token(), token != "" && errors.Is(runErr, client.ErrAuthRejected))
	}
	return runErr
}

// prompt prints label and returns the trimmed next line of input.
func prompt(in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

// promptPassword reads the password without echo when stdin is a terminal
// and nothing is buffered ahead of it. Otherwise it reads a plain line.
func promptPassword(in *bufio.Reader, out io.Writer, stdin io.Reader) string {
	const label = "Enter password: "
	if f, ok := stdin.(*os.File); ok && in.Buffered() == 0 && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, label)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err == nil {
			return strings.TrimSpace(string(pw))
		}
		slog.Debug("reading password without echo failed", "err", err)
	}
	return prompt(in, out, label)
}

// saveToken records the token the server issued, or drops a saved token the
// server refused.
func saveToken(bs *client.BookmarkStore, addr, username, token string, rejected bool) {
	switch {
	case rejected:
		if !bs.Forget(addr, username) {
			return
		}
	case token != "":
		bs.Put(client.Bookmark{Addr: addr, Username: username, Token: token, LastUsed: time.Now().Unix()})
	default:
		return
	}
	if err := bs.Save(); err != nil {
		slog.Warn("save token", "err", err)
	}
}
