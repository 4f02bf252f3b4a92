package transport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/quicchat/pkg/protocol"
)

func newLoopback(t *testing.T) (server, client *Conn) {
	t.Helper()
	cert, err := SelfSignedCert()
	if err != nil {
		t.Fatalf("SelfSignedCert: %v", err)
	}
	ln, err := Listen("127.0.0.1:0", ServerTLS(cert, nil), nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if err != nil {
			t.Errorf("Accept: %v", err)
			accepted <- nil
			return
		}
		accepted <- c
	}()

	client, err = Dial(ctx, ln.Addr().String(), ClientTLS(nil, true), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(CodeNormal, "") })

	server = <-accepted
	if server == nil {
		t.FailNow()
	}
	t.Cleanup(func() { _ = server.Close(CodeNormal, "") })
	return server, client
}

func receiveMessage(t *testing.T, ctx context.Context, c *Conn) protocol.Message {
	t.Helper()
	data, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return msg
}

func TestLoopbackExchange(t *testing.T) {
	server, client := newLoopback(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := protocol.NewAuthRequest("alice", "pw1")
	if err := client.Send(ctx, req); err != nil {
		t.Fatalf("client Send: %v", err)
	}
	if diff := cmp.Diff(req, receiveMessage(t, ctx, server)); diff != "" {
		t.Errorf("server received (-want +got):\n%s", diff)
	}

	// Several messages in a row arrive in send order.
	want := []protocol.Message{
		protocol.NewAuthOK("Welcome, alice", "tok"),
		protocol.NewSystem("User 'alice' joined the chat."),
		protocol.NewSystem("Online users: alice"),
	}
	for _, m := range want {
		if err := server.Send(ctx, m); err != nil {
			t.Fatalf("server Send: %v", err)
		}
	}
	for i, m := range want {
		if diff := cmp.Diff(m, receiveMessage(t, ctx, client)); diff != "" {
			t.Errorf("message %d (-want +got):\n%s", i, diff)
		}
	}
}

func TestReceiveAfterClose(t *testing.T) {
	server, client := newLoopback(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Close(CodeNormal, "bye"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-server.Done():
	case <-ctx.Done():
		t.Fatal("server connection did not observe close")
	}
	if _, err := server.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Receive after close: got %v, want ErrClosed", err)
	}
}

func TestLoadOrGenerateCert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")

	first, err := LoadOrGenerateCert(certPath, keyPath)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key mode = %o, want 600", perm)
	}

	second, err := LoadOrGenerateCert(certPath, keyPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(first.Certificate, second.Certificate); diff != "" {
		t.Errorf("reloaded certificate differs (-first +second):\n%s", diff)
	}
}
