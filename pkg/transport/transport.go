// Package transport carries chat messages over QUIC.
//
// Each message travels on its own unidirectional stream: the sender opens a
// stream, writes one encoded message, and closes it. The receiver reads the
// stream to its end and decodes the bytes as one message.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/NicolasHaas/quicchat/pkg/protocol"
)

// Application error codes sent when closing a connection.
const (
	CodeNormal   quic.ApplicationErrorCode = 0
	CodeShutdown quic.ApplicationErrorCode = 1
	CodeSlowPeer quic.ApplicationErrorCode = 2 // peer fell behind on outbound messages
)

// DefaultIdleTimeout closes connections that have been silent this long.
// Clients send a heartbeat well inside it.
const DefaultIdleTimeout = 60 * time.Second

// ErrClosed is returned by Receive once the connection has terminated.
var ErrClosed = errors.New("transport: connection closed")

// DefaultQUICConfig returns the QUIC settings shared by server and client.
func DefaultQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:        DefaultIdleTimeout,
		MaxIncomingUniStreams: 256,
		// Bidirectional streams are unused.
		MaxIncomingStreams: -1,
	}
}

// Conn is a message-oriented view of a QUIC connection.
// Send is safe for concurrent use; sends are serialized so the peer sees
// messages in send order. Receive must be called from one goroutine.
type Conn struct {
	qc     quic.Connection
	sendMu sync.Mutex
}

// NewConn wraps an established QUIC connection.
func NewConn(qc quic.Connection) *Conn {
	return &Conn{qc: qc}
}

// Send writes msg on a fresh unidirectional stream.
func (c *Conn) Send(ctx context.Context, msg protocol.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	str, err := c.qc.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("transport: open stream: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = str.SetWriteDeadline(deadline)
	}
	if err := protocol.WriteMessage(str, msg); err != nil {
		str.CancelWrite(0)
		return fmt.Errorf("transport: send: %w", err)
	}
	if err := str.Close(); err != nil {
		return fmt.Errorf("transport: finish stream: %w", err)
	}
	return nil
}

// Receive waits for the next inbound stream and returns its raw bytes.
// Decoding is left to the caller so malformed payloads can be reported
// without dropping the connection.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	str, err := c.qc.AcceptUniStream(ctx)
	if err != nil {
		if c.qc.Context().Err() != nil {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("transport: accept stream: %w", err)
	}
	data, err := protocol.ReadFrame(str)
	if err != nil {
		str.CancelRead(0)
		if errors.Is(err, protocol.ErrMessageTooLarge) {
			return nil, &protocol.DecodeError{Reason: "message too large", Err: err}
		}
		if c.qc.Context().Err() != nil {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("transport: read stream: %w", err)
	}
	return data, nil
}

// Done is closed when the connection terminates for any reason.
func (c *Conn) Done() <-chan struct{} {
	return c.qc.Context().Done()
}

// Close terminates the connection with an application error code.
func (c *Conn) Close(code quic.ApplicationErrorCode, reason string) error {
	return c.qc.CloseWithError(code, reason)
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.qc.RemoteAddr()
}

// Listener accepts inbound QUIC connections.
type Listener struct {
	ln *quic.Listener
}

// Listen binds a QUIC listener on addr.
func Listen(addr string, tlsConf *tls.Config, conf *quic.Config) (*Listener, error) {
	if conf == nil {
		conf = DefaultQUICConfig()
	}
	ln, err := quic.ListenAddr(addr, tlsConf, conf)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks until a connection completes its handshake or ctx ends.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	qc, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return NewConn(qc), nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Dial connects to a server.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, conf *quic.Config) (*Conn, error) {
	if conf == nil {
		conf = DefaultQUICConfig()
	}
	qc, err := quic.DialAddr(ctx, addr, tlsConf, conf)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewConn(qc), nil
}
