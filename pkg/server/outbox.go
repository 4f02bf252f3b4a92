package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/NicolasHaas/quicchat/pkg/protocol"
)

// DefaultOutboxSize is how many messages may wait for one peer.
const DefaultOutboxSize = 256

var (
	// ErrOutboxFull is returned when a peer has fallen too far behind.
	// The peer is dropped.
	ErrOutboxFull = errors.New("server: outbound queue full")
	// ErrOutboxClosed is returned after the peer was dropped or closed.
	ErrOutboxClosed = errors.New("server: outbound queue closed")
)

// outbox queues messages for one peer and writes them from its own
// goroutine, in enqueue order. Send never waits on the network, so a slow
// peer cannot stall the connection that produced the message. A peer whose
// queue overflows, or whose write fails, is dropped through onDrop.
type outbox struct {
	ctx     context.Context
	peer    Peer
	timeout time.Duration
	metrics *Metrics
	onDrop  func(reason string)

	queue    chan protocol.Message
	done     chan struct{}
	dropOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// newOutbox starts the writer goroutine. Writes are abandoned when ctx ends.
func newOutbox(ctx context.Context, peer Peer, size int, timeout time.Duration, metrics *Metrics, onDrop func(reason string)) *outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	o := &outbox{
		ctx:     ctx,
		peer:    peer,
		timeout: timeout,
		metrics: metrics,
		onDrop:  onDrop,
		queue:   make(chan protocol.Message, size),
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

// Send enqueues msg. It implements Peer.
func (o *outbox) Send(_ context.Context, msg protocol.Message) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOutboxClosed
	}
	select {
	case o.queue <- msg:
		o.mu.Unlock()
		return nil
	default:
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	o.drop("outbound queue full")
	return ErrOutboxFull
}

// Close stops accepting messages. Queued messages are still written.
func (o *outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
}

// Done is closed when the writer goroutine has exited.
func (o *outbox) Done() <-chan struct{} {
	return o.done
}

func (o *outbox) run() {
	defer close(o.done)
	failed := false
	for msg := range o.queue {
		if failed {
			continue // drain
		}
		ctx, cancel := context.WithTimeout(o.ctx, o.timeout)
		err := o.peer.Send(ctx, msg)
		cancel()
		if err == nil {
			continue
		}
		failed = true
		if o.ctx.Err() == nil {
			o.metrics.SendFailures.Add(1)
			slog.Warn("peer write failed", "type", msg.Type, "err", err)
		}
		o.Close()
		o.drop("write failed")
	}
}

func (o *outbox) drop(reason string) {
	o.dropOnce.Do(func() {
		if o.ctx.Err() != nil {
			return
		}
		o.metrics.DroppedPeers.Add(1)
		if o.onDrop != nil {
			go o.onDrop(reason) // closing a connection waits for its run loop
		}
	})
}
