package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/cadence/internal/observability"
)

// ErrOutboxFull is returned by Outbox.Publish when the queue has no room
// and the event was dropped.
var ErrOutboxFull = errors.New("events: outbox full")

// ErrOutboxClosed is returned by Outbox.Publish after Close.
var ErrOutboxClosed = errors.New("events: outbox closed")

// Outbox queues events in memory and delivers them to next from a single
// background goroutine, so publishers never wait on a sink. When the queue
// is full the event is dropped, logged and counted.
type Outbox struct {
	next    Publisher
	queue   chan Event
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// NewOutbox starts an outbox with room for size events. Each delivery to
// next is bounded by timeout.
func NewOutbox(next Publisher, size int, timeout time.Duration, logger *slog.Logger) *Outbox {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Outbox{
		next:    next,
		queue:   make(chan Event, size),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go o.drain()
	return o
}

// Publish implements Publisher. It never blocks.
func (o *Outbox) Publish(_ context.Context, e Event) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.queue <- e:
		observability.SetOutboxDepth(len(o.queue))
		return nil
	default:
		o.dropped.Add(1)
		observability.RecordEventDropped(e.Type)
		o.logger.Warn("events: outbox full, event dropped",
			slog.String("type", e.Type),
			slog.String("key", e.Key),
			slog.Int("capacity", cap(o.queue)))
		return ErrOutboxFull
	}
}

// Dropped returns the number of events dropped so far.
func (o *Outbox) Dropped() uint64 { return o.dropped.Load() }

// Close stops accepting events and waits until the queue is delivered or
// ctx ends.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) drain() {
	defer close(o.done)
	for e := range o.queue {
		observability.SetOutboxDepth(len(o.queue))
		ctx := context.Background()
		cancel := func() {}
		if o.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, o.timeout)
		}
		if err := o.next.Publish(ctx, e); err != nil {
			o.logger.Warn("events: delivery failed",
				slog.String("type", e.Type),
				slog.String("key", e.Key),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}
