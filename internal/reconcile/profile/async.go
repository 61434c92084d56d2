package profile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"credsync/internal/reconcile/metrics"
)

const defaultQueueSize = 256

// ErrQueueFull is returned when a refresh is dropped because the worker is behind.
var ErrQueueFull = errors.New("profile refresh queue full")

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("profile refresh trigger closed")

// AsyncTrigger decouples the reconcile loop from the downstream notifier.
// Notify never blocks; a single worker drains the queue in order.
type AsyncTrigger struct {
	next    Notifier
	queue   chan Refresh
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	done    chan struct{}
	once    sync.Once
}

type AsyncOption func(*AsyncTrigger)

func WithQueueSize(n int) AsyncOption {
	return func(t *AsyncTrigger) {
		if n > 0 {
			t.queue = make(chan Refresh, n)
		}
	}
}

func WithLogger(logger *slog.Logger) AsyncOption {
	return func(t *AsyncTrigger) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) AsyncOption {
	return func(t *AsyncTrigger) { t.metrics = m }
}

func NewAsyncTrigger(next Notifier, opts ...AsyncOption) *AsyncTrigger {
	t := &AsyncTrigger{
		next:   next,
		queue:  make(chan Refresh, defaultQueueSize),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start runs the worker until Close is called or ctx ends. Calling it more
// than once, or after Close, does nothing.
func (t *AsyncTrigger) Start(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	go t.run(ctx)
}

func (t *AsyncTrigger) run(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		case refresh, ok := <-t.queue:
			if !ok {
				return
			}
			t.deliver(ctx, refresh)
		}
	}
}

func (t *AsyncTrigger) deliver(ctx context.Context, refresh Refresh) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.IncProfileRefreshFailures()
			t.logger.ErrorContext(ctx, "profile refresh panicked", "owner_id", refresh.OwnerID.String(), "panic", r)
		}
	}()
	if err := t.next.Notify(ctx, refresh); err != nil {
		t.metrics.IncProfileRefreshFailures()
		t.logger.WarnContext(ctx, "profile refresh failed",
			"owner_id", refresh.OwnerID.String(),
			"record_id", refresh.RecordID.String(),
			"error", err,
		)
	}
}

// Notify enqueues refresh. It returns ErrQueueFull instead of blocking.
func (t *AsyncTrigger) Notify(_ context.Context, refresh Refresh) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}
	select {
	case t.queue <- refresh:
		return nil
	default:
		t.metrics.IncProfileRefreshDropped()
		return ErrQueueFull
	}
}

// Close stops accepting refreshes and waits for the queue to drain or ctx to end.
func (t *AsyncTrigger) Close(ctx context.Context) error {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.queue)
		t.mu.Unlock()
		if t.started.CompareAndSwap(false, true) {
			close(t.done)
		}
	})
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
