package changefeed

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const defaultBufferSize = 256

// ErrFeedStopped is returned when publishing to a feed that is not running
var ErrFeedStopped = errors.New("change feed is not running")

// InMemoryFeed delivers notifications inside one process. A single worker
// drains the queue so handlers observe notifications in publish order.
type InMemoryFeed struct {
	registry *handlerRegistry
	logger   *zap.Logger
	queue    chan Notification
	mu       sync.RWMutex
	running  bool
	done     chan struct{}
}

// NewInMemoryFeed creates a new in-memory change feed
func NewInMemoryFeed(logger *zap.Logger, bufferSize int) *InMemoryFeed {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &InMemoryFeed{
		registry: newHandlerRegistry(),
		logger:   logger,
		queue:    make(chan Notification, bufferSize),
		done:     make(chan struct{}),
	}
}

// Publish enqueues a notification. It blocks while the queue is full.
func (f *InMemoryFeed) Publish(ctx context.Context, n Notification) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.running {
		return ErrFeedStopped
	}
	select {
	case f.queue <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler for one table
func (f *InMemoryFeed) Subscribe(table string, handler Handler) {
	f.registry.register(table, handler)
	f.logger.Debug("change handler subscribed", zap.String("table", table))
}

// Start launches the delivery worker
func (f *InMemoryFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	f.running = true
	go f.run(context.WithoutCancel(ctx))
	f.logger.Info("in-memory change feed started")
	return nil
}

// Stop delivers what is already queued and stops the worker
func (f *InMemoryFeed) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	close(f.queue)
	f.mu.Unlock()

	select {
	case <-f.done:
		f.logger.Info("in-memory change feed stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *InMemoryFeed) run(ctx context.Context) {
	defer close(f.done)
	for n := range f.queue {
		dispatch(ctx, f.registry, f.logger, n)
	}
}

var _ Feed = (*InMemoryFeed)(nil)
