package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// DefaultPostgresChannel is the NOTIFY channel the table triggers write to
const DefaultPostgresChannel = "ledger_changes"

const listenerPingInterval = 90 * time.Second

// PostgresFeed listens to NOTIFY messages emitted by the sessions and
// transactions triggers. Writes are announced by the database itself, so
// Publish does nothing.
type PostgresFeed struct {
	dsn      string
	channel  string
	logger   *zap.Logger
	registry *handlerRegistry
	listener *pq.Listener
	cancelFn context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewPostgresFeed creates a LISTEN based feed for the given connection string
func NewPostgresFeed(dsn, channel string, logger *zap.Logger) *PostgresFeed {
	if channel == "" {
		channel = DefaultPostgresChannel
	}
	return &PostgresFeed{
		dsn:      dsn,
		channel:  channel,
		logger:   logger,
		registry: newHandlerRegistry(),
		done:     make(chan struct{}),
	}
}

// Publish is a no-op: triggers emit the notifications
func (f *PostgresFeed) Publish(context.Context, Notification) error {
	return nil
}

// Subscribe registers a handler for one table
func (f *PostgresFeed) Subscribe(table string, handler Handler) {
	f.registry.register(table, handler)
}

// Start opens the listener connection and begins delivering
func (f *PostgresFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener != nil {
		return nil
	}

	listener := pq.NewListener(f.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			f.logger.Warn("postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(f.channel); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", f.channel, err)
	}
	f.listener = listener

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancelFn = cancel
	go f.run(runCtx, listener)

	f.logger.Info("listening for database changes", zap.String("channel", f.channel))
	return nil
}

func (f *PostgresFeed) run(ctx context.Context, listener *pq.Listener) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect; changes may have been missed
			if msg == nil {
				f.logger.Warn("postgres listener reconnected")
				continue
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Extra), &n); err != nil {
				f.logger.Error("failed to decode database notification",
					zap.String("payload", msg.Extra),
					zap.Error(err))
				continue
			}
			dispatch(ctx, f.registry, f.logger, n)
		case <-time.After(listenerPingInterval):
			if err := listener.Ping(); err != nil {
				f.logger.Warn("postgres listener ping failed", zap.Error(err))
			}
		}
	}
}

// Stop closes the listener connection
func (f *PostgresFeed) Stop(ctx context.Context) error {
	f.mu.Lock()
	listener := f.listener
	cancelFn := f.cancelFn
	f.mu.Unlock()

	if listener == nil {
		return nil
	}
	cancelFn()
	if err := listener.Close(); err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	select {
	case <-f.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

var _ Feed = (*PostgresFeed)(nil)
