package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultChannel is the Pub/Sub channel session changes travel on
	DefaultChannel = "studio-ledger:changes"

	defaultCloseTimeout = 5 * time.Second
)

// RedisFeed fans notifications out to every instance through Redis Pub/Sub.
// Each instance delivers the messages it receives in arrival order.
type RedisFeed struct {
	client   *redis.Client
	channel  string
	logger   *zap.Logger
	registry *handlerRegistry
	cancelFn context.CancelFunc
	doneCh   chan struct{}
	doneOnce sync.Once
	mu       sync.Mutex
	running  bool
}

// RedisFeedOption is a functional option for configuring the feed
type RedisFeedOption func(*RedisFeed)

// WithRedisChannel sets the Pub/Sub channel name
func WithRedisChannel(channel string) RedisFeedOption {
	return func(f *RedisFeed) {
		f.channel = channel
	}
}

// WithRedisLogger sets the logger
func WithRedisLogger(logger *zap.Logger) RedisFeedOption {
	return func(f *RedisFeed) {
		f.logger = logger
	}
}

// NewRedisFeed creates a feed over an existing client. The caller keeps
// ownership of the client.
func NewRedisFeed(client *redis.Client, opts ...RedisFeedOption) *RedisFeed {
	f := &RedisFeed{
		client:   client,
		channel:  DefaultChannel,
		logger:   zap.NewNop(),
		registry: newHandlerRegistry(),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Publish sends a notification to every subscribed instance
func (f *RedisFeed) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		f.logger.Error("failed to publish change notification",
			zap.String("channel", f.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe registers a handler for one table
func (f *RedisFeed) Subscribe(table string, handler Handler) {
	f.registry.register(table, handler)
}

// Start subscribes to the channel and begins delivering in the background.
// It returns once the subscription is confirmed.
func (f *RedisFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	f.running = true
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancelFn = cancel
	f.mu.Unlock()

	pubsub := f.client.Subscribe(subCtx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	f.logger.Info("subscribed to change channel", zap.String("channel", f.channel))
	go f.listen(subCtx, pubsub)
	return nil
}

func (f *RedisFeed) listen(ctx context.Context, pubsub *redis.PubSub) {
	defer func() {
		_ = pubsub.Close()
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		f.doneOnce.Do(func() { close(f.doneCh) })
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("change subscription stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				f.logger.Warn("change channel closed")
				return
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				f.logger.Error("failed to unmarshal change notification",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			dispatch(ctx, f.registry, f.logger, n)
		}
	}
}

// Stop cancels the subscription and waits for the listener to exit
func (f *RedisFeed) Stop(ctx context.Context) error {
	f.mu.Lock()
	cancelFn := f.cancelFn
	f.mu.Unlock()

	if cancelFn == nil {
		return nil
	}
	cancelFn()
	select {
	case <-f.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(defaultCloseTimeout):
		f.logger.Warn("timeout waiting for change subscription to stop")
	}
	return nil
}

var _ Feed = (*RedisFeed)(nil)
