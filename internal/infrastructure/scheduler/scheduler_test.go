package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCronScheduler_Register(t *testing.T) {
	s := New(Config{}, zap.NewNop())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register("reconcile_sweep", "0 3 * * *", noop))

	err := s.Register("reconcile_sweep", "@hourly", noop)
	assert.ErrorIs(t, err, ErrDuplicateJob)

	err = s.Register("broken", "every day at 3", noop)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = s.NextRun("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCronScheduler_RunNow(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := New(Config{Timeout: 50 * time.Millisecond}, zap.New(core))

	var sawDeadline atomic.Bool
	require.NoError(t, s.Register("sweep", "@daily", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		return nil
	}))
	require.NoError(t, s.Register("failing", "@daily", func(context.Context) error {
		return errors.New("database unavailable")
	}))

	require.NoError(t, s.RunNow(context.Background(), "sweep"))
	assert.True(t, sawDeadline.Load(), "job runs under the configured timeout")
	assert.Equal(t, 1, logs.FilterMessage("Job completed").Len())

	err := s.RunNow(context.Background(), "failing")
	assert.EqualError(t, err, "database unavailable")
	assert.Equal(t, 1, logs.FilterMessage("Job failed").Len())

	assert.ErrorIs(t, s.RunNow(context.Background(), "unknown"), ErrJobNotFound)
}

func TestCronScheduler_StartStop(t *testing.T) {
	s := New(Config{Location: time.UTC}, zap.NewNop())

	fired := make(chan struct{}, 1)
	require.NoError(t, s.Register("tick", "@every 1s", func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))

	next, err := s.NextRun("tick")
	require.NoError(t, err)
	assert.False(t, next.IsZero())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
}

func TestCronScheduler_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := New(Config{}, zap.New(core))

	done := make(chan struct{})
	require.NoError(t, s.Register("explodes", "@every 1s", func(context.Context) error {
		defer close(done)
		panic("boom")
	}))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("panic").Len())
}
