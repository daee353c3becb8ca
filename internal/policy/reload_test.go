package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReloaderTriggerRunsHooks(t *testing.T) {
	store, err := NewStore(marketplaceEngine(t))
	require.NoError(t, err)

	var calls atomic.Int32
	var lastErr error
	reloader := NewReloader(ReloaderConfig{
		Store:  store,
		Source: staticSource{doc: restrictedDocument()},
		Logger: quietLogger(),
		OnReload: []func(*Engine, error){func(e *Engine, err error) {
			calls.Add(1)
			lastErr = err
		}},
	})

	engine, err := reloader.Trigger(context.Background())
	require.NoError(t, err)
	assert.Same(t, engine, store.Snapshot())
	assert.Equal(t, int32(1), calls.Load())
	assert.NoError(t, lastErr)

	reloader.source = staticSource{err: errors.New("boom")}
	_, err = reloader.Trigger(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Error(t, lastErr)
	assert.Same(t, engine, store.Snapshot())
}

func TestReloaderRunReactsToPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(marketplaceEngine(t))
	require.NoError(t, err)
	reloader := NewReloader(ReloaderConfig{
		Store:  store,
		Source: staticSource{doc: restrictedDocument()},
		Client: client,
		Logger: quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reloader.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = Publish(context.Background(), client, "", "test")
		return store.Version() > 1
	}, 2*time.Second, 20*time.Millisecond)
	assert.False(t, store.Snapshot().HasPermission("produce_manager", "product:approve").Allowed)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("reloader did not stop")
	}
}

func TestReloaderRunRequiresClient(t *testing.T) {
	reloader := NewReloader(ReloaderConfig{})
	assert.Error(t, reloader.Run(context.Background()))
}
