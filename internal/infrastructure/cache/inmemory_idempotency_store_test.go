package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newInMemoryIdempotencyStore(time.Hour, clock.Now)
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	ctx := context.Background()

	t.Run("second mark is rejected until expiry", func(t *testing.T) {
		store, clock := newTestStore(t)

		ok, err := store.MarkProcessed(ctx, "shipping:create:SHIP-0001", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.MarkProcessed(ctx, "shipping:create:SHIP-0001", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		clock.Advance(time.Hour)
		ok, err = store.MarkProcessed(ctx, "shipping:create:SHIP-0001", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release frees the key", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, err := store.MarkProcessed(ctx, "shipping:create:SHIP-0002", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Release(ctx, "shipping:create:SHIP-0002"))

		held, err := store.IsProcessed(ctx, "shipping:create:SHIP-0002")
		require.NoError(t, err)
		assert.False(t, held)

		ok, err := store.MarkProcessed(ctx, "shipping:create:SHIP-0002", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("concurrent marks admit exactly one", func(t *testing.T) {
		store, _ := newTestStore(t)

		var winners atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := store.MarkProcessed(ctx, "shipping:create:SHIP-0003", time.Hour); ok {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
	})
}

func TestInMemoryIdempotencyStore_IsProcessed(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	held, err := store.IsProcessed(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, held)

	_, err = store.MarkProcessed(ctx, "shipping:create:SHIP-0004", time.Minute)
	require.NoError(t, err)
	held, err = store.IsProcessed(ctx, "shipping:create:SHIP-0004")
	require.NoError(t, err)
	assert.True(t, held)

	clock.Advance(2 * time.Minute)
	held, err = store.IsProcessed(ctx, "shipping:create:SHIP-0004")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	_, _ = store.MarkProcessed(ctx, "short", time.Minute)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	assert.Equal(t, 2, store.Size())

	clock.Advance(30 * time.Minute)
	store.cleanup()
	assert.Equal(t, 1, store.Size())
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
