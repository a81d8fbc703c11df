package keylock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/srgjo27/channel_manager/internal/platform/keylock"
)

func TestAcquire_BoundedWait(t *testing.T) {
	locks := keylock.New(50 * time.Millisecond)
	ctx := context.Background()

	assert.NoError(t, locks.Acquire(ctx, "k"))

	start := time.Now()
	err := locks.Acquire(ctx, "k")
	assert.ErrorIs(t, err, keylock.ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	locks.Release("k")

	assert.NoError(t, locks.Acquire(ctx, "k"))
	locks.Release("k")
}

func TestAcquire_DisjointKeysDoNotContend(t *testing.T) {
	locks := keylock.New(10 * time.Millisecond)
	ctx := context.Background()

	assert.NoError(t, locks.Acquire(ctx, "a"))
	assert.NoError(t, locks.Acquire(ctx, "b"))

	locks.Release("a")
	locks.Release("b")
}

func TestAcquireAll_RollsBackOnFailure(t *testing.T) {
	locks := keylock.New(20 * time.Millisecond)
	ctx := context.Background()

	assert.NoError(t, locks.Acquire(ctx, "2025-10-16"))

	err := locks.AcquireAll(ctx, []string{"2025-10-15", "2025-10-16", "2025-10-17"})
	assert.ErrorIs(t, err, keylock.ErrTimeout)

	// The keys before the contended one must have been released.
	assert.NoError(t, locks.Acquire(ctx, "2025-10-15"))
	assert.NoError(t, locks.Acquire(ctx, "2025-10-17"))

	locks.Release("2025-10-15")
	locks.Release("2025-10-16")
	locks.Release("2025-10-17")
}

func TestAcquire_Serializes(t *testing.T) {
	locks := keylock.New(time.Second)
	ctx := context.Background()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := locks.Acquire(ctx, "same"); err != nil {
				t.Error(err)
				return
			}
			defer locks.Release("same")

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	locks := keylock.New(time.Minute)

	assert.NoError(t, locks.Acquire(context.Background(), "k"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := locks.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	locks.Release("k")
}
