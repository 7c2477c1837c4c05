package response

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/replyflow/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPoolReturnsResult(t *testing.T) {
	pool := NewPool(nil, 1, time.Second)
	defer pool.Close()

	text, err := pool.Do(context.Background(), "1", func(context.Context) (string, error) {
		return "hello", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestPoolDiscardsLateResult(t *testing.T) {
	pool := NewPool(nil, 1, 20*time.Millisecond)
	release := make(chan struct{})
	var finished atomic.Bool

	text, err := pool.Do(context.Background(), "1", func(context.Context) (string, error) {
		<-release
		finished.Store(true)
		return "late answer", nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, text)

	// The slow call still holds the user's only slot, so the wait for it
	// gives up after the pool timeout.
	_, err = pool.Do(context.Background(), "1", func(context.Context) (string, error) { return "second", nil })
	assert.ErrorIs(t, err, ErrTimeout)

	close(release)
	pool.Close()
	assert.True(t, finished.Load())
}

func TestPoolBoundsConcurrencyPerUser(t *testing.T) {
	pool := NewPool(nil, 2, time.Second)
	defer pool.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Do(context.Background(), "7", func(context.Context) (string, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return "ok", nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolRespectsRateLimit(t *testing.T) {
	pool := NewPool(ratelimit.NewLocalLimiter(0.001, 1, nil), 1, time.Second)
	defer pool.Close()

	call := func(context.Context) (string, error) { return "ok", nil }
	_, err := pool.Do(context.Background(), "9", call)
	require.NoError(t, err)

	_, err = pool.Do(context.Background(), "9", call)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestPoolPropagatesProviderError(t *testing.T) {
	pool := NewPool(nil, 1, time.Second)
	defer pool.Close()

	boom := errors.New("boom")
	_, err := pool.Do(context.Background(), "1", func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestPoolRejectsAfterClose(t *testing.T) {
	pool := NewPool(nil, 1, time.Second)
	pool.Close()

	_, err := pool.Do(context.Background(), "1", func(context.Context) (string, error) { return "x", nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolSlotWaitIsBoundedByTimeout(t *testing.T) {
	pool := NewPool(nil, 1, 30*time.Millisecond)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = pool.Do(context.Background(), "3", func(context.Context) (string, error) {
			close(started)
			<-release
			return "slow", nil
		})
	}()
	<-started

	begin := time.Now()
	_, err := pool.Do(context.Background(), "3", func(context.Context) (string, error) { return "queued", nil })
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(begin), time.Second)

	close(release)
	pool.Close()
}

func TestPoolDropsIdleUsers(t *testing.T) {
	pool := NewPool(nil, 1, time.Second)
	defer pool.Close()

	for _, user := range []string{"1", "2", "3"} {
		_, err := pool.Do(context.Background(), user, func(context.Context) (string, error) { return "ok", nil })
		require.NoError(t, err)
	}
	assert.Eventually(t, func() bool { return pool.activeUsers() == 0 }, time.Second, time.Millisecond)
}
