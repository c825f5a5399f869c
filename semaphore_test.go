package distlimiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSemaphore_CapacityBound(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, client := newTestServer(t)
	name := testName(t)

	const capacity = 3
	const workers = 12

	sem, err := NewSemaphore(name, capacity, WithSemaphoreRedisClient(client))
	require.NoError(err)

	var held int32
	var maxHeld int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			errs[i] = sem.Do(ctx, func(context.Context) error {
				n := atomic.AddInt32(&held, 1)
				mu.Lock()
				if n > maxHeld {
					maxHeld = n
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&held, -1)
				return nil
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(err)
	}
	require.LessOrEqual(int(maxHeld), capacity)
}

func TestSemaphore_FIFOService(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, client := newTestServer(t)
	name := testName(t)

	sem, err := NewSemaphore(name, 1, WithSemaphoreRedisClient(client))
	require.NoError(err)

	ctx := context.Background()
	require.NoError(sem.Acquire(ctx))

	var order []string
	var mu sync.Mutex
	var errA error
	started := make(chan struct{})
	aWaiting := make(chan struct{})

	go func() {
		close(started)
		errA = sem.Acquire(context.Background())
		mu.Lock()
		order = append(order, "A")
		mu.Unlock()
		close(aWaiting)
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let A's BLPOP register on the server first

	// B never gets a second release in this test; it stays blocked on
	// Acquire until the test's miniredis/client cleanup tears it down, which
	// is fine here - the only thing under test is that A, not B, wins the
	// single release below.
	go func() {
		_ = sem.Acquire(context.Background())
		mu.Lock()
		order = append(order, "B")
		mu.Unlock()
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(sem.Release(ctx))
	<-aWaiting
	time.Sleep(50 * time.Millisecond)

	require.NoError(errA)
	mu.Lock()
	defer mu.Unlock()
	require.Equal([]string{"A"}, order[:1])
}

func TestSemaphore_MaxSleepExceeded(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, client := newTestServer(t)
	name := testName(t)

	sem, err := NewSemaphore(name, 1,
		WithSemaphoreRedisClient(client),
		WithSemaphoreMaxSleep(100*time.Millisecond),
	)
	require.NoError(err)

	ctx := context.Background()
	require.NoError(sem.Acquire(ctx)) // first holder never releases

	start := time.Now()
	err = sem.Acquire(ctx)
	elapsed := time.Since(start)

	require.Error(err)
	require.True(errors.Is(err, ErrMaxSleepExceeded))
	require.InDelta(100*time.Millisecond, elapsed, float64(150*time.Millisecond))
}

func TestSemaphore_SelfHealAfterCrash(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	mr, client := newTestServer(t)
	name := testName(t)

	sem, err := NewSemaphore(name, 1,
		WithSemaphoreRedisClient(client),
		WithSemaphoreExpiry(1*time.Second),
	)
	require.NoError(err)

	ctx := context.Background()
	require.NoError(sem.Acquire(ctx)) // "crashes": never releases

	mr.FastForward(2 * time.Second)

	sem2, err := NewSemaphore(name, 1,
		WithSemaphoreRedisClient(client),
		WithSemaphoreExpiry(1*time.Second),
		WithSemaphoreMaxSleep(200*time.Millisecond),
	)
	require.NoError(err)

	require.NoError(sem2.Acquire(ctx))
}

func TestSemaphore_ScriptAtomicity(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, client := newTestServer(t)
	name := testName(t)

	const workers = 20
	results := make([]interface{}, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			init := newScript(semaphoreInitSource)
			res, err := init.run(context.Background(), client,
				[]string{queueKey(name), existsKey(name)}, uint32(5), int64(30))
			results[i] = res
			errs[i] = err
		}(i)
	}
	wg.Wait()

	var created int64
	for i, r := range results {
		require.NoError(errs[i])
		n, ok := r.(int64)
		require.True(ok)
		created += n
	}
	require.EqualValues(1, created)

	length, err := client.LLen(context.Background(), queueKey(name)).Result()
	require.NoError(err)
	require.EqualValues(5, length)
}

func TestSemaphore_ConfigValidation(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, err := NewSemaphore("", 1)
	require.Error(err)
	var derr *Error
	require.True(errors.As(err, &derr))
	require.Equal(KindValue, derr.Kind)

	_, client := newTestServer(t)
	_, err = NewSemaphore("x", 1, WithSemaphoreRedisClient(client), WithSemaphoreExpiry(0))
	require.Error(err)
	require.True(errors.As(err, &derr))
	require.Equal(KindValue, derr.Kind)
}
