package querycache_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-market-client/querycache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errTransient = errors.New("transient")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	clock   *testClock
	metrics *querycache.Metrics
	cache   *querycache.Cache
}

func setupTestFixture(t *testing.T, options ...querycache.Option) *testFixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	metrics := querycache.NewMetrics(prometheus.NewRegistry())
	options = append([]querycache.Option{
		querycache.WithNowTime(clock.Now),
		querycache.WithStaleTime(time.Minute),
		querycache.WithMetrics(metrics),
	}, options...)
	return &testFixture{clock: clock, metrics: metrics, cache: querycache.New(options...)}
}

// countingLoader returns value and counts invocations.
func countingLoader(calls *atomic.Int32, value any) querycache.Loader {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}
}

// blockingLoader waits for release before returning value.
func blockingLoader(calls *atomic.Int32, release <-chan struct{}, value any) querycache.Loader {
	return func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return value, nil
	}
}

func TestKeys(t *testing.T) {
	key := querycache.Key("products", url.Values{"page": {"2"}, "limit": {"10"}, "sortBy": {"price"}})
	require.Equal(t, "products?limit=10&page=2&sortBy=price", key)
	require.Equal(t, "products", querycache.Key("products", nil))
	require.Equal(t, "product/abc", querycache.ItemKey("product", "abc"))

	require.Equal(t, "products", querycache.ResourceOf(key))
	require.Equal(t, "products", querycache.ResourceOf("products/search?query=chair"))
	require.Equal(t, "product", querycache.ResourceOf("product/abc"))
	require.Equal(t, "user-profile", querycache.ResourceOf("user-profile"))

	pred := querycache.ResourcePredicate("products")
	require.True(t, pred("products?page=1"))
	require.True(t, pred("products/search?query=x"))
	require.False(t, pred("product/1"))
}

func TestFetch_ServesFreshEntryWithoutLoader(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	var calls atomic.Int32

	v, err := f.cache.Fetch(ctx, "k", countingLoader(&calls, "one"))
	require.NoError(t, err)
	require.Equal(t, "one", v)

	v, err = f.cache.Fetch(ctx, "k", countingLoader(&calls, "two"))
	require.NoError(t, err)
	require.Equal(t, "one", v)
	require.Equal(t, int32(1), calls.Load())

	entry := f.cache.Read("k")
	require.Equal(t, querycache.Success, entry.Status)
	require.Equal(t, f.clock.Now(), entry.FetchedAt)
	require.Equal(t, f.clock.Now().Add(time.Minute), entry.StaleAfter)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Hits))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Misses))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Fetches))
}

func TestFetch_RefetchesAfterStaleTime(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	var calls atomic.Int32

	_, err := f.cache.Fetch(ctx, "k", countingLoader(&calls, 1))
	require.NoError(t, err)
	require.True(t, f.cache.Fresh("k"))

	f.clock.Advance(time.Minute)
	require.False(t, f.cache.Fresh("k"))

	v, err := f.cache.Fetch(ctx, "k", countingLoader(&calls, 2))
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, int32(2), calls.Load())
}

func TestFetch_DeduplicatesConcurrentCalls(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})

	const callers = 5
	results := make([]any, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = f.cache.Fetch(ctx, "k", blockingLoader(&calls, release, "shared"))
	}()
	require.Eventually(t, func() bool {
		return f.cache.Read("k").Status == querycache.Loading
	}, time.Second, time.Millisecond)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.cache.Fetch(ctx, "k", blockingLoader(&calls, release, "other"))
		}(i)
	}
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.Equal(t, "shared", r)
	}
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	var calls atomic.Int32

	for _, key := range []string{"products?page=1", "products/search?query=a", "posts?page=1"} {
		_, err := f.cache.Fetch(ctx, key, countingLoader(&calls, key))
		require.NoError(t, err)
	}

	n := f.cache.InvalidateResource("products")
	require.Equal(t, 2, n)
	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Invalidations))
	require.True(t, f.cache.Read("products?page=1").Invalidated)
	require.False(t, f.cache.Read("posts?page=1").Invalidated)

	_, err := f.cache.Fetch(ctx, "products?page=1", countingLoader(&calls, "again"))
	require.NoError(t, err)
	_, err = f.cache.Fetch(ctx, "posts?page=1", countingLoader(&calls, "again"))
	require.NoError(t, err)
	require.Equal(t, int32(4), calls.Load())
	require.False(t, f.cache.Read("products?page=1").Invalidated)
}

func TestInvalidate_DuringFetchStoresStale(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	var calls atomic.Int32

	_, err := f.cache.Fetch(ctx, "k", countingLoader(&calls, "first"))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	release := make(chan struct{})
	done := make(chan any)
	go func() {
		v, _ := f.cache.Fetch(ctx, "k", blockingLoader(&calls, release, "racing"))
		done <- v
	}()
	require.Eventually(t, func() bool {
		return f.cache.Read("k").Status == querycache.Loading
	}, time.Second, time.Millisecond)

	require.Equal(t, 1, f.cache.Invalidate(querycache.ExactPredicate("k")))
	close(release)
	require.Equal(t, "racing", <-done)

	entry := f.cache.Read("k")
	require.Equal(t, querycache.Success, entry.Status)
	require.True(t, entry.Invalidated)
	require.False(t, f.cache.Fresh("k"))
}

func TestClear_DropsInFlightResult(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	done := make(chan any)

	go func() {
		v, _ := f.cache.Fetch(ctx, "k", blockingLoader(&calls, release, "old"))
		done <- v
	}()
	require.Eventually(t, func() bool {
		return f.cache.Read("k").Status == querycache.Loading
	}, time.Second, time.Millisecond)

	f.cache.Clear()
	close(release)
	require.Equal(t, "old", <-done)

	require.Equal(t, querycache.Idle, f.cache.Read("k").Status)
	require.Equal(t, 0, f.cache.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Dropped))
}

func TestFetch_CallerCancelledResultStillCached(t *testing.T) {
	f := setupTestFixture(t)
	var calls atomic.Int32
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error)
	go func() {
		_, err := f.cache.Fetch(ctx, "k", blockingLoader(&calls, release, "late"))
		errs <- err
	}()
	require.Eventually(t, func() bool {
		return f.cache.Read("k").Status == querycache.Loading
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		return f.cache.Read("k").Status == querycache.Success
	}, time.Second, time.Millisecond)
	require.Equal(t, "late", f.cache.Read("k").Data)
}

func TestFetch_RetriesOnceWhenRetryable(t *testing.T) {
	f := setupTestFixture(t, querycache.WithRetryPolicy(func(err error) bool {
		return errors.Is(err, errTransient)
	}, time.Millisecond))
	ctx := context.Background()

	t.Run("succeeds on retry", func(t *testing.T) {
		var calls atomic.Int32
		v, err := f.cache.Fetch(ctx, "a", func(context.Context) (any, error) {
			if calls.Add(1) == 1 {
				return nil, errTransient
			}
			return "ok", nil
		})
		require.NoError(t, err)
		require.Equal(t, "ok", v)
		require.Equal(t, int32(2), calls.Load())
	})

	t.Run("gives up after one retry", func(t *testing.T) {
		var calls atomic.Int32
		_, err := f.cache.Fetch(ctx, "b", func(context.Context) (any, error) {
			calls.Add(1)
			return nil, errTransient
		})
		require.ErrorIs(t, err, errTransient)
		require.Equal(t, int32(2), calls.Load())
		require.Equal(t, querycache.Error, f.cache.Read("b").Status)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		var calls atomic.Int32
		boom := errors.New("boom")
		_, err := f.cache.Fetch(ctx, "c", func(context.Context) (any, error) {
			calls.Add(1)
			return nil, boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, int32(1), calls.Load())
	})
}

func TestFetch_ErrorKeepsPreviousData(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	var calls atomic.Int32

	_, err := f.cache.Fetch(ctx, "k", countingLoader(&calls, "good"))
	require.NoError(t, err)
	f.cache.Invalidate(querycache.ExactPredicate("k"))

	_, err = f.cache.Fetch(ctx, "k", func(context.Context) (any, error) {
		return nil, errTransient
	})
	require.ErrorIs(t, err, errTransient)

	entry := f.cache.Read("k")
	require.Equal(t, querycache.Error, entry.Status)
	require.Equal(t, "good", entry.Data)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Errors))
}

func TestGet(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	n, err := querycache.Get(ctx, f.cache, "n", func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, n)

	_, err = querycache.Get(ctx, f.cache, "n", func(context.Context) (string, error) {
		return "unused", nil
	})
	require.ErrorIs(t, err, querycache.ErrTypeMismatch)
}
