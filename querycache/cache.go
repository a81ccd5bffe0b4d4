// Package querycache is a keyed read-through cache of asynchronous reads
// with per-key status, staleness and in-flight request deduplication.
package querycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultStaleTime  = 5 * time.Minute
	DefaultRetryDelay = 500 * time.Millisecond
)

// Loader performs the network read for a key.
type Loader func(ctx context.Context) (any, error)

// RetryPolicy reports whether a failed read may be retried.
type RetryPolicy func(err error) bool

type record struct {
	entry Entry
	gen   uint64
}

// Cache is the single writer of its entries.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*record
	epoch   uint64
	group   singleflight.Group

	staleTime  time.Duration
	retryDelay time.Duration
	retryable  RetryPolicy
	metrics    *Metrics
	logger     zerolog.Logger
	nowTime    func() time.Time
}

// Option configures the Cache.
type Option func(*Cache)

func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) {
		c.staleTime = d
	}
}

// WithRetryPolicy enables one automatic retry, delay apart, for reads whose
// error satisfies policy.
func WithRetryPolicy(policy RetryPolicy, delay time.Duration) Option {
	return func(c *Cache) {
		c.retryable = policy
		c.retryDelay = delay
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Cache) {
		c.nowTime = nowFunc
	}
}

func New(options ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*record),
		staleTime:  DefaultStaleTime,
		retryDelay: DefaultRetryDelay,
		logger:     log.Logger,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "querycache").Logger()
	return c
}

// Read returns the current entry for key, Idle when nothing was fetched.
func (c *Cache) Read(key string) Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rec, ok := c.entries[key]; ok {
		return rec.entry
	}
	return Entry{Key: key, Status: Idle}
}

// Fresh reports whether key holds data that can be served without a fetch.
func (c *Cache) Fresh(key string) bool {
	return !c.Read(key).Stale(c.nowTime())
}

// Fetch returns the data for key. A fresh entry is served without calling
// loader; a fetch already in flight for key is joined; otherwise loader runs
// once. The loader runs on a context detached from ctx: if ctx ends first the
// caller gets ctx.Err() while the read still settles into the cache.
func (c *Cache) Fetch(ctx context.Context, key string, loader Loader) (any, error) {
	c.mu.RLock()
	rec, ok := c.entries[key]
	var epoch, gen uint64 = c.epoch, 0
	if ok {
		gen = rec.gen
		if !rec.entry.Stale(c.nowTime()) {
			data := rec.entry.Data
			c.mu.RUnlock()
			c.metrics.inc(hit)
			return data, nil
		}
	}
	c.mu.RUnlock()
	c.metrics.inc(miss)

	detached := context.WithoutCancel(ctx)
	flightKey := fmt.Sprintf("%s#%d.%d", key, epoch, gen)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.load(detached, key, loader, epoch, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (c *Cache) load(ctx context.Context, key string, loader Loader, epoch, gen uint64) (any, error) {
	c.mu.Lock()
	if c.epoch == epoch {
		rec := c.record(key)
		// a flight for the same key may have settled since Fetch looked
		if rec.gen == gen && !rec.entry.Stale(c.nowTime()) {
			data := rec.entry.Data
			c.mu.Unlock()
			return data, nil
		}
		rec.entry.Status = Loading
		rec.entry.Err = nil
	}
	c.mu.Unlock()

	var data any
	op := func() error {
		c.metrics.inc(fetch)
		var err error
		data, err = loader(ctx)
		if err != nil && (c.retryable == nil || !c.retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), 1), ctx)
	err := backoff.Retry(op, policy)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.metrics.inc(dropped)
		c.logger.Debug().Str("key", key).Msg("dropping result settled after clear")
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	rec := c.record(key)
	if err != nil {
		c.metrics.inc(fetchError)
		rec.entry.Status = Error
		rec.entry.Err = err
		return nil, err
	}

	now := c.nowTime()
	rec.entry = Entry{
		Key:         key,
		Data:        data,
		Status:      Success,
		FetchedAt:   now,
		StaleAfter:  now.Add(c.staleTime),
		Invalidated: rec.gen != gen,
	}
	return data, nil
}

// record returns the record for key, creating it. Callers hold mu.
func (c *Cache) record(key string) *record {
	rec, ok := c.entries[key]
	if !ok {
		rec = &record{entry: Entry{Key: key, Status: Idle}}
		c.entries[key] = rec
	}
	return rec
}

// Invalidate marks every entry whose key matches pred stale and returns how
// many were marked. Fetches in flight for those keys settle already stale.
func (c *Cache) Invalidate(pred func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, rec := range c.entries {
		if !pred(key) {
			continue
		}
		rec.gen++
		rec.entry.Invalidated = true
		n++
		c.metrics.inc(invalidation)
	}
	if n > 0 {
		c.logger.Debug().Int("count", n).Msg("invalidated entries")
	}
	return n
}

// InvalidateResource invalidates every key of resource.
func (c *Cache) InvalidateResource(resource string) int {
	return c.Invalidate(ResourcePredicate(resource))
}

// Clear drops every entry. Fetches in flight settle without being stored.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*record)
	c.epoch++
	c.logger.Debug().Msg("cache cleared")
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ErrTypeMismatch is returned by Get when a cached value has another type.
var ErrTypeMismatch = errors.New("cached value has unexpected type")

// Get is the typed form of Fetch.
func Get[T any](ctx context.Context, c *Cache, key string, loader func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return loader(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, errors.Wrapf(ErrTypeMismatch, "key %s holds %T", key, v)
	}
	return t, nil
}
