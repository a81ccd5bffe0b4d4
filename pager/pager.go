// Package pager maintains appendable, de-duplicated lists over the query
// cache in two mutually exclusive modes: paged browsing and free text search.
package pager

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-market-client/apierror"
	clienterrors "github.com/jrsteele09/go-market-client/internal/errors"
	"github.com/jrsteele09/go-market-client/querycache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPageSize = 10
	DefaultDebounce = 400 * time.Millisecond
)

// Source performs the network reads of one resource.
type Source[T any] interface {
	Browse(ctx context.Context, filter Filter, page, limit int) (Page[T], error)
	Search(ctx context.Context, query string) ([]T, error)
}

type list[T any] struct {
	items   []T
	seen    map[string]struct{}
	page    int
	hasNext bool
	loading bool
	err     *apierror.Error
	gen     uint64
}

func (l *list[T]) reset() {
	l.items = nil
	l.seen = make(map[string]struct{})
	l.page = 0
	l.hasNext = false
	l.loading = false
	l.err = nil
	l.gen++
}

// appendUnique appends the items whose id is not already listed.
func (l *list[T]) appendUnique(items []T, idOf func(T) string) {
	for _, item := range items {
		id := idOf(item)
		if _, dup := l.seen[id]; dup {
			continue
		}
		l.seen[id] = struct{}{}
		l.items = append(l.items, item)
	}
}

// Pager is the single writer of its browse and search lists.
type Pager[T any] struct {
	resource string
	source   Source[T]
	idOf     func(T) string
	cache    *querycache.Cache
	pageSize int
	debounce time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	deliver sync.Mutex
	mode    Mode
	filter  Filter
	browse  list[T]
	search  list[T]
	query   string
	timer   *time.Timer
	closed  bool
	subs    map[string]func(PageList[T])
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// Option configures the Pager.
type Option func(*settings)

type settings struct {
	pageSize int
	debounce time.Duration
	filter   Filter
	logger   zerolog.Logger
}

func WithPageSize(n int) Option {
	return func(s *settings) {
		s.pageSize = n
	}
}

// WithDebounce sets how long Search waits for the query to settle.
func WithDebounce(d time.Duration) Option {
	return func(s *settings) {
		s.debounce = d
	}
}

// WithFilter sets the initial browse filter.
func WithFilter(f Filter) Option {
	return func(s *settings) {
		s.filter = f
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// New creates a Pager for resource. idOf returns the identity key used to
// de-duplicate items.
func New[T any](resource string, source Source[T], idOf func(T) string, cache *querycache.Cache, options ...Option) (*Pager[T], error) {
	if resource == "" {
		return nil, errors.New("[pager.New] resource is required")
	}
	if source == nil {
		return nil, errors.New("[pager.New] source is required")
	}
	if idOf == nil {
		return nil, errors.New("[pager.New] idOf is required")
	}
	if cache == nil {
		return nil, errors.New("[pager.New] cache is required")
	}

	s := settings{pageSize: DefaultPageSize, debounce: DefaultDebounce, logger: log.Logger}
	for _, opt := range options {
		opt(&s)
	}
	if s.pageSize <= 0 {
		return nil, errors.Errorf("[pager.New] invalid page size %d", s.pageSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pager[T]{
		resource: resource,
		source:   source,
		idOf:     idOf,
		cache:    cache,
		pageSize: s.pageSize,
		debounce: s.debounce,
		logger:   s.logger.With().Str("component", "pager").Str("resource", resource).Logger(),
		filter:   s.filter,
		subs:     make(map[string]func(PageList[T])),
		ctx:      ctx,
		cancel:   cancel,
	}
	p.browse.reset()
	p.search.reset()
	return p, nil
}

// SearchKey is the cache key of a search of resource.
func SearchKey(resource, query string) string {
	return querycache.Key(resource+"/search", url.Values{"query": []string{query}})
}

func (p *Pager[T]) pageKey(f Filter, page int) string {
	v := f.Values()
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(p.pageSize))
	return querycache.Key(p.resource, v)
}

// Signature identifies the current browse filter set.
func (p *Pager[T]) Signature() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return querycache.Key(p.resource, p.filter.Values())
}

// View returns a snapshot of the visible list.
func (p *Pager[T]) View() PageList[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Pager[T]) viewLocked() PageList[T] {
	l := &p.browse
	if p.mode == Search {
		l = &p.search
	}
	items := make([]T, len(l.items))
	copy(items, l.items)
	v := PageList[T]{
		Items:       items,
		Page:        l.page,
		HasNextPage: l.hasNext,
		Mode:        p.mode,
		Loading:     l.loading,
		Err:         l.err,
	}
	if p.mode == Search {
		v.Query = p.query
		v.HasNextPage = false
	}
	return v
}

// Subscribe registers fn to receive every new visible list. Deliveries are
// serialised in the order the views were taken; fn must not change the pager.
func (p *Pager[T]) Subscribe(fn func(PageList[T])) (unsubscribe func()) {
	id := uuid.NewString()
	p.mu.Lock()
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// notify delivers the current view. Callers must not hold mu.
func (p *Pager[T]) notify() {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	p.mu.Lock()
	if p.closed || len(p.subs) == 0 {
		p.mu.Unlock()
		return
	}
	view := p.viewLocked()
	fns := make([]func(PageList[T]), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(view)
	}
}

// Read returns the visible list, fetching whatever it is missing. A browse
// list whose pages went stale in the cache is reloaded from page 1.
func (p *Pager[T]) Read(ctx context.Context) (PageList[T], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return PageList[T]{}, closedError()
	}
	mode, query := p.mode, p.query
	needBrowse := mode == Browse && !p.browse.loading && (p.browse.page == 0 || p.browseStaleLocked())
	needSearch := mode == Search && !p.search.loading && !p.cache.Fresh(SearchKey(p.resource, query))
	if needBrowse {
		p.browse.reset()
	}
	p.mu.Unlock()

	switch {
	case needBrowse:
		return p.fetchPage(ctx, 1)
	case needSearch:
		return p.fetchSearch(ctx, query)
	default:
		return p.View(), nil
	}
}

func (p *Pager[T]) browseStaleLocked() bool {
	for page := 1; page <= p.browse.page; page++ {
		if !p.cache.Fresh(p.pageKey(p.filter, page)) {
			return true
		}
	}
	return false
}

// LoadMore appends the next browse page. It does nothing outside Browse
// mode, when there is no next page or while a page fetch is in flight.
func (p *Pager[T]) LoadMore(ctx context.Context) (PageList[T], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return PageList[T]{}, closedError()
	}
	if p.mode != Browse || !p.browse.hasNext || p.browse.loading {
		view := p.viewLocked()
		p.mu.Unlock()
		return view, nil
	}
	next := p.browse.page + 1
	p.mu.Unlock()
	return p.fetchPage(ctx, next)
}

// SetFilter switches to Browse and, when the signature changes, restarts the
// list at page 1. Entries cached for the old signature are kept.
func (p *Pager[T]) SetFilter(ctx context.Context, f Filter) (PageList[T], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return PageList[T]{}, closedError()
	}
	p.stopTimerLocked()
	p.mode = Browse
	if querycache.Key(p.resource, f.Values()) != querycache.Key(p.resource, p.filter.Values()) {
		p.filter = f
		p.browse.reset()
		p.logger.Debug().Str("signature", querycache.Key(p.resource, f.Values())).Msg("filter changed")
	}
	p.mu.Unlock()
	p.notify()
	return p.Read(ctx)
}

// ShowBrowse makes the browse list visible again without any fetch.
func (p *Pager[T]) ShowBrowse() PageList[T] {
	p.mu.Lock()
	p.stopTimerLocked()
	p.mode = Browse
	view := p.viewLocked()
	p.mu.Unlock()
	p.notify()
	return view
}

func (p *Pager[T]) fetchPage(ctx context.Context, page int) (PageList[T], error) {
	p.mu.Lock()
	filter, gen := p.filter, p.browse.gen
	key := p.pageKey(filter, page)
	p.browse.loading = true
	p.browse.err = nil
	p.mu.Unlock()
	p.notify()

	result, err := querycache.Get(ctx, p.cache, key, func(ctx context.Context) (Page[T], error) {
		return p.source.Browse(ctx, filter, page, p.pageSize)
	})

	p.mu.Lock()
	if p.closed || gen != p.browse.gen {
		view := p.viewLocked()
		p.mu.Unlock()
		p.logger.Debug().Str("key", key).Msg("discarding outdated page")
		return view, nil
	}
	p.browse.loading = false
	if err != nil {
		translated := apierror.Translate(err)
		p.browse.err = translated
		view := p.viewLocked()
		p.mu.Unlock()
		p.notify()
		return view, translated
	}
	p.browse.appendUnique(result.Items, p.idOf)
	p.browse.page = page
	p.browse.hasNext = result.HasNextPage
	view := p.viewLocked()
	p.mu.Unlock()
	p.notify()
	return view, nil
}

// Search shows the search list for query and fetches it once the query has
// not changed for the debounce interval. A blank query reverts to Browse
// without any network call.
func (p *Pager[T]) Search(query string) PageList[T] {
	query = strings.TrimSpace(query)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return PageList[T]{}
	}
	p.stopTimerLocked()
	if query == "" {
		p.clearSearchLocked()
		view := p.viewLocked()
		p.mu.Unlock()
		p.notify()
		return view
	}

	p.mode = Search
	if query != p.query {
		p.query = query
		p.search.reset()
	}
	if p.cache.Fresh(SearchKey(p.resource, query)) {
		p.mu.Unlock()
		view, _ := p.fetchSearch(p.ctx, query)
		return view
	}
	p.search.loading = true
	gen := p.search.gen
	p.timer = time.AfterFunc(p.debounce, func() {
		p.runDebounced(gen, query)
	})
	view := p.viewLocked()
	p.mu.Unlock()
	p.notify()
	return view
}

func (p *Pager[T]) runDebounced(gen uint64, query string) {
	p.mu.Lock()
	if p.closed || gen != p.search.gen {
		p.mu.Unlock()
		return
	}
	p.running.Add(1)
	p.mu.Unlock()
	defer p.running.Done()

	if _, err := p.fetchSearch(p.ctx, query); err != nil {
		p.logger.Debug().Err(err).Msg("search failed")
	}
}

// SearchNow runs query immediately, bypassing the debounce.
func (p *Pager[T]) SearchNow(ctx context.Context, query string) (PageList[T], error) {
	query = strings.TrimSpace(query)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return PageList[T]{}, closedError()
	}
	p.stopTimerLocked()
	if query == "" {
		p.clearSearchLocked()
		view := p.viewLocked()
		p.mu.Unlock()
		p.notify()
		return view, nil
	}
	p.mode = Search
	if query != p.query {
		p.query = query
		p.search.reset()
	}
	p.mu.Unlock()
	return p.fetchSearch(ctx, query)
}

func (p *Pager[T]) fetchSearch(ctx context.Context, query string) (PageList[T], error) {
	p.mu.Lock()
	gen := p.search.gen
	p.search.loading = true
	p.search.err = nil
	p.mu.Unlock()
	p.notify()

	items, err := querycache.Get(ctx, p.cache, SearchKey(p.resource, query), func(ctx context.Context) ([]T, error) {
		return p.source.Search(ctx, query)
	})

	p.mu.Lock()
	if p.closed || gen != p.search.gen || query != p.query {
		view := p.viewLocked()
		p.mu.Unlock()
		return view, nil
	}
	p.search.loading = false
	if err != nil {
		translated := apierror.Translate(err)
		p.search.err = translated
		view := p.viewLocked()
		p.mu.Unlock()
		p.notify()
		return view, translated
	}
	p.search.items = nil
	p.search.seen = make(map[string]struct{})
	p.search.appendUnique(items, p.idOf)
	p.search.page = 1
	view := p.viewLocked()
	p.mu.Unlock()
	p.notify()
	return view, nil
}

func (p *Pager[T]) clearSearchLocked() {
	p.query = ""
	p.search.reset()
	p.mode = Browse
}

func (p *Pager[T]) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Reset drops both lists and the search query and shows an empty Browse
// list. Fetches in flight settle without touching the lists. The filter is
// kept.
func (p *Pager[T]) Reset() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.stopTimerLocked()
	p.clearSearchLocked()
	p.browse.reset()
	p.mu.Unlock()
	p.logger.Debug().Msg("lists reset")
	p.notify()
}

func closedError() error {
	return apierror.New(apierror.Unknown, clienterrors.ErrClosed)
}

// Close stops pending searches and discards every result that settles later.
func (p *Pager[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopTimerLocked()
	p.subs = make(map[string]func(PageList[T]))
	p.mu.Unlock()

	p.cancel()
	p.running.Wait()
}
