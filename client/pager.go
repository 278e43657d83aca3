package client

import (
	"context"
	"sync"
	"time"
)

// DefaultSearchDebounce is how long free-text search input is allowed to
// settle before a fetch fires.
const DefaultSearchDebounce = 400 * time.Millisecond

// Fetcher executes one resolved list query.
type Fetcher interface {
	ListLogs(ctx context.Context, spec QuerySpec) (ListResult, error)
}

// Pager translates filter and search state into authoritative server
// queries and keeps the owned Feed's paging state consistent across manual
// paging, filter changes and streaming-driven growth.
//
// A failed fetch never mutates the feed; the error is held for the UI and
// Retry re-runs the identical query. Responses superseded by a newer fetch
// are discarded via a generation counter, so an out-of-order completion
// cannot overwrite newer state with stale data.
type Pager struct {
	fetcher Fetcher
	feed    *Feed

	debounce time.Duration

	mu            sync.Mutex
	filters       Filters
	appliedSearch string
	limit         int
	loaded        bool
	generation    uint64
	lastSpec      QuerySpec
	hasLast       bool
	lastErr       error
	timer         *time.Timer
	closed        bool
}

// PagerConfig customises a Pager.
type PagerConfig struct {
	// Limit is the page size; defaults to the feed's limit.
	Limit int
	// SearchDebounce overrides the 400ms search debounce window.
	SearchDebounce time.Duration
}

// NewPager constructs a Pager over the given fetcher and feed.
func NewPager(fetcher Fetcher, feed *Feed, cfg PagerConfig) *Pager {
	limit := cfg.Limit
	if limit <= 0 {
		limit = feed.Pagination().Limit
	}
	debounce := cfg.SearchDebounce
	if debounce <= 0 {
		debounce = DefaultSearchDebounce
	}
	return &Pager{
		fetcher:  fetcher,
		feed:     feed,
		debounce: debounce,
		limit:    limit,
	}
}

// Load performs the initial fetch. Filter changes made before Load do not
// fetch on their own; the initial load owns that request.
func (p *Pager) Load(ctx context.Context) error {
	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()
	return p.fetch(ctx, Overrides{ResetToFirstPage: true})
}

// SetFilters replaces the non-search filters and refetches immediately with
// the offset reset to the first page. Before Load it only records state.
func (p *Pager) SetFilters(ctx context.Context, mutate func(*Filters)) error {
	p.mu.Lock()
	search := p.filters.Search
	mutate(&p.filters)
	p.filters.Search = search
	loaded := p.loaded
	p.mu.Unlock()
	if !loaded {
		return nil
	}
	return p.fetch(ctx, Overrides{ResetToFirstPage: true})
}

// SetSearch schedules a debounced search fetch. Only the last value typed
// within the window is applied, and a value identical to the last applied
// search never fetches. The pending timer is cancelled when superseded or
// on Close.
func (p *Pager) SetSearch(ctx context.Context, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		p.applySearch(ctx, value)
	})
}

func (p *Pager) applySearch(ctx context.Context, value string) {
	p.mu.Lock()
	if p.closed || value == p.appliedSearch {
		p.mu.Unlock()
		return
	}
	p.appliedSearch = value
	p.filters.Search = value
	loaded := p.loaded
	p.mu.Unlock()
	if !loaded {
		return
	}
	_ = p.fetch(ctx, Overrides{ResetToFirstPage: true})
}

// Refresh re-runs the query at the currently stored offset.
func (p *Pager) Refresh(ctx context.Context) error {
	return p.fetch(ctx, Overrides{})
}

// NextPage advances one page via an explicit offset override.
func (p *Pager) NextPage(ctx context.Context) error {
	page := p.feed.Pagination()
	offset := page.Offset + page.Limit
	if page.Total > 0 && offset >= page.Total {
		return nil
	}
	return p.fetch(ctx, Overrides{OffsetOverride: &offset})
}

// PrevPage steps back one page via an explicit offset override.
func (p *Pager) PrevPage(ctx context.Context) error {
	page := p.feed.Pagination()
	offset := page.Offset - page.Limit
	if offset < 0 {
		offset = 0
	}
	return p.fetch(ctx, Overrides{OffsetOverride: &offset})
}

// Retry re-runs the identical last query after a failure.
func (p *Pager) Retry(ctx context.Context) error {
	p.mu.Lock()
	if !p.hasLast {
		p.mu.Unlock()
		return p.fetch(ctx, Overrides{})
	}
	spec := p.lastSpec
	p.generation++
	gen := p.generation
	p.mu.Unlock()
	return p.run(ctx, spec, gen)
}

// Err returns the error from the most recent failed fetch, nil after any
// success.
func (p *Pager) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Filters returns a copy of the current filter state.
func (p *Pager) Filters() Filters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filters
}

// Close cancels any pending debounce timer. The pager must not be used
// afterwards.
func (p *Pager) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Pager) fetch(ctx context.Context, overrides Overrides) error {
	p.mu.Lock()
	page := p.feed.Pagination()
	page.Limit = p.limit
	spec := BuildQuery(p.filters, page, overrides)
	p.lastSpec = spec
	p.hasLast = true
	p.generation++
	gen := p.generation
	p.mu.Unlock()
	return p.run(ctx, spec, gen)
}

func (p *Pager) run(ctx context.Context, spec QuerySpec, gen uint64) error {
	result, err := p.fetcher.ListLogs(ctx, spec)

	p.mu.Lock()
	if gen != p.generation {
		// A newer fetch superseded this one; drop the response either way.
		p.mu.Unlock()
		return nil
	}
	if err != nil {
		p.lastErr = err
		p.mu.Unlock()
		return err
	}
	p.lastErr = nil
	p.mu.Unlock()

	p.feed.Replace(result.Data, Pagination{
		Limit:  spec.Limit,
		Offset: spec.EffectiveOffset,
		Total:  result.Total,
	})
	return nil
}
