package client

import "sync"

// Feed is the in-memory record list one mounted dashboard view renders.
// Two paths mutate it: the fetch path replaces it wholesale, the stream
// path prepends deduplicated batches. Both are safe to call concurrently.
type Feed struct {
	mu      sync.Mutex
	records []Record
	page    Pagination
	live    bool

	onNotify         func(newCount int)
	onSummaryRefresh func()
}

// FeedConfig customises a Feed.
type FeedConfig struct {
	// Limit is the page size the visible list is truncated to.
	Limit int
	// OnNotify is invoked with the number of genuinely new (post-dedup)
	// records each time a streamed batch survives deduplication.
	OnNotify func(newCount int)
	// OnSummaryRefresh is invoked after each processed streamed batch so the
	// owner can refresh aggregate counts independently of the list fetch.
	OnSummaryRefresh func()
}

// NewFeed constructs an empty feed.
func NewFeed(cfg FeedConfig) *Feed {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 20
	}
	return &Feed{
		page:             Pagination{Limit: limit},
		onNotify:         cfg.OnNotify,
		onSummaryRefresh: cfg.OnSummaryRefresh,
	}
}

// Replace installs a server-authoritative page, discarding any interleaved
// stream prepends. Used by the fetch path on success only.
func (f *Feed) Replace(records []Record, page Pagination) {
	f.mu.Lock()
	f.records = append([]Record(nil), records...)
	if page.Limit <= 0 {
		page.Limit = f.page.Limit
	}
	f.page = page
	f.mu.Unlock()
}

// ApplyBatch merges a streamed batch: records whose id is already present
// are dropped, survivors are prepended newest-first and the list is
// truncated to the page limit. The total grows by the raw batch size,
// mirroring server-side growth regardless of deduplication. Returns the
// number of records that survived deduplication.
func (f *Feed) ApplyBatch(batch []Record) int {
	if len(batch) == 0 {
		return 0
	}
	f.mu.Lock()
	seen := make(map[string]struct{}, len(f.records))
	for _, rec := range f.records {
		seen[rec.ID] = struct{}{}
	}
	fresh := make([]Record, 0, len(batch))
	for _, rec := range batch {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		fresh = append(fresh, rec)
	}
	if len(fresh) > 0 {
		merged := make([]Record, 0, len(fresh)+len(f.records))
		merged = append(merged, fresh...)
		merged = append(merged, f.records...)
		if len(merged) > f.page.Limit {
			merged = merged[:f.page.Limit]
		}
		f.records = merged
	}
	f.page.Total += len(batch)
	notify := f.onNotify
	refresh := f.onSummaryRefresh
	f.mu.Unlock()

	if len(fresh) > 0 && notify != nil {
		notify(len(fresh))
	}
	if refresh != nil {
		refresh()
	}
	return len(fresh)
}

// Records returns a copy of the visible list, newest first.
func (f *Feed) Records() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Record(nil), f.records...)
}

// Pagination returns the current paging state.
func (f *Feed) Pagination() Pagination {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

// SetLive records stream connectivity for the UI indicator. It carries no
// completeness guarantee for the record list.
func (f *Feed) SetLive(live bool) {
	f.mu.Lock()
	f.live = live
	f.mu.Unlock()
}

// Live reports the last known stream connectivity.
func (f *Feed) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}
