package client

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type stubFetcher struct {
	mu      sync.Mutex
	specs   []QuerySpec
	results []ListResult
	errs    []error
	hooks   map[int]func()
}

func (f *stubFetcher) ListLogs(ctx context.Context, spec QuerySpec) (ListResult, error) {
	f.mu.Lock()
	call := len(f.specs)
	f.specs = append(f.specs, spec)
	hook := f.hooks[call]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if call < len(f.errs) {
		err = f.errs[call]
	}
	if err != nil {
		return ListResult{}, err
	}
	if call < len(f.results) {
		return f.results[call], nil
	}
	return ListResult{Data: makeRecords("x1"), Total: 1}, nil
}

func (f *stubFetcher) calls() []QuerySpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]QuerySpec(nil), f.specs...)
}

func newTestPager(fetcher *stubFetcher) (*Pager, *Feed) {
	feed := NewFeed(FeedConfig{Limit: 20})
	pager := NewPager(fetcher, feed, PagerConfig{Limit: 20, SearchDebounce: 20 * time.Millisecond})
	return pager, feed
}

func waitForCalls(t *testing.T, fetcher *stubFetcher, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(fetcher.calls()) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d fetches, got %d", want, len(fetcher.calls()))
}

func TestPagerDebounceCollapsesKeystrokes(t *testing.T) {
	fetcher := &stubFetcher{}
	pager, _ := newTestPager(fetcher)
	defer pager.Close()
	ctx := context.Background()

	if err := pager.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	pager.SetSearch(ctx, "a")
	pager.SetSearch(ctx, "ap")
	pager.SetSearch(ctx, "app")

	waitForCalls(t, fetcher, 2)
	time.Sleep(60 * time.Millisecond)

	calls := fetcher.calls()
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 fetches (load + one search), got %d", len(calls))
	}
	if got := calls[1].Filters.Search; got != "app" {
		t.Fatalf("expected search %q, got %q", "app", got)
	}
	if calls[1].EffectiveOffset != 0 {
		t.Fatalf("expected search fetch at offset 0, got %d", calls[1].EffectiveOffset)
	}
}

func TestPagerNoRedundantSearchFetch(t *testing.T) {
	fetcher := &stubFetcher{}
	pager, _ := newTestPager(fetcher)
	defer pager.Close()
	ctx := context.Background()

	if err := pager.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	pager.SetSearch(ctx, "vendor")
	waitForCalls(t, fetcher, 2)

	pager.SetSearch(ctx, "vendor")
	time.Sleep(80 * time.Millisecond)

	if got := len(fetcher.calls()); got != 2 {
		t.Fatalf("expected no fetch for already-applied search, got %d calls", got)
	}
}

func TestPagerFilterChangesResetOffset(t *testing.T) {
	fetcher := &stubFetcher{}
	pager, _ := newTestPager(fetcher)
	defer pager.Close()
	ctx := context.Background()

	if err := pager.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := pager.SetFilters(ctx, func(f *Filters) { f.Status = "FAILURE" }); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := pager.SetFilters(ctx, func(f *Filters) { f.Severity = "HIGH" }); err != nil {
		t.Fatalf("set severity: %v", err)
	}

	calls := fetcher.calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 fetches (load + two filter changes), got %d", len(calls))
	}
	if calls[1].Filters.Status != "FAILURE" || calls[1].EffectiveOffset != 0 {
		t.Fatalf("unexpected first filter fetch: %+v", calls[1])
	}
	if calls[2].Filters.Severity != "HIGH" || calls[2].Filters.Status != "FAILURE" || calls[2].EffectiveOffset != 0 {
		t.Fatalf("unexpected second filter fetch: %+v", calls[2])
	}
}

func TestPagerSkipsFetchBeforeInitialLoad(t *testing.T) {
	fetcher := &stubFetcher{}
	pager, _ := newTestPager(fetcher)
	defer pager.Close()
	ctx := context.Background()

	if err := pager.SetFilters(ctx, func(f *Filters) { f.Action = "DELETE" }); err != nil {
		t.Fatalf("set action: %v", err)
	}
	if got := len(fetcher.calls()); got != 0 {
		t.Fatalf("expected no fetch before load, got %d", got)
	}

	if err := pager.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	calls := fetcher.calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one fetch from load, got %d", len(calls))
	}
	if calls[0].Filters.Action != "DELETE" {
		t.Fatalf("expected load to carry the staged filter, got %+v", calls[0].Filters)
	}
}

func TestPagerFailedFetchLeavesStateUntouched(t *testing.T) {
	loaded := ListResult{Data: makeRecords("r1", "r2"), Total: 42}
	boom := errors.New("boom")
	fetcher := &stubFetcher{
		results: []ListResult{loaded},
		errs:    []error{nil, boom},
	}
	pager, feed := newTestPager(fetcher)
	defer pager.Close()
	ctx := context.Background()

	if err := pager.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	wantRecords := feed.Records()
	wantPage := feed.Pagination()

	if err := pager.Refresh(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !reflect.DeepEqual(feed.Records(), wantRecords) {
		t.Fatalf("records mutated by failed fetch")
	}
	if feed.Pagination() != wantPage {
		t.Fatalf("pagination mutated by failed fetch")
	}
	if pager.Err() == nil {
		t.Fatalf("expected error state to be set")
	}

	// Retry re-runs the identical query and clears the error.
	if err := pager.Retry(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	calls := fetcher.calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 fetches, got %d", len(calls))
	}
	if !reflect.DeepEqual(calls[1], calls[2]) {
		t.Fatalf("retry query differs: %+v vs %+v", calls[1], calls[2])
	}
	if pager.Err() != nil {
		t.Fatalf("expected error cleared after retry, got %v", pager.Err())
	}
}

func TestPagerDiscardsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	fetcher := &stubFetcher{
		results: []ListResult{
			{Data: makeRecords("first"), Total: 1},
			{Data: makeRecords("stale"), Total: 1},
			{Data: makeRecords("fresh"), Total: 99},
		},
	}
	fetcher.hooks = map[int]func(){
		1: func() { <-release },
	}
	pager, feed := newTestPager(fetcher)
	defer pager.Close()
	ctx := context.Background()

	if err := pager.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = pager.Refresh(ctx) // superseded mid-flight
	}()
	waitForCalls(t, fetcher, 2)

	if err := pager.SetFilters(ctx, func(f *Filters) { f.Status = "FAILURE" }); err != nil {
		t.Fatalf("set filters: %v", err)
	}
	close(release)
	wg.Wait()

	records := feed.Records()
	if len(records) != 1 || records[0].ID != "fresh" {
		t.Fatalf("stale response overwrote newer state: %v", records)
	}
	if got := feed.Pagination().Total; got != 99 {
		t.Fatalf("expected total 99, got %d", got)
	}
}

func TestPagerCloseCancelsPendingSearch(t *testing.T) {
	fetcher := &stubFetcher{}
	pager, _ := newTestPager(fetcher)
	ctx := context.Background()

	if err := pager.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	waitForCalls(t, fetcher, 1)

	pager.SetSearch(ctx, "orphaned")
	pager.Close()

	// Well past the debounce window; the cancelled timer must not fire.
	time.Sleep(100 * time.Millisecond)
	if got := len(fetcher.calls()); got != 1 {
		t.Fatalf("expected no fetch after close, got %d total fetches", got)
	}
	if pager.Filters().Search != "" {
		t.Fatalf("closed pager must not apply the pending search")
	}
}

func TestPagerNextAndPrevPageUseOffsetOverride(t *testing.T) {
	fetcher := &stubFetcher{
		results: []ListResult{
			{Data: makeRecords("a"), Total: 100},
			{Data: makeRecords("b"), Total: 100},
			{Data: makeRecords("c"), Total: 100},
		},
	}
	pager, feed := newTestPager(fetcher)
	defer pager.Close()
	ctx := context.Background()

	if err := pager.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := pager.NextPage(ctx); err != nil {
		t.Fatalf("next page: %v", err)
	}
	if got := feed.Pagination().Offset; got != 20 {
		t.Fatalf("expected offset 20 after next page, got %d", got)
	}
	if err := pager.PrevPage(ctx); err != nil {
		t.Fatalf("prev page: %v", err)
	}
	if got := feed.Pagination().Offset; got != 0 {
		t.Fatalf("expected offset 0 after prev page, got %d", got)
	}
}
