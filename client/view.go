package client

import (
	"context"
	"sync"
	"time"
)

// View is the page-level state for one mounted audit-log dashboard view:
// the paged list, the live stream feeding it, and the aggregate summary
// refreshed whenever streamed records arrive. Construct on mount, Close on
// unmount or tenant switch.
type View struct {
	client *Client
	feed   *Feed
	pager  *Pager
	stream *Stream

	pendingStream StreamConfig

	mu      sync.Mutex
	summary Summary
	hasSum  bool
}

// ViewConfig customises a View.
type ViewConfig struct {
	// PageSize bounds the visible list; defaults to 20.
	PageSize int
	// OnNotify receives the count of genuinely new streamed events.
	OnNotify func(newCount int)
	// Stream tunes the reconnect policy; callbacks are owned by the view.
	Stream StreamConfig
	// SummaryTimeout bounds each background summary refresh.
	SummaryTimeout time.Duration
}

// NewView wires a feed, pager and stream for the client's tenant. The
// stream is not started until Start.
func NewView(c *Client, cfg ViewConfig) *View {
	v := &View{client: c}
	timeout := cfg.SummaryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	v.feed = NewFeed(FeedConfig{
		Limit:    cfg.PageSize,
		OnNotify: cfg.OnNotify,
		OnSummaryRefresh: func() {
			go v.refreshSummary(timeout)
		},
	})
	v.pager = NewPager(c, v.feed, PagerConfig{Limit: cfg.PageSize})
	v.streamCfg(cfg.Stream)
	return v
}

func (v *View) streamCfg(cfg StreamConfig) {
	cfg.OnUpdate = func(records []Record) {
		v.feed.ApplyBatch(records)
	}
	cfg.OnLive = v.feed.SetLive
	v.pendingStream = cfg
}

// Start performs the initial list load and opens the live stream.
func (v *View) Start(ctx context.Context) error {
	if err := v.pager.Load(ctx); err != nil {
		return err
	}
	v.stream = DialStream(ctx, v.client, v.pendingStream)
	return nil
}

// Feed exposes the merged record list.
func (v *View) Feed() *Feed {
	return v.feed
}

// Pager exposes the pagination controller.
func (v *View) Pager() *Pager {
	return v.pager
}

// Live reports stream connectivity for the UI indicator.
func (v *View) Live() bool {
	return v.stream != nil && v.stream.Live()
}

// Summary returns the most recently refreshed aggregate counts.
func (v *View) Summary() (Summary, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.summary, v.hasSum
}

// Close tears the view down: the stream is aborted without reconnect and
// any pending search debounce timer is cancelled.
func (v *View) Close() {
	if v.stream != nil {
		v.stream.Close()
	}
	v.pager.Close()
}

func (v *View) refreshSummary(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	summary, err := v.client.FetchSummary(ctx)
	if err != nil {
		return
	}
	v.mu.Lock()
	v.summary = summary
	v.hasSum = true
	v.mu.Unlock()
}
