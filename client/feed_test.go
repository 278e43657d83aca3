package client

import (
	"fmt"
	"testing"
)

func makeRecords(ids ...string) []Record {
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, Record{ID: id, Action: "UPDATE", ResourceType: "vendor"})
	}
	return records
}

func TestFeedApplyBatchDeduplicates(t *testing.T) {
	var notified []int
	feed := NewFeed(FeedConfig{Limit: 20, OnNotify: func(n int) { notified = append(notified, n) }})
	feed.Replace(makeRecords("r1"), Pagination{Limit: 20, Offset: 0, Total: 1})

	fresh := feed.ApplyBatch(makeRecords("r1", "r2"))

	if fresh != 1 {
		t.Fatalf("expected 1 surviving record, got %d", fresh)
	}
	records := feed.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "r2" {
		t.Fatalf("expected r2 prepended, got %s", records[0].ID)
	}
	seen := map[string]int{}
	for _, rec := range records {
		seen[rec.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("record %s appears %d times", id, n)
		}
	}
	// Total grows by the raw batch size, not the deduplicated count.
	if got := feed.Pagination().Total; got != 3 {
		t.Fatalf("expected total 3, got %d", got)
	}
	if len(notified) != 1 || notified[0] != 1 {
		t.Fatalf("expected one notification of 1 new event, got %v", notified)
	}
}

func TestFeedApplyBatchTruncatesToLimit(t *testing.T) {
	feed := NewFeed(FeedConfig{Limit: 3})
	feed.Replace(makeRecords("a", "b", "c"), Pagination{Limit: 3, Offset: 0, Total: 3})

	feed.ApplyBatch(makeRecords("d", "e"))

	records := feed.Records()
	if len(records) > 3 {
		t.Fatalf("list exceeded limit: %d", len(records))
	}
	if records[0].ID != "d" || records[1].ID != "e" || records[2].ID != "a" {
		t.Fatalf("unexpected order: %s %s %s", records[0].ID, records[1].ID, records[2].ID)
	}
}

func TestFeedApplyBatchAllDuplicatesStillCounts(t *testing.T) {
	notifications := 0
	refreshes := 0
	feed := NewFeed(FeedConfig{
		Limit:            20,
		OnNotify:         func(int) { notifications++ },
		OnSummaryRefresh: func() { refreshes++ },
	})
	feed.Replace(makeRecords("r1", "r2"), Pagination{Limit: 20, Offset: 0, Total: 2})

	fresh := feed.ApplyBatch(makeRecords("r1", "r2"))

	if fresh != 0 {
		t.Fatalf("expected 0 surviving records, got %d", fresh)
	}
	if notifications != 0 {
		t.Fatalf("expected no notification for fully deduplicated batch")
	}
	if refreshes != 1 {
		t.Fatalf("expected summary refresh even for deduplicated batch, got %d", refreshes)
	}
	if got := feed.Pagination().Total; got != 4 {
		t.Fatalf("expected total 4, got %d", got)
	}
}

func TestFeedReplaceIsWholesale(t *testing.T) {
	feed := NewFeed(FeedConfig{Limit: 20})
	feed.ApplyBatch(makeRecords("stale1", "stale2"))

	page := Pagination{Limit: 20, Offset: 40, Total: 120}
	feed.Replace(makeRecords("n1", "n2"), page)

	records := feed.Records()
	if len(records) != 2 || records[0].ID != "n1" {
		t.Fatalf("expected wholesale replacement, got %v", records)
	}
	if got := feed.Pagination(); got != page {
		t.Fatalf("expected pagination %+v, got %+v", page, got)
	}
}

func TestFeedLargeBatchKeepsNewestFirst(t *testing.T) {
	feed := NewFeed(FeedConfig{Limit: 5})
	var ids []string
	for i := 0; i < 8; i++ {
		ids = append(ids, fmt.Sprintf("r%d", i))
	}
	feed.ApplyBatch(makeRecords(ids...))
	records := feed.Records()
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	if records[0].ID != "r0" {
		t.Fatalf("expected r0 first, got %s", records[0].ID)
	}
}
