package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sjawhar/ghost-wispr-live/internal/api"
	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleEntries() []Entry {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return []Entry{
		{ID: "a", Title: "Standup", Content: "yesterday I fixed the build", CreatedAt: base},
		{ID: "b", Title: "Design review", Content: "100% agreement on the plan", CreatedAt: base.Add(time.Hour)},
		{ID: "c", Title: "Retro", Content: "standup ran long", CreatedAt: base.Add(2 * time.Hour)},
	}
}

func TestCacheReplaceAndQuery(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Replace(ctx, sampleEntries()); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	all, err := c.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	oldest, err := c.Query(ctx, Query{Sort: SortOldest, Limit: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(oldest) != 1 || oldest[0].ID != "a" {
		t.Fatalf("expected oldest a, got %+v", oldest)
	}
	if !oldest[0].CreatedAt.Equal(sampleEntries()[0].CreatedAt) {
		t.Fatalf("expected created_at round trip, got %v", oldest[0].CreatedAt)
	}
}

func TestCacheSearchMatchesTitleAndContent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Replace(ctx, sampleEntries())

	got, err := c.Query(ctx, Query{Search: "standup", Sort: SortOldest})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("expected a and c, got %+v", got)
	}

	n, err := c.Count(ctx, "100%")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected literal %% match on 1 entry, got %d", n)
	}
}

func TestCacheReplaceDropsOldEntries(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Replace(ctx, sampleEntries())
	_ = c.Replace(ctx, []Entry{{ID: "z", Title: "only", CreatedAt: time.Now()}, {ID: " "}})

	n, err := c.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 entry after replace, got %d", n)
	}
}

type fetcherStub struct {
	mu    sync.Mutex
	calls atomic.Int32
	items []api.HistoryEntry
	err   error
}

func (f *fetcherStub) History(_ context.Context, q api.HistoryQuery) (api.HistoryPage, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return api.HistoryPage{}, f.err
	}
	return api.HistoryPage{Items: f.items, Total: len(f.items), Page: q.Page}, nil
}

func TestRefresherDebouncesHistoryUpdates(t *testing.T) {
	c := newTestCache(t)
	fetcher := &fetcherStub{items: []api.HistoryEntry{{ID: "x", Title: "New", CreatedAt: time.Now()}}}
	r := NewRefresher(c, fetcher, 30*time.Millisecond, zerolog.Nop(), nil)
	t.Cleanup(r.Close)

	refreshed := make(chan int, 4)
	r.OnRefresh(func(n int) { refreshed <- n })

	for range 5 {
		_ = r.Handle(&protocol.HistoryUpdated{Envelope: protocol.Envelope{Type: protocol.TypeHistoryUpdated}})
	}
	_ = r.Handle(&protocol.Transcript{Envelope: protocol.Envelope{Type: protocol.TypeTranscript}})

	select {
	case n := <-refreshed:
		if n != 1 {
			t.Fatalf("expected 1 entry, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for refresh")
	}

	time.Sleep(60 * time.Millisecond)
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected a single fetch for the burst, got %d", got)
	}
	if n, _ := c.Count(context.Background(), ""); n != 1 {
		t.Fatalf("expected cache to hold 1 entry, got %d", n)
	}
}

func TestRefresherKeepsCacheOnFetchError(t *testing.T) {
	c := newTestCache(t)
	_ = c.Replace(context.Background(), sampleEntries())

	fetcher := &fetcherStub{err: errors.New("server down")}
	r := NewRefresher(c, fetcher, time.Millisecond, zerolog.Nop(), nil)
	defer r.Close()

	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if n, _ := c.Count(context.Background(), ""); n != 3 {
		t.Fatalf("expected cache untouched, got %d entries", n)
	}
}

func TestRefresherCloseCancelsPending(t *testing.T) {
	c := newTestCache(t)
	fetcher := &fetcherStub{}
	r := NewRefresher(c, fetcher, 30*time.Millisecond, zerolog.Nop(), nil)

	_ = r.Handle(&protocol.HistoryUpdated{Envelope: protocol.Envelope{Type: protocol.TypeHistoryUpdated}})
	if !r.Pending() {
		t.Fatal("expected pending refresh")
	}
	r.Close()

	time.Sleep(60 * time.Millisecond)
	if got := fetcher.calls.Load(); got != 0 {
		t.Fatalf("expected no fetch after Close, got %d", got)
	}
}
