package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sjawhar/ghost-wispr-live/internal/api"
	"github.com/sjawhar/ghost-wispr-live/internal/observability"
	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
	"github.com/sjawhar/ghost-wispr-live/internal/refresh"
)

const (
	fetchPageSize = 200
	fetchTimeout  = 10 * time.Second
)

// Fetcher is the part of api.Client the refresher needs.
type Fetcher interface {
	History(ctx context.Context, q api.HistoryQuery) (api.HistoryPage, error)
}

// Refresher reloads the cache at most once per debounce window when the
// server announces history changes.
type Refresher struct {
	cache    *Cache
	fetcher  Fetcher
	log      zerolog.Logger
	metrics  *observability.Metrics
	debounce *refresh.Debouncer
	handle   func(protocol.Message) error

	mu        sync.Mutex
	onRefresh func(int)
}

func NewRefresher(cache *Cache, fetcher Fetcher, window time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *Refresher {
	r := &Refresher{cache: cache, fetcher: fetcher, log: logger, metrics: metrics}
	r.debounce = refresh.NewDebouncer(window, func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		if err := r.Refresh(ctx); err != nil {
			r.log.Warn().Err(err).Msg("history refresh failed")
		}
	})
	r.handle = r.debounce.Handler(protocol.TypeHistoryUpdated)
	return r
}

// Handle is a hub handler. History announcements are not session fenced.
func (r *Refresher) Handle(msg protocol.Message) error {
	return r.handle(msg)
}

// OnRefresh is called with the entry count after each successful reload.
func (r *Refresher) OnRefresh(callback func(int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRefresh = callback
}

// Refresh reloads the cache now.
func (r *Refresher) Refresh(ctx context.Context) error {
	var entries []Entry
	for page := 1; ; page++ {
		res, err := r.fetcher.History(ctx, api.HistoryQuery{Page: page, PageSize: fetchPageSize})
		if err != nil {
			return fmt.Errorf("fetch history page %d: %w", page, err)
		}
		entries = append(entries, FromAPI(res.Items)...)
		if len(res.Items) < fetchPageSize || len(entries) >= res.Total {
			break
		}
	}

	if err := r.cache.Replace(ctx, entries); err != nil {
		return err
	}
	r.metrics.IncRefresh("history")
	r.log.Debug().Int("entries", len(entries)).Msg("history mirror refreshed")

	r.mu.Lock()
	callback := r.onRefresh
	r.mu.Unlock()
	if callback != nil {
		callback(len(entries))
	}
	return nil
}

func (r *Refresher) Pending() bool {
	return r.debounce.Pending()
}

// Close cancels any armed refresh without running it.
func (r *Refresher) Close() {
	r.debounce.Stop()
}
