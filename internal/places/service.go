// Package places is the cache orchestrator: the single state machine
// deciding whether the map sees cached, live, or fallback data, and the
// only owner of the published in-memory place list.
package places

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openpoi/placecache/internal/core/model"
	"github.com/openpoi/placecache/internal/core/observability"
	"github.com/openpoi/placecache/internal/store/localstore"
	"github.com/openpoi/placecache/internal/viewport"
)

// Fetcher is the remote side as the orchestrator needs it.
type Fetcher interface {
	FetchPlaces(ctx context.Context) ([]model.Place, error)
	FetchReviewsForPlaces(ctx context.Context, places []model.Place) ([]model.Place, []model.Review)
	FetchPlacesWithinBounds(ctx context.Context, b model.Bounds, zoom float64) ([]model.Place, error)
}

// Snapshot is the published state. The UI always sees a complete triple:
// places, cache provenance, and the last surfaced error.
type Snapshot struct {
	Places   []model.Place
	IsCached bool
	Err      error
	Status   Status
}

type Service struct {
	store         *localstore.Store
	fetcher       Fetcher
	cacheDuration time.Duration
	log           zerolog.Logger

	mu   sync.RWMutex
	snap Snapshot

	// Guards the synchronous fetch-and-store cycle. A flag, not a
	// queue: a suppressed caller observes the outcome through the
	// published snapshot, not through its own return value.
	inFlight atomic.Bool

	bg sync.WaitGroup
}

func NewService(store *localstore.Store, fetcher Fetcher, cacheDuration time.Duration, log zerolog.Logger) *Service {
	return &Service{
		store:         store,
		fetcher:       fetcher,
		cacheDuration: cacheDuration,
		log:           log,
		snap:          Snapshot{Status: StatusIdle},
	}
}

// Snapshot returns the current published state. The place slice is
// shared; callers must not mutate it.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) publish(places []model.Place, isCached bool, err error, status Status) {
	s.mu.Lock()
	s.snap = Snapshot{Places: places, IsCached: isCached, Err: err, Status: status}
	s.mu.Unlock()
}

func (s *Service) setStatus(e Event) Status {
	s.mu.Lock()
	s.snap.Status = Transition(s.snap.Status, e)
	next := s.snap.Status
	s.mu.Unlock()
	return next
}

// Load runs once on startup (and again whenever the store becomes
// ready). On a valid non-empty cache it publishes the cached list
// immediately and refreshes in the background; otherwise it fetches
// synchronously with the stale-cache fallback chain.
func (s *Service) Load(ctx context.Context) {
	s.setStatus(EventLoad)

	if s.store.IsValid(ctx, model.EntryPlaces, s.cacheDuration) {
		cached := s.store.GetPlaces(ctx)
		if len(cached) > 0 {
			observability.IncCacheResult(observability.CacheHit)
			s.publish(cached, true, nil, Transition(StatusLoading, EventCacheHit))
			s.log.Info().Int("places", len(cached)).Msg("serving cached places, refreshing in background")

			s.bg.Add(1)
			go func() {
				defer s.bg.Done()
				s.backgroundRefresh(context.WithoutCancel(ctx))
			}()
			return
		}
	}

	s.loadFresh(ctx)
}

// loadFresh is the miss path: synchronous fetch-and-store, then the
// fallback chain. Stale-but-available beats empty.
func (s *Service) loadFresh(ctx context.Context) {
	s.setStatus(EventFetchStart)
	fresh, ran, err := s.fetchAndStore(ctx)
	if err == nil && ran {
		observability.IncCacheResult(observability.CacheMiss)
		s.publish(fresh, false, nil, Transition(StatusRefreshing, EventFetchOK))
		return
	}
	if !ran {
		// a concurrent cycle owns the outcome; it will publish
		return
	}

	s.setStatus(EventFetchFail)
	fallback := s.store.GetPlaces(ctx)
	if len(fallback) > 0 {
		observability.IncCacheResult(observability.CacheStale)
		s.log.Warn().Err(err).Int("places", len(fallback)).Msg("remote fetch failed, serving stale cache")
		s.publish(fallback, true, nil, Transition(StatusRefreshing, EventFallbackOK))
		return
	}

	observability.IncCacheResult(observability.CacheError)
	s.log.Error().Err(err).Msg("remote fetch failed and cache is empty")
	s.publish([]model.Place{}, false, err, Transition(StatusRefreshing, EventFallbackFail))
}

// backgroundRefresh updates the published list silently. Failures are
// logged and otherwise ignored; the last-good cached list stays visible.
func (s *Service) backgroundRefresh(ctx context.Context) {
	fresh, ran, err := s.fetchAndStore(ctx)
	if !ran {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("background refresh failed, keeping cached places")
		return
	}
	observability.IncCacheResult(observability.CacheRefresh)
	s.publish(fresh, false, nil, StatusIdle)
}

// Refresh always fetches, regardless of cache validity, and never falls
// back to cache: a failure surfaces the error and leaves the previously
// published list in place. Returns whether the refresh succeeded. A call
// suppressed by an in-flight cycle returns false without effect.
func (s *Service) Refresh(ctx context.Context) bool {
	s.setStatus(EventRefreshStart)
	fresh, ran, err := s.fetchAndStore(ctx)
	if !ran {
		return false
	}
	if err != nil {
		observability.IncCacheResult(observability.CacheError)
		s.log.Error().Err(err).Msg("refresh failed")
		s.mu.Lock()
		s.snap.Err = err
		s.snap.Status = Transition(s.snap.Status, EventFallbackFail)
		s.mu.Unlock()
		return false
	}
	observability.IncCacheResult(observability.CacheRefresh)
	s.publish(fresh, false, nil, Transition(StatusRefreshing, EventRefreshDone))
	return true
}

// ClearCache empties the local store.
func (s *Service) ClearCache(ctx context.Context) bool {
	if err := s.store.Clear(ctx); err != nil {
		s.log.Error().Err(err).Msg("cache clear failed")
		return false
	}
	return true
}

// FetchPlacesWithinBounds runs the incremental viewport path: fetch,
// box-filter, zoom-reduce, then merge into the published set without
// overwriting existing ids, pruned to the global cap.
func (s *Service) FetchPlacesWithinBounds(ctx context.Context, ne, sw model.LatLng, zoom float64) error {
	b := model.Bounds{SouthWest: sw, NorthEast: ne}
	incoming, err := s.fetcher.FetchPlacesWithinBounds(ctx, b, zoom)
	if err != nil {
		s.log.Warn().Err(err).Str("bounds", b.String()).Msg("bounds fetch failed")
		return err
	}

	s.mu.Lock()
	merged := viewport.Cap(viewport.Merge(s.snap.Places, incoming), viewport.GlobalCap)
	s.snap.Places = merged
	s.mu.Unlock()

	s.log.Debug().Int("incoming", len(incoming)).Int("published", len(merged)).
		Float64("zoom", zoom).Msg("bounds fetch merged")
	return nil
}

// fetchAndStore is the one synchronous fetch-and-store cycle. The middle
// return reports whether this call ran the cycle; false means another
// cycle was in flight and this call was a no-op.
func (s *Service) fetchAndStore(ctx context.Context) ([]model.Place, bool, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	defer s.inFlight.Store(false)

	fetched, err := s.fetcher.FetchPlaces(ctx)
	if err != nil {
		return nil, true, err
	}
	annotated, reviews := s.fetcher.FetchReviewsForPlaces(ctx, fetched)

	// A failed cache write is treated as if it didn't happen; the next
	// read simply misses.
	if err := s.store.StorePlaces(ctx, annotated, s.cacheDuration); err != nil {
		s.log.Warn().Err(err).Msg("place cache write failed")
	}
	if len(reviews) > 0 {
		if err := s.store.StoreReviews(ctx, reviews, s.cacheDuration); err != nil {
			s.log.Warn().Err(err).Msg("review cache write failed")
		}
	}
	return annotated, true, nil
}

// WaitBackground blocks until outstanding background refreshes finish.
func (s *Service) WaitBackground() { s.bg.Wait() }
