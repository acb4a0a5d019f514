package places

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/openpoi/placecache/internal/core/model"
	"github.com/openpoi/placecache/internal/store/localstore"
	"github.com/openpoi/placecache/internal/store/redisstore"
)

type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	places    []model.Place
	err       error
	bounds    []model.Place
	boundsErr error

	started chan struct{} // closed when the next fetch begins
	release chan struct{} // when set, the fetch blocks until closed
}

func (f *fakeFetcher) FetchPlaces(context.Context) ([]model.Place, error) {
	f.mu.Lock()
	f.calls++
	started := f.started
	f.started = nil
	release := f.release
	places, err := f.places, f.err
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return places, err
}

func (f *fakeFetcher) FetchReviewsForPlaces(_ context.Context, places []model.Place) ([]model.Place, []model.Review) {
	out := make([]model.Place, len(places))
	for i, p := range places {
		if p.Reviews == nil {
			p.Reviews = []model.Review{}
		}
		out[i] = p
	}
	return out, nil
}

func (f *fakeFetcher) FetchPlacesWithinBounds(context.Context, model.Bounds, float64) ([]model.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bounds, f.boundsErr
}

func (f *fakeFetcher) set(places []model.Place, err error) {
	f.mu.Lock()
	f.places, f.err = places, err
	f.mu.Unlock()
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	s := localstore.New(cli, time.Second, zerolog.Nop())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func placeSet(n int, prefix string) []model.Place {
	out := make([]model.Place, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Place{ID: prefix + string(rune('a'+i))})
	}
	return out
}

func TestLoad_CacheHitPublishesBeforeRefreshResolves(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seed := placeSet(3, "cached-")
	if err := store.StorePlaces(ctx, seed, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	release := make(chan struct{})
	fetcher := &fakeFetcher{places: placeSet(4, "fresh-"), release: release}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())

	svc.Load(ctx)

	// cached data is visible while the background fetch is still blocked
	snap := svc.Snapshot()
	if !snap.IsCached || len(snap.Places) != 3 || snap.Err != nil {
		t.Fatalf("snapshot=%+v want 3 cached places", snap)
	}
	if snap.Status != StatusIdle {
		t.Fatalf("status=%v want idle on cache hit", snap.Status)
	}

	close(release)
	svc.WaitBackground()

	snap = svc.Snapshot()
	if snap.IsCached || len(snap.Places) != 4 {
		t.Fatalf("snapshot=%+v want 4 fresh places after background refresh", snap)
	}
}

func TestLoad_MissFetchesSynchronously(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fetcher := &fakeFetcher{places: placeSet(2, "p-")}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())

	svc.Load(ctx)

	snap := svc.Snapshot()
	if snap.IsCached || len(snap.Places) != 2 || snap.Err != nil {
		t.Fatalf("snapshot=%+v want 2 fresh places", snap)
	}
	if fetcher.fetchCount() != 1 {
		t.Fatalf("fetches=%d want 1", fetcher.fetchCount())
	}
	// the fetched set must have been written back
	if got := store.GetPlaces(ctx); len(got) != 2 {
		t.Fatalf("store has %d places want 2", len(got))
	}
}

func TestLoad_StaleCacheInvalidTriggersFetch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.StorePlaces(ctx, placeSet(3, "stale-"), -time.Minute); err != nil {
		t.Fatalf("seed: %v", err)
	}
	fetcher := &fakeFetcher{places: placeSet(1, "fresh-")}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())

	svc.Load(ctx)

	snap := svc.Snapshot()
	if snap.IsCached || len(snap.Places) != 1 {
		t.Fatalf("snapshot=%+v want the fresh set", snap)
	}
}

func TestLoad_FallsBackToStaleCacheOnFetchFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.StorePlaces(ctx, placeSet(3, "stale-"), -time.Minute); err != nil {
		t.Fatalf("seed: %v", err)
	}
	fetcher := &fakeFetcher{err: errors.New("remote down")}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())

	svc.Load(ctx)

	snap := svc.Snapshot()
	if !snap.IsCached || len(snap.Places) != 3 {
		t.Fatalf("snapshot=%+v want 3 stale cached places", snap)
	}
	if snap.Err != nil {
		t.Fatalf("err=%v; a served fallback is not an error state", snap.Err)
	}
	if snap.Status != StatusIdle {
		t.Fatalf("status=%v want idle", snap.Status)
	}
}

func TestLoad_EmptyCacheAndFetchFailureIsError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fetcher := &fakeFetcher{err: errors.New("remote down")}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())

	svc.Load(ctx)

	snap := svc.Snapshot()
	if snap.Err == nil {
		t.Fatal("error must surface when there is nothing to fall back to")
	}
	if snap.Places == nil || len(snap.Places) != 0 {
		t.Fatalf("places=%v want explicit empty list", snap.Places)
	}
	if snap.Status != StatusError {
		t.Fatalf("status=%v want error", snap.Status)
	}
}

func TestRefresh_FailureKeepsPublishedPlaces(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fetcher := &fakeFetcher{places: placeSet(2, "p-")}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())
	svc.Load(ctx)

	fetcher.set(nil, errors.New("remote down"))
	if svc.Refresh(ctx) {
		t.Fatal("failed refresh must report false")
	}

	snap := svc.Snapshot()
	if len(snap.Places) != 2 {
		t.Fatalf("places=%d want previous set kept", len(snap.Places))
	}
	if snap.Err == nil {
		t.Fatal("refresh failure must surface in the snapshot")
	}
}

func TestRefresh_AlwaysFetchesDespiteValidCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fetcher := &fakeFetcher{places: placeSet(2, "p-")}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())
	svc.Load(ctx)
	before := fetcher.fetchCount()

	if !svc.Refresh(ctx) {
		t.Fatal("refresh should succeed")
	}
	if fetcher.fetchCount() != before+1 {
		t.Fatalf("fetches=%d want %d; refresh must bypass cache validity", fetcher.fetchCount(), before+1)
	}
	snap := svc.Snapshot()
	if snap.IsCached || snap.Err != nil {
		t.Fatalf("snapshot=%+v want fresh data", snap)
	}
}

func TestRefresh_SuppressedWhileInFlight(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := &fakeFetcher{places: placeSet(1, "p-"), started: started, release: release}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())

	first := make(chan bool, 1)
	go func() { first <- svc.Refresh(ctx) }()
	<-started

	if svc.Refresh(ctx) {
		t.Fatal("concurrent refresh must be suppressed")
	}
	close(release)

	if !<-first {
		t.Fatal("the owning refresh should succeed")
	}
	if fetcher.fetchCount() != 1 {
		t.Fatalf("fetches=%d want 1", fetcher.fetchCount())
	}
}

func TestFetchPlacesWithinBounds_MergesWithoutOverwriting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fetcher := &fakeFetcher{places: []model.Place{{ID: "a", Name: "original"}}}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())
	svc.Load(ctx)

	fetcher.mu.Lock()
	fetcher.bounds = []model.Place{{ID: "a", Name: "replacement"}, {ID: "b", Name: "new"}}
	fetcher.mu.Unlock()

	ne := model.LatLng{Lat: 38, Lng: -122}
	sw := model.LatLng{Lat: 37, Lng: -123}
	if err := svc.FetchPlacesWithinBounds(ctx, ne, sw, 15); err != nil {
		t.Fatalf("FetchPlacesWithinBounds: %v", err)
	}

	snap := svc.Snapshot()
	if len(snap.Places) != 2 {
		t.Fatalf("places=%d want 2", len(snap.Places))
	}
	if snap.Places[0].ID != "a" || snap.Places[0].Name != "original" {
		t.Fatalf("existing place overwritten: %+v", snap.Places[0])
	}
	if snap.Places[1].ID != "b" {
		t.Fatalf("incoming place not appended: %+v", snap.Places[1])
	}
}

func TestFetchPlacesWithinBounds_ErrorLeavesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fetcher := &fakeFetcher{places: placeSet(2, "p-"), boundsErr: errors.New("remote down")}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())
	svc.Load(ctx)

	ne := model.LatLng{Lat: 38, Lng: -122}
	sw := model.LatLng{Lat: 37, Lng: -123}
	if err := svc.FetchPlacesWithinBounds(ctx, ne, sw, 15); err == nil {
		t.Fatal("bounds error must propagate")
	}
	if snap := svc.Snapshot(); len(snap.Places) != 2 {
		t.Fatalf("places=%d want previous set untouched", len(snap.Places))
	}
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fetcher := &fakeFetcher{places: placeSet(2, "p-")}
	svc := NewService(store, fetcher, time.Hour, zerolog.Nop())
	svc.Load(ctx)

	if !svc.ClearCache(ctx) {
		t.Fatal("ClearCache failed")
	}
	if got := store.GetPlaces(ctx); len(got) != 0 {
		t.Fatalf("store has %d places after clear", len(got))
	}
	// the published snapshot is untouched; only the persisted cache goes
	if snap := svc.Snapshot(); len(snap.Places) != 2 {
		t.Fatalf("snapshot=%+v want published set kept", snap)
	}
}
