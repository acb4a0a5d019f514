// Package localstore persists the three cached collections (places,
// reviews, cache timestamps) in a local Redis database. It is the only
// owner of persisted state; callers treat it as a cache, never as the
// source of truth.
//
// Read paths fail soft: on any storage error they resolve to an empty
// result so the UI path is never blocked on the cache. Only Initialize
// surfaces an error, and only write paths report failures to the caller.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openpoi/placecache/internal/core/model"
	"github.com/openpoi/placecache/internal/store/redisstore"
)

// ErrUnsupportedEnvironment is returned by Initialize when no local
// storage backend is reachable. Fatal for caching, not for the app.
var ErrUnsupportedEnvironment = errors.New("local storage unavailable")

// ErrStorageWrite marks a failed local persistence operation. Callers
// must treat cache state as unknown and prefer re-fetching.
var ErrStorageWrite = errors.New("local store write failed")

// Collection key prefixes.
const (
	placeKeyPrefix   = "place:"
	reviewKeyPrefix  = "review:"
	tsKeyPrefix      = "ts:"
	reviewIndexKey   = "reviews:place:" // set of review ids per place id
	placeKeyPattern  = placeKeyPrefix + "*"
	reviewKeyPattern = reviewKeyPrefix + "*"
	tsKeyPattern     = tsKeyPrefix + "*"
	indexKeyPattern  = reviewIndexKey + "*"
)

type Store struct {
	cli     *redisstore.Client
	timeout time.Duration
	ready   atomic.Bool
	log     zerolog.Logger
	now     func() time.Time
}

func New(cli *redisstore.Client, opTimeout time.Duration, log zerolog.Logger) *Store {
	return &Store{
		cli:     cli,
		timeout: opTimeout,
		log:     log,
		now:     time.Now,
	}
}

// Initialize verifies the backend is reachable and flips the readiness
// flag. Every other operation is a no-op until this succeeds.
func (s *Store) Initialize(ctx context.Context) error {
	if s.cli == nil {
		return ErrUnsupportedEnvironment
	}
	if err := s.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	}
	s.ready.Store(true)
	return nil
}

func (s *Store) Ready() bool { return s.ready.Load() }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// SetTimestamp stamps a cache entry for key with expiry now+duration and
// returns the write instant.
func (s *Store) SetTimestamp(ctx context.Context, key string, duration time.Duration) (time.Time, error) {
	if !s.Ready() {
		return time.Time{}, nil
	}
	now := s.now()
	entry := model.CacheEntry{
		Key:       key,
		Timestamp: now,
		ExpiresAt: now.Add(duration),
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: encode timestamp %q: %v", ErrStorageWrite, key, err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.cli.Set(ctx, tsKeyPrefix+key, b); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return now, nil
}

// GetTimestamp returns the creation instant of a cache entry, or false
// when no entry exists (or the store is unavailable).
func (s *Store) GetTimestamp(ctx context.Context, key string) (time.Time, bool) {
	entry, ok := s.readEntry(ctx, key)
	if !ok {
		return time.Time{}, false
	}
	return entry.Timestamp, true
}

// IsValid evaluates the freshness invariant for a named cache entry. An
// absent entry is invalid. maxAge is supplied by the caller and checked
// independently of the stored expiry.
func (s *Store) IsValid(ctx context.Context, key string, maxAge time.Duration) bool {
	entry, ok := s.readEntry(ctx, key)
	if !ok {
		return false
	}
	return entry.Valid(s.now(), maxAge)
}

func (s *Store) readEntry(ctx context.Context, key string) (model.CacheEntry, bool) {
	if !s.Ready() {
		return model.CacheEntry{}, false
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	b, found, err := s.cli.Get(ctx, tsKeyPrefix+key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("timestamp read failed")
		return model.CacheEntry{}, false
	}
	if !found {
		return model.CacheEntry{}, false
	}
	var entry model.CacheEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("timestamp decode failed")
		return model.CacheEntry{}, false
	}
	return entry, true
}

// DropTimestamp removes a cache entry so the next validity check misses.
// Used by the invalidation consumer; the cached rows stay available for
// stale fallback.
func (s *Store) DropTimestamp(ctx context.Context, key string) error {
	if !s.Ready() {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.cli.Del(ctx, tsKeyPrefix+key); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

// StorePlaces replaces the whole place collection: clear, then insert
// each record one at a time, then stamp the "places" entry. A failed
// insert rejects the operation and may leave the collection partially
// populated; callers must treat that as cache state unknown.
func (s *Store) StorePlaces(ctx context.Context, places []model.Place, cacheDuration time.Duration) error {
	if !s.Ready() {
		return nil
	}
	if err := s.cli.DelPatterns(ctx, placeKeyPattern); err != nil {
		return fmt.Errorf("%w: clear places: %v", ErrStorageWrite, err)
	}
	for _, p := range places {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("%w: encode place %q: %v", ErrStorageWrite, p.ID, err)
		}
		wctx, cancel := s.withTimeout(ctx)
		err = s.cli.Set(wctx, placeKeyPrefix+p.ID, b)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: insert place %q: %v", ErrStorageWrite, p.ID, err)
		}
	}
	if _, err := s.SetTimestamp(ctx, model.EntryPlaces, cacheDuration); err != nil {
		return err
	}
	return nil
}

// StoreReviews replaces the review collection and its by-place index,
// with the same clear-then-insert and partial-failure semantics as
// StorePlaces.
func (s *Store) StoreReviews(ctx context.Context, reviews []model.Review, cacheDuration time.Duration) error {
	if !s.Ready() {
		return nil
	}
	if err := s.cli.DelPatterns(ctx, reviewKeyPattern, indexKeyPattern); err != nil {
		return fmt.Errorf("%w: clear reviews: %v", ErrStorageWrite, err)
	}
	for _, r := range reviews {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("%w: encode review %q: %v", ErrStorageWrite, r.ID, err)
		}
		wctx, cancel := s.withTimeout(ctx)
		err = s.cli.Set(wctx, reviewKeyPrefix+r.ID, b)
		if err == nil && r.PlaceID != "" {
			err = s.cli.SAdd(wctx, reviewIndexKey+r.PlaceID, r.ID)
		}
		cancel()
		if err != nil {
			return fmt.Errorf("%w: insert review %q: %v", ErrStorageWrite, r.ID, err)
		}
	}
	if _, err := s.SetTimestamp(ctx, model.EntryReviews, cacheDuration); err != nil {
		return err
	}
	return nil
}

// GetPlaces returns every cached place, or an empty list on any error.
func (s *Store) GetPlaces(ctx context.Context) []model.Place {
	if !s.Ready() {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	keys, err := s.cli.ScanKeys(ctx, placeKeyPattern)
	if err != nil {
		s.log.Warn().Err(err).Msg("place scan failed")
		return nil
	}
	raw, err := s.cli.MGet(ctx, keys)
	if err != nil {
		s.log.Warn().Err(err).Msg("place read failed")
		return nil
	}
	out := make([]model.Place, 0, len(raw))
	for _, b := range raw {
		var p model.Place
		if err := json.Unmarshal(b, &p); err != nil {
			s.log.Warn().Err(err).Msg("place decode failed, skipping record")
			continue
		}
		out = append(out, p)
	}
	return out
}

// GetReviews returns cached reviews: the full collection when no place
// ids are given, otherwise one indexed lookup per id concatenated in
// order. Duplicate input ids produce duplicate output.
func (s *Store) GetReviews(ctx context.Context, placeIDs ...string) []model.Review {
	if !s.Ready() {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if len(placeIDs) == 0 {
		keys, err := s.cli.ScanKeys(ctx, reviewKeyPattern)
		if err != nil {
			s.log.Warn().Err(err).Msg("review scan failed")
			return nil
		}
		return s.readReviews(ctx, keys)
	}

	var out []model.Review
	for _, pid := range placeIDs {
		ids, err := s.cli.SMembers(ctx, reviewIndexKey+pid)
		if err != nil {
			s.log.Warn().Err(err).Str("place_id", pid).Msg("review index lookup failed")
			continue
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = reviewKeyPrefix + id
		}
		out = append(out, s.readReviews(ctx, keys)...)
	}
	return out
}

func (s *Store) readReviews(ctx context.Context, keys []string) []model.Review {
	raw, err := s.cli.MGet(ctx, keys)
	if err != nil {
		s.log.Warn().Err(err).Msg("review read failed")
		return nil
	}
	out := make([]model.Review, 0, len(raw))
	for _, k := range keys {
		b, ok := raw[k]
		if !ok {
			continue
		}
		var r model.Review
		if err := json.Unmarshal(b, &r); err != nil {
			s.log.Warn().Err(err).Msg("review decode failed, skipping record")
			continue
		}
		out = append(out, r)
	}
	return out
}

// Clear empties all three collections in one pipelined operation. It
// does not reset readiness.
func (s *Store) Clear(ctx context.Context) error {
	if !s.Ready() {
		return nil
	}
	if err := s.cli.DelPatterns(ctx, placeKeyPattern, reviewKeyPattern, tsKeyPattern, indexKeyPattern); err != nil {
		return fmt.Errorf("%w: clear: %v", ErrStorageWrite, err)
	}
	return nil
}
