package remote

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openpoi/placecache/internal/core/model"
	"github.com/openpoi/placecache/internal/geom"
	"github.com/openpoi/placecache/internal/logger"
	"github.com/openpoi/placecache/internal/viewport"
)

// Columns projected from the remote place collection.
var placeColumns = []string{"id", "name", "location", "metadata", "website", "phone"}

// DefaultRating is attached to reviews whose rating is missing or not a
// number.
const DefaultRating = 5

// CachedReviews is the slice of the local store the fetcher reads when
// the remote review query comes back empty.
type CachedReviews interface {
	GetReviews(ctx context.Context, placeIDs ...string) []model.Review
}

type Fetcher struct {
	src         RowSource
	cached      CachedReviews
	schema      ReviewSchema
	placesTable string
	rowLimit    int
	geo         *geom.Cache
	log         zerolog.Logger
}

func NewFetcher(src RowSource, cached CachedReviews, schema ReviewSchema, placesTable string, rowLimit int, log zerolog.Logger) *Fetcher {
	gc, err := geom.NewCache(0)
	if err != nil {
		gc = nil
	}
	if placesTable == "" {
		placesTable = "places"
	}
	return &Fetcher{
		src:         src,
		cached:      cached,
		schema:      schema,
		placesTable: placesTable,
		rowLimit:    rowLimit,
		geo:         gc,
		log:         log,
	}
}

// FetchPlaces queries the remote place collection. Zero rows is an
// error, not an empty success: the product has no meaningful "no places"
// state, so an empty response means something upstream is wrong.
func (f *Fetcher) FetchPlaces(ctx context.Context) ([]model.Place, error) {
	rows, err := f.src.Select(ctx, f.placesTable, placeColumns, f.rowLimit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &RowError{Message: "place query returned no rows"}
	}
	out := make([]model.Place, 0, len(rows))
	for _, row := range rows {
		out = append(out, placeFromRow(row))
	}
	return out, nil
}

// FetchReviewsForPlaces fetches the whole remote review collection in
// one round trip (no server-side filtering), normalizes and groups it,
// and attaches per-place review lists. Places with no match get an
// explicit empty list. On a remote error the input is returned
// unchanged; reviews are best-effort. On zero rows the previously cached
// reviews are grouped and attached instead.
//
// The second return value is the flat normalized review set, for the
// caller to persist; it is nil when the remote path degraded.
func (f *Fetcher) FetchReviewsForPlaces(ctx context.Context, places []model.Place) ([]model.Place, []model.Review) {
	table, rows, err := f.schema.ResolveRows(ctx, f.src, f.rowLimit)
	if err != nil {
		f.log.Warn().Err(err).Msg("review fetch degraded, keeping places without reviews")
		return places, nil
	}

	joinField := f.schema.ResolveJoinField(rows)

	if len(rows) == 0 {
		f.log.Debug().Str("table", table).Msg("no remote reviews, using cached set")
		cached := f.cachedReviews(ctx)
		return attachReviews(places, cached), nil
	}

	reviews := make([]model.Review, 0, len(rows))
	for _, row := range rows {
		reviews = append(reviews, NormalizeReview(row, joinField))
	}
	return attachReviews(places, reviews), reviews
}

func (f *Fetcher) cachedReviews(ctx context.Context) []model.Review {
	if f.cached == nil {
		return nil
	}
	return f.cached.GetReviews(ctx)
}

// FetchPlacesWithinBounds queries the remote place collection unfiltered,
// parses geometry locally, keeps rows inside the box, applies the
// zoom-tiered reduction, and attaches reviews to the surviving set. The
// caller merges the result into its in-memory list.
func (f *Fetcher) FetchPlacesWithinBounds(ctx context.Context, b model.Bounds, zoom float64) ([]model.Place, error) {
	rows, err := f.src.Select(ctx, f.placesTable, placeColumns, f.rowLimit)
	if err != nil {
		return nil, err
	}
	all := make([]model.Place, 0, len(rows))
	for _, row := range rows {
		all = append(all, placeFromRow(row))
	}

	inBox := viewport.FilterBounds(all, b, f.geo.Parse)
	reduced := viewport.ReduceForZoom(inBox, zoom)
	annotated, _ := f.FetchReviewsForPlaces(ctx, reduced)
	return annotated, nil
}

// attachReviews groups reviews by owning place id and attaches them.
// Every place ends up with a non-nil list.
func attachReviews(places []model.Place, reviews []model.Review) []model.Place {
	grouped := make(map[string][]model.Review, len(places))
	for _, r := range reviews {
		grouped[r.PlaceID] = append(grouped[r.PlaceID], r)
	}
	out := make([]model.Place, len(places))
	for i, p := range places {
		rs := grouped[p.ID]
		if rs == nil {
			rs = []model.Review{}
		}
		p.Reviews = rs
		out[i] = p
	}
	return out
}

// NormalizeReview converts one raw review row into a Review, defaulting
// every field the remote side may omit: a generated id, rating 5,
// creation and update instants of now, and an empty owning place id when
// the join field is unresolvable.
func NormalizeReview(raw Row, placeIDField string) model.Review {
	now := time.Now().UTC().Format(time.RFC3339)

	id := raw.String("id")
	if id == "" {
		id = logger.NewID()
	}

	created := raw.String("created_at")
	if created == "" {
		created = now
	}
	updated := raw.String("updated_at")
	if updated == "" {
		updated = now
	}

	author := raw.String("author_id")
	if author == "" {
		author = raw.String("user_id")
	}

	return model.Review{
		ID:        id,
		PlaceID:   raw.String(placeIDField),
		Rating:    coerceRating(raw["rating"]),
		CreatedAt: created,
		UpdatedAt: updated,
		Comment:   raw.String("comment"),
		AuthorID:  author,
	}
}

func coerceRating(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return DefaultRating
}

func placeFromRow(row Row) model.Place {
	p := model.Place{
		ID:       row.String("id"),
		Name:     row.String("name"),
		Location: row.String("location"),
		Website:  row.String("website"),
		Phone:    row.String("phone"),
	}
	if meta := metadataBlob(row["metadata"]); len(meta) > 0 {
		p.Metadata = meta
	}
	return p
}

// metadataBlob keeps the serialized metadata object as-is when it is
// already JSON, and re-encodes decoded objects.
func metadataBlob(v any) json.RawMessage {
	switch m := v.(type) {
	case string:
		if json.Valid([]byte(m)) {
			return json.RawMessage(m)
		}
	case []byte:
		if json.Valid(m) {
			return json.RawMessage(m)
		}
	case map[string]any:
		if b, err := json.Marshal(m); err == nil {
			return b
		}
	}
	return nil
}
