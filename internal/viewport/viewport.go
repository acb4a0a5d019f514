// Package viewport holds the pure selection rules for viewport-scoped
// fetches: bounding-box filtering, zoom-tiered reduction, and merge/cap
// behavior for the in-memory place set.
package viewport

import (
	"github.com/openpoi/placecache/internal/core/model"
)

// UI-tuning constants. The thresholds are behavioral contract; do not
// change them without product input.
const (
	// Below this zoom only reviewed places are shown.
	ReviewedOnlyZoom = 10
	// Between ReviewedOnlyZoom and FullDetailZoom the set is trimmed to
	// MidZoomCap once it exceeds it.
	FullDetailZoom = 14
	MidZoomCap     = 30
	// Upper bound on the merged in-memory set.
	GlobalCap = 100
)

// ParseFunc resolves a raw geometry value to a coordinate.
type ParseFunc func(raw any) (model.LatLng, bool)

// FilterBounds keeps places whose parsed location falls inside b. Places
// without a usable location are excluded from map placement.
func FilterBounds(places []model.Place, b model.Bounds, parse ParseFunc) []model.Place {
	out := make([]model.Place, 0, len(places))
	for _, p := range places {
		ll, ok := parse(p.Location)
		if !ok {
			continue
		}
		if b.Contains(ll) {
			out = append(out, p)
		}
	}
	return out
}

// ReduceForZoom applies the zoom-tiered reduction:
//
//	zoom < 10               keep only reviewed places
//	10 <= zoom < 14, n > 30 all reviewed plus unreviewed up to 30 total
//	zoom >= 14              no reduction
func ReduceForZoom(places []model.Place, zoom float64) []model.Place {
	switch {
	case zoom < ReviewedOnlyZoom:
		out := make([]model.Place, 0, len(places))
		for _, p := range places {
			if p.HasReviews() {
				out = append(out, p)
			}
		}
		return out
	case zoom < FullDetailZoom && len(places) > MidZoomCap:
		reviewed := make([]model.Place, 0, len(places))
		unreviewed := make([]model.Place, 0, len(places))
		for _, p := range places {
			if p.HasReviews() {
				reviewed = append(reviewed, p)
			} else {
				unreviewed = append(unreviewed, p)
			}
		}
		out := reviewed
		for _, p := range unreviewed {
			if len(out) >= MidZoomCap {
				break
			}
			out = append(out, p)
		}
		return out
	default:
		return places
	}
}

// Merge appends genuinely new places to existing. Ids already present
// are never overwritten.
func Merge(existing, incoming []model.Place) []model.Place {
	seen := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		seen[p.ID] = struct{}{}
	}
	out := existing
	for _, p := range incoming {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Cap prunes the set down to limit, preferring reviewed places and
// truncating places without reviews first. Relative order within each
// class is preserved.
func Cap(places []model.Place, limit int) []model.Place {
	if limit <= 0 || len(places) <= limit {
		return places
	}
	reviewed := make([]model.Place, 0, len(places))
	unreviewed := make([]model.Place, 0, len(places))
	for _, p := range places {
		if p.HasReviews() {
			reviewed = append(reviewed, p)
		} else {
			unreviewed = append(unreviewed, p)
		}
	}
	if len(reviewed) >= limit {
		return reviewed[:limit]
	}
	out := reviewed
	for _, p := range unreviewed {
		if len(out) >= limit {
			break
		}
		out = append(out, p)
	}
	return out
}
