// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is the map viewport rectangle, south-west to north-east.
type Bounds struct {
	SouthWest LatLng
	NorthEast LatLng
}

// Contains reports whether p falls inside the rectangle, edges included.
func (b Bounds) Contains(p LatLng) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

func (b Bounds) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
		b.SouthWest.Lng, b.SouthWest.Lat, b.NorthEast.Lng, b.NorthEast.Lat)
}

// Place is a point-of-interest row mirrored from the remote store. The
// remote side owns it; this service only reads, caches and annotates.
type Place struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Location string          `json:"location"` // raw geometry value, format-polymorphic
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Website  string          `json:"website,omitempty"`
	Phone    string          `json:"phone,omitempty"`

	// Attached by the fetcher after grouping; never nil on a place that
	// went through attachment.
	Reviews []Review `json:"reviews,omitempty"`
}

// HasReviews reports whether at least one review is attached.
func (p Place) HasReviews() bool { return len(p.Reviews) > 0 }

// PlaceMetadata carries the blob fields the annotation layer cares about.
// Anything else in the blob is preserved on the Place but ignored here.
type PlaceMetadata struct {
	Address      string `json:"address,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
}

// DecodeMetadata parses the place metadata blob. A missing or malformed
// blob yields the zero value, not an error; metadata is best-effort.
func (p Place) DecodeMetadata() PlaceMetadata {
	var m PlaceMetadata
	if len(p.Metadata) == 0 {
		return m
	}
	_ = json.Unmarshal(p.Metadata, &m)
	return m
}

// Review is a rating record owned by exactly one place.
type Review struct {
	ID        string  `json:"id"`
	PlaceID   string  `json:"place_id"`
	Rating    float64 `json:"rating"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	Comment   string  `json:"comment,omitempty"`
	AuthorID  string  `json:"author_id,omitempty"`
}

// CacheEntry is a named freshness claim over a persisted collection.
type CacheEntry struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid evaluates the freshness invariant at instant now. Both conditions
// are checked even though the write path derives ExpiresAt from Timestamp;
// callers may pass a different maxAge at read time than was used to write.
func (e CacheEntry) Valid(now time.Time, maxAge time.Duration) bool {
	return now.Before(e.ExpiresAt) && now.Sub(e.Timestamp) < maxAge
}

// Cache entry names used by the store and the orchestrator.
const (
	EntryPlaces  = "places"
	EntryReviews = "reviews"
)
