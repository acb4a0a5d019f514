package model

import (
	"testing"
	"time"
)

func TestCacheEntryValid(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := CacheEntry{
		Key:       EntryPlaces,
		Timestamp: ts,
		ExpiresAt: ts.Add(time.Hour),
	}

	cases := []struct {
		name   string
		now    time.Time
		maxAge time.Duration
		want   bool
	}{
		{"fresh", ts.Add(time.Minute), time.Hour, true},
		{"at expiry", ts.Add(time.Hour), 2 * time.Hour, false},
		{"past expiry", ts.Add(2 * time.Hour), 3 * time.Hour, false},
		{"age exceeded before expiry", ts.Add(31 * time.Minute), 30 * time.Minute, false},
		{"zero tolerance", ts.Add(time.Minute), 0, false},
		{"boundary age", ts.Add(30 * time.Minute), 30 * time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := entry.Valid(tc.now, tc.maxAge); got != tc.want {
				t.Fatalf("Valid(%v,%v)=%v want %v", tc.now, tc.maxAge, got, tc.want)
			}
		})
	}
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{
		SouthWest: LatLng{Lat: 37, Lng: -123},
		NorthEast: LatLng{Lat: 38, Lng: -122},
	}
	cases := []struct {
		name string
		ll   LatLng
		want bool
	}{
		{"inside", LatLng{Lat: 37.5, Lng: -122.5}, true},
		{"on corner", LatLng{Lat: 37, Lng: -123}, true},
		{"north of box", LatLng{Lat: 39, Lng: -122.5}, false},
		{"east of box", LatLng{Lat: 37.5, Lng: -121}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.Contains(tc.ll); got != tc.want {
				t.Fatalf("Contains(%v)=%v want %v", tc.ll, got, tc.want)
			}
		})
	}
}

func TestDecodeMetadata(t *testing.T) {
	p := Place{Metadata: []byte(`{"address":"1 Main St","neighborhood":"Mission"}`)}
	meta := p.DecodeMetadata()
	if meta.Address != "1 Main St" || meta.Neighborhood != "Mission" {
		t.Fatalf("got %+v", meta)
	}

	if got := (Place{}).DecodeMetadata(); got != (PlaceMetadata{}) {
		t.Fatalf("absent metadata must decode to zero value, got %+v", got)
	}
	if got := (Place{Metadata: []byte("garbage")}).DecodeMetadata(); got != (PlaceMetadata{}) {
		t.Fatalf("broken metadata must decode to zero value, got %+v", got)
	}
}

func TestHasReviews(t *testing.T) {
	if (Place{}).HasReviews() {
		t.Fatal("no reviews")
	}
	if (Place{Reviews: []Review{}}).HasReviews() {
		t.Fatal("empty list is not reviewed")
	}
	if !(Place{Reviews: []Review{{ID: "r1"}}}).HasReviews() {
		t.Fatal("one review is reviewed")
	}
}
