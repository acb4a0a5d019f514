// Package invalidation defines the cache invalidation event published by
// remote writers. Consuming an event expires the named cache entry so
// the next load misses and refetches; cached rows stay available for
// stale fallback.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/openpoi/placecache/internal/core/model"
)

type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Entry   string    `json:"entry"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	switch strings.TrimSpace(e.Entry) {
	case model.EntryPlaces, model.EntryReviews:
	default:
		return fmt.Errorf("entry must be %q or %q", model.EntryPlaces, model.EntryReviews)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
