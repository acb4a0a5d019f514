package api

import (
	"fmt"

	"github.com/openpoi/placecache/internal/core/model"
	"github.com/openpoi/placecache/internal/geom"
)

// Annotation is what the map rendering side consumes: one point with a
// title and a human-readable subtitle.
type Annotation struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Subtitle   string       `json:"subtitle"`
	Coordinate model.LatLng `json:"coordinate"`
	Reviews    int          `json:"reviews"`
}

// BuildAnnotations converts places into map annotations. Places whose
// geometry does not parse are excluded from placement, not errored.
func BuildAnnotations(places []model.Place) []Annotation {
	out := make([]Annotation, 0, len(places))
	for _, p := range places {
		ll, ok := geom.Parse(p.Location)
		if !ok {
			continue
		}
		out = append(out, Annotation{
			ID:         p.ID,
			Title:      p.Name,
			Subtitle:   Subtitle(p),
			Coordinate: ll,
			Reviews:    len(p.Reviews),
		})
	}
	return out
}

// Subtitle combines the average rating (one decimal, ★ prefix) with the
// address or phone. The rating leads when reviews exist.
func Subtitle(p model.Place) string {
	detail := p.DecodeMetadata().Address
	if detail == "" {
		detail = p.Phone
	}
	if !p.HasReviews() {
		return detail
	}
	rating := fmt.Sprintf("★%.1f", AverageRating(p.Reviews))
	if detail == "" {
		return rating
	}
	return rating + " · " + detail
}

func AverageRating(reviews []model.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum float64
	for _, r := range reviews {
		sum += r.Rating
	}
	return sum / float64(len(reviews))
}
