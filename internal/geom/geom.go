// Package geom parses the remote store's format-polymorphic geometry
// column into coordinates. Parsing is pure: a value either yields a point
// or it does not, and malformed input is never an error.
package geom

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/openpoi/placecache/internal/core/model"
)

// Kind tags the recognized geometry representations.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindWKT
	KindWKBHex
	KindGeoJSON
	KindLatLngFields
)

// ewkbPointPrefix is the PostGIS extended-WKB header for a little-endian
// SRID 4326 point: byte order, geometry type with SRID flag, then 4326.
const ewkbPointPrefix = "0101000020E6100000"

// Classify decides which decoder a raw geometry value belongs to without
// decoding it. Dispatch is by shape only; a classified value can still
// fail its decoder.
func Classify(raw any) Kind {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		switch {
		case strings.HasPrefix(strings.ToUpper(s), "POINT"):
			return KindWKT
		case strings.HasPrefix(strings.ToUpper(s), ewkbPointPrefix):
			return KindWKBHex
		case strings.HasPrefix(s, "{"):
			return KindGeoJSON
		default:
			return KindUnrecognized
		}
	case map[string]any:
		if t, ok := v["type"].(string); ok && strings.EqualFold(t, "Point") {
			return KindGeoJSON
		}
		if _, _, ok := latLngFieldPair(v); ok {
			return KindLatLngFields
		}
		return KindUnrecognized
	default:
		return KindUnrecognized
	}
}

// Parse extracts a coordinate from a raw geometry value. The second return
// is false when the value has no usable location; callers exclude such
// records from map placement.
func Parse(raw any) (model.LatLng, bool) {
	switch Classify(raw) {
	case KindWKT:
		return parseWKT(raw.(string))
	case KindWKBHex:
		return parseWKBHex(raw.(string))
	case KindGeoJSON:
		return parseGeoJSON(raw)
	case KindLatLngFields:
		return parseLatLngFields(raw.(map[string]any))
	default:
		return model.LatLng{}, false
	}
}

// parseWKT handles "POINT(lng lat)", tolerating whitespace around the
// coordinates and between the keyword and the parenthesis.
func parseWKT(s string) (model.LatLng, bool) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return model.LatLng{}, false
	}
	if !strings.EqualFold(strings.TrimSpace(s[:open]), "POINT") {
		return model.LatLng{}, false
	}
	fields := strings.Fields(s[open+1 : end])
	if len(fields) != 2 {
		return model.LatLng{}, false
	}
	lng, err1 := strconv.ParseFloat(fields[0], 64)
	lat, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return model.LatLng{}, false
	}
	return finite(model.LatLng{Lat: lat, Lng: lng})
}

// parseWKBHex decodes the two little-endian float64 values that follow the
// fixed EWKB point header: longitude first, then latitude.
func parseWKBHex(s string) (model.LatLng, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(ewkbPointPrefix)+32 {
		return model.LatLng{}, false
	}
	body, err := hex.DecodeString(s[len(ewkbPointPrefix) : len(ewkbPointPrefix)+32])
	if err != nil || len(body) != 16 {
		return model.LatLng{}, false
	}
	lng := math.Float64frombits(binary.LittleEndian.Uint64(body[0:8]))
	lat := math.Float64frombits(binary.LittleEndian.Uint64(body[8:16]))
	return finite(model.LatLng{Lat: lat, Lng: lng})
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func parseGeoJSON(raw any) (model.LatLng, bool) {
	var p geoJSONPoint
	switch v := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return model.LatLng{}, false
		}
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return model.LatLng{}, false
		}
		if err := json.Unmarshal(b, &p); err != nil {
			return model.LatLng{}, false
		}
	default:
		return model.LatLng{}, false
	}
	if !strings.EqualFold(p.Type, "Point") || len(p.Coordinates) < 2 {
		return model.LatLng{}, false
	}
	return finite(model.LatLng{Lat: p.Coordinates[1], Lng: p.Coordinates[0]})
}

// Field-name pairs probed in order on bare objects.
var latLngPairs = [][2]string{
	{"lat", "lng"},
	{"lat", "lon"},
	{"latitude", "longitude"},
}

func latLngFieldPair(m map[string]any) (latKey, lngKey string, ok bool) {
	for _, pair := range latLngPairs {
		if _, hasLat := m[pair[0]]; !hasLat {
			continue
		}
		if _, hasLng := m[pair[1]]; !hasLng {
			continue
		}
		return pair[0], pair[1], true
	}
	return "", "", false
}

func parseLatLngFields(m map[string]any) (model.LatLng, bool) {
	latKey, lngKey, ok := latLngFieldPair(m)
	if !ok {
		return model.LatLng{}, false
	}
	lat, ok1 := toFloat(m[latKey])
	lng, ok2 := toFloat(m[lngKey])
	if !ok1 || !ok2 {
		return model.LatLng{}, false
	}
	return finite(model.LatLng{Lat: lat, Lng: lng})
}

// toFloat accepts numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func finite(ll model.LatLng) (model.LatLng, bool) {
	if math.IsNaN(ll.Lat) || math.IsInf(ll.Lat, 0) ||
		math.IsNaN(ll.Lng) || math.IsInf(ll.Lng, 0) {
		return model.LatLng{}, false
	}
	return ll, true
}
