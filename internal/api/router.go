// Package api exposes the orchestrator's published state to the map
// client over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openpoi/placecache/internal/core/config"
	"github.com/openpoi/placecache/internal/core/health"
	"github.com/openpoi/placecache/internal/core/middleware"
	"github.com/openpoi/placecache/internal/core/model"
	"github.com/openpoi/placecache/internal/core/observability"
	"github.com/openpoi/placecache/internal/places"
)

type Handler struct {
	svc    *places.Service
	logger *slog.Logger
}

func NewHandler(svc *places.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Router wires the API surface. The bounds endpoint carries its own
// rate limit on top of the shared middlewares.
func Router(cfg config.Config, logger *slog.Logger, h *Handler, ready health.ReadinessReporter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/places", h.GetPlaces)
	r.Post("/refresh", h.Refresh)
	r.Delete("/cache", h.ClearCache)

	r.Group(func(g chi.Router) {
		g.Use(middleware.RateLimit(cfg.BoundsRatePerSec, cfg.BoundsBurst))
		g.Get("/places/within", h.PlacesWithin)
	})

	return r
}

// snapshotResponse is the complete triple the UI is never left without.
type snapshotResponse struct {
	Places   []Annotation `json:"places"`
	IsCached bool         `json:"is_cached"`
	Status   string       `json:"status"`
	Error    *string      `json:"error"`
}

func toResponse(snap places.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		Places:   BuildAnnotations(snap.Places),
		IsCached: snap.IsCached,
		Status:   snap.Status.String(),
	}
	if snap.Err != nil {
		msg := snap.Err.Error()
		resp.Error = &msg
	}
	return resp
}

func (h *Handler) GetPlaces(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeJSON(w, http.StatusOK, toResponse(h.svc.Snapshot()))
	observability.ObserveHTTP(r.Method, "/places", http.StatusOK, time.Since(start).Seconds())
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ok := h.svc.Refresh(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"ok": ok})
	observability.ObserveHTTP(r.Method, "/refresh", status, time.Since(start).Seconds())
}

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ok := h.svc.ClearCache(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{"ok": ok})
	observability.ObserveHTTP(r.Method, "/cache", status, time.Since(start).Seconds())
}

func (h *Handler) PlacesWithin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ne, sw, zoom, err := parseViewport(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		observability.ObserveHTTP(r.Method, "/places/within", http.StatusBadRequest, time.Since(start).Seconds())
		return
	}

	if err := h.svc.FetchPlacesWithinBounds(r.Context(), ne, sw, zoom); err != nil {
		h.logger.Warn("bounds fetch failed", "err", err)
	}
	// the merged snapshot is the answer either way; a failed increment
	// leaves the previous set visible
	writeJSON(w, http.StatusOK, toResponse(h.svc.Snapshot()))
	observability.ObserveHTTP(r.Method, "/places/within", http.StatusOK, time.Since(start).Seconds())
}

// parseViewport reads ne/sw corners plus zoom from the query string.
func parseViewport(r *http.Request) (ne, sw model.LatLng, zoom float64, err error) {
	q := r.URL.Query()
	read := func(key string) (float64, error) {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			return 0, errors.New("missing required parameter: " + key)
		}
		f, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return 0, errors.New("invalid " + key)
		}
		return f, nil
	}

	if ne.Lat, err = read("ne_lat"); err != nil {
		return
	}
	if ne.Lng, err = read("ne_lng"); err != nil {
		return
	}
	if sw.Lat, err = read("sw_lat"); err != nil {
		return
	}
	if sw.Lng, err = read("sw_lng"); err != nil {
		return
	}
	if zoom, err = read("zoom"); err != nil {
		return
	}

	if ne.Lat < -90 || ne.Lat > 90 || sw.Lat < -90 || sw.Lat > 90 {
		err = errors.New("latitude must be in [-90,90]")
		return
	}
	if ne.Lng < -180 || ne.Lng > 180 || sw.Lng < -180 || sw.Lng > 180 {
		err = errors.New("longitude must be in [-180,180]")
		return
	}
	if ne.Lat <= sw.Lat || ne.Lng <= sw.Lng {
		err = errors.New("northeast corner must be above and right of southwest")
		return
	}
	return
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
