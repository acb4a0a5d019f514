package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

type ReadinessReporter interface {
	Ready() bool
}

// Readiness reports whether the local store finished initializing. Not
// ready is not fatal: the service still answers from the remote store.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status string `json:"status"`
			Cache  bool   `json:"cache"`
		}
		ready := rr != nil && rr.Ready()
		out := resp{Status: "ready", Cache: ready}
		if !ready {
			out.Status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
