package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/joshp123/gobike/internal/health"
	"github.com/joshp123/gobike/internal/poller"
	"github.com/joshp123/gobike/mysmartbike"
)

// HealthHandler reports per-component and overall health as JSON.
// The HTTP status follows the overall status so load balancers can
// use the endpoint directly: DEGRADED still answers 200, ERROR 503.
func HealthHandler(components []health.Component) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		report := health.Snapshot(components)

		status := http.StatusOK
		if report.Overall == health.StatusError {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})
}

type bikesResponse struct {
	Bikes     []mysmartbike.Bike `json:"bikes"`
	FetchedAt time.Time          `json:"fetched_at"`
}

type bikeResponse struct {
	Bike      mysmartbike.Bike `json:"bike"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// BikesHandler serves the bike snapshot: the full list at its mount
// path, a single bike at <mount>/<serial>.
func BikesHandler(store *poller.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		serial := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/bikes"), "/")
		if serial == "" {
			bikes, fetchedAt := store.Snapshot()
			writeJSON(w, http.StatusOK, bikesResponse{Bikes: bikes, FetchedAt: fetchedAt})
			return
		}

		bike, ok := store.Bike(serial)
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, bikeResponse{Bike: bike, FetchedAt: store.FetchedAt()})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
