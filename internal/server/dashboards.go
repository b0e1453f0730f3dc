package server

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

//go:embed dashboard.json
var dashboardJSON []byte

// DashboardsMap materializes dashboard content to URL paths.
func DashboardsMap() map[string][]byte {
	return map[string][]byte{
		"/dashboards/bike-overview.json": dashboardJSON,
	}
}

// DashboardsHandler serves dashboard JSON from an in-memory map.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if data, ok := dashboards[path]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}

		http.NotFound(w, r)
	})
}

// WriteDashboards writes dashboards to disk for Grafana provisioning.
func WriteDashboards(dir string) error {
	if dir == "" {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dashboard dir: %w", err)
	}
	path := filepath.Join(dir, "bike-overview.json")
	if err := os.WriteFile(path, dashboardJSON, 0o644); err != nil {
		return fmt.Errorf("write dashboard %s: %w", path, err)
	}

	return nil
}
