package main

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cobiv/internal/logging"
	"cobiv/internal/metrics"
	"cobiv/internal/startup"
)

// syncState reports whether a catalog sync is in progress.
type syncState interface {
	Running() bool
}

// healthResponse is the /healthz body.
type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Syncing      bool   `json:"syncing"`
	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`

	TotalFiles        int `json:"totalFiles"`
	TotalTags         int `json:"totalTags"`
	TotalSets         int `json:"totalSets"`
	TotalRepositories int `json:"totalRepositories"`
}

func newMetricsRouter(stats metrics.StatsProvider, sync syncState) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", healthHandler(stats, sync)).Methods("GET", "HEAD")
	return r
}

func healthHandler(stats metrics.StatsProvider, sync syncState) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s := stats.GetStats()
		response := healthResponse{
			Status:            "healthy",
			Version:           startup.Version,
			GoVersion:         runtime.Version(),
			NumGoroutine:      runtime.NumGoroutine(),
			TotalFiles:        s.TotalFiles,
			TotalTags:         s.TotalTags,
			TotalSets:         s.TotalSets,
			TotalRepositories: s.TotalRepositories,
		}
		if sync != nil {
			response.Syncing = sync.Running()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logging.Warn("failed to encode health response: %v", err)
		}
	}
}
