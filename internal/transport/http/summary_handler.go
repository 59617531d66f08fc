package http

import (
	"encoding/json"
	"log"
	"net/http"

	"eduquest-progress/internal/progress"
	"eduquest-progress/internal/reconcile"
	"eduquest-progress/internal/store"
)

type summaryResponse struct {
	progress.Summary
	Sync           reconcile.StatusView `json:"sync"`
	StorageWarning bool                 `json:"storageDegraded"`
}

// SummaryHandler serves the dashboard summary as JSON.
func SummaryHandler(prog *progress.Service, st *store.Store, syncer Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		resp := summaryResponse{
			Summary:        prog.Summary(r.Context()),
			Sync:           syncer.Status(),
			StorageWarning: st.Degraded(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("[http] encode summary: %v", err)
		}
	}
}
