package handlers

import (
	"net/http"
	"time"

	"github.com/pysugar/aoai-nexus/internal/config"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// ModelsListHandler lists the configured client-facing model ids
// GET /v1/models
func ModelsListHandler(store *config.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := store.Current()
		created := time.Now().Unix()
		list := modelList{Object: "list", Data: make([]modelEntry, 0, len(cfg.Models))}
		for _, m := range cfg.Models {
			list.Data = append(list.Data, modelEntry{ID: m.ID, Object: "model", Created: created, OwnedBy: "proxy"})
		}
		writeJSON(w, http.StatusOK, list)
	}
}
