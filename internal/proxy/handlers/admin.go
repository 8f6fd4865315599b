package handlers

import (
	"context"
	"net/http"

	"github.com/pysugar/aoai-nexus/internal/config"
	"github.com/pysugar/aoai-nexus/internal/db/models"
	"github.com/pysugar/aoai-nexus/internal/logging"
	"github.com/pysugar/aoai-nexus/internal/stats"
	"go.uber.org/zap"
)

// UsageSummarizer is the persisted side of the statistics, when enabled.
type UsageSummarizer interface {
	Summary(ctx context.Context) ([]models.ModelSummary, error)
}

type statsResponse struct {
	stats.Snapshot
	Ledger []models.ModelSummary `json:"ledger,omitempty"`
}

// AdminStatsHandler returns the in-memory counters and, if ledger is non-nil, the
// per-model aggregate of the usage ledger
// GET /admin/api/stats
func AdminStatsHandler(counters *stats.Counters, ledger UsageSummarizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{Snapshot: counters.Snapshot()}
		if ledger != nil {
			summary, err := ledger.Summary(r.Context())
			if err != nil {
				logging.FromContext(r.Context(), logger).Error("usage ledger summary failed", zap.Error(err))
				writeError(w, r, http.StatusInternalServerError, "LedgerUnavailable", err.Error())
				return
			}
			resp.Ledger = summary
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// AdminReloadHandler re-reads the config file. A file that fails to load or validate
// leaves the active config in place
// POST /admin/api/reload
func AdminReloadHandler(store *config.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := store.Reload()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidConfig, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":        true,
			"models":    len(cfg.Models),
			"upstreams": len(cfg.Upstreams),
		})
	}
}
