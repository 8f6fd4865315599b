// Package handlers serves the caller-facing HTTP API: the three proxied POST routes,
// the model list, health and the admin API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pysugar/aoai-nexus/internal/logging"
	"github.com/pysugar/aoai-nexus/internal/reliability"
)

// Codes for failures raised before any upstream call.
const (
	CodeInvalidRequest = "InvalidRequest"
	CodeInvalidConfig  = "InvalidConfig"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the standard error body for a failure that has no upstream status.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeJSON(w, status, reliability.NewErrorBody(code, false, logging.GetRequestID(r.Context()), 0, detail))
}
