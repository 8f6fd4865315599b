package handlers

import (
	"net/http"

	"github.com/pysugar/aoai-nexus/internal/version"
)

// HealthHandler returns liveness plus the build version
// GET /healthz
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"version": version.Version,
		})
	}
}

// VersionHandler returns version information as JSON
// GET /admin/api/version
func VersionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.Get())
	}
}
