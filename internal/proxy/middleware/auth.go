package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pysugar/aoai-nexus/internal/config"
	"github.com/pysugar/aoai-nexus/internal/logging"
	"github.com/pysugar/aoai-nexus/internal/reliability"
)

// APIKeyAuth validates the caller's key against the active apiKeys of the current
// config. With no active keys configured every request passes.
func APIKeyAuth(store *config.Store) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keys := activeKeys(store.Current())
			if len(keys) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			// Check Authorization header (Bearer token), then x-api-key
			presented := ""
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
			if presented == "" {
				presented = strings.TrimSpace(r.Header.Get("x-api-key"))
			}
			if presented != "" && matchesAny(presented, keys) {
				next.ServeHTTP(w, r)
				return
			}

			writeError(w, r, http.StatusUnauthorized, "Unauthorized", "invalid or missing API key")
		})
	}
}

// AdminAuth guards the admin API with server.adminKey (X-Admin-Key). An empty
// adminKey leaves it open.
func AdminAuth(store *config.Store) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			want := store.Current().Server.AdminKey
			if want == "" || matchesAny(r.Header.Get("X-Admin-Key"), []string{want}) {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, r, http.StatusUnauthorized, "Unauthorized", "invalid or missing admin key")
		})
	}
}

func activeKeys(cfg *config.Config) []string {
	var keys []string
	for _, k := range cfg.APIKeys {
		if k.Active() {
			keys = append(keys, k.Key)
		}
	}
	return keys
}

func matchesAny(presented string, keys []string) bool {
	ok := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(k)) == 1 {
			ok = true
		}
	}
	return ok
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	body := reliability.NewErrorBody(code, false, logging.GetRequestID(r.Context()), 0, detail)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
