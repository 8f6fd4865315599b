package middleware

import (
	"net/http"

	"github.com/pysugar/aoai-nexus/internal/logging"
)

// RequestID takes X-Request-ID from the caller or generates one, stores it in the
// request context and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := logging.RequestIDFrom(r.Header.Get(logging.RequestIDHeader))
		w.Header().Set(logging.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
