// Package upstream builds the outbound request for a backend call and filters what
// comes back before it is relayed.
package upstream

import (
	"net/http"
	"os"
	"strings"

	"github.com/pysugar/aoai-nexus/internal/version"
)

// UserAgentEnv overrides the outbound User-Agent.
const UserAgentEnv = "NEXUS_USER_AGENT"

// UserAgent returns the outbound User-Agent: NEXUS_USER_AGENT when set, else aoai-nexus/<version>.
func UserAgent() string {
	if ua := strings.TrimSpace(os.Getenv(UserAgentEnv)); ua != "" {
		return ua
	}
	return "aoai-nexus/" + version.Version
}

// ForwardHeaders copies the caller's headers minus credentials and hop-by-hop fields,
// then sets the bearer token, the JSON content type and the User-Agent. An empty bearer
// sends no Authorization header.
func ForwardHeaders(incoming http.Header, bearer string) http.Header {
	out := make(http.Header, len(incoming)+3)
	for k, values := range incoming {
		canonical := http.CanonicalHeaderKey(k)
		if shouldSkipRequestHeader(canonical) {
			continue
		}
		for _, v := range values {
			out.Add(canonical, v)
		}
	}
	out.Set("Content-Type", "application/json")
	out.Set("User-Agent", UserAgent())
	if bearer != "" {
		out.Set("Authorization", "Bearer "+bearer)
	}
	return out
}

func shouldSkipRequestHeader(header string) bool {
	switch header {
	case "Authorization",
		"X-Api-Key",
		"Api-Key",
		"Ocp-Apim-Subscription-Key",
		"X-Admin-Key",
		"Content-Length",
		"Host",
		"Accept-Encoding",
		"Connection",
		"Proxy-Connection",
		"Keep-Alive",
		"Transfer-Encoding",
		"Te",
		"Trailer",
		"Upgrade",
		"Proxy-Authenticate",
		"Proxy-Authorization":
		return true
	default:
		return false
	}
}

// ResponseHeaders copies backend response headers minus hop-by-hop fields.
func ResponseHeaders(src http.Header) http.Header {
	out := make(http.Header, len(src))
	for k, values := range src {
		canonical := http.CanonicalHeaderKey(k)
		if shouldSkipResponseHeader(canonical) {
			continue
		}
		for _, v := range values {
			out.Add(canonical, v)
		}
	}
	return out
}

func shouldSkipResponseHeader(header string) bool {
	switch header {
	case "Connection",
		"Proxy-Connection",
		"Keep-Alive",
		"Transfer-Encoding",
		"Content-Length",
		"Te",
		"Trailer",
		"Upgrade",
		"Proxy-Authenticate",
		"Proxy-Authorization":
		return true
	default:
		return false
	}
}
