package upstream

import (
	"net/http"
	"testing"

	"github.com/pysugar/aoai-nexus/internal/version"
	"github.com/stretchr/testify/assert"
)

func TestForwardHeadersStripsCredentialsAndInjectsBearer(t *testing.T) {
	t.Setenv(UserAgentEnv, "")
	incoming := http.Header{}
	incoming.Set("Authorization", "Bearer client-key")
	incoming.Set("x-api-key", "client-key")
	incoming.Set("api-key", "client-key")
	incoming.Set("Ocp-Apim-Subscription-Key", "sub")
	incoming.Set("Content-Length", "42")
	incoming.Set("Accept-Encoding", "gzip")
	incoming.Set("Connection", "keep-alive")
	incoming.Set("Content-Type", "text/plain")
	incoming.Set("X-Request-ID", "req_1")
	incoming.Add("X-Custom", "a")
	incoming.Add("X-Custom", "b")

	out := ForwardHeaders(incoming, "server-token")

	assert.Equal(t, "Bearer server-token", out.Get("Authorization"))
	assert.Equal(t, "application/json", out.Get("Content-Type"))
	assert.Equal(t, "aoai-nexus/"+version.Version, out.Get("User-Agent"))
	assert.Equal(t, "req_1", out.Get("X-Request-ID"))
	assert.Equal(t, []string{"a", "b"}, out.Values("X-Custom"))
	for _, h := range []string{"X-Api-Key", "Api-Key", "Ocp-Apim-Subscription-Key", "Content-Length", "Accept-Encoding", "Connection"} {
		assert.Empty(t, out.Get(h), h)
	}
	// The caller's header map is untouched.
	assert.Equal(t, "Bearer client-key", incoming.Get("Authorization"))
}

func TestForwardHeadersWithoutBearer(t *testing.T) {
	incoming := http.Header{"Authorization": {"Bearer client-key"}}
	out := ForwardHeaders(incoming, "")
	assert.Empty(t, out.Get("Authorization"))
}

func TestUserAgentOverride(t *testing.T) {
	t.Setenv(UserAgentEnv, "custom/1.0")
	assert.Equal(t, "custom/1.0", UserAgent())
}

func TestResponseHeadersDropsHopByHop(t *testing.T) {
	src := http.Header{
		"Content-Type":          {"text/event-stream"},
		"Connection":            {"keep-alive"},
		"Transfer-Encoding":     {"chunked"},
		"Apim-Request-Id":       {"abc"},
		"X-Ratelimit-Remaining": {"9"},
	}
	out := ResponseHeaders(src)
	assert.Equal(t, "text/event-stream", out.Get("Content-Type"))
	assert.Equal(t, "abc", out.Get("Apim-Request-Id"))
	assert.Equal(t, "9", out.Get("X-Ratelimit-Remaining"))
	assert.Empty(t, out.Get("Connection"))
	assert.Empty(t, out.Get("Transfer-Encoding"))
}
