package routing

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pysugar/aoai-nexus/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Upstreams: []config.Upstream{
			{
				Name:    "east",
				BaseURL: "https://east.example.com",
				Routes: map[string]string{
					"chat/completions":   "/openai/deployments/{deployment}/chat/completions?api-version=2024-10-21",
					"responses":          "/openai/v1/responses?api-version=preview",
					"images/generations": "/openai/deployments/{deployment}/images/generations",
				},
			},
			{Name: "placeholder", BaseURL: "https://your-resource-name.openai.azure.com"},
		},
		Models: []config.Model{
			{ID: "gpt-4o", Upstream: "east", TargetModel: "gpt-4o-prod"},
			{ID: "o3", Upstream: "east", Routes: map[string]string{"chat/completions": "responses"}},
			{ID: "codex", Upstream: "east", Routes: map[string]string{"*": "/custom/{deployment}/responses"}},
			{ID: "legacy", Upstream: "east", Routes: map[string]string{"responses": "chat/completions"}},
			{ID: "orphan", Upstream: "missing"},
			{ID: "todo", Upstream: "placeholder"},
			{ID: "odd name", Upstream: "east"},
		},
	}
}

func TestResolvePlainRoute(t *testing.T) {
	r := NewRouter()
	target, err := r.Resolve(testConfig(), RouteChatCompletions, "gpt-4o")
	require.NoError(t, err)

	assert.Equal(t, "https://east.example.com/openai/deployments/gpt-4o-prod/chat/completions?api-version=2024-10-21", target.URL)
	assert.Equal(t, RouteChatCompletions, target.BackendRouteKey)
	assert.Equal(t, DirectionNone, target.Direction)
	assert.Equal(t, "gpt-4o-prod", target.Deployment)
	assert.Equal(t, "east", target.Upstream.Name)
}

func TestResolveRouteKeyOverride(t *testing.T) {
	r := NewRouter()
	target, err := r.Resolve(testConfig(), RouteChatCompletions, "o3")
	require.NoError(t, err)

	assert.Equal(t, RouteResponses, target.BackendRouteKey)
	assert.Equal(t, DirectionChatToResponses, target.Direction)
	assert.Equal(t, "https://east.example.com/openai/v1/responses?api-version=preview", target.URL)
	assert.Equal(t, "o3", target.Deployment)
}

func TestResolveWildcardLiteralPathInfersBackend(t *testing.T) {
	r := NewRouter()
	target, err := r.Resolve(testConfig(), RouteChatCompletions, "codex")
	require.NoError(t, err)

	assert.Equal(t, "https://east.example.com/custom/codex/responses", target.URL)
	assert.Equal(t, RouteResponses, target.BackendRouteKey)
	assert.Equal(t, DirectionChatToResponses, target.Direction)
}

func TestResolveLiteralPathSuffixIgnoresCase(t *testing.T) {
	cfg := testConfig()
	cfg.Models = append(cfg.Models, config.Model{ID: "mixed", Upstream: "east", Routes: map[string]string{"*": "/Custom/{deployment}/Responses/"}})

	target, err := NewRouter().Resolve(cfg, RouteChatCompletions, "mixed")
	require.NoError(t, err)
	assert.Equal(t, RouteResponses, target.BackendRouteKey)
	assert.Equal(t, DirectionChatToResponses, target.Direction)
}

func TestResolveBlankExactRouteDoesNotFallBackToWildcard(t *testing.T) {
	cfg := testConfig()
	cfg.Models = append(cfg.Models, config.Model{ID: "pinned", Upstream: "east", Routes: map[string]string{
		"chat/completions": "  ",
		"*":                "responses",
	}})

	target, err := NewRouter().Resolve(cfg, RouteChatCompletions, "pinned")
	require.NoError(t, err)
	assert.Equal(t, RouteChatCompletions, target.BackendRouteKey)
	assert.Equal(t, DirectionNone, target.Direction)

	target, err = NewRouter().Resolve(cfg, RouteResponses, "pinned")
	require.NoError(t, err)
	assert.Equal(t, RouteResponses, target.BackendRouteKey)
}

func TestResolveReverseDirection(t *testing.T) {
	r := NewRouter()
	target, err := r.Resolve(testConfig(), RouteResponses, "legacy")
	require.NoError(t, err)
	assert.Equal(t, DirectionResponsesToChat, target.Direction)
	assert.Equal(t, "https://east.example.com/openai/deployments/legacy/chat/completions?api-version=2024-10-21", target.URL)
}

func TestResolveEscapesDeployment(t *testing.T) {
	r := NewRouter()
	target, err := r.Resolve(testConfig(), RouteImageGenerations, "odd name")
	require.NoError(t, err)
	assert.Equal(t, "https://east.example.com/openai/deployments/odd%20name/images/generations", target.URL)
	assert.Equal(t, DirectionNone, target.Direction)
}

func TestResolveErrors(t *testing.T) {
	cases := []struct {
		name   string
		route  RouteKey
		model  string
		code   string
		status int
	}{
		{"missing model id", RouteChatCompletions, "", CodeModelRequired, http.StatusBadRequest},
		{"unknown model", RouteChatCompletions, "nope", CodeModelNotFound, http.StatusNotFound},
		{"missing upstream", RouteChatCompletions, "orphan", CodeUpstreamNotFound, http.StatusInternalServerError},
		{"placeholder host", RouteChatCompletions, "todo", CodeInvalidUpstreamConfig, http.StatusInternalServerError},
	}
	r := NewRouter()
	cfg := testConfig()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(cfg, tc.route, tc.model)
			var rerr *Error
			require.True(t, errors.As(err, &rerr), "expected *routing.Error, got %v", err)
			assert.Equal(t, tc.code, rerr.Code)
			assert.Equal(t, tc.status, rerr.Status)
		})
	}
}

func TestResolveMissingRouteTemplate(t *testing.T) {
	cfg := testConfig()
	cfg.Upstreams[0].Routes = map[string]string{"chat/completions": "/chat/completions"}

	_, err := NewRouter().Resolve(cfg, RouteResponses, "gpt-4o")
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CodeRouteNotConfigured, rerr.Code)
}

func TestIndexFollowsConfigIdentity(t *testing.T) {
	r := NewRouter()
	first := testConfig()
	_, err := r.Resolve(first, RouteChatCompletions, "gpt-4o")
	require.NoError(t, err)
	idx := r.idx.Load()

	_, err = r.Resolve(first, RouteChatCompletions, "o3")
	require.NoError(t, err)
	assert.Same(t, idx, r.idx.Load(), "same config must reuse the index")

	second := testConfig()
	second.Models = append(second.Models, config.Model{ID: "new", Upstream: "east"})
	target, err := r.Resolve(second, RouteChatCompletions, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", target.Deployment)
	assert.NotSame(t, idx, r.idx.Load())
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewRouter()
	cfg := testConfig()
	a, err := r.Resolve(cfg, RouteResponses, "gpt-4o")
	require.NoError(t, err)
	b, err := NewRouter().Resolve(cfg, RouteResponses, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDirectionFor(t *testing.T) {
	assert.Equal(t, DirectionNone, DirectionFor(RouteImageGenerations, RouteResponses))
	assert.Equal(t, DirectionNone, DirectionFor(RouteChatCompletions, RouteImageGenerations))
	assert.Equal(t, DirectionNone, DirectionFor(RouteResponses, RouteResponses))
	assert.Equal(t, DirectionChatToResponses, DirectionFor(RouteChatCompletions, RouteResponses))
	assert.Equal(t, DirectionResponsesToChat, DirectionFor(RouteResponses, RouteChatCompletions))
}

func TestIsPlaceholderBaseURL(t *testing.T) {
	assert.True(t, IsPlaceholderBaseURL("https://YOUR-RESOURCE-NAME.openai.azure.com"))
	assert.True(t, IsPlaceholderBaseURL("not a url"))
	assert.False(t, IsPlaceholderBaseURL("https://contoso.openai.azure.com"))
}

func TestDefaultModel(t *testing.T) {
	id, ok := DefaultModel(testConfig())
	assert.True(t, ok)
	assert.Equal(t, "gpt-4o", id)

	_, ok = DefaultModel(&config.Config{})
	assert.False(t, ok)
}
