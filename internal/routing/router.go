// Package routing resolves a client-facing model id and route key to a concrete upstream URL.
package routing

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/pysugar/aoai-nexus/internal/config"
)

// RouteKey names one of the supported call kinds.
type RouteKey string

const (
	RouteChatCompletions  RouteKey = "chat/completions"
	RouteResponses        RouteKey = "responses"
	RouteImageGenerations RouteKey = "images/generations"

	wildcardRoute    = "*"
	placeholderToken = "your-resource-name"
	deploymentToken  = "{deployment}"
)

// Direction is the payload translation required between client and backend.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionChatToResponses
	DirectionResponsesToChat
)

func (d Direction) String() string {
	switch d {
	case DirectionChatToResponses:
		return "chat->responses"
	case DirectionResponsesToChat:
		return "responses->chat"
	default:
		return "none"
	}
}

// DirectionFor derives the translation from the (client, backend) route key pair alone.
func DirectionFor(client, backend RouteKey) Direction {
	switch {
	case client == RouteChatCompletions && backend == RouteResponses:
		return DirectionChatToResponses
	case client == RouteResponses && backend == RouteChatCompletions:
		return DirectionResponsesToChat
	default:
		return DirectionNone
	}
}

// Error codes returned by Resolve.
const (
	CodeModelRequired         = "ModelRequired"
	CodeModelNotFound         = "ModelNotFound"
	CodeUpstreamNotFound      = "UpstreamNotFound"
	CodeInvalidUpstreamConfig = "InvalidUpstreamConfig"
	CodeRouteNotConfigured    = "RouteNotConfigured"
)

// Error is a resolution failure carrying the HTTP status to report.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Target is the immutable result of resolving one inbound call.
type Target struct {
	RouteKey        RouteKey
	BackendRouteKey RouteKey
	Direction       Direction
	URL             string
	Deployment      string
	Model           config.Model
	Upstream        config.Upstream
}

type index struct {
	cfg       *config.Config
	models    map[string]config.Model
	upstreams map[string]config.Upstream
}

// Router owns the name->binding index for the current config object. The index is
// rebuilt whole and swapped atomically whenever a different config is seen.
type Router struct {
	idx atomic.Pointer[index]
}

func NewRouter() *Router {
	return &Router{}
}

// Rebuild installs a fresh index for cfg.
func (r *Router) Rebuild(cfg *config.Config) {
	r.idx.Store(buildIndex(cfg))
}

func (r *Router) indexFor(cfg *config.Config) *index {
	if idx := r.idx.Load(); idx != nil && idx.cfg == cfg {
		return idx
	}
	idx := buildIndex(cfg)
	r.idx.Store(idx)
	return idx
}

func buildIndex(cfg *config.Config) *index {
	idx := &index{
		cfg:       cfg,
		models:    make(map[string]config.Model, len(cfg.Models)),
		upstreams: make(map[string]config.Upstream, len(cfg.Upstreams)),
	}
	for _, m := range cfg.Models {
		if _, exists := idx.models[m.ID]; !exists {
			idx.models[m.ID] = m
		}
	}
	for _, u := range cfg.Upstreams {
		if _, exists := idx.upstreams[u.Name]; !exists {
			idx.upstreams[u.Name] = u
		}
	}
	return idx
}

// DefaultModel returns the first configured model id, used when a body carries none.
func DefaultModel(cfg *config.Config) (string, bool) {
	if len(cfg.Models) == 0 {
		return "", false
	}
	return cfg.Models[0].ID, true
}

// Resolve maps (route key, model id) to a Target. It performs no I/O.
func (r *Router) Resolve(cfg *config.Config, routeKey RouteKey, modelID string) (*Target, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, &Error{Code: CodeModelRequired, Status: http.StatusBadRequest, Message: "model is required"}
	}
	idx := r.indexFor(cfg)

	model, ok := idx.models[modelID]
	if !ok {
		return nil, &Error{Code: CodeModelNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf("model %q not found", modelID)}
	}
	upstream, ok := idx.upstreams[model.Upstream]
	if !ok {
		return nil, &Error{Code: CodeUpstreamNotFound, Status: http.StatusInternalServerError, Message: fmt.Sprintf("upstream %q not found for model %q", model.Upstream, modelID)}
	}
	if IsPlaceholderBaseURL(upstream.BaseURL) {
		return nil, &Error{Code: CodeInvalidUpstreamConfig, Status: http.StatusInternalServerError, Message: fmt.Sprintf("upstream %q baseUrl is still a placeholder: %s", upstream.Name, upstream.BaseURL)}
	}

	deployment := model.Deployment()
	override := routeOverride(model, routeKey)

	backendKey := routeKey
	var template string
	switch {
	case override == "":
		template = upstream.Routes[string(routeKey)]
	case strings.HasPrefix(override, "/"):
		template = override
		if inferred, ok := inferRouteKey(override); ok {
			backendKey = inferred
		}
	default:
		backendKey = RouteKey(override)
		template = upstream.Routes[override]
	}
	if template == "" {
		return nil, &Error{Code: CodeRouteNotConfigured, Status: http.StatusInternalServerError, Message: fmt.Sprintf("no route %q configured on upstream %q", backendKey, upstream.Name)}
	}

	target, err := buildURL(upstream.BaseURL, template, deployment)
	if err != nil {
		return nil, &Error{Code: CodeInvalidUpstreamConfig, Status: http.StatusInternalServerError, Message: err.Error()}
	}

	return &Target{
		RouteKey:        routeKey,
		BackendRouteKey: backendKey,
		Direction:       DirectionFor(routeKey, backendKey),
		URL:             target,
		Deployment:      deployment,
		Model:           model,
		Upstream:        upstream,
	}, nil
}

// routeOverride uses the exact route key when present, else the wildcard. A present but
// blank value means no override and does not fall through to the wildcard.
func routeOverride(model config.Model, routeKey RouteKey) string {
	if v, ok := model.Routes[string(routeKey)]; ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(model.Routes[wildcardRoute])
}

// inferRouteKey maps a literal path to a route key by its suffix, ignoring any query.
func inferRouteKey(path string) (RouteKey, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(strings.TrimRight(path, "/"))
	for _, key := range []RouteKey{RouteChatCompletions, RouteResponses, RouteImageGenerations} {
		if strings.HasSuffix(path, "/"+string(key)) {
			return key, true
		}
	}
	return "", false
}

func buildURL(baseURL, template, deployment string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid baseUrl %q: %w", baseURL, err)
	}
	path := strings.ReplaceAll(template, deploymentToken, url.PathEscape(deployment))
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid route template %q: %w", template, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// IsPlaceholderBaseURL reports base URLs that were never filled in.
func IsPlaceholderBaseURL(baseURL string) bool {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Hostname() == "" {
		return true
	}
	return strings.Contains(strings.ToLower(parsed.Hostname()), placeholderToken)
}
