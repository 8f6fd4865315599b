package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `server:
  port: 8080
  upstream:
    maxRetries: 4
    retryStatuses: [429, 503]
auth:
  mode: static
  token: tok
apiKeys:
  - id: k1
    key: sk-one
  - id: k2
    key: sk-two
    status: disabled
upstreams:
  - name: east
    baseUrl: https://east.example.com
    routes:
      chat/completions: /openai/deployments/{deployment}/chat/completions?api-version=2024-10-21
      responses: /openai/v1/responses
models:
  - id: gpt-4o
    upstream: east
    targetModel: gpt-4o-prod
  - id: o3
    upstream: east
    routes:
      chat/completions: responses
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DefaultScope, cfg.Auth.Scope)
	assert.Equal(t, "/metrics", cfg.Server.Metrics.Path)
	require.NotNil(t, cfg.Server.Upstream.MaxRetries)
	assert.Equal(t, 4, *cfg.Server.Upstream.MaxRetries)
	assert.Nil(t, cfg.Server.Upstream.ConnectTimeoutMs)
	assert.Equal(t, []int{429, 503}, cfg.Server.Upstream.RetryStatuses)

	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "gpt-4o-prod", cfg.Models[0].Deployment())
	assert.Equal(t, "o3", cfg.Models[1].Deployment())

	assert.True(t, cfg.APIKeys[0].Active())
	assert.False(t, cfg.APIKeys[1].Active())
}

func TestParseAcceptsJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{
  "auth": {"mode": "none"},
  "upstreams": [{"name": "u", "baseUrl": "http://localhost:9000", "routes": {"responses": "/v1/responses"}}],
  "models": [{"id": "m", "upstream": "u"}]
}`))
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/v1/responses", cfg.Upstreams[0].Routes["responses"])
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NEXUS_PORT", "9999")
	t.Setenv("NEXUS_HOST", "127.0.0.1")
	t.Setenv("NEXUS_ADMIN_KEY", "admin-secret")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "admin-secret", cfg.Server.AdminKey)
}

func TestValidateReportsEveryIssue(t *testing.T) {
	_, err := Parse([]byte(`auth:
  mode: servicePrincipal
upstreams:
  - name: bad
    baseUrl: ftp://example.com
    routes:
      responses: ""
models:
  - id: dup
    upstream: bad
  - id: dup
    upstream: bad
server:
  upstream:
    maxRetries: -1
`))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 5)
	assert.Contains(t, err.Error(), "servicePrincipal requires")
	assert.Contains(t, err.Error(), "must be an http(s) URL")
	assert.Contains(t, err.Error(), `"dup" is duplicated`)
	assert.Contains(t, err.Error(), "maxRetries must be >= 0")
}

func TestResolvePathPrefersEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)
	t.Setenv("NEXUS_CONFIG", path)

	got, err := ResolvePath("")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = ResolvePath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStoreReplaceNotifiesListeners(t *testing.T) {
	first, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	store := NewStore("", first, nil)

	var seen *Config
	store.OnReplace(func(c *Config) { seen = c })

	second, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	store.Replace(second)

	assert.Same(t, second, store.Current())
	assert.Same(t, second, seen)
	assert.NotSame(t, first, store.Current())
}

func TestStoreReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(path, cfg, nil)

	require.NoError(t, os.WriteFile(path, []byte("models: [\n"), 0o644))
	_, err = store.Reload()
	require.Error(t, err)
	assert.Same(t, cfg, store.Current())
}

func TestStoreWatchPicksUpWrites(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(path, cfg, nil)

	reloaded := make(chan *Config, 4)
	store.OnReplace(func(c *Config) { reloaded <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	updated := sampleYAML + "  - id: extra\n    upstream: east\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case c := <-reloaded:
		assert.Len(t, c.Models, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded after write")
	}
}
