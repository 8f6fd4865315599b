package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pysugar/aoai-nexus/internal/config"
	"github.com/pysugar/aoai-nexus/internal/db/models"
	"github.com/pysugar/aoai-nexus/internal/stats"
	"github.com/pysugar/aoai-nexus/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const minimalConfig = `auth:
  mode: none
upstreams:
  - name: u
    baseUrl: https://backend.example.com
    routes:
      chat/completions: /chat
models:
  - id: alpha
    upstream: u
  - id: beta
    upstream: u
`

func TestModelsListHandler(t *testing.T) {
	cfg, err := config.Parse([]byte(minimalConfig))
	require.NoError(t, err)
	store := config.NewStore("", cfg, nil)

	rec := httptest.NewRecorder()
	ModelsListHandler(store)(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "list", gjson.Get(body, "object").String())
	assert.Equal(t, []any{"alpha", "beta"}, gjson.Get(body, "data.#.id").Value())
	assert.Equal(t, "proxy", gjson.Get(body, "data.0.owned_by").String())
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "ok").Bool())
	assert.Equal(t, version.Version, gjson.Get(rec.Body.String(), "version").String())
}

type fakeSummary struct {
	rows []models.ModelSummary
	err  error
}

func (f fakeSummary) Summary(context.Context) ([]models.ModelSummary, error) {
	return f.rows, f.err
}

func TestAdminStatsHandler(t *testing.T) {
	counters := stats.NewCounters()
	counters.RecordRequest("alpha")
	counters.RecordUsage("alpha", stats.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5})

	rec := httptest.NewRecorder()
	AdminStatsHandler(counters, nil, zap.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "totals.requests").Int())
	assert.Equal(t, int64(5), gjson.Get(body, "perModel.alpha.totalTokens").Int())
	assert.True(t, gjson.Get(body, "startedAt").Exists())
	assert.False(t, gjson.Get(body, "ledger").Exists())

	ledger := fakeSummary{rows: []models.ModelSummary{{Model: "alpha", Requests: 7}}}
	rec = httptest.NewRecorder()
	AdminStatsHandler(counters, ledger, zap.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil))
	assert.Equal(t, int64(7), gjson.Get(rec.Body.String(), "ledger.0.requests").Int())

	rec = httptest.NewRecorder()
	AdminStatsHandler(counters, fakeSummary{err: errors.New("disk gone")}, zap.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdminReloadHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	store := config.NewStore(path, cfg, nil)

	rec := httptest.NewRecorder()
	AdminReloadHandler(store)(rec, httptest.NewRequest(http.MethodPost, "/admin/api/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "models").Int())
	assert.NotSame(t, cfg, store.Current())

	before := store.Current()
	require.NoError(t, os.WriteFile(path, []byte("upstreams: [{name: \"\"}]\n"), 0o644))
	rec = httptest.NewRecorder()
	AdminReloadHandler(store)(rec, httptest.NewRequest(http.MethodPost, "/admin/api/reload", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidConfig, gjson.Get(rec.Body.String(), "code").String())
	assert.Same(t, before, store.Current())
}
