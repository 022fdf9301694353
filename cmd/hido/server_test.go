package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/hido/api/handlers"
	"github.com/BaSui01/hido/audit"
	"github.com/BaSui01/hido/config"
	"github.com/BaSui01/hido/internal/metrics"
)

// newTestServer 只初始化组件，不监听端口
func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, http.Handler) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.RateLimitRPS = 0
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(cfg, zap.NewNop())
	s.collector = metrics.NewCollector(testNamespace(), zap.NewNop())
	require.NoError(t, s.initAudit(ctx))
	require.NoError(t, s.initService())
	require.NoError(t, s.initPolicy(ctx))

	t.Cleanup(func() {
		cancel()
		if s.watcher != nil {
			s.watcher.Stop()
		}
		s.closeResources(context.Background())
	})
	return s, s.handler(ctx)
}

func serve(h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

const decideBody = `{
	"intent": {"id": "intent-srv", "action": "scale-out", "priority": "high"},
	"candidates": ["agent-a"],
	"votes": [
		{"voter": "ops-1", "type": "approve"},
		{"voter": "ops-2", "type": "approve"},
		{"voter": "ops-3", "type": "reject"}
	]
}`

func registerVoters(t *testing.T, h http.Handler, header map[string]string) {
	t.Helper()
	for _, id := range []string{"ops-1", "ops-2", "ops-3"} {
		w := serve(h, http.MethodPost, "/api/v1/voters", `{"id":"`+id+`"}`, header)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
}

func TestServer_DecisionFlowWithAudit(t *testing.T) {
	s, h := newTestServer(t, nil)
	registerVoters(t, h, nil)

	w := serve(h, http.MethodPost, "/api/v1/decisions", decideBody, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, w.Header().Get("X-Request-ID"), resp.RequestID)

	w = serve(h, http.MethodGet, "/api/v1/audit/verify", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)

	seq, _ := s.ledger.Head()
	assert.Equal(t, uint64(1), seq)

	w = serve(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = serve(h, http.MethodGet, "/version", "", nil)
	assert.Contains(t, w.Body.String(), Version)
}

func TestServer_AuditDisabledHidesRoutes(t *testing.T) {
	_, h := newTestServer(t, func(c *config.Config) { c.Audit.Enabled = false })

	w := serve(h, http.MethodGet, "/api/v1/audit", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_APIKeyRequired(t *testing.T) {
	_, h := newTestServer(t, func(c *config.Config) { c.Server.APIKeys = []string{"secret-key"} })

	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v1/voters", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/v1/voters", "", map[string]string{"X-API-Key": "secret-key"}).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "", nil).Code)
}

func TestServer_JWTOperatorGuard(t *testing.T) {
	_, h := newTestServer(t, func(c *config.Config) { c.Server.JWT.Secret = jwtSecret })

	bearer := func(roles ...string) map[string]string {
		tok := signHS256(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix(), "roles": roles})
		return map[string]string{"Authorization": "Bearer " + tok}
	}

	viewer := bearer("viewer")
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodPost, "/api/v1/voters", `{"id":"ops-1"}`, viewer).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/v1/voters", "", viewer).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/api/v1/config", "", viewer).Code)

	operator := bearer("operator")
	registerVoters(t, h, operator)

	w := serve(h, http.MethodGet, "/api/v1/config", "", operator)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), jwtSecret)
}

func TestServer_PolicyFileApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "v7"
include_defaults: true
rules:
  - id: scale-guard
    category: safety
    action: reject
    severity: 9
    conditions:
      - field: action
        operator: eq
        value: scale-out
`), 0o600))

	_, h := newTestServer(t, func(c *config.Config) {
		c.Policy.Path = path
		c.Policy.WatchInterval = 0
	})
	registerVoters(t, h, nil)

	w := serve(h, http.MethodGet, "/api/v1/policy", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"v7"`)

	w = serve(h, http.MethodPost, "/api/v1/decisions", decideBody, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"decision_type":"reject"`)
}

func TestServer_RecommenderEmbeddingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`embeddings:
  agent-a: [1, 0]
  agent-b: [0, 1]
`), 0o600))

	_, h := newTestServer(t, func(c *config.Config) {
		c.Engine.StrictRecommender = true
		c.Recommender.Enabled = true
		c.Recommender.CacheEnabled = false
		c.Recommender.Dimension = 2
		c.Recommender.EmbeddingsFile = path
	})
	registerVoters(t, h, nil)

	w := serve(h, http.MethodPost, "/api/v1/decisions", decideBody, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"recommendation":{"agent_id":"agent-a"`)
}

func TestServer_RecommenderEmbeddingsFileInvalid(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Recommender.Enabled = true
	cfg.Recommender.EmbeddingsFile = filepath.Join(t.TempDir(), "missing.yaml")

	s := NewServer(cfg, zap.NewNop())
	_, err := s.buildRecommender()
	assert.ErrorContains(t, err, "embeddings file")
}

func TestServer_DatabaseAuditBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	mutate := func(c *config.Config) {
		c.Audit.Backends = []string{"database", "memory"}
		c.Database = config.DatabaseConfig{
			Driver:       "sqlite",
			Name:         dbPath,
			MaxOpenConns: 1,
			MaxIdleConns: 1,
			AutoMigrate:  true,
		}
	}

	s, h := newTestServer(t, mutate)
	registerVoters(t, h, nil)
	w := serve(h, http.MethodPost, "/api/v1/decisions", decideBody, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, s.stores.pool)

	// 迁移建立的表结构可以被 GORM 存储读回并通过校验
	cfg := config.DefaultConfig()
	mutate(cfg)
	cfg.Audit.Backends = []string{"database"}
	stores, err := openAuditStores(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer stores.close(context.Background())

	report, err := audit.VerifyStore(context.Background(), stores.store, 10)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.Entries)

	var out bytes.Buffer
	printVerifyReport(&out, report)
	assert.Contains(t, out.String(), "OK: 1 entries")
}

func TestOpenAuditStores_UnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Audit.Backends = []string{"memory", "tape"}

	_, err := openAuditStores(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "tape")
}

func TestRunRules(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`version: "1"
include_defaults: true
rules: []
`), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte(`rules: [{id: x, category: vibes}]`), 0o600))

	var out bytes.Buffer
	require.NoError(t, runRules([]string{"validate", good}, &out))
	assert.Contains(t, out.String(), "3 rules")

	assert.Error(t, runRules([]string{"validate", bad}, &out))
	assert.Error(t, runRules([]string{"lint", good}, &out))
}

func TestRunHealthCheck(t *testing.T) {
	_, h := newTestServer(t, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runHealthCheck([]string{"--addr", srv.URL}, &out))
	assert.Equal(t, "OK\n", out.String())

	assert.Error(t, runHealthCheck([]string{"--addr", srv.URL, "--path", "/missing"}, &out))
}

func TestPrintVerifyReport_Broken(t *testing.T) {
	var out bytes.Buffer
	printVerifyReport(&out, audit.VerifyReport{Entries: 4, BrokenAt: 5, Reason: "hash mismatch"})
	assert.Equal(t, "BROKEN at sequence 5 after 4 entries: hash mismatch\n", out.String())
}
