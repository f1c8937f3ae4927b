package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/markdave123-py/contexta-ingest/internal/config"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Port:          "0",
		BlobBackend:   config.BlobBackendDisk,
		BlobDir:       t.TempDir(),
		VectorBackend: config.VectorBackendSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "contexta.db"),
		EmbedProvider: config.EmbedProviderOpenAI,
		OpenAIBaseURL: "http://127.0.0.1:1/v1",
	}
	config.ApplyDefaults(cfg)
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewApp(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func do(h http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewApp_LocalBackends(t *testing.T) {
	a := newTestApp(t, localConfig(t))
	h := a.Server.Handler()

	rec := do(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/api/ingest/status?file_key=uploads/missing.pdf", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodPost, "/api/ingest", `{"file_key":"uploads/missing.pdf"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stage":"fetch"`)
}

func TestNewApp_QueueNotStarted(t *testing.T) {
	a := newTestApp(t, localConfig(t))

	rec := do(a.Server.Handler(), http.MethodPost, "/api/ingest/async", `{"file_key":"a.pdf"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewApp_JWTProtectsAPI(t *testing.T) {
	cfg := localConfig(t)
	cfg.JWTSecret = "s3cret"
	a := newTestApp(t, cfg)
	h := a.Server.Handler()

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(h, http.MethodGet, "/api/ingest/status?file_key=a.pdf", "", "").Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound,
		do(h, http.MethodGet, "/api/ingest/status?file_key=a.pdf", "", token).Code)
}

func TestNewApp_UnknownBackend(t *testing.T) {
	cfg := localConfig(t)
	cfg.BlobBackend = "ftp"

	_, err := NewApp(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, `unknown blob backend "ftp"`)
}
