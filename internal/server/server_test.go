package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/adforge/internal/app"
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/arbor"
)

func newTestServer(t *testing.T, mutate func(*common.Config)) *Server {
	t.Helper()
	for _, key := range []string{"ADFORGE_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"} {
		t.Setenv(key, "")
	}

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.InMemory = true
	cfg.Agent.StepDelay = "1ms"
	cfg.Agent.CleanupSchedule = ""
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.New(cfg, arbor.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	return New(application)
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRoutes_System(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var version common.VersionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.NotEmpty(t, version.Version)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/nope")

	rec = do(s, http.MethodOptions, "/api/campaigns", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutes_Campaigns(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(s, http.MethodPost, "/api/campaigns", `{"product_description":"","audiences":"Students"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "product_description is required")

	rec = do(s, http.MethodGet, "/api/campaigns/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"idle"`)

	rec = do(s, http.MethodGet, "/api/campaigns/current/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_SessionAgainstInProcessBackend(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AdForge Agent Backend is running")

	rec = do(s, http.MethodGet, "/test-gemini", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(s, http.MethodPost, "/api/agent/session/poll", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodPost, "/api/agent/session", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var started struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.JobID)

	rec = do(s, http.MethodGet, "/get-campaign-status/"+started.JobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	rec = do(s, http.MethodGet, "/list-jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), started.JobID)

	rec = do(s, http.MethodPut, "/api/agent/session", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(s, http.MethodDelete, "/api/agent/session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_RemoteBackendHidesBackendAPI(t *testing.T) {
	s := newTestServer(t, func(cfg *common.Config) {
		cfg.Agent.BackendURL = "http://127.0.0.1:1"
	})

	rec := do(s, http.MethodPost, "/start-campaign", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodPost, "/api/agent/session", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
