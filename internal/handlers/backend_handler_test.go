package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/arbor"
)

type stubTester struct {
	connected bool
	err       error
}

func (s stubTester) TestConnection(ctx context.Context) (bool, error) {
	return s.connected, s.err
}

func backendMux(handler *BackendHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/start-campaign", handler.StartCampaignHandler)
	mux.HandleFunc("/get-campaign-status/{id}", handler.CampaignStatusHandler)
	mux.HandleFunc("/list-jobs", handler.ListJobsHandler)
	mux.HandleFunc("/health", handler.HealthHandler)
	mux.HandleFunc("/test-gemini", handler.TestGeminiHandler)
	return mux
}

func serve(mux http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestBackendHandler_StartCampaign(t *testing.T) {
	mux := backendMux(NewBackendHandler(&scriptedJobs{}, nil, arbor.NewNoOpLogger()))

	rec := serve(mux, http.MethodPost, "/start-campaign")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "job-42", body["job_id"])

	rec = serve(mux, http.MethodGet, "/start-campaign")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBackendHandler_StartCampaignFailure(t *testing.T) {
	mux := backendMux(NewBackendHandler(&scriptedJobs{startErr: errors.New("storage offline")}, nil, arbor.NewNoOpLogger()))

	rec := serve(mux, http.MethodPost, "/start-campaign")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "storage offline", body["error"])
}

func TestBackendHandler_CampaignStatus(t *testing.T) {
	jobs := &scriptedJobs{}
	mux := backendMux(NewBackendHandler(jobs, nil, arbor.NewNoOpLogger()))

	rec := serve(mux, http.MethodGet, "/get-campaign-status/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Job not found"}`, rec.Body.String())

	jobs.setReport(&models.JobStatusReport{
		Success:      true,
		JobInfo:      models.JobInfo{Status: models.JobStatusCompleted, Progress: 100},
		LogEntries:   []models.LogEntry{{Step: models.StepComplete, Message: "done"}},
		TotalEntries: 1,
	})

	rec = serve(mux, http.MethodGet, "/get-campaign-status/job-42")
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.JobStatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, models.JobStatusCompleted, report.JobInfo.Status)
	assert.Equal(t, 1, report.TotalEntries)
	assert.Equal(t, models.StepComplete, report.LogEntries[0].Step)
}

func TestBackendHandler_ListJobs(t *testing.T) {
	jobs := &scriptedJobs{jobs: map[string]models.JobInfo{
		"job-1": {Status: models.JobStatusRunning, Progress: 33.3},
	}}
	mux := backendMux(NewBackendHandler(jobs, nil, arbor.NewNoOpLogger()))

	rec := serve(mux, http.MethodGet, "/list-jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool                      `json:"success"`
		Jobs    map[string]models.JobInfo `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, models.JobStatusRunning, body.Jobs["job-1"].Status)
}

func TestBackendHandler_Health(t *testing.T) {
	mux := backendMux(NewBackendHandler(&scriptedJobs{}, nil, arbor.NewNoOpLogger()))

	rec := serve(mux, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "AdForge Agent Backend is running", body["message"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestBackendHandler_TestGemini(t *testing.T) {
	tests := []struct {
		name      string
		tester    *stubTester
		status    int
		connected bool
		message   string
	}{
		{"not configured", nil, http.StatusInternalServerError, false, "Please set GEMINI_API_KEY environment variable"},
		{"connected", &stubTester{connected: true}, http.StatusOK, true, "Gemini API is working"},
		{"failing", &stubTester{err: errors.New("403")}, http.StatusOK, false, "Gemini API connection failed - using fallback responses"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewBackendHandler(&scriptedJobs{}, nil, arbor.NewNoOpLogger())
			if tt.tester != nil {
				handler = NewBackendHandler(&scriptedJobs{}, *tt.tester, arbor.NewNoOpLogger())
			}

			rec := serve(backendMux(handler), http.MethodGet, "/test-gemini")
			require.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.connected, body["gemini_connected"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}
