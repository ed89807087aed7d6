package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/adforge/internal/services/campaign"
	"github.com/ternarybob/arbor"
)

type fixedScripts struct {
	drafts []models.Draft
	err    error
}

func (s *fixedScripts) GenerateDrafts(ctx context.Context, productDescription, audiences string) ([]models.Draft, error) {
	return s.drafts, s.err
}

type fixedImages struct{}

func (fixedImages) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return "data:image/jpeg;base64,QUJD", nil
}

// failingRunner returns err from every RunGeneration call
type failingRunner struct {
	err error
}

func (r *failingRunner) RunGeneration(ctx context.Context, productDescription, audiences string) (*campaign.Run, error) {
	return nil, r.err
}

func (r *failingRunner) Snapshot() models.RunSnapshot {
	return models.RunSnapshot{Status: models.RunStatusFailed, Error: r.err.Error()}
}

func newTestOrchestrator(t *testing.T, scripts *fixedScripts) *campaign.Orchestrator {
	t.Helper()
	o := campaign.NewOrchestrator(scripts, fixedImages{}, nil, arbor.NewNoOpLogger(), campaign.Options{})
	t.Cleanup(func() { o.Close() })
	return o
}

func postGenerate(handler *CampaignHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.GenerateHandler(rec, req)
	return rec
}

func TestGenerateHandler_Accepted(t *testing.T) {
	orchestrator := newTestOrchestrator(t, &fixedScripts{drafts: []models.Draft{
		{Audience: "Remote Workers", Script: "Stay warm", ImagePrompt: "mug on desk"},
		{Audience: "Students", Script: "Stay awake", ImagePrompt: "mug on books"},
	}})
	handler := NewCampaignHandler(orchestrator, arbor.NewNoOpLogger())

	rec := postGenerate(handler, `{"product_description":"Smart mug","audiences":"Remote Workers, Students"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Token    uint64             `json:"token"`
		Snapshot models.RunSnapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.Token)
	assert.Equal(t, uint64(1), resp.Snapshot.Token)
	require.Len(t, resp.Snapshot.Items, 2)
	assert.Equal(t, "Remote Workers", resp.Snapshot.Items[0].Audience)
	assert.Equal(t, "Students", resp.Snapshot.Items[1].Audience)
	// The response carries the run's own drafted state, even if images already landed
	assert.Equal(t, models.RunStatusImagesInFlight, resp.Snapshot.Status)
	assert.Equal(t, models.ImageStatusPending, resp.Snapshot.Items[0].Image.Status)

	require.Eventually(t, func() bool {
		return orchestrator.Snapshot().Status == models.RunStatusDone
	}, 2*time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	handler.CurrentHandler(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var current models.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, models.RunStatusDone, current.Status)
	assert.Equal(t, models.ImageStatusReady, current.Items[1].Image.Status)

	rec = httptest.NewRecorder()
	handler.ReportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns/current/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<h2>1. Remote Workers</h2>")
}

func TestGenerateHandler_InvalidInput(t *testing.T) {
	handler := NewCampaignHandler(newTestOrchestrator(t, &fixedScripts{}), arbor.NewNoOpLogger())

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"blank product", `{"product_description":"  ","audiences":"Students"}`, "product_description is required"},
		{"missing audiences", `{"product_description":"Smart mug"}`, "audiences is required"},
		{"malformed", `{"product_description":`, "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postGenerate(handler, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}
}

func TestGenerateHandler_EmptyResult(t *testing.T) {
	handler := NewCampaignHandler(newTestOrchestrator(t, &fixedScripts{}), arbor.NewNoOpLogger())

	rec := postGenerate(handler, `{"product_description":"Smart mug","audiences":"Students"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), campaign.ErrEmptyResult.Error())
}

func TestGenerateHandler_DraftingFailed(t *testing.T) {
	handler := NewCampaignHandler(newTestOrchestrator(t, &fixedScripts{err: errors.New("quota exceeded")}), arbor.NewNoOpLogger())

	rec := postGenerate(handler, `{"product_description":"Smart mug","audiences":"Students"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota exceeded")
}

func TestStatusForRunError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{campaign.ErrInvalidInput, http.StatusBadRequest},
		{campaign.ErrEmptyResult, http.StatusUnprocessableEntity},
		{campaign.ErrRunSuperseded, http.StatusConflict},
		{campaign.ErrClosed, http.StatusServiceUnavailable},
		{&campaign.DraftingFailedError{Message: "boom"}, http.StatusBadGateway},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		handler := NewCampaignHandler(&failingRunner{err: tt.err}, arbor.NewNoOpLogger())
		rec := postGenerate(handler, `{"product_description":"Smart mug","audiences":"Students"}`)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}

func TestReportHandler_NoRun(t *testing.T) {
	handler := NewCampaignHandler(newTestOrchestrator(t, &fixedScripts{}), arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	handler.ReportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns/current/report", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateHandler_MethodNotAllowed(t *testing.T) {
	handler := NewCampaignHandler(newTestOrchestrator(t, &fixedScripts{}), arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	handler.GenerateHandler(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
