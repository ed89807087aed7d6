package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// timestampFormat matches the timestamps written into job logs
const timestampFormat = "2006-01-02T15:04:05.000000"

// BackendHandler serves the agent job backend API consumed by the job watcher
// (POST /start-campaign, GET /get-campaign-status/{id}, ...)
type BackendHandler struct {
	jobs   JobBackend
	tester interfaces.ConnectionTester
	logger arbor.ILogger
}

// NewBackendHandler creates the backend handler. tester may be nil when no LLM is configured.
func NewBackendHandler(jobs JobBackend, tester interfaces.ConnectionTester, logger arbor.ILogger) *BackendHandler {
	return &BackendHandler{
		jobs:   jobs,
		tester: tester,
		logger: logger,
	}
}

// StartCampaignHandler starts a new agent job
func (h *BackendHandler) StartCampaignHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID, err := h.jobs.Start(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to start campaign analysis")
		WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"job_id":  jobID,
		"message": "Campaign analysis started",
	})
}

// CampaignStatusHandler returns a job's info and its complete log
func (h *BackendHandler) CampaignStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := r.PathValue("id")
	report, err := h.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteJSON(w, http.StatusNotFound, map[string]interface{}{
				"success": false,
				"error":   "Job not found",
			})
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read job status")
		WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// ListJobsHandler lists every known job keyed by id
func (h *BackendHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobs, err := h.jobs.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"jobs":    jobs,
	})
}

// HealthHandler reports that the backend is up
func (h *BackendHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "AdForge Agent Backend is running",
		"timestamp": time.Now().Format(timestampFormat),
	})
}

// TestGeminiHandler checks that the reasoning provider answers
func (h *BackendHandler) TestGeminiHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	now := time.Now().Format(timestampFormat)
	if h.tester == nil {
		WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success":          false,
			"gemini_connected": false,
			"error":            "Gemini API key is not configured",
			"message":          "Please set GEMINI_API_KEY environment variable",
			"timestamp":        now,
		})
		return
	}

	connected, err := h.tester.TestConnection(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Gemini connection test failed")
	}

	message := "Gemini API is working"
	if !connected {
		message = "Gemini API connection failed - using fallback responses"
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"gemini_connected": connected,
		"message":          message,
		"timestamp":        now,
	})
}
