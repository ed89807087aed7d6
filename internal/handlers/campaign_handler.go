package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/adforge/internal/report"
	"github.com/ternarybob/adforge/internal/services/campaign"
	"github.com/ternarybob/arbor"
)

// CampaignHandler exposes the generation orchestrator over HTTP
type CampaignHandler struct {
	runner CampaignRunner
	logger arbor.ILogger
}

func NewCampaignHandler(runner CampaignRunner, logger arbor.ILogger) *CampaignHandler {
	return &CampaignHandler{
		runner: runner,
		logger: logger,
	}
}

// GenerateHandler starts a run. It responds once drafting has finished;
// images keep arriving on /ws and through CurrentHandler.
//
// 202 drafts ready, images in flight
// 400 invalid input
// 409 superseded by a newer run while drafting
// 422 drafting returned no campaigns
// 502 drafting failed
func (h *CampaignHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.GenerateRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, models.ValidationMessage(err))
		return
	}

	run, err := h.runner.RunGeneration(r.Context(), req.ProductDescription, req.Audiences)
	if err != nil {
		status := statusForRunError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Msg("Campaign generation failed")
		}
		WriteError(w, status, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"token":    run.Token(),
		"snapshot": run.Drafted(),
	})
}

func statusForRunError(err error) int {
	var draftErr *campaign.DraftingFailedError
	switch {
	case errors.Is(err, campaign.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, campaign.ErrEmptyResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, campaign.ErrRunSuperseded):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &draftErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CurrentHandler returns the snapshot of the current run
func (h *CampaignHandler) CurrentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.runner.Snapshot())
}

// ReportHandler renders the current run as a standalone HTML page
func (h *CampaignHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	snapshot := h.runner.Snapshot()
	if snapshot.Token == 0 {
		WriteError(w, http.StatusNotFound, "no campaign has been generated yet")
		return
	}

	html, err := report.RenderHTML(snapshot)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to render campaign report")
		WriteError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(html)
}
