package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/adforge/internal/services/jobwatch"
	"github.com/ternarybob/arbor"
)

// SessionHandler exposes the job watcher over HTTP
type SessionHandler struct {
	sessions SessionController
	logger   arbor.ILogger
}

func NewSessionHandler(sessions SessionController, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// StartHandler starts a backend job and begins watching it
func (h *SessionHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	jobID, err := h.sessions.StartJob(r.Context())
	if err != nil {
		var startErr *jobwatch.JobStartFailedError
		switch {
		case errors.As(err, &startErr):
			WriteError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, jobwatch.ErrClosed):
			WriteError(w, http.StatusServiceUnavailable, err.Error())
		default:
			WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"job_id":  jobID,
		"session": h.sessions.Snapshot(),
	})
}

// GetHandler returns the current session (an empty session when none is active)
func (h *SessionHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.sessions.Snapshot())
}

// DeleteHandler stops polling and clears the session
func (h *SessionHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	h.sessions.Discard()
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Session discarded",
	})
}

// PollHandler performs one explicit poll of the active job
func (h *SessionHandler) PollHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	session, err := h.sessions.Poll(r.Context())
	if err != nil {
		if errors.Is(err, jobwatch.ErrNoSession) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
			"status":  "error",
			"error":   err.Error(),
			"session": session,
		})
		return
	}

	WriteJSON(w, http.StatusOK, session)
}

// StopHandler halts polling but keeps the session visible
func (h *SessionHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.sessions.Stop()
	WriteJSON(w, http.StatusOK, h.sessions.Snapshot())
}
