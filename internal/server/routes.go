package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Campaign generation
	mux.HandleFunc("/api/campaigns", s.app.CampaignHandler.GenerateHandler)              // POST - start a run
	mux.HandleFunc("/api/campaigns/current", s.app.CampaignHandler.CurrentHandler)       // GET - current snapshot
	mux.HandleFunc("/api/campaigns/current/report", s.app.CampaignHandler.ReportHandler) // GET - HTML export

	// API routes - Agent job session (job watcher)
	mux.HandleFunc("/api/agent/session", s.handleSessionRoute)                  // GET/POST/DELETE
	mux.HandleFunc("/api/agent/session/poll", s.app.SessionHandler.PollHandler) // POST - explicit poll
	mux.HandleFunc("/api/agent/session/stop", s.app.SessionHandler.StopHandler) // POST - halt polling

	// Agent backend API, only when the backend runs in-process
	if s.app.BackendHandler != nil {
		mux.HandleFunc("/start-campaign", s.app.BackendHandler.StartCampaignHandler)
		mux.HandleFunc("/get-campaign-status/{id}", s.app.BackendHandler.CampaignStatusHandler)
		mux.HandleFunc("/list-jobs", s.app.BackendHandler.ListJobsHandler)
		mux.HandleFunc("/health", s.app.BackendHandler.HealthHandler)
		mux.HandleFunc("/test-gemini", s.app.BackendHandler.TestGeminiHandler)
	}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSessionRoute routes /api/agent/session by method
func (s *Server) handleSessionRoute(w http.ResponseWriter, r *http.Request) {
	RouteCRUD(w, r,
		s.app.SessionHandler.GetHandler,
		s.app.SessionHandler.StartHandler,
		nil,
		s.app.SessionHandler.DeleteHandler,
	)
}
