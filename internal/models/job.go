// -----------------------------------------------------------------------
// Agent jobs - wire format of the job backend and the watcher session
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"strings"
	"time"
)

// JobStatus is the status reported by the job backend
type JobStatus string

const (
	JobStatusStarting  JobStatus = "STARTING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusError     JobStatus = "ERROR"
)

// IsTerminal returns true if the backend will not change the job any further
func (s JobStatus) IsTerminal() bool {
	switch JobStatus(strings.ToUpper(string(s))) {
	case JobStatusCompleted, JobStatusError:
		return true
	}
	return false
}

// SessionStatus is the watcher's view of a job
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// IsTerminal returns true for Completed and Error
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusError
}

// SessionStatusFor maps a backend status onto the session state machine.
// STARTING, RUNNING and anything unrecognised count as running.
func SessionStatusFor(status JobStatus) SessionStatus {
	switch JobStatus(strings.ToUpper(string(status))) {
	case JobStatusCompleted:
		return SessionStatusCompleted
	case JobStatusError:
		return SessionStatusError
	default:
		return SessionStatusRunning
	}
}

// JobInfo is the job_info object of a status response
type JobInfo struct {
	Status    JobStatus       `json:"status"`
	CreatedAt string          `json:"created_at"`
	Progress  float64         `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// JobStatusReport is the body of GET /get-campaign-status/{id}
type JobStatusReport struct {
	Success      bool       `json:"success"`
	JobInfo      JobInfo    `json:"job_info"`
	LogEntries   []LogEntry `json:"log_entries"`
	TotalEntries int        `json:"total_entries"`
	Error        string     `json:"error,omitempty"`
}

// StartJobResponse is the body of POST /start-campaign
type StartJobResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JobSession is the watcher's snapshot of one job.
// LogEntries is always the last full sequence the backend returned.
type JobSession struct {
	JobID         string          `json:"job_id"`
	Status        SessionStatus   `json:"status"`
	BackendStatus JobStatus       `json:"backend_status,omitempty"`
	Progress      float64         `json:"progress"`
	LogEntries    []LogEntry      `json:"log_entries"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	Polling       bool            `json:"polling"`
	Version       uint64          `json:"version"`
	StartedAt     time.Time       `json:"started_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to observers
func (s JobSession) Clone() JobSession {
	out := s
	out.LogEntries = CloneLogEntries(s.LogEntries)
	if s.Result != nil {
		out.Result = append(json.RawMessage(nil), s.Result...)
	}
	return out
}

// ClampProgress bounds a progress value to [0,100]
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
