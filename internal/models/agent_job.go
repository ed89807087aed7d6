package models

import (
	"time"
)

// AgentJob is the persisted record of one in-process agent run
type AgentJob struct {
	ID         string     `json:"id" badgerhold:"key"`
	Status     JobStatus  `json:"status" badgerhold:"index"`
	TotalSteps int        `json:"total_steps"`
	Result     []byte     `json:"result,omitempty"` // Final summary as JSON
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Info converts the record into the job_info wire object
func (j *AgentJob) Info(progress float64) JobInfo {
	info := JobInfo{
		Status:    j.Status,
		CreatedAt: j.CreatedAt.Format("2006-01-02T15:04:05.000000"),
		Progress:  ClampProgress(progress),
		Error:     j.Error,
	}
	if len(j.Result) > 0 {
		info.Result = append([]byte(nil), j.Result...)
	}
	return info
}

// AgentLogRecord stores one encoded LogEntry.
// Sequence is the 1-based position within the job and defines ordering.
type AgentLogRecord struct {
	Key      string `badgerhold:"key"`
	JobID    string `badgerhold:"index"`
	Sequence int
	Entry    []byte // LogEntry JSON including extras
}
