package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/adforge/internal/models"
)

// ErrJobNotFound is returned when a job id is unknown to the backend
var ErrJobNotFound = errors.New("job not found")

// AgentJobStorage persists agent job records and their ordered log entries
type AgentJobStorage interface {
	SaveJob(ctx context.Context, job *models.AgentJob) error
	GetJob(ctx context.Context, jobID string) (*models.AgentJob, error)
	ListJobs(ctx context.Context) ([]*models.AgentJob, error)

	// AppendLog stores entry at the next position of the job's log
	AppendLog(ctx context.Context, jobID string, entry models.LogEntry) error
	// GetLogs returns every entry in append order
	GetLogs(ctx context.Context, jobID string) ([]models.LogEntry, error)
	CountLogs(ctx context.Context, jobID string) (int, error)

	// DeleteFinishedBefore removes terminal jobs (and their logs) finished before cutoff
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
