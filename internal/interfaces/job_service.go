package interfaces

import (
	"context"

	"github.com/ternarybob/adforge/internal/models"
)

// JobService is a job backend that can be started and polled.
// GetStatus always returns the full ordered log produced so far.
type JobService interface {
	Start(ctx context.Context) (string, error)
	GetStatus(ctx context.Context, jobID string) (*models.JobStatusReport, error)
}
