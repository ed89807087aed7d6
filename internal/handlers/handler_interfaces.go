package handlers

import (
	"context"

	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/adforge/internal/services/campaign"
)

// CampaignRunner starts generation runs and exposes the current one
type CampaignRunner interface {
	RunGeneration(ctx context.Context, productDescription, audiences string) (*campaign.Run, error)
	Snapshot() models.RunSnapshot
}

// SessionController drives the job watcher
type SessionController interface {
	StartJob(ctx context.Context) (string, error)
	Poll(ctx context.Context) (models.JobSession, error)
	Stop()
	Discard()
	Snapshot() models.JobSession
}

// JobBackend is the in-process agent job service plus its listing
type JobBackend interface {
	interfaces.JobService
	List(ctx context.Context) (map[string]models.JobInfo, error)
}
