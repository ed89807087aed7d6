package campaign

import (
	"context"

	"github.com/ternarybob/adforge/internal/models"
)

// Run is a handle on one generation run
type Run struct {
	token        uint64
	drafted      models.RunSnapshot
	orchestrator *Orchestrator
	done         chan struct{}
}

// Token returns the run-generation token of this run
func (r *Run) Token() uint64 {
	return r.token
}

// Drafted returns this run's snapshot as of the end of drafting, every image pending
func (r *Run) Drafted() models.RunSnapshot {
	return r.drafted.Clone()
}

// Done is closed once every image call dispatched for this run has returned
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run's image calls have all returned and returns the final snapshot.
// ErrRunSuperseded is returned if a newer run has replaced this one.
func (r *Run) Wait(ctx context.Context) (models.RunSnapshot, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return models.RunSnapshot{}, ctx.Err()
	}

	snapshot := r.orchestrator.Snapshot()
	if snapshot.Token != r.token {
		return models.RunSnapshot{}, ErrRunSuperseded
	}
	return snapshot, nil
}
