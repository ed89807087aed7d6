// -----------------------------------------------------------------------
// Job-state reconciler - polls a job backend and mirrors its state locally
// -----------------------------------------------------------------------

package jobwatch

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/adforge/internal/services/events"
	"github.com/ternarybob/arbor"
)

// DefaultPollInterval is used when no interval is configured
const DefaultPollInterval = time.Second

// pollLoop is one running ticker goroutine
type pollLoop struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Reconciler owns the single active job session.
//
// Each tick fetches the backend's status and full log and replaces the local
// copy wholesale. Polling stops for good once the job reports COMPLETED or ERROR.
type Reconciler struct {
	jobs         interfaces.JobService
	eventService interfaces.EventService
	logger       arbor.ILogger
	interval     time.Duration

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// startMu serialises StartJob so only one backend start is in flight
	startMu sync.Mutex

	mu      sync.Mutex
	session *models.JobSession
	version uint64
	loop    *pollLoop
	closed  bool
	feed    *events.Feed[models.JobSession]
}

// NewReconciler creates a reconciler with no session. eventService may be nil.
func NewReconciler(jobs interfaces.JobService, eventService interfaces.EventService, logger arbor.ILogger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Reconciler{
		jobs:         jobs,
		eventService: eventService,
		logger:       logger,
		interval:     interval,
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
		feed:         events.NewFeed[models.JobSession](),
	}
}

// StartJob discards any current session, starts a job on the backend and begins polling it
func (r *Reconciler) StartJob(ctx context.Context) (string, error) {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	r.Discard()

	jobID, err := r.jobs.Start(ctx)
	if err == nil && jobID == "" {
		err = fmt.Errorf("backend returned an empty job id")
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("Job start failed")
		return "", &JobStartFailedError{Message: err.Error(), Err: err}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}

	now := time.Now()
	r.session = &models.JobSession{
		JobID:      jobID,
		Status:     models.SessionStatusRunning,
		LogEntries: []models.LogEntry{},
		Polling:    true,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	r.publishLocked()

	loopCtx, cancel := context.WithCancel(r.baseCtx)
	loop := &pollLoop{cancel: cancel}
	r.loop = loop
	loop.wg.Add(1)
	r.mu.Unlock()

	common.SafeGo(r.logger, "jobPoll", func() {
		defer loop.wg.Done()
		r.run(loopCtx, loop)
	})

	r.logger.Info().
		Str("job_id", jobID).
		Dur("interval", r.interval).
		Msg("Job started, polling for status")
	r.emit(interfaces.EventSessionStarted, jobID, models.SessionStatusRunning, "")

	return jobID, nil
}

// run ticks until the context is cancelled or the job reaches a terminal status
func (r *Reconciler) run(ctx context.Context, loop *pollLoop) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if done := r.tick(ctx, loop); done {
				return
			}
		}
	}
}

// tick performs one scheduled poll. It returns true when the loop should exit.
func (r *Reconciler) tick(ctx context.Context, loop *pollLoop) bool {
	r.mu.Lock()
	if r.loop != loop || r.session == nil || r.session.Status.IsTerminal() {
		r.mu.Unlock()
		return true
	}
	jobID := r.session.JobID
	r.mu.Unlock()

	report, err := r.fetch(ctx, jobID)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn().Err(err).Str("job_id", jobID).Msg("Poll failed, will retry next tick")
		}
		return false
	}

	_, terminal := r.apply(loop, jobID, report)
	return terminal
}

// Poll performs one explicit fetch-and-merge and returns the resulting session.
// Polling an unchanged backend leaves the session, including its Version, unchanged.
func (r *Reconciler) Poll(ctx context.Context) (models.JobSession, error) {
	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return models.JobSession{}, ErrNoSession
	}
	if r.session.Status.IsTerminal() {
		snapshot := r.session.Clone()
		r.mu.Unlock()
		return snapshot, nil
	}
	jobID := r.session.JobID
	r.mu.Unlock()

	report, err := r.fetch(ctx, jobID)
	if err != nil {
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("Poll failed")
		return r.Snapshot(), err
	}

	snapshot, _ := r.apply(nil, jobID, report)
	return snapshot, nil
}

func (r *Reconciler) fetch(ctx context.Context, jobID string) (*models.JobStatusReport, error) {
	report, err := r.jobs.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("empty status response")
	}
	if !report.Success {
		msg := report.Error
		if msg == "" {
			msg = "backend reported success=false"
		}
		return nil, fmt.Errorf("status request rejected: %s", msg)
	}
	return report, nil
}

// apply merges a status report into the session.
// loop is nil for explicit polls; a scheduled tick only applies while its loop is current.
func (r *Reconciler) apply(loop *pollLoop, jobID string, report *models.JobStatusReport) (models.JobSession, bool) {
	r.mu.Lock()

	if r.session == nil || r.session.JobID != jobID || (loop != nil && r.loop != loop) {
		r.mu.Unlock()
		return models.JobSession{}, true
	}
	if r.session.Status.IsTerminal() {
		snapshot := r.session.Clone()
		r.mu.Unlock()
		return snapshot, true
	}

	entries := report.LogEntries
	if entries == nil {
		entries = []models.LogEntry{}
	}
	status := models.SessionStatusFor(report.JobInfo.Status)
	progress := models.ClampProgress(report.JobInfo.Progress)

	s := r.session
	changed := s.Status != status ||
		s.BackendStatus != report.JobInfo.Status ||
		s.Progress != progress ||
		s.Error != report.JobInfo.Error ||
		!bytes.Equal(s.Result, report.JobInfo.Result) ||
		!models.LogEntriesEqual(s.LogEntries, entries)

	terminal := status.IsTerminal()
	if changed {
		s.LogEntries = models.CloneLogEntries(entries)
		s.Status = status
		s.BackendStatus = report.JobInfo.Status
		s.Progress = progress
		s.Error = report.JobInfo.Error
		s.Result = append([]byte(nil), report.JobInfo.Result...)
		if len(s.Result) == 0 {
			s.Result = nil
		}
		if terminal {
			s.Polling = false
		}
		s.UpdatedAt = time.Now()
		r.publishLocked()
	}
	snapshot := s.Clone()
	r.mu.Unlock()

	if changed {
		r.logger.Debug().
			Str("job_id", jobID).
			Str("status", string(status)).
			Int("entries", len(entries)).
			Msg("Job session updated")
	}
	if terminal && changed {
		r.logger.Info().
			Str("job_id", jobID).
			Str("status", string(status)).
			Msg("Job reached terminal status, polling stopped")
		r.emit(interfaces.EventSessionFinished, jobID, status, report.JobInfo.Error)
	}

	return snapshot, terminal
}

// Stop halts scheduled polling. When it returns, no further tick will run.
// The session stays observable.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	loop := r.loop
	r.loop = nil
	if r.session != nil && r.session.Polling {
		r.session.Polling = false
		r.publishLocked()
	}
	r.mu.Unlock()

	if loop != nil {
		loop.cancel()
		loop.wg.Wait()
	}
}

// Discard stops polling and clears the session
func (r *Reconciler) Discard() {
	r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.session = nil
		r.publishLocked()
	}
}

// Snapshot returns a copy of the current session, or a zero session when none exists
func (r *Reconciler) Snapshot() models.JobSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Subscribe returns a channel that always holds the latest session, starting with the current one
func (r *Reconciler) Subscribe() (<-chan models.JobSession, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.feed.Subscribe(r.snapshotLocked())
}

// Close stops polling and closes every subscription
func (r *Reconciler) Close() error {
	r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.baseCancel()
	r.feed.Close()
	return nil
}

func (r *Reconciler) snapshotLocked() models.JobSession {
	if r.session == nil {
		return models.JobSession{Version: r.version, LogEntries: []models.LogEntry{}}
	}
	return r.session.Clone()
}

// publishLocked bumps the version and pushes a copy to subscribers. Caller holds mu.
func (r *Reconciler) publishLocked() {
	r.version++
	if r.session != nil {
		r.session.Version = r.version
	}
	r.feed.Publish(r.snapshotLocked())
}

func (r *Reconciler) emit(eventType interfaces.EventType, jobID string, status models.SessionStatus, errMsg string) {
	if r.eventService == nil {
		return
	}
	payload := map[string]interface{}{
		"job_id": jobID,
		"status": string(status),
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	if err := r.eventService.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		r.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish session event")
	}
}
