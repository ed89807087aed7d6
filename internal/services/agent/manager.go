// -----------------------------------------------------------------------
// Agent job manager - in-process job backend for the OODA agent
// -----------------------------------------------------------------------

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/arbor"
)

// ErrManagerClosed is returned by Start after Close
var ErrManagerClosed = errors.New("agent manager is closed")

// ManagerOptions configures where observations come from and how long finished jobs are kept
type ManagerOptions struct {
	DatasetPath     string // empty = built-in demo rows
	DemoRows        int
	CleanupSchedule string // cron spec, empty disables pruning
	JobRetention    time.Duration
}

// Manager runs agent jobs in background goroutines and serves their status.
// It implements interfaces.JobService.
type Manager struct {
	storage      interfaces.AgentJobStorage
	agent        *Agent
	eventService interfaces.EventService
	logger       arbor.ILogger
	options      ManagerOptions

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool
	cron   *cron.Cron
}

var _ interfaces.JobService = (*Manager)(nil)

// NewManager creates a job manager. eventService may be nil.
func NewManager(storage interfaces.AgentJobStorage, agent *Agent, eventService interfaces.EventService, logger arbor.ILogger, options ManagerOptions) *Manager {
	if options.DemoRows <= 0 {
		options.DemoRows = 3
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		storage:      storage,
		agent:        agent,
		eventService: eventService,
		logger:       logger,
		options:      options,
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
	}
}

// Start registers a new job and runs the agent for it in the background
func (m *Manager) Start(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	job := &models.AgentJob{
		ID:        common.NewJobID(),
		Status:    models.JobStatusStarting,
		CreatedAt: time.Now(),
	}
	if err := m.storage.SaveJob(ctx, job); err != nil {
		m.wg.Done()
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	jobID := job.ID
	m.logger.WithCorrelationId(jobID).Info().Str("job_id", jobID).Msg("Campaign analysis started")
	m.emit(interfaces.EventAgentJobStarted, jobID, models.JobStatusStarting, "")

	common.SafeGo(m.logger, "agentJob", func() {
		defer m.wg.Done()
		m.runJob(m.baseCtx, job)
	})

	return jobID, nil
}

func (m *Manager) runJob(ctx context.Context, job *models.AgentJob) {
	// Status writes use their own context so a shutdown still records the outcome
	saveCtx := context.Background()
	jobLogger := m.logger.WithCorrelationId(job.ID)

	job.Status = models.JobStatusRunning
	if err := m.storage.SaveJob(saveCtx, job); err != nil {
		jobLogger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job running")
	}

	summary, err := m.execute(ctx, job)

	now := time.Now()
	job.FinishedAt = &now
	if err != nil {
		job.Status = models.JobStatusError
		job.Error = err.Error()
		jobLogger.Error().Err(err).Str("job_id", job.ID).Msg("Agent job failed")
	} else {
		job.Status = models.JobStatusCompleted
		if result, encErr := json.Marshal(summary); encErr == nil {
			job.Result = result
		}
		jobLogger.Info().Str("job_id", job.ID).Int("steps", job.TotalSteps).Msg("Agent job completed")
	}

	if err := m.storage.SaveJob(saveCtx, job); err != nil {
		jobLogger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to save final job status")
	}
	m.emit(interfaces.EventAgentJobFinished, job.ID, job.Status, job.Error)
}

func (m *Manager) execute(ctx context.Context, job *models.AgentJob) (CampaignSummary, error) {
	observations, err := m.loadObservations()
	if err != nil {
		return CampaignSummary{}, err
	}

	job.TotalSteps = len(observations)
	if err := m.storage.SaveJob(context.Background(), job); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record total steps")
	}

	sink := func(ctx context.Context, entry models.LogEntry) error {
		return m.storage.AppendLog(ctx, job.ID, entry)
	}
	return m.agent.Run(ctx, NewSimulator(observations), sink)
}

func (m *Manager) loadObservations() ([]Observation, error) {
	if m.options.DatasetPath == "" {
		return DemoObservations(m.options.DemoRows), nil
	}
	return LoadObservations(m.options.DatasetPath, m.options.DemoRows)
}

// GetStatus returns the job info and the full ordered log.
// Progress is the share of observations whose action has completed.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*models.JobStatusReport, error) {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	entries, err := m.storage.GetLogs(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &models.JobStatusReport{
		Success:      true,
		JobInfo:      job.Info(Progress(entries, job.TotalSteps)),
		LogEntries:   entries,
		TotalEntries: len(entries),
	}, nil
}

// Progress computes min(100, completed actions / totalSteps * 100)
func Progress(entries []models.LogEntry, totalSteps int) float64 {
	if totalSteps <= 0 {
		return 0
	}
	completed := 0
	for _, entry := range entries {
		if entry.Step == models.StepAct && entry.SubStep == models.SubStepCompleted {
			completed++
		}
	}
	return min(100, float64(completed)/float64(totalSteps)*100)
}

// List returns every known job keyed by id, with progress filled in
func (m *Manager) List(ctx context.Context) (map[string]models.JobInfo, error) {
	jobs, err := m.storage.ListJobs(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]models.JobInfo, len(jobs))
	for _, job := range jobs {
		entries, err := m.storage.GetLogs(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		result[job.ID] = job.Info(Progress(entries, job.TotalSteps))
	}
	return result, nil
}

// Prune deletes finished jobs older than the retention period
func (m *Manager) Prune(ctx context.Context) (int, error) {
	if m.options.JobRetention <= 0 {
		return 0, nil
	}
	deleted, err := m.storage.DeleteFinishedBefore(ctx, time.Now().Add(-m.options.JobRetention))
	if err != nil {
		return deleted, fmt.Errorf("failed to prune jobs: %w", err)
	}
	if deleted > 0 {
		m.logger.Info().Int("deleted", deleted).Msg("Pruned finished agent jobs")
	}
	return deleted, nil
}

// StartCleanup schedules Prune on the configured cron spec
func (m *Manager) StartCleanup() error {
	if m.options.CleanupSchedule == "" || m.options.JobRetention <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if m.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(m.options.CleanupSchedule, func() {
		if _, err := m.Prune(m.baseCtx); err != nil {
			m.logger.Warn().Err(err).Msg("Scheduled job cleanup failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", m.options.CleanupSchedule, err)
	}
	c.Start()
	m.cron = c

	m.logger.Debug().
		Str("schedule", m.options.CleanupSchedule).
		Dur("retention", m.options.JobRetention).
		Msg("Agent job cleanup scheduled")
	return nil
}

// Close cancels running jobs and waits for them to record their final status
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	m.baseCancel()
	m.wg.Wait()
	return nil
}

func (m *Manager) emit(eventType interfaces.EventType, jobID string, status models.JobStatus, errMsg string) {
	if m.eventService == nil {
		return
	}
	payload := map[string]interface{}{
		"job_id": jobID,
		"status": string(status),
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	if err := m.eventService.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		m.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish job event")
	}
}
