package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// AgentJobStorage implements interfaces.AgentJobStorage for Badger
type AgentJobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// appendMu serialises AppendLog so sequence numbers are gapless per job
	appendMu sync.Mutex
}

// NewAgentJobStorage creates a new AgentJobStorage instance
func NewAgentJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AgentJobStorage {
	return &AgentJobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AgentJobStorage) SaveJob(ctx context.Context, job *models.AgentJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	job.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *AgentJobStorage) GetJob(ctx context.Context, jobID string) (*models.AgentJob, error) {
	var job models.AgentJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns every stored job, oldest first
func (s *AgentJobStorage) ListJobs(ctx context.Context) ([]*models.AgentJob, error) {
	var jobs []models.AgentJob
	if err := s.db.Store().Find(&jobs, nil); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	result := make([]*models.AgentJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *AgentJobStorage) AppendLog(ctx context.Context, jobID string, entry models.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode log entry: %w", err)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	count, err := s.db.Store().Count(&models.AgentLogRecord{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return fmt.Errorf("failed to count logs: %w", err)
	}

	seq := int(count) + 1
	record := &models.AgentLogRecord{
		Key:      fmt.Sprintf("%s_%06d", jobID, seq),
		JobID:    jobID,
		Sequence: seq,
		Entry:    data,
	}
	if err := s.db.Store().Insert(record.Key, record); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// GetLogs returns the job's entries in append order. Undecodable records are skipped.
func (s *AgentJobStorage) GetLogs(ctx context.Context, jobID string) ([]models.LogEntry, error) {
	var records []models.AgentLogRecord
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("Sequence")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}

	entries := make([]models.LogEntry, 0, len(records))
	for _, record := range records {
		var entry models.LogEntry
		if err := json.Unmarshal(record.Entry, &entry); err != nil {
			s.logger.Warn().Err(err).Str("key", record.Key).Msg("Skipping undecodable log record")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *AgentJobStorage) CountLogs(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.AgentLogRecord{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return int(count), nil
}

// DeleteFinishedBefore removes COMPLETED and ERROR jobs that finished before cutoff, with their logs
func (s *AgentJobStorage) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var jobs []models.AgentJob
	query := badgerhold.Where("Status").In(models.JobStatusCompleted, models.JobStatusError)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return 0, fmt.Errorf("failed to find finished jobs: %w", err)
	}

	deleted := 0
	for _, job := range jobs {
		if job.FinishedAt == nil || !job.FinishedAt.Before(cutoff) {
			continue
		}
		if err := s.db.Store().DeleteMatching(&models.AgentLogRecord{}, badgerhold.Where("JobID").Eq(job.ID)); err != nil {
			return deleted, fmt.Errorf("failed to delete logs for %s: %w", job.ID, err)
		}
		if err := s.db.Store().Delete(job.ID, &models.AgentJob{}); err != nil && err != badgerhold.ErrNotFound {
			return deleted, fmt.Errorf("failed to delete job %s: %w", job.ID, err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("deleted", deleted).Str("cutoff", cutoff.Format(time.RFC3339)).Msg("Pruned finished agent jobs")
	}
	return deleted, nil
}

// Close is a no-op; the connection is owned by the Manager
func (s *AgentJobStorage) Close() error {
	return nil
}
