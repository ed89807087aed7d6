package jobwatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/arbor"
	"go.uber.org/goleak"
)

// stubJobs replays scripted status responses; the last one repeats forever
type stubJobs struct {
	mu          sync.Mutex
	startID     string
	startErr    error
	responses   []*models.JobStatusReport
	failCalls   map[int]error
	startCalls  int
	statusCalls int
	polledIDs   []string
}

func (s *stubJobs) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	return s.startID, s.startErr
}

func (s *stubJobs) GetStatus(ctx context.Context, jobID string) (*models.JobStatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.statusCalls
	s.statusCalls++
	s.polledIDs = append(s.polledIDs, jobID)

	if err, ok := s.failCalls[n]; ok {
		return nil, err
	}
	if len(s.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	idx := n
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	report := *s.responses[idx]
	report.LogEntries = models.CloneLogEntries(report.LogEntries)
	return &report, nil
}

func (s *stubJobs) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls
}

func entry(t *testing.T, raw string) models.LogEntry {
	t.Helper()
	var e models.LogEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	return e
}

func report(status models.JobStatus, progress float64, entries ...models.LogEntry) *models.JobStatusReport {
	return &models.JobStatusReport{
		Success:      true,
		JobInfo:      models.JobInfo{Status: status, Progress: progress, CreatedAt: "2024-10-19T10:00:00"},
		LogEntries:   entries,
		TotalEntries: len(entries),
	}
}

func newTestReconciler(jobs *stubJobs, interval time.Duration) *Reconciler {
	return NewReconciler(jobs, nil, arbor.NewNoOpLogger(), interval)
}

// waitTerminal blocks until the subscribed session reaches a terminal status
func waitTerminal(t *testing.T, r *Reconciler) models.JobSession {
	t.Helper()
	updates, cancel := r.Subscribe()
	defer cancel()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.Status.IsTerminal() {
				return s
			}
		case <-timeout:
			t.Fatal("session never reached a terminal status")
			return models.JobSession{}
		}
	}
}

func TestReconciler_PollIsIdempotent(t *testing.T) {
	e1 := entry(t, `{"step":"INITIALIZE","message":"starting","timestamp":"t1","campaign_summary":{"status":"READY"}}`)
	jobs := &stubJobs{startID: "abc", responses: []*models.JobStatusReport{report(models.JobStatusRunning, 0, e1)}}
	r := newTestReconciler(jobs, time.Hour)
	defer r.Close()

	_, err := r.StartJob(context.Background())
	require.NoError(t, err)

	first, err := r.Poll(context.Background())
	require.NoError(t, err)
	second, err := r.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Status, second.Status)
	assert.True(t, models.LogEntriesEqual(first.LogEntries, second.LogEntries))
	assert.Len(t, second.LogEntries, 1)
	assert.Equal(t, 2, jobs.calls())
}

func TestReconciler_RunsToCompletionAndStops(t *testing.T) {
	e1 := entry(t, `{"step":"OBSERVE","step_number":1,"sub_step":"data_received","message":"m1","timestamp":"t1","data":{"roi":12.5}}`)
	e2 := entry(t, `{"step":"COMPLETE","message":"m2","timestamp":"t2","final_summary":{"status":"COMPLETE"}}`)
	jobs := &stubJobs{startID: "abc", responses: []*models.JobStatusReport{
		report(models.JobStatusRunning, 40, e1),
		report(models.JobStatusCompleted, 100, e1, e2),
	}}
	r := newTestReconciler(jobs, 10*time.Millisecond)
	defer r.Close()

	jobID, err := r.StartJob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", jobID)

	final := waitTerminal(t, r)
	assert.Equal(t, models.SessionStatusCompleted, final.Status)
	assert.Equal(t, 100.0, final.Progress)
	assert.False(t, final.Polling)
	require.Len(t, final.LogEntries, 2)
	assert.True(t, final.LogEntries[0].Equal(e1))
	assert.True(t, final.LogEntries[1].Equal(e2))

	callsAtTerminal := jobs.calls()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, callsAtTerminal, jobs.calls(), "no poll may be issued after a terminal status")
	assert.Equal(t, 2, callsAtTerminal)
}

func TestReconciler_ErrorStatusIsTerminal(t *testing.T) {
	jobs := &stubJobs{startID: "job-1", responses: []*models.JobStatusReport{{
		Success: true,
		JobInfo: models.JobInfo{Status: models.JobStatusError, Error: "dataset missing"},
	}}}
	r := newTestReconciler(jobs, 10*time.Millisecond)
	defer r.Close()

	_, err := r.StartJob(context.Background())
	require.NoError(t, err)

	final := waitTerminal(t, r)
	assert.Equal(t, models.SessionStatusError, final.Status)
	assert.Equal(t, "dataset missing", final.Error)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, jobs.calls())

	// Explicit polls do not revive a finished session
	snap, err := r.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusError, snap.Status)
	assert.Equal(t, 1, jobs.calls())
}

func TestReconciler_StartFailureNeverPolls(t *testing.T) {
	jobs := &stubJobs{startErr: errors.New("backend down")}
	r := newTestReconciler(jobs, 10*time.Millisecond)
	defer r.Close()

	_, err := r.StartJob(context.Background())

	var startErr *JobStartFailedError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "backend down", startErr.Message)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, jobs.calls())
	assert.Empty(t, r.Snapshot().JobID)

	_, err = r.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestReconciler_TransientFailuresKeepPolling(t *testing.T) {
	jobs := &stubJobs{
		startID: "abc",
		failCalls: map[int]error{
			0: errors.New("connection refused"),
			1: errors.New("unexpected EOF"),
		},
		responses: []*models.JobStatusReport{
			{Success: false, Error: "temporarily unavailable"},
			{Success: false, Error: "temporarily unavailable"},
			{Success: false, Error: "temporarily unavailable"},
			report(models.JobStatusCompleted, 100),
		},
	}
	r := newTestReconciler(jobs, 10*time.Millisecond)
	defer r.Close()

	_, err := r.StartJob(context.Background())
	require.NoError(t, err)

	final := waitTerminal(t, r)
	assert.Equal(t, models.SessionStatusCompleted, final.Status)
	assert.Equal(t, 4, jobs.calls())
}

func TestReconciler_StopHaltsTicks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	jobs := &stubJobs{startID: "abc", responses: []*models.JobStatusReport{report(models.JobStatusRunning, 10)}}
	r := newTestReconciler(jobs, 5*time.Millisecond)

	_, err := r.StartJob(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return jobs.calls() >= 2 }, 5*time.Second, 5*time.Millisecond)

	r.Stop()
	stoppedAt := jobs.calls()
	assert.False(t, r.Snapshot().Polling)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stoppedAt, jobs.calls())
	assert.Equal(t, "abc", r.Snapshot().JobID)

	require.NoError(t, r.Close())
}

func TestReconciler_DiscardClearsSession(t *testing.T) {
	jobs := &stubJobs{startID: "abc", responses: []*models.JobStatusReport{report(models.JobStatusRunning, 10)}}
	r := newTestReconciler(jobs, 5*time.Millisecond)
	defer r.Close()

	_, err := r.StartJob(context.Background())
	require.NoError(t, err)

	r.Discard()
	calls := jobs.calls()

	assert.Empty(t, r.Snapshot().JobID)
	_, err = r.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, jobs.calls())
}

func TestReconciler_NewJobReplacesSession(t *testing.T) {
	jobs := &stubJobs{startID: "first", responses: []*models.JobStatusReport{report(models.JobStatusRunning, 10)}}
	r := newTestReconciler(jobs, time.Hour)
	defer r.Close()

	_, err := r.StartJob(context.Background())
	require.NoError(t, err)
	before := r.Snapshot()

	jobs.mu.Lock()
	jobs.startID = "second"
	jobs.mu.Unlock()

	_, err = r.StartJob(context.Background())
	require.NoError(t, err)

	after := r.Snapshot()
	assert.Equal(t, "second", after.JobID)
	assert.Empty(t, after.LogEntries)
	assert.Greater(t, after.Version, before.Version)

	_, err = r.Poll(context.Background())
	require.NoError(t, err)
	jobs.mu.Lock()
	assert.Equal(t, []string{"second"}, jobs.polledIDs)
	jobs.mu.Unlock()
}

func TestReconciler_LogIsReplacedWholesale(t *testing.T) {
	e1 := entry(t, `{"step":"OBSERVE","message":"first","timestamp":"t1"}`)
	e1b := entry(t, `{"step":"OBSERVE","message":"first (rewritten)","timestamp":"t1"}`)
	e2 := entry(t, `{"step":"ORIENT","message":"second","timestamp":"t2"}`)
	jobs := &stubJobs{startID: "abc", responses: []*models.JobStatusReport{
		report(models.JobStatusRunning, 10, e1, e2),
		report(models.JobStatusRunning, 20, e1b),
	}}
	r := newTestReconciler(jobs, time.Hour)
	defer r.Close()

	_, err := r.StartJob(context.Background())
	require.NoError(t, err)

	_, err = r.Poll(context.Background())
	require.NoError(t, err)
	snap, err := r.Poll(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.LogEntries, 1)
	assert.Equal(t, "first (rewritten)", snap.LogEntries[0].Message)
	assert.Equal(t, 20.0, snap.Progress)
}

func TestReconciler_CloseRejectsStart(t *testing.T) {
	r := newTestReconciler(&stubJobs{startID: "abc"}, time.Hour)
	require.NoError(t, r.Close())

	_, err := r.StartJob(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
