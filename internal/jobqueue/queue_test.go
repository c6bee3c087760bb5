package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
	"github.com/aagii9912/smarthub-sub002/internal/retry"
)

type fakeJobRepo struct {
	inserted    []domain.WebhookJob
	due         []domain.WebhookJob
	processing  []string
	completed   []string
	rescheduled []rescheduleCall
	dead        []deadCall
	deleted     int64
}

type rescheduleCall struct {
	jobID       string
	attempts    int
	lastError   string
	nextRetryAt time.Time
}

type deadCall struct {
	jobID     string
	attempts  int
	lastError string
}

func (f *fakeJobRepo) Insert(_ context.Context, job domain.WebhookJob) error {
	f.inserted = append(f.inserted, job)
	return nil
}

func (f *fakeJobRepo) FetchDue(context.Context, time.Time, int) ([]domain.WebhookJob, error) {
	return f.due, nil
}

func (f *fakeJobRepo) MarkProcessing(_ context.Context, id string) error {
	f.processing = append(f.processing, id)
	return nil
}

func (f *fakeJobRepo) MarkCompleted(_ context.Context, id string) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeJobRepo) Reschedule(_ context.Context, id string, attempts int, lastError string, nextRetryAt time.Time) error {
	f.rescheduled = append(f.rescheduled, rescheduleCall{id, attempts, lastError, nextRetryAt})
	return nil
}

func (f *fakeJobRepo) MarkDead(_ context.Context, id string, attempts int, lastError string) error {
	f.dead = append(f.dead, deadCall{id, attempts, lastError})
	return nil
}

func (f *fakeJobRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return f.deleted, nil
}

func (f *fakeJobRepo) CountByStatus(context.Context) (map[domain.JobStatus]int64, error) {
	return map[domain.JobStatus]int64{domain.JobPending: int64(len(f.due))}, nil
}

type jobReporter struct {
	captured []error
	fields   []map[string]any
}

func (r *jobReporter) Capture(err error, fields map[string]any) {
	r.captured = append(r.captured, err)
	r.fields = append(r.fields, fields)
}

func newTestService(repo *fakeJobRepo, reporter Reporter) *Service {
	return NewService(repo, Config{
		MaxAttempts: 3,
		Backoff: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		},
	}, reporter, logger.NewNop())
}

func TestEnqueue_PendingAndDueImmediately(t *testing.T) {
	repo := &fakeJobRepo{}
	svc := newTestService(repo, nil)

	job, err := svc.Enqueue(context.Background(), domain.JobMessage, map[string]string{"text": "hi"})

	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, 3, job.MaxAttempts)
	require.NotNil(t, job.NextRetryAt)
	assert.WithinDuration(t, time.Now(), *job.NextRetryAt, time.Second)
	require.Len(t, repo.inserted, 1)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, "hi", payload["text"])
}

func TestEnqueue_UnmarshalablePayload(t *testing.T) {
	svc := newTestService(&fakeJobRepo{}, nil)

	_, err := svc.Enqueue(context.Background(), domain.JobMessage, make(chan int))
	assert.Error(t, err)
}

func pendingJob(attempts int) domain.WebhookJob {
	return domain.WebhookJob{
		ID:          "job-1",
		Type:        domain.JobMessage,
		Payload:     json.RawMessage(`{}`),
		Status:      domain.JobPending,
		Attempts:    attempts,
		MaxAttempts: 3,
	}
}

func TestProcess_SuccessCompletes(t *testing.T) {
	repo := &fakeJobRepo{}
	svc := newTestService(repo, nil)
	svc.RegisterHandler(domain.JobMessage, func(context.Context, json.RawMessage) error {
		return nil
	})

	require.NoError(t, svc.Process(context.Background(), pendingJob(0)))

	assert.Equal(t, []string{"job-1"}, repo.processing)
	assert.Equal(t, []string{"job-1"}, repo.completed)
	assert.Empty(t, repo.rescheduled)
	assert.Empty(t, repo.dead)
}

func TestProcess_FailureReschedulesWithBackoff(t *testing.T) {
	repo := &fakeJobRepo{}
	svc := newTestService(repo, nil)
	svc.RegisterHandler(domain.JobMessage, func(context.Context, json.RawMessage) error {
		return errors.New("send failed: 503")
	})

	before := time.Now()
	require.NoError(t, svc.Process(context.Background(), pendingJob(0)))

	require.Len(t, repo.rescheduled, 1)
	call := repo.rescheduled[0]
	assert.Equal(t, 1, call.attempts)
	assert.Contains(t, call.lastError, "503")
	// First retry delay is InitialDelay +/- 10% jitter.
	assert.True(t, call.nextRetryAt.After(before.Add(80*time.Millisecond)))
	assert.True(t, call.nextRetryAt.Before(before.Add(time.Second)))
	assert.Empty(t, repo.dead)
}

func TestProcess_FinalFailureGoesDeadAndEscalates(t *testing.T) {
	repo := &fakeJobRepo{}
	reporter := &jobReporter{}
	svc := newTestService(repo, reporter)
	svc.RegisterHandler(domain.JobMessage, func(context.Context, json.RawMessage) error {
		return errors.New("permanent failure")
	})

	require.NoError(t, svc.Process(context.Background(), pendingJob(2)))

	require.Len(t, repo.dead, 1)
	assert.Equal(t, 3, repo.dead[0].attempts)
	assert.Empty(t, repo.rescheduled)
	require.Len(t, reporter.captured, 1)
	assert.Equal(t, "job-1", reporter.fields[0]["job_id"])
}

func TestProcess_UnregisteredTypeFailsAttempt(t *testing.T) {
	repo := &fakeJobRepo{}
	svc := newTestService(repo, nil)

	require.NoError(t, svc.Process(context.Background(), pendingJob(0)))

	require.Len(t, repo.rescheduled, 1)
	assert.Contains(t, repo.rescheduled[0].lastError, "no handler registered")
}

func TestProcessDue_RunsEachJob(t *testing.T) {
	repo := &fakeJobRepo{due: []domain.WebhookJob{pendingJob(0), func() domain.WebhookJob {
		j := pendingJob(0)
		j.ID = "job-2"
		return j
	}()}}
	svc := newTestService(repo, nil)
	svc.RegisterHandler(domain.JobMessage, func(context.Context, json.RawMessage) error {
		return nil
	})

	n, err := svc.ProcessDue(context.Background(), 50)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"job-1", "job-2"}, repo.completed)
}

func TestProcessDue_StopsOnCancelledContext(t *testing.T) {
	repo := &fakeJobRepo{due: []domain.WebhookJob{pendingJob(0)}}
	svc := newTestService(repo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ProcessDue(ctx, 50)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, repo.completed)
}

func TestPoller_StartStop(t *testing.T) {
	repo := &fakeJobRepo{}
	svc := newTestService(repo, nil)
	poller := NewPoller(svc, PollerConfig{Interval: 10 * time.Millisecond}, logger.NewNop())

	poller.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	poller.Stop()

	// Stop is idempotent and must not block or panic the second time.
	poller.Stop()
}
