// Package jobqueue persists webhook-driven work as jobs and retries them
// with exponential backoff until they complete or go dead. Jobs survive
// process restarts because every transition is written through to storage.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
	"github.com/aagii9912/smarthub-sub002/internal/retry"
)

// Handler executes one job's payload. A nil return completes the job.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Repository is the persistence surface for jobs.
type Repository interface {
	Insert(ctx context.Context, job domain.WebhookJob) error
	FetchDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookJob, error)
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	Reschedule(ctx context.Context, jobID string, attempts int, lastError string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, jobID string, attempts int, lastError string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

// Reporter receives dead-job escalations.
type Reporter interface {
	Capture(err error, fields map[string]any)
}

// Config tunes job retry behavior.
type Config struct {
	MaxAttempts int
	Backoff     retry.Config
}

// Service enqueues jobs and drives their state transitions.
type Service struct {
	repo     Repository
	handlers map[domain.JobType]Handler
	config   Config
	reporter Reporter
	log      logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, config Config, reporter Reporter, log logger.Logger) *Service {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Backoff.InitialDelay <= 0 {
		config.Backoff = retry.DefaultConfig()
	}
	return &Service{
		repo:     repo,
		handlers: make(map[domain.JobType]Handler),
		config:   config,
		reporter: reporter,
		log:      log,
		now:      time.Now,
	}
}

// RegisterHandler binds a handler to a job type. Enqueued jobs of an
// unregistered type fail their attempts until a handler shows up.
func (s *Service) RegisterHandler(jobType domain.JobType, h Handler) {
	s.handlers[jobType] = h
}

// Enqueue persists a new pending job due immediately.
func (s *Service) Enqueue(ctx context.Context, jobType domain.JobType, payload any) (domain.WebhookJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.WebhookJob{}, fmt.Errorf("marshaling %s job payload: %w", jobType, err)
	}

	now := s.now()
	job := domain.WebhookJob{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     raw,
		Status:      domain.JobPending,
		Attempts:    0,
		MaxAttempts: s.config.MaxAttempts,
		NextRetryAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, job); err != nil {
		return domain.WebhookJob{}, fmt.Errorf("inserting %s job: %w", jobType, err)
	}
	return job, nil
}

// Process runs one job through a single attempt. Success completes it; a
// failure either reschedules it with backoff or, at the attempt cap, marks
// it dead and escalates.
func (s *Service) Process(ctx context.Context, job domain.WebhookJob) error {
	if err := s.repo.MarkProcessing(ctx, job.ID); err != nil {
		return fmt.Errorf("marking job %s processing: %w", job.ID, err)
	}

	handler, ok := s.handlers[job.Type]
	var attemptErr error
	if !ok {
		attemptErr = fmt.Errorf("no handler registered for job type %s", job.Type)
	} else {
		attemptErr = handler(ctx, job.Payload)
	}

	if attemptErr == nil {
		if err := s.repo.MarkCompleted(ctx, job.ID); err != nil {
			return fmt.Errorf("marking job %s completed: %w", job.ID, err)
		}
		return nil
	}

	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		if err := s.repo.MarkDead(ctx, job.ID, attempts, attemptErr.Error()); err != nil {
			return fmt.Errorf("marking job %s dead: %w", job.ID, err)
		}
		s.log.Error("job exhausted all attempts",
			logger.String("job_id", job.ID),
			logger.String("job_type", string(job.Type)),
			logger.Int("attempts", attempts),
			logger.Error(attemptErr))
		if s.reporter != nil {
			s.reporter.Capture(attemptErr, map[string]any{
				"job_id":   job.ID,
				"job_type": string(job.Type),
				"attempts": attempts,
			})
		}
		return nil
	}

	nextRetryAt := s.now().Add(retry.BackoffDelay(attempts, s.config.Backoff))
	if err := s.repo.Reschedule(ctx, job.ID, attempts, attemptErr.Error(), nextRetryAt); err != nil {
		return fmt.Errorf("rescheduling job %s: %w", job.ID, err)
	}
	s.log.Warn("job attempt failed, rescheduled",
		logger.String("job_id", job.ID),
		logger.String("job_type", string(job.Type)),
		logger.Int("attempts", attempts),
		logger.Time("next_retry_at", nextRetryAt),
		logger.Error(attemptErr))
	return nil
}

// ProcessDue fetches due pending jobs and processes them in order. It
// returns how many jobs were picked up.
func (s *Service) ProcessDue(ctx context.Context, limit int) (int, error) {
	jobs, err := s.repo.FetchDue(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("fetching due jobs: %w", err)
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err := s.Process(ctx, job); err != nil {
			s.log.Error("job state transition failed",
				logger.String("job_id", job.ID),
				logger.Error(err))
		}
	}
	return len(jobs), nil
}

// Cleanup deletes completed and dead jobs older than the retention window.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("cleaning up old jobs: %w", err)
	}
	return n, nil
}

// Stats returns job counts per status.
func (s *Service) Stats(ctx context.Context) (map[domain.JobStatus]int64, error) {
	return s.repo.CountByStatus(ctx)
}
