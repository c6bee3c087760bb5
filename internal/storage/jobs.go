package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// JobRepository persists webhook jobs and their state transitions.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Insert stores a new job row.
func (r *JobRepository) Insert(ctx context.Context, job domain.WebhookJob) error {
	query := `INSERT INTO webhook_jobs
		(id, job_type, payload, status, attempts, max_attempts, last_error, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, string(job.Type), []byte(job.Payload), string(job.Status),
		job.Attempts, job.MaxAttempts, job.LastError, job.NextRetryAt,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	return nil
}

// FetchDue returns pending jobs whose retry time has arrived, oldest first.
func (r *JobRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookJob, error) {
	query := `SELECT id, job_type, payload, status, attempts, max_attempts, last_error, next_retry_at, created_at, updated_at
		FROM webhook_jobs
		WHERE status = 'pending' AND next_retry_at <= $1
		ORDER BY next_retry_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.WebhookJob
	for rows.Next() {
		var (
			job     domain.WebhookJob
			jobType string
			status  string
			payload []byte
		)
		err := rows.Scan(&job.ID, &jobType, &payload, &status, &job.Attempts,
			&job.MaxAttempts, &job.LastError, &job.NextRetryAt, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		job.Type = domain.JobType(jobType)
		job.Status = domain.JobStatus(status)
		job.Payload = payload
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkProcessing transitions a pending job to processing.
func (r *JobRepository) MarkProcessing(ctx context.Context, jobID string) error {
	return r.transition(ctx, jobID,
		`UPDATE webhook_jobs SET status = 'processing', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`)
}

// MarkCompleted finishes a job.
func (r *JobRepository) MarkCompleted(ctx context.Context, jobID string) error {
	return r.transition(ctx, jobID,
		`UPDATE webhook_jobs SET status = 'completed', updated_at = NOW() WHERE id = $1`)
}

// Reschedule puts a failed job back to pending with its next retry time.
func (r *JobRepository) Reschedule(ctx context.Context, jobID string, attempts int, lastError string, nextRetryAt time.Time) error {
	query := `UPDATE webhook_jobs
		SET status = 'pending', attempts = $2, last_error = $3, next_retry_at = $4, updated_at = NOW()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, jobID, attempts, lastError, nextRetryAt)
	if err != nil {
		return fmt.Errorf("rescheduling job %s: %w", jobID, err)
	}
	return requireRow(res)
}

// MarkDead parks a job that exhausted its attempts.
func (r *JobRepository) MarkDead(ctx context.Context, jobID string, attempts int, lastError string) error {
	query := `UPDATE webhook_jobs
		SET status = 'dead', attempts = $2, last_error = $3, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, jobID, attempts, lastError)
	if err != nil {
		return fmt.Errorf("marking job %s dead: %w", jobID, err)
	}
	return requireRow(res)
}

// DeleteOlderThan prunes finished jobs created before the cutoff.
func (r *JobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_jobs WHERE status IN ('completed', 'dead') AND created_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns job counts grouped by status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM webhook_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning job count: %w", err)
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *JobRepository) transition(ctx context.Context, jobID, query string) error {
	res, err := r.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", jobID, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
