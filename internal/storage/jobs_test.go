package storage

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

func TestJobRepository_FetchDue_FiltersAndOrders(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	next := now.Add(-time.Minute)
	rows := sqlmock.NewRows([]string{
		"id", "job_type", "payload", "status", "attempts", "max_attempts",
		"last_error", "next_retry_at", "created_at", "updated_at",
	}).AddRow("job-1", "message", []byte(`{"text":"hi"}`), "pending", 1, 3, "boom", next, now, now)

	mock.ExpectQuery(`SELECT .+ FROM webhook_jobs\s+WHERE status = 'pending' AND next_retry_at <= \$1\s+ORDER BY next_retry_at ASC\s+LIMIT \$2`).
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(rows)

	repo := NewJobRepository(db)
	jobs, err := repo.FetchDue(context.Background(), now, 50)

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobMessage, jobs[0].Type)
	assert.Equal(t, domain.JobPending, jobs[0].Status)
	require.NotNil(t, jobs[0].LastError)
	assert.Equal(t, "boom", *jobs[0].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_MarkProcessing_OnlyFromPending(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE webhook_jobs SET status = 'processing'.+WHERE id = \$1 AND status = 'pending'`).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewJobRepository(db)
	err = repo.MarkProcessing(context.Background(), "job-1")

	// A job already claimed by another transition yields ErrNotFound.
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_Reschedule(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	next := time.Now().Add(time.Minute)
	mock.ExpectExec(`UPDATE webhook_jobs\s+SET status = 'pending', attempts = \$2, last_error = \$3, next_retry_at = \$4`).
		WithArgs("job-1", 2, "send failed", next).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewJobRepository(db)
	require.NoError(t, repo.Reschedule(context.Background(), "job-1", 2, "send failed", next))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_MarkDead_ClearsRetryTime(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE webhook_jobs\s+SET status = 'dead', attempts = \$2, last_error = \$3, next_retry_at = NULL`).
		WithArgs("job-1", 3, "gave up").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewJobRepository(db)
	require.NoError(t, repo.MarkDead(context.Background(), "job-1", 3, "gave up"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_DeleteOlderThan_OnlyFinishedJobs(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	mock.ExpectExec(`DELETE FROM webhook_jobs WHERE status IN \('completed', 'dead'\) AND created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	repo := NewJobRepository(db)
	n, err := repo.DeleteOlderThan(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_CountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("pending", 7).
		AddRow("dead", 2)
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM webhook_jobs GROUP BY status`).
		WillReturnRows(rows)

	repo := NewJobRepository(db)
	counts, err := repo.CountByStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(7), counts[domain.JobPending])
	assert.Equal(t, int64(2), counts[domain.JobDead])
	assert.NoError(t, mock.ExpectationsWereMet())
}
