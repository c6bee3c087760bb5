package domain

import (
	"encoding/json"
	"time"
)

// JobType identifies the producer of a queued webhook side effect.
type JobType string

const (
	// JobMessage is a queued outbound chat message.
	JobMessage JobType = "message"
	// JobCommentReply is a queued comment reply.
	JobCommentReply JobType = "comment_reply"
	// JobInvoice is a queued payment invoice creation plus its delivery DM.
	JobInvoice JobType = "invoice"
	// JobNotification is a queued merchant notification.
	JobNotification JobType = "notification"
)

// JobStatus is the lifecycle state of a persisted webhook job.
//
// Transitions: pending -> processing -> completed | pending (retry) | dead.
// Completed and dead are terminal except for cleanup deletion.
type JobStatus string

const (
	// JobPending means the job is waiting for its next delivery attempt.
	JobPending JobStatus = "pending"
	// JobProcessing means a worker is currently running the job.
	JobProcessing JobStatus = "processing"
	// JobCompleted means the job succeeded.
	JobCompleted JobStatus = "completed"
	// JobFailed is part of the stored status enum for rows written by other
	// tools; the processor itself reschedules failed attempts to pending.
	JobFailed JobStatus = "failed"
	// JobDead means all attempts are exhausted; parked for manual review.
	JobDead JobStatus = "dead"
)

// WebhookJob is a persisted unit of best-effort async work triggered by an
// inbound webhook. Payloads are opaque JSON owned by the job producer.
type WebhookJob struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   *string         `json:"last_error,omitempty"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
