package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskqueue/engine/internal/models"
)

// Priority is the canonical broker-side priority scale: integers 1..4,
// higher sorts first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

const envelopeSchemaVersion = 1

// Envelope is the broker-side JSON representation of one task instance. It
// carries only what is needed to execute and, on failure, reschedule the
// task; the durable record (models.Task) is the source of truth for
// everything else.
type Envelope struct {
	SchemaVersion int                    `json:"schema_version"`
	TaskID        uuid.UUID              `json:"task_id"`
	TaskName      string                 `json:"task_name"`
	Args          []interface{}          `json:"args"`
	Kwargs        map[string]interface{} `json:"kwargs"`
	Priority      Priority               `json:"priority"`
	QueueName     string                 `json:"queue_name"`
	CreatedAt     time.Time              `json:"created_at"`
	RetryCount    int                    `json:"retry_count"`
	RetryDelay    int                    `json:"retry_delay"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
}

// QueueStats reports counts across the broker structures for one queue.
type QueueStats struct {
	QueueName  string `json:"queue_name"`
	Pending    int64  `json:"pending"`
	Retry      int64  `json:"retry"`
	Completed  int64  `json:"completed"`
	DeadLetter int64  `json:"dead_letter"`
	Processing int64  `json:"processing"`
}

// TaskQueue is the pending/processing side of the broker: push new work,
// pull the highest-priority envelope, and account for in-flight work.
type TaskQueue interface {
	Enqueue(ctx context.Context, envelope *Envelope) error
	Dequeue(ctx context.Context, queueName, workerID string) (*Envelope, error)
	Complete(ctx context.Context, queueName, workerID string, taskID uuid.UUID) error
	Abandon(ctx context.Context, workerID string, taskID uuid.UUID) error
	QueueCount(ctx context.Context, queueName string) (int64, error)
	CompletedCount(ctx context.Context, queueName string) (int64, error)
	ProcessingCount(ctx context.Context) (int64, error)
	IsHealthy(ctx context.Context) error
	Close() error
}

// RetryQueue is the single shared due-time-ordered set backing delayed
// retries across all queues.
type RetryQueue interface {
	Schedule(ctx context.Context, envelope *Envelope, dueAt time.Time) error
	Due(ctx context.Context, now time.Time, limit int64) ([]*Envelope, error)
	Remove(ctx context.Context, taskID uuid.UUID) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

// DeadLetterQueue holds envelopes whose retries are exhausted.
type DeadLetterQueue interface {
	Push(ctx context.Context, envelope *Envelope) error
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, limit int64) ([]*Envelope, error)
	Close() error
}

// QueueManager is the facade the HTTP layer and worker loop depend on; it
// composes the broker client, the three structures above, and the retry
// promoter into the enqueue/dequeue/complete/fail/promote_retries/stats
// surface.
type QueueManager interface {
	Enqueue(ctx context.Context, envelope *Envelope) error
	Dequeue(ctx context.Context, queueName, workerID string) (*Envelope, error)
	Complete(ctx context.Context, queueName, workerID string, taskID uuid.UUID, result models.JSONB) error
	Fail(ctx context.Context, queueName, workerID string, envelope *Envelope, errorMessage string) error
	PromoteRetries(ctx context.Context) (int, error)
	Stats(ctx context.Context, queueName string) (*QueueStats, error)
	IsHealthy(ctx context.Context) error
	Close() error
}

// QueueError wraps a low-level broker error with the operation that
// produced it and whether the caller should retry.
type QueueError struct {
	Operation string
	Err       error
	Retryable bool
}

func (e *QueueError) Error() string {
	return e.Operation + ": " + e.Err.Error()
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

// NewQueueError creates a new queue error
func NewQueueError(operation string, err error, retryable bool) *QueueError {
	return &QueueError{
		Operation: operation,
		Err:       err,
		Retryable: retryable,
	}
}
