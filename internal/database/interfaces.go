package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/taskqueue/engine/internal/models"
)

// Common errors
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskLogNotFound = errors.New("task log not found")

	// ErrPreconditionViolation is returned by the typed status transitions
	// when the row did not match the expected prior status — for example
	// MarkCompleted racing a task that was already marked failed.
	ErrPreconditionViolation = errors.New("task precondition violation")
)

// TaskRepository defines the durable record-store operations: plain CRUD
// for the HTTP layer, plus the typed status transitions the queue engine
// drives via single-row UPDATE...WHERE statements.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error

	List(ctx context.Context, limit, offset int) ([]*models.Task, error)
	ListByStatus(ctx context.Context, status models.TaskStatus, limit, offset int) ([]*models.Task, error)
	ListByQueue(ctx context.Context, queueName string, limit, offset int) ([]*models.Task, error)

	// ListFiltered lists tasks matching every non-nil field of filter,
	// backing the task listing endpoint's status/priority/queue_name query
	// params.
	ListFiltered(ctx context.Context, filter TaskFilter, limit, offset int) ([]*models.Task, error)

	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status models.TaskStatus) (int64, error)

	// MarkProcessing transitions pending -> processing, recording the
	// worker and start time. A precondition violation (the row was not
	// pending) is reported as ErrPreconditionViolation.
	MarkProcessing(ctx context.Context, id uuid.UUID, workerID string) error

	// MarkCompleted transitions processing -> success, recording result
	// and completion time.
	MarkCompleted(ctx context.Context, id uuid.UUID, result models.JSONB) error

	// MarkFailed transitions processing or retry -> failed, recording the error
	// message and completion time. Used when retries are exhausted.
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error

	// MarkRetry transitions processing -> retry, incrementing retry_count
	// and recording next_retry_at.
	MarkRetry(ctx context.Context, id uuid.UUID, nextRetryAt time.Time) error

	// ResetToPending transitions retry -> pending once the retry
	// scheduler has promoted the task back onto the broker.
	ResetToPending(ctx context.Context, id uuid.UUID) error
}

// TaskFilter narrows ListFiltered to tasks matching every non-nil field.
type TaskFilter struct {
	Status    *models.TaskStatus
	Priority  *models.Priority
	QueueName *string
}

// TaskLogRepository defines operations for the per-task log trail: a
// read-only administrative audit of what happened during execution.
type TaskLogRepository interface {
	Create(ctx context.Context, log *models.TaskLog) error
	ListByTaskID(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*models.TaskLog, error)
}

// Repositories aggregates every repository interface the application wires
// against a single connection.
type Repositories struct {
	Tasks    TaskRepository
	TaskLogs TaskLogRepository
}

// NewRepositories creates a new repositories instance
func NewRepositories(conn *Connection) *Repositories {
	return &Repositories{
		Tasks:    NewTaskRepository(conn),
		TaskLogs: NewTaskLogRepository(conn),
	}
}
