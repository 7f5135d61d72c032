package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskqueue/engine/internal/models"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// repository method run unmodified inside or outside a transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// taskRepository implements TaskRepository interface
type taskRepository struct {
	querier Querier
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(conn *Connection) TaskRepository {
	return &taskRepository{querier: conn.Pool}
}

// NewTaskRepositoryWithTx creates a new task repository bound to a transaction
func NewTaskRepositoryWithTx(tx pgx.Tx) TaskRepository {
	return &taskRepository{querier: tx}
}

const taskColumns = `id, task_name, status, priority, args, kwargs, result, error_message,
	retry_count, max_retries, retry_delay, next_retry_at, started_at, completed_at,
	worker_id, queue_name, created_at, updated_at`

// Create inserts a new task in the pending status.
func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if task.ID == uuid.Nil {
		task.ID = models.NewID()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	query := `
		INSERT INTO tasks (id, task_name, status, priority, args, kwargs, max_retries, retry_delay, queue_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.querier.QueryRow(ctx, query,
		task.ID,
		task.TaskName,
		task.Status,
		task.Priority,
		task.Args,
		task.Kwargs,
		task.MaxRetries,
		task.RetryDelay,
		task.QueueName,
	).Scan(&task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation
				return fmt.Errorf("task with ID %s already exists", task.ID)
			case "23514": // check_violation
				return fmt.Errorf("task validation failed: %s", pgErr.Detail)
			}
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by ID
func (r *taskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns)

	task, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to get task by ID: %w", err)
	}
	return task, nil
}

// Delete deletes a task
func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.querier.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}

// List retrieves tasks with pagination, ordered by priority then age.
func (r *taskRepository) List(ctx context.Context, limit, offset int) ([]*models.Task, error) {
	limit, offset = normalizePage(limit, offset)

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		ORDER BY priority DESC, created_at ASC
		LIMIT $1 OFFSET $2
	`, taskColumns)

	rows, err := r.querier.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListByStatus retrieves tasks in a given status with pagination.
func (r *taskRepository) ListByStatus(ctx context.Context, status models.TaskStatus, limit, offset int) ([]*models.Task, error) {
	limit, offset = normalizePage(limit, offset)

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE status = $1
		ORDER BY priority DESC, created_at ASC
		LIMIT $2 OFFSET $3
	`, taskColumns)

	rows, err := r.querier.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by status: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListByQueue retrieves tasks submitted to a given queue with pagination.
func (r *taskRepository) ListByQueue(ctx context.Context, queueName string, limit, offset int) ([]*models.Task, error) {
	limit, offset = normalizePage(limit, offset)

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE queue_name = $1
		ORDER BY priority DESC, created_at ASC
		LIMIT $2 OFFSET $3
	`, taskColumns)

	rows, err := r.querier.Query(ctx, query, queueName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by queue: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListFiltered lists tasks matching every non-nil field of filter, newest
// first by created_at.
func (r *taskRepository) ListFiltered(ctx context.Context, filter TaskFilter, limit, offset int) ([]*models.Task, error) {
	limit, offset = normalizePage(limit, offset)

	clauses := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.QueueName != nil {
		args = append(args, *filter.QueueName)
		clauses = append(clauses, fmt.Sprintf("queue_name = $%d", len(args)))
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, taskColumns, where, len(args)-1, len(args))

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list filtered tasks: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// Count returns the total number of tasks
func (r *taskRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// CountByStatus returns the total number of tasks with a specific status
func (r *taskRepository) CountByStatus(ctx context.Context, status models.TaskStatus) (int64, error) {
	var count int64
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE status = $1`, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	return count, nil
}

// MarkProcessing transitions pending -> processing.
func (r *taskRepository) MarkProcessing(ctx context.Context, id uuid.UUID, workerID string) error {
	query := `
		UPDATE tasks
		SET status = $3, worker_id = $2, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	result, err := r.querier.Exec(ctx, query, id, workerID, models.TaskStatusProcessing, models.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark task processing: %w", err)
	}
	return r.requireAffected(result, "mark_processing", id)
}

// MarkCompleted transitions processing -> success.
func (r *taskRepository) MarkCompleted(ctx context.Context, id uuid.UUID, result models.JSONB) error {
	query := `
		UPDATE tasks
		SET status = $2, result = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	tag, err := r.querier.Exec(ctx, query, id, models.TaskStatusSuccess, result, models.TaskStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}
	return r.requireAffected(tag, "mark_completed", id)
}

// MarkFailed transitions processing or retry -> failed, recording that
// retries are exhausted (or the task was not retryable to begin with).
func (r *taskRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE tasks
		SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`
	tag, err := r.querier.Exec(ctx, query, id, models.TaskStatusFailed, errorMessage, models.TaskStatusProcessing, models.TaskStatusRetry)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return r.requireAffected(tag, "mark_failed", id)
}

// MarkRetry transitions processing -> retry, incrementing retry_count.
func (r *taskRepository) MarkRetry(ctx context.Context, id uuid.UUID, nextRetryAt time.Time) error {
	query := `
		UPDATE tasks
		SET status = $2, retry_count = retry_count + 1, next_retry_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	tag, err := r.querier.Exec(ctx, query, id, models.TaskStatusRetry, nextRetryAt, models.TaskStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark task retry: %w", err)
	}
	return r.requireAffected(tag, "mark_retry", id)
}

// ResetToPending transitions retry -> pending once the retry scheduler has
// pushed the envelope back onto the broker.
func (r *taskRepository) ResetToPending(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tasks
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	tag, err := r.querier.Exec(ctx, query, id, models.TaskStatusPending, models.TaskStatusRetry)
	if err != nil {
		return fmt.Errorf("failed to reset task to pending: %w", err)
	}
	return r.requireAffected(tag, "reset_to_pending", id)
}

func (r *taskRepository) requireAffected(tag pgconn.CommandTag, op string, id uuid.UUID) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s on task %s", ErrPreconditionViolation, op, id)
	}
	return nil
}

func (r *taskRepository) scanOne(row pgx.Row) (*models.Task, error) {
	var task models.Task
	err := row.Scan(
		&task.ID,
		&task.TaskName,
		&task.Status,
		&task.Priority,
		&task.Args,
		&task.Kwargs,
		&task.Result,
		&task.ErrorMessage,
		&task.RetryCount,
		&task.MaxRetries,
		&task.RetryDelay,
		&task.NextRetryAt,
		&task.StartedAt,
		&task.CompletedAt,
		&task.WorkerID,
		&task.QueueName,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) scanAll(rows pgx.Rows) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		task, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
