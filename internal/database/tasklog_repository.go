package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskqueue/engine/internal/models"
)

// taskLogRepository implements TaskLogRepository.
type taskLogRepository struct {
	querier Querier
}

// NewTaskLogRepository creates a new task log repository.
func NewTaskLogRepository(conn *Connection) TaskLogRepository {
	return &taskLogRepository{querier: conn.Pool}
}

// NewTaskLogRepositoryWithTx creates a new task log repository bound to a transaction.
func NewTaskLogRepositoryWithTx(tx pgx.Tx) TaskLogRepository {
	return &taskLogRepository{querier: tx}
}

// Create inserts a log line for a task. Logs are append-only; there is no
// update or delete path.
func (r *taskLogRepository) Create(ctx context.Context, log *models.TaskLog) error {
	if log == nil {
		return fmt.Errorf("task log cannot be nil")
	}

	if log.ID == uuid.Nil {
		log.ID = models.NewID()
	}

	query := `
		INSERT INTO task_logs (id, task_id, level, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.querier.QueryRow(ctx, query, log.ID, log.TaskID, log.Level, log.Message).
		Scan(&log.CreatedAt, &log.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task log: %w", err)
	}

	return nil
}

// ListByTaskID retrieves the log trail for a task, oldest first.
func (r *taskLogRepository) ListByTaskID(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*models.TaskLog, error) {
	limit, offset = normalizePage(limit, offset)

	query := `
		SELECT id, task_id, level, message, created_at, updated_at
		FROM task_logs
		WHERE task_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, taskID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list task logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.TaskLog
	for rows.Next() {
		var log models.TaskLog
		if err := rows.Scan(&log.ID, &log.TaskID, &log.Level, &log.Message, &log.CreatedAt, &log.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task log row: %w", err)
		}
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task log rows: %w", err)
	}

	return logs, nil
}
