package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskqueue/engine/internal/config"
	"github.com/taskqueue/engine/internal/models"
)

// TaskRecordStore is the narrow slice of the task record store the queue
// engine depends on: the typed status transitions, plus a read for the
// can_retry() decision in fail(). Satisfied by database.TaskRepository.
type TaskRecordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, workerID string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, result models.JSONB) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	MarkRetry(ctx context.Context, id uuid.UUID, nextRetryAt time.Time) error
	ResetToPending(ctx context.Context, id uuid.UUID) error
}

// RedisQueueManager is the queue engine façade: it composes the broker
// client, the three broker-side structures, the task record store, and the
// retry promoter into the enqueue/dequeue/complete/fail/promote_retries/
// stats surface.
type RedisQueueManager struct {
	client *RedisClient
	config *config.QueueConfig
	logger *slog.Logger
	store  TaskRecordStore

	taskQueue       TaskQueue
	retryQueue      RetryQueue
	deadLetterQueue DeadLetterQueue
	retryProcessor  *RetryProcessor

	closed bool
}

// NewRedisQueueManager creates a new Redis-backed queue manager bound to
// the given task record store.
func NewRedisQueueManager(redisConfig *config.RedisConfig, queueConfig *config.QueueConfig, store TaskRecordStore, logger *slog.Logger) (*RedisQueueManager, error) {
	if redisConfig == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if queueConfig == nil {
		return nil, fmt.Errorf("queue config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("task record store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := NewRedisClient(redisConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.IsHealthy(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Error("failed to close redis client after health check failure", "error", closeErr)
		}
		return nil, fmt.Errorf("redis health check failed: %w", err)
	}

	taskQueue, err := NewRedisTaskQueue(client, queueConfig, logger)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create task queue: %w", err)
	}

	retryQueue, err := NewRedisRetryQueue(client, queueConfig, logger)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create retry queue: %w", err)
	}

	deadLetterQueue, err := NewRedisDeadLetterQueue(client, queueConfig, logger)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create dead letter queue: %w", err)
	}

	manager := &RedisQueueManager{
		client:          client,
		config:          queueConfig,
		logger:          logger,
		store:           store,
		taskQueue:       taskQueue,
		retryQueue:      retryQueue,
		deadLetterQueue: deadLetterQueue,
	}

	manager.retryProcessor = NewRetryProcessor(logger)

	return manager, nil
}

// Enqueue pushes the envelope into pending:{queue}. The task-id and the
// durable record are created by the caller through the record store before
// this is called; the queue manager only owns the broker-side insert.
func (qm *RedisQueueManager) Enqueue(ctx context.Context, envelope *Envelope) error {
	if qm.closed {
		return ErrQueueClosed
	}

	if err := qm.taskQueue.Enqueue(ctx, envelope); err != nil {
		return err
	}

	qm.logger.Debug("task enqueued", "task_id", envelope.TaskID, "queue_name", envelope.QueueName)
	return nil
}

// Dequeue pulls the highest-priority envelope for queueName and marks the
// durable record processing. If the record update fails, the envelope is
// logged as stranded in processing and nil is returned — it will be
// observed by a later administrative reconciliation, not part of this
// engine.
func (qm *RedisQueueManager) Dequeue(ctx context.Context, queueName, workerID string) (*Envelope, error) {
	if qm.closed {
		return nil, ErrQueueClosed
	}

	if workerID == "" {
		workerID = GenerateWorkerID()
	}

	envelope, err := qm.taskQueue.Dequeue(ctx, queueName, workerID)
	if err != nil {
		return nil, err
	}
	if envelope == nil {
		return nil, nil
	}

	if err := qm.store.MarkProcessing(ctx, envelope.TaskID, workerID); err != nil {
		qm.logger.Error("mark_processing failed after dequeue; envelope stranded in processing",
			"task_id", envelope.TaskID,
			"worker_id", workerID,
			"error", err,
		)
		return nil, nil
	}

	return envelope, nil
}

// Complete removes the task from processing and records success.
func (qm *RedisQueueManager) Complete(ctx context.Context, queueName, workerID string, taskID uuid.UUID, result models.JSONB) error {
	if qm.closed {
		return ErrQueueClosed
	}

	if err := qm.taskQueue.Complete(ctx, queueName, workerID, taskID); err != nil {
		qm.logger.Error("failed to remove task from processing on complete", "task_id", taskID, "error", err)
	}

	if err := qm.store.MarkCompleted(ctx, taskID, result); err != nil {
		qm.logger.Warn("mark_completed precondition violation", "task_id", taskID, "error", err)
	}

	return nil
}

// Fail removes the task from processing, loads the durable record, and
// uses its can_retry() view as the sole authority on whether to schedule a
// retry or push the envelope to the dead letter list. No broker-side
// counter is kept; the record store's retry_count/max_retries/next_retry_at
// are authoritative.
func (qm *RedisQueueManager) Fail(ctx context.Context, queueName, workerID string, envelope *Envelope, errorMessage string) error {
	if qm.closed {
		return ErrQueueClosed
	}

	envelope.ErrorMessage = errorMessage

	if err := qm.taskQueue.Abandon(ctx, workerID, envelope.TaskID); err != nil {
		qm.logger.Error("failed to remove task from processing on fail", "task_id", envelope.TaskID, "error", err)
	}

	now := time.Now()
	record, err := qm.store.GetByID(ctx, envelope.TaskID)
	if err != nil {
		qm.logger.Error("failed to load task record for fail(); treating as exhausted", "task_id", envelope.TaskID, "error", err)
		return qm.deadLetter(ctx, envelope, errorMessage)
	}

	if record.CanRetry(now) {
		dueAt := CalculateRetryAt(now, envelope.RetryDelay)

		if err := qm.store.MarkRetry(ctx, envelope.TaskID, dueAt); err != nil {
			qm.logger.Warn("mark_retry precondition violation", "task_id", envelope.TaskID, "error", err)
		}

		envelope.RetryCount++
		if err := qm.retryQueue.Schedule(ctx, envelope, dueAt); err != nil {
			return err
		}

		qm.logger.Info("task scheduled for retry", "task_id", envelope.TaskID, "due_at", dueAt)
		return nil
	}

	if err := qm.store.MarkFailed(ctx, envelope.TaskID, errorMessage); err != nil {
		qm.logger.Warn("mark_failed precondition violation", "task_id", envelope.TaskID, "error", err)
	}

	return qm.deadLetterQueue.Push(ctx, envelope)
}

// deadLetter pushes envelope onto the dead letter list without first
// attempting mark_failed, used when the durable record itself could not be
// loaded.
func (qm *RedisQueueManager) deadLetter(ctx context.Context, envelope *Envelope, errorMessage string) error {
	envelope.ErrorMessage = errorMessage
	return qm.deadLetterQueue.Push(ctx, envelope)
}

// PromoteRetries moves every due envelope from `retry` back to
// pending:{envelope.queue_name}, tolerating per-entry failure.
func (qm *RedisQueueManager) PromoteRetries(ctx context.Context) (int, error) {
	if qm.closed {
		return 0, ErrQueueClosed
	}

	due, err := qm.retryQueue.Due(ctx, time.Now(), 100)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, envelope := range due {
		if err := qm.taskQueue.Enqueue(ctx, envelope); err != nil {
			qm.logger.Error("failed to promote retry envelope to pending", "task_id", envelope.TaskID, "error", err)
			continue
		}

		if err := qm.retryQueue.Remove(ctx, envelope.TaskID); err != nil {
			qm.logger.Error("failed to remove due envelope from retry set", "task_id", envelope.TaskID, "error", err)
			continue
		}

		if err := qm.store.ResetToPending(ctx, envelope.TaskID); err != nil {
			qm.logger.Warn("reset_to_pending precondition violation", "task_id", envelope.TaskID, "error", err)
		}

		promoted++
	}

	return promoted, nil
}

// Stats reports counts across the broker structures for queueName, plus
// the process-wide retry and dead-letter totals.
func (qm *RedisQueueManager) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	if qm.closed {
		return nil, ErrQueueClosed
	}

	pending, err := qm.taskQueue.QueueCount(ctx, queueName)
	if err != nil {
		return nil, err
	}

	completed, err := qm.taskQueue.CompletedCount(ctx, queueName)
	if err != nil {
		return nil, err
	}

	processing, err := qm.taskQueue.ProcessingCount(ctx)
	if err != nil {
		return nil, err
	}

	retryCount, err := qm.retryQueue.Count(ctx)
	if err != nil {
		return nil, err
	}

	deadLetterCount, err := qm.deadLetterQueue.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &QueueStats{
		QueueName:  queueName,
		Pending:    pending,
		Retry:      retryCount,
		Completed:  completed,
		DeadLetter: deadLetterCount,
		Processing: processing,
	}, nil
}

// IsHealthy checks the broker connection and, transitively, every queue
// built on top of it.
func (qm *RedisQueueManager) IsHealthy(ctx context.Context) error {
	if qm.closed {
		return ErrQueueClosed
	}
	return qm.client.IsHealthy(ctx)
}

// StartRetryPromoter starts the single process-wide promoter goroutine
// shared by the whole worker pool, rather than one per worker.
func (qm *RedisQueueManager) StartRetryPromoter(ctx context.Context, promote func(context.Context) (int, error)) {
	qm.retryProcessor.Start(ctx, promote)
}

// StopRetryPromoter stops the promoter started by StartRetryPromoter.
func (qm *RedisQueueManager) StopRetryPromoter() {
	qm.retryProcessor.Stop()
}

// Close releases the broker connection and every queue built on top of it.
func (qm *RedisQueueManager) Close() error {
	if qm.closed {
		return nil
	}

	qm.retryProcessor.Stop()

	if err := qm.taskQueue.Close(); err != nil {
		qm.logger.Error("failed to close task queue", "error", err)
	}
	if err := qm.retryQueue.Close(); err != nil {
		qm.logger.Error("failed to close retry queue", "error", err)
	}
	if err := qm.deadLetterQueue.Close(); err != nil {
		qm.logger.Error("failed to close dead letter queue", "error", err)
	}
	if err := qm.client.Close(); err != nil {
		qm.logger.Error("failed to close redis client", "error", err)
	}

	qm.closed = true
	return nil
}
