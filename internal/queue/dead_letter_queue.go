package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskqueue/engine/internal/config"
)

// RedisDeadLetterQueue implements DeadLetterQueue over the single
// `dead_letter` append-only list, which holds full envelopes — unlike
// completed:{queue}, which holds only task-ids. This asymmetry is preserved
// as written; see the queue engine's fail() design notes.
type RedisDeadLetterQueue struct {
	client *RedisClient
	config *config.QueueConfig
	logger *slog.Logger
	closed bool
}

// NewRedisDeadLetterQueue creates a new Redis-based dead letter queue.
func NewRedisDeadLetterQueue(client *RedisClient, cfg *config.QueueConfig, logger *slog.Logger) (*RedisDeadLetterQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("queue config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisDeadLetterQueue{client: client, config: cfg, logger: logger}, nil
}

// Push appends the full envelope onto `dead_letter`.
func (dlq *RedisDeadLetterQueue) Push(ctx context.Context, envelope *Envelope) error {
	if dlq.closed {
		return ErrQueueClosed
	}

	data, err := SerializeEnvelope(envelope)
	if err != nil {
		return NewQueueOperationError("dead_letter_push", "dead_letter", envelope.TaskID.String(), err, false)
	}

	if err := dlq.client.GetClient().LPush(ctx, DeadLetterKey(), data).Err(); err != nil {
		return NewBrokerUnavailableError(err)
	}

	dlq.logger.Warn("task moved to dead letter",
		"task_id", envelope.TaskID,
		"task_name", envelope.TaskName,
		"retry_count", envelope.RetryCount,
		"error_message", envelope.ErrorMessage,
	)

	return nil
}

// Count returns the length of `dead_letter`.
func (dlq *RedisDeadLetterQueue) Count(ctx context.Context) (int64, error) {
	count, err := dlq.client.GetClient().LLen(ctx, DeadLetterKey()).Result()
	if err != nil {
		return 0, NewBrokerUnavailableError(err)
	}
	return count, nil
}

// List returns up to limit of the most recently dead-lettered envelopes.
func (dlq *RedisDeadLetterQueue) List(ctx context.Context, limit int64) ([]*Envelope, error) {
	if dlq.closed {
		return nil, ErrQueueClosed
	}

	if limit <= 0 {
		limit = 50
	}

	raw, err := dlq.client.GetClient().LRange(ctx, DeadLetterKey(), 0, limit-1).Result()
	if err != nil {
		return nil, NewBrokerUnavailableError(err)
	}

	envelopes := make([]*Envelope, 0, len(raw))
	for _, data := range raw {
		envelope, err := DeserializeEnvelope(data)
		if err != nil {
			dlq.logger.Warn("failed to deserialize dead letter entry", "error", err)
			continue
		}
		envelopes = append(envelopes, envelope)
	}

	return envelopes, nil
}

// IsHealthy checks if the dead letter queue's broker connection is healthy.
func (dlq *RedisDeadLetterQueue) IsHealthy(ctx context.Context) error {
	if dlq.closed {
		return ErrQueueClosed
	}
	return dlq.client.IsHealthy(ctx)
}

// Close closes the dead letter queue.
func (dlq *RedisDeadLetterQueue) Close() error {
	dlq.closed = true
	return nil
}
