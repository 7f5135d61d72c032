package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/taskqueue/engine/internal/config"
)

// RedisRetryQueue implements RetryQueue over the single shared `retry`
// sorted set, scored by due timestamp (epoch seconds).
type RedisRetryQueue struct {
	client *RedisClient
	config *config.QueueConfig
	logger *slog.Logger
	closed bool
}

// NewRedisRetryQueue creates a new Redis-based retry queue.
func NewRedisRetryQueue(client *RedisClient, cfg *config.QueueConfig, logger *slog.Logger) (*RedisRetryQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("queue config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisRetryQueue{client: client, config: cfg, logger: logger}, nil
}

// Schedule inserts the envelope into `retry` with score = dueAt, and stashes
// the serialized envelope for promote_retries to read back.
func (rq *RedisRetryQueue) Schedule(ctx context.Context, envelope *Envelope, dueAt time.Time) error {
	if rq.closed {
		return ErrQueueClosed
	}

	if err := ValidateEnvelope(envelope); err != nil {
		return NewQueueOperationError("schedule_retry", "retry", envelope.TaskID.String(), err, false)
	}

	data, err := SerializeEnvelope(envelope)
	if err != nil {
		return NewQueueOperationError("schedule_retry", "retry", envelope.TaskID.String(), err, false)
	}

	pipe := rq.client.Pipeline()
	pipe.ZAdd(ctx, RetryKey(), &redis.Z{Score: float64(dueAt.Unix()), Member: envelope.TaskID.String()})
	pipe.Set(ctx, envelopeDataKey(envelope.TaskID), data, 0)

	if err := rq.client.ExecutePipeline(ctx, pipe); err != nil {
		return NewBrokerUnavailableError(err)
	}

	rq.logger.Debug("task scheduled for retry",
		"task_id", envelope.TaskID,
		"due_at", dueAt,
		"retry_count", envelope.RetryCount,
	)

	return nil
}

// Due returns envelopes whose due score is at or before now, without
// removing them — callers (promote_retries) remove individually as each is
// successfully handed back to pending, so a failure partway through a batch
// leaves the rest intact for the next pass.
func (rq *RedisRetryQueue) Due(ctx context.Context, now time.Time, limit int64) ([]*Envelope, error) {
	if rq.closed {
		return nil, ErrQueueClosed
	}

	ids, err := rq.client.ZRangeByScoreWithLimit(ctx, RetryKey(), "-inf", fmt.Sprintf("%d", now.Unix()), 0, limit)
	if err != nil {
		return nil, NewBrokerUnavailableError(err)
	}

	envelopes := make([]*Envelope, 0, len(ids))
	for _, idStr := range ids {
		taskID, err := uuid.Parse(idStr)
		if err != nil {
			rq.logger.Warn("retry set held a non-uuid member, discarding", "member", idStr)
			_ = rq.client.ZRem(ctx, RetryKey(), idStr)
			continue
		}

		data, err := rq.client.GetClient().Get(ctx, envelopeDataKey(taskID)).Result()
		if err != nil {
			if err == redis.Nil {
				rq.logger.Warn("due retry task had no stored envelope, discarding", "task_id", taskID)
				_ = rq.client.ZRem(ctx, RetryKey(), idStr)
				continue
			}
			return nil, NewBrokerUnavailableError(err)
		}

		envelope, err := DeserializeEnvelope(data)
		if err != nil {
			rq.logger.Warn("failed to deserialize due retry envelope", "task_id", taskID, "error", err)
			continue
		}

		envelopes = append(envelopes, envelope)
	}

	return envelopes, nil
}

// Remove removes a task-id from the retry set once it has been promoted
// back to pending. It does not delete the shared envelope-data key: by the
// time this is called, promote_retries has already re-enqueued the
// envelope into pending, which overwrote that key with fresh data owned by
// the pending set now — deleting it here would strand the promoted task
// with no envelope for dequeue to read back.
func (rq *RedisRetryQueue) Remove(ctx context.Context, taskID uuid.UUID) error {
	if rq.closed {
		return ErrQueueClosed
	}

	if err := rq.client.ZRem(ctx, RetryKey(), taskID.String()); err != nil {
		return NewBrokerUnavailableError(err)
	}

	return nil
}

// Count returns the total size of the shared retry set.
func (rq *RedisRetryQueue) Count(ctx context.Context) (int64, error) {
	count, err := rq.client.ZCard(ctx, RetryKey())
	if err != nil {
		return 0, NewBrokerUnavailableError(err)
	}
	return count, nil
}

// IsHealthy checks if the retry queue's broker connection is healthy.
func (rq *RedisRetryQueue) IsHealthy(ctx context.Context) error {
	if rq.closed {
		return ErrQueueClosed
	}
	return rq.client.IsHealthy(ctx)
}

// Close closes the retry queue.
func (rq *RedisRetryQueue) Close() error {
	rq.closed = true
	return nil
}
