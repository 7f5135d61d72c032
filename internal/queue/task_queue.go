package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/taskqueue/engine/internal/config"
)

const processingTTL = time.Hour

// RedisTaskQueue implements TaskQueue over the pending:{queue} sorted sets
// and processing:{worker_id} hashes, using the shared RedisClient wrapper
// for all primitive operations.
type RedisTaskQueue struct {
	client *RedisClient
	config *config.QueueConfig
	logger *slog.Logger
	closed bool
}

// NewRedisTaskQueue creates a new Redis-based task queue.
func NewRedisTaskQueue(client *RedisClient, cfg *config.QueueConfig, logger *slog.Logger) (*RedisTaskQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("queue config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisTaskQueue{client: client, config: cfg, logger: logger}, nil
}

// Enqueue inserts the envelope into pending:{queue} with score = priority
// (ties broken by insertion order, see CalculatePriorityScore), and stashes
// the serialized envelope under its own key for dequeue to pick up.
func (q *RedisTaskQueue) Enqueue(ctx context.Context, envelope *Envelope) error {
	if q.closed {
		return ErrQueueClosed
	}

	if err := ValidateEnvelope(envelope); err != nil {
		return NewQueueOperationError("enqueue", envelope.QueueName, envelope.TaskID.String(), err, false)
	}

	score := CalculatePriorityScore(envelope.Priority, envelope.CreatedAt)

	data, err := SerializeEnvelope(envelope)
	if err != nil {
		return NewQueueOperationError("enqueue", envelope.QueueName, envelope.TaskID.String(), err, false)
	}

	pipe := q.client.Pipeline()
	pipe.ZAdd(ctx, PendingKey(envelope.QueueName), &redis.Z{Score: score, Member: envelope.TaskID.String()})
	pipe.Set(ctx, envelopeDataKey(envelope.TaskID), data, 0)

	if err := q.client.ExecutePipeline(ctx, pipe); err != nil {
		return NewBrokerUnavailableError(err)
	}

	q.logger.Debug("envelope enqueued",
		"task_id", envelope.TaskID,
		"queue_name", envelope.QueueName,
		"priority", envelope.Priority,
		"score", score,
	)

	return nil
}

// dequeueScript atomically removes the candidate task-id (ARGV[2], the
// highest-scored member read just before) from the pending set and moves
// its envelope into the worker's processing hash, refreshing the hash TTL
// on each assignment. Returns false (a nil reply, reported as redis.Nil)
// if the candidate is no longer in the pending set because another worker
// took it first; the caller then retries from the top.
const dequeueScript = `
	local taskID = ARGV[2]
	local removed = redis.call('ZREM', KEYS[1], taskID)
	if removed == 0 then
		return false
	end
	local envelope = redis.call('GET', KEYS[2])
	if envelope then
		redis.call('HSET', KEYS[3], taskID, envelope)
		redis.call('EXPIRE', KEYS[3], ARGV[1])
		redis.call('DEL', KEYS[2])
	end
	return {taskID, envelope}
`

// Dequeue implements the optimistic read-then-move transaction. Returns
// (nil, nil) when the queue is empty.
func (q *RedisTaskQueue) Dequeue(ctx context.Context, queueName, workerID string) (*Envelope, error) {
	if q.closed {
		return nil, ErrQueueClosed
	}

	for attempt := 0; attempt < 3; attempt++ {
		topIDs, err := q.client.GetClient().ZRevRange(ctx, PendingKey(queueName), 0, 0).Result()
		if err != nil {
			return nil, NewBrokerUnavailableError(err)
		}
		if len(topIDs) == 0 {
			return nil, nil
		}

		taskID, err := uuid.Parse(topIDs[0])
		if err != nil {
			q.logger.Warn("pending set held a non-uuid member, discarding", "member", topIDs[0])
			_ = q.client.ZRem(ctx, PendingKey(queueName), topIDs[0])
			continue
		}

		keys := []string{PendingKey(queueName), envelopeDataKey(taskID), ProcessingKey(workerID)}

		result, err := q.client.ExecuteLuaScript(ctx, dequeueScript, keys, int64(processingTTL.Seconds()), taskID.String())
		if errors.Is(err, redis.Nil) {
			// Lost the race to another worker; retry from the top.
			continue
		}
		if err != nil {
			return nil, NewBrokerUnavailableError(err)
		}

		pair, ok := result.([]interface{})
		if !ok || len(pair) != 2 {
			continue
		}

		envelopeJSON, ok := pair[1].(string)
		if !ok || envelopeJSON == "" {
			q.logger.Warn("dequeued task with no stored envelope", "task_id", taskID)
			continue
		}

		envelope, err := DeserializeEnvelope(envelopeJSON)
		if err != nil {
			q.logger.Warn("failed to deserialize dequeued envelope", "task_id", taskID, "error", err)
			continue
		}

		q.logger.Debug("envelope dequeued", "task_id", taskID, "worker_id", workerID, "queue_name", queueName)
		return envelope, nil
	}

	return nil, nil
}

// Complete deletes the task from processing:{worker_id} and appends its id
// to completed:{queue}. A no-op (not an error) if already removed.
func (q *RedisTaskQueue) Complete(ctx context.Context, queueName, workerID string, taskID uuid.UUID) error {
	if q.closed {
		return ErrQueueClosed
	}

	removed, err := q.client.GetClient().HDel(ctx, ProcessingKey(workerID), taskID.String()).Result()
	if err != nil {
		return NewBrokerUnavailableError(err)
	}
	if removed == 0 {
		return nil
	}

	if err := q.client.GetClient().LPush(ctx, CompletedKey(queueName), taskID.String()).Err(); err != nil {
		return NewBrokerUnavailableError(err)
	}

	return nil
}

// Abandon removes a task-id from a worker's processing map without
// recording completion, used by fail() before the retry/dead-letter
// decision is made.
func (q *RedisTaskQueue) Abandon(ctx context.Context, workerID string, taskID uuid.UUID) error {
	if q.closed {
		return ErrQueueClosed
	}

	if err := q.client.HDel(ctx, ProcessingKey(workerID), taskID.String()); err != nil {
		return NewBrokerUnavailableError(err)
	}

	return nil
}

// QueueCount returns the size of pending:{queue}.
func (q *RedisTaskQueue) QueueCount(ctx context.Context, queueName string) (int64, error) {
	count, err := q.client.ZCard(ctx, PendingKey(queueName))
	if err != nil {
		return 0, NewBrokerUnavailableError(err)
	}
	return count, nil
}

// CompletedCount returns the size of completed:{queue}.
func (q *RedisTaskQueue) CompletedCount(ctx context.Context, queueName string) (int64, error) {
	count, err := q.client.GetClient().LLen(ctx, CompletedKey(queueName)).Result()
	if err != nil {
		return 0, NewBrokerUnavailableError(err)
	}
	return count, nil
}

// ProcessingCount sums hash sizes across every worker's processing map
// using SCAN + HLEN rather than the blocking KEYS command.
func (q *RedisTaskQueue) ProcessingCount(ctx context.Context) (int64, error) {
	var total int64
	var cursor uint64

	for {
		keys, nextCursor, err := q.client.GetClient().Scan(ctx, cursor, ProcessingPattern(), 100).Result()
		if err != nil {
			return 0, NewBrokerUnavailableError(err)
		}

		for _, key := range keys {
			n, err := q.client.GetClient().HLen(ctx, key).Result()
			if err != nil {
				q.logger.Warn("failed to read processing hash length", "key", key, "error", err)
				continue
			}
			total += n
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

// IsHealthy checks if the queue's underlying broker connection is healthy.
func (q *RedisTaskQueue) IsHealthy(ctx context.Context) error {
	if q.closed {
		return ErrQueueClosed
	}
	return q.client.IsHealthy(ctx)
}

// Close closes the queue.
func (q *RedisTaskQueue) Close() error {
	q.closed = true
	return nil
}

func envelopeDataKey(taskID uuid.UUID) string {
	return fmt.Sprintf("task_queue:envelope:%s", taskID.String())
}
