package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	t.Run("queue operation error honors its retryable flag", func(t *testing.T) {
		retryable := NewQueueOperationError("enqueue", "default", "", errors.New("boom"), true)
		assert.True(t, IsRetryableError(retryable))

		notRetryable := NewQueueOperationError("enqueue", "default", "", errors.New("boom"), false)
		assert.False(t, IsRetryableError(notRetryable))
	})

	t.Run("redis error honors its retryable flag", func(t *testing.T) {
		err := NewRedisError("zadd", "task_queue:pending:default", errors.New("timeout"), true)
		assert.True(t, IsRetryableError(err))
	})

	t.Run("unknown error defaults to retryable", func(t *testing.T) {
		assert.True(t, IsRetryableError(errors.New("unclassified")))
	})
}

func TestWrapError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, WrapError("enqueue", "default", nil))
	})

	t.Run("wraps a plain error", func(t *testing.T) {
		wrapped := WrapError("enqueue", "default", errors.New("boom"))
		var opErr *QueueOperationError
		assert.True(t, errors.As(wrapped, &opErr))
		assert.Equal(t, "enqueue", opErr.Operation)
	})

	t.Run("does not double-wrap a queue operation error", func(t *testing.T) {
		original := NewQueueOperationError("dequeue", "default", "task-1", errors.New("boom"), false)
		wrapped := WrapError("enqueue", "default", original)
		assert.Same(t, original, wrapped)
	})
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, NewTaskUnknownError("mystery_task").Error(), "mystery_task")
	assert.Contains(t, NewPreconditionViolationError("mark_completed", "t-1", "processing").Error(), "processing")
	assert.Contains(t, NewBrokerUnavailableError(errors.New("conn refused")).Error(), "conn refused")
	assert.Contains(t, NewStoreUnavailableError(errors.New("conn refused")).Error(), "conn refused")
	assert.Contains(t, NewTaskExecutionError("add_numbers", errors.New("boom")).Error(), "add_numbers")
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("priority", 9, "must be between 1 and 4")
	assert.Contains(t, err.Error(), "priority")
	assert.Contains(t, err.Error(), "must be between 1 and 4")
}
