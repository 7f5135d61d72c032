package queue

import (
	"errors"
	"fmt"
)

// Common queue errors
var (
	ErrQueueClosed = errors.New("queue is closed")
)

// QueueOperationError wraps a broker operation error with the operation,
// queue, and task-id that produced it.
type QueueOperationError struct {
	Operation string
	QueueName string
	MessageID string
	Err       error
	Retryable bool
}

func (e *QueueOperationError) Error() string {
	if e.MessageID != "" {
		return fmt.Sprintf("queue operation '%s' failed for queue '%s', message '%s': %v",
			e.Operation, e.QueueName, e.MessageID, e.Err)
	}
	return fmt.Sprintf("queue operation '%s' failed for queue '%s': %v",
		e.Operation, e.QueueName, e.Err)
}

func (e *QueueOperationError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *QueueOperationError) IsRetryable() bool {
	return e.Retryable
}

// NewQueueOperationError creates a new queue operation error
func NewQueueOperationError(operation, queueName, messageID string, err error, retryable bool) *QueueOperationError {
	return &QueueOperationError{
		Operation: operation,
		QueueName: queueName,
		MessageID: messageID,
		Err:       err,
		Retryable: retryable,
	}
}

// RedisError wraps Redis-specific errors
type RedisError struct {
	Operation string
	Key       string
	Err       error
	Retryable bool
}

func (e *RedisError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("redis operation '%s' failed for key '%s': %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("redis operation '%s' failed: %v", e.Operation, e.Err)
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *RedisError) IsRetryable() bool {
	return e.Retryable
}

// NewRedisError creates a new Redis error
func NewRedisError(operation, key string, err error, retryable bool) *RedisError {
	return &RedisError{
		Operation: operation,
		Key:       key,
		Err:       err,
		Retryable: retryable,
	}
}

// ValidationError represents a producer input that violates the envelope
// or priority schema. Enqueue wraps it in a QueueError; the HTTP layer
// rejects invalid request bodies with 400 before Enqueue is called, and
// answers any Enqueue error with 500.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	var queueErr *QueueError
	if errors.As(err, &queueErr) {
		return queueErr.Retryable
	}

	var operationErr *QueueOperationError
	if errors.As(err, &operationErr) {
		return operationErr.Retryable
	}

	var redisErr *RedisError
	if errors.As(err, &redisErr) {
		return redisErr.Retryable
	}

	// Default to retryable for unknown errors
	return true
}

// TaskUnknownError reports that a task name has no corresponding
// registration in the task registry. It is distinct from a task execution
// failure: the task function was never found, so it never ran.
type TaskUnknownError struct {
	TaskName string
}

func (e *TaskUnknownError) Error() string {
	return fmt.Sprintf("task function not found: %s", e.TaskName)
}

// NewTaskUnknownError creates a new TaskUnknownError
func NewTaskUnknownError(taskName string) *TaskUnknownError {
	return &TaskUnknownError{TaskName: taskName}
}

// PreconditionViolationError reports that a typed record-store transition
// found the record in an unexpected status — e.g. completing a task that is
// no longer processing. It is logged and not propagated to the caller; see
// the task record store's transition semantics.
type PreconditionViolationError struct {
	Operation      string
	TaskID         string
	ExpectedStatus string
}

func (e *PreconditionViolationError) Error() string {
	return fmt.Sprintf("precondition violation: operation '%s' on task '%s' expected status '%s'",
		e.Operation, e.TaskID, e.ExpectedStatus)
}

// NewPreconditionViolationError creates a new PreconditionViolationError
func NewPreconditionViolationError(operation, taskID, expectedStatus string) *PreconditionViolationError {
	return &PreconditionViolationError{
		Operation:      operation,
		TaskID:         taskID,
		ExpectedStatus: expectedStatus,
	}
}

// BrokerUnavailableError and StoreUnavailableError mark infrastructure
// outages: the broker (Redis) or the durable record store (Postgres) could
// not be reached. Producer calls propagate these as HTTP 500; worker calls
// are logged and the loop backs off by one poll interval.
type BrokerUnavailableError struct {
	Err error
}

func (e *BrokerUnavailableError) Error() string {
	return fmt.Sprintf("broker unavailable: %v", e.Err)
}

func (e *BrokerUnavailableError) Unwrap() error {
	return e.Err
}

func NewBrokerUnavailableError(err error) *BrokerUnavailableError {
	return &BrokerUnavailableError{Err: err}
}

type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

func NewStoreUnavailableError(err error) *StoreUnavailableError {
	return &StoreUnavailableError{Err: err}
}

// TaskExecutionError wraps a panic/error raised by a task function during
// execution, distinct from TaskUnknownError (the function was found and ran).
type TaskExecutionError struct {
	TaskName string
	Err      error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task execution failed: %s: %v", e.TaskName, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

func NewTaskExecutionError(taskName string, err error) *TaskExecutionError {
	return &TaskExecutionError{TaskName: taskName, Err: err}
}

// WrapError wraps an error with queue context
func WrapError(operation, queueName string, err error) error {
	if err == nil {
		return nil
	}

	// Don't double-wrap queue errors
	var queueErr *QueueError
	if errors.As(err, &queueErr) {
		return err
	}

	var operationErr *QueueOperationError
	if errors.As(err, &operationErr) {
		return err
	}

	return NewQueueOperationError(operation, queueName, "", err, IsRetryableError(err))
}
