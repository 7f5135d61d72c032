package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle status of a task record.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusRetry      TaskStatus = "retry"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Priority is a small integer; higher values are dequeued first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// ParsePriority maps the HTTP-boundary string representation onto the
// canonical integer scale. An unrecognized string defaults to normal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// Task is the durable record for one unit of work.
type Task struct {
	BaseModel
	TaskName     string     `json:"task_name" db:"task_name"`
	Status       TaskStatus `json:"status" db:"status"`
	Priority     Priority   `json:"priority" db:"priority"`
	Args         JSONArray  `json:"args" db:"args"`
	Kwargs       JSONB      `json:"kwargs" db:"kwargs"`
	Result       JSONB      `json:"result,omitempty" db:"result"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	RetryCount   int        `json:"retry_count" db:"retry_count"`
	MaxRetries   int        `json:"max_retries" db:"max_retries"`
	RetryDelay   int        `json:"retry_delay" db:"retry_delay"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	WorkerID     *string    `json:"worker_id,omitempty" db:"worker_id"`
	QueueName    string     `json:"queue_name" db:"queue_name"`
}

// CanRetry is a pure query over the durable record: retry_count < max_retries
// and the due time, if any, has passed.
func (t *Task) CanRetry(now time.Time) bool {
	if t.RetryCount >= t.MaxRetries {
		return false
	}
	if t.NextRetryAt == nil {
		return true
	}
	return !t.NextRetryAt.After(now)
}

// CreateTaskRequest is the HTTP submission payload for task submission.
type CreateTaskRequest struct {
	TaskName   string         `json:"task_name" validate:"required,task_name,min=1,max=255"`
	Priority   string         `json:"priority" validate:"omitempty,oneof=low normal high critical"`
	Args       []interface{}  `json:"args"`
	Kwargs     map[string]any `json:"kwargs"`
	MaxRetries *int           `json:"max_retries" validate:"omitempty,min=0"`
	RetryDelay *int           `json:"retry_delay" validate:"omitempty,min=0"`
	QueueName  string         `json:"queue_name" validate:"omitempty,min=1,max=255"`
}

// Normalize applies the documented defaults (priority mapping, max_retries=3,
// retry_delay=60, queue_name="default") to the raw request.
func (r *CreateTaskRequest) Normalize() (priority Priority, maxRetries, retryDelay int, queueName string) {
	priority = ParsePriority(r.Priority)

	maxRetries = 3
	if r.MaxRetries != nil {
		maxRetries = *r.MaxRetries
	}

	retryDelay = 60
	if r.RetryDelay != nil {
		retryDelay = *r.RetryDelay
	}

	queueName = r.QueueName
	if queueName == "" {
		queueName = "default"
	}

	return
}

// ValidateTaskName rejects a blank task name; shared by the validator tag
// in internal/api/middleware/validation.go, which adds its own length and
// character checks.
func ValidateTaskName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("task name is required")
	}
	return nil
}

// TaskResponse is the JSON shape of a task record returned to producers.
type TaskResponse struct {
	ID           uuid.UUID  `json:"id"`
	TaskName     string     `json:"task_name"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	Args         JSONArray  `json:"args"`
	Kwargs       JSONB      `json:"kwargs"`
	Result       JSONB      `json:"result,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	RetryDelay   int        `json:"retry_delay"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	WorkerID     *string    `json:"worker_id,omitempty"`
	QueueName    string     `json:"queue_name"`
}

func (t *Task) ToResponse() TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		TaskName:     t.TaskName,
		Status:       t.Status,
		Priority:     t.Priority,
		Args:         t.Args,
		Kwargs:       t.Kwargs,
		Result:       t.Result,
		ErrorMessage: t.ErrorMessage,
		RetryCount:   t.RetryCount,
		MaxRetries:   t.MaxRetries,
		RetryDelay:   t.RetryDelay,
		NextRetryAt:  t.NextRetryAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		WorkerID:     t.WorkerID,
		QueueName:    t.QueueName,
	}
}

// TaskListResponse wraps a page of tasks for GET /api/tasks/.
type TaskListResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    []TaskResponse `json:"data"`
	Count   int            `json:"count"`
}

// TaskCreateResponse and TaskErrorResponse implement the response envelopes
// of the task submission endpoint.
type TaskCreateResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    TaskResponse `json:"data"`
}

type TaskErrorResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}
