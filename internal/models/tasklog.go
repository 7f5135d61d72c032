package models

import (
	"github.com/google/uuid"
)

// LogLevel mirrors the severity levels a worker can attach to a task log
// line.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// TaskLog is one line of the execution trail recorded against a task. It
// supplements the task record with a human-readable history of what the
// worker did, independent of the terminal result/error_message fields.
type TaskLog struct {
	BaseModel
	TaskID  uuid.UUID `json:"task_id" db:"task_id"`
	Level   LogLevel  `json:"level" db:"level"`
	Message string    `json:"message" db:"message"`
}

// TaskLogResponse is the JSON shape returned for a task's log trail.
type TaskLogResponse struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	CreatedAt string    `json:"created_at"`
}

func (l *TaskLog) ToResponse() TaskLogResponse {
	return TaskLogResponse{
		ID:        l.ID,
		TaskID:    l.TaskID,
		Level:     l.Level,
		Message:   l.Message,
		CreatedAt: l.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
