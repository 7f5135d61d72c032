package queue

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateWorkerID generates a worker identity of the form "worker_<8 hex>",
// used when a worker is started without an explicit --worker-id.
func GenerateWorkerID() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "worker_" + uuid.New().String()[:8]
	}
	return "worker_" + hex.EncodeToString(bytes)
}

// ValidatePriority validates a task priority value against the 1..4 scale.
func ValidatePriority(priority Priority) error {
	if !priority.Valid() {
		return NewValidationError("priority", int(priority),
			fmt.Sprintf("must be between %d and %d", PriorityLow, PriorityCritical))
	}
	return nil
}

// ValidateEnvelope validates an envelope before it is persisted to the
// broker, catching malformed producer input before it reaches Redis.
func ValidateEnvelope(envelope *Envelope) error {
	if envelope == nil {
		return NewValidationError("envelope", nil, "cannot be nil")
	}

	if envelope.TaskID == uuid.Nil {
		return NewValidationError("task_id", envelope.TaskID, "cannot be empty")
	}

	if envelope.TaskName == "" {
		return NewValidationError("task_name", envelope.TaskName, "cannot be empty")
	}

	if envelope.QueueName == "" {
		return NewValidationError("queue_name", envelope.QueueName, "cannot be empty")
	}

	if err := ValidatePriority(envelope.Priority); err != nil {
		return err
	}

	if envelope.CreatedAt.IsZero() {
		return NewValidationError("created_at", envelope.CreatedAt, "cannot be empty")
	}

	if envelope.RetryCount < 0 {
		return NewValidationError("retry_count", envelope.RetryCount, "cannot be negative")
	}

	return nil
}

// SerializeEnvelope serializes an envelope to JSON for broker storage.
func SerializeEnvelope(envelope *Envelope) (string, error) {
	if err := ValidateEnvelope(envelope); err != nil {
		return "", fmt.Errorf("envelope validation failed: %w", err)
	}

	envelope.SchemaVersion = envelopeSchemaVersion

	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to serialize envelope: %w", err)
	}

	return string(data), nil
}

// DeserializeEnvelope deserializes an envelope from JSON, rejecting unknown
// fields (an ingestion error) so a future schema revision cannot silently
// be misread by an older worker.
func DeserializeEnvelope(data string) (*Envelope, error) {
	if data == "" {
		return nil, NewValidationError("data", data, "cannot be empty")
	}

	decoder := json.NewDecoder(strings.NewReader(data))
	decoder.DisallowUnknownFields()

	var envelope Envelope
	if err := decoder.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to deserialize envelope: %w", err)
	}

	if err := ValidateEnvelope(&envelope); err != nil {
		return nil, fmt.Errorf("deserialized envelope validation failed: %w", err)
	}

	return &envelope, nil
}

// CalculatePriorityScore computes the sorted-set score used for
// pending:{queue}. Dequeue reads the set with ZREVRANGE (highest score
// first), so priority must increase with urgency here: priority dominates
// the score, with a negated timestamp component folded in so that, within
// the same priority, the oldest envelope still sorts first.
func CalculatePriorityScore(priority Priority, createdAt time.Time) float64 {
	if priority < PriorityLow {
		priority = PriorityLow
	}
	if priority > PriorityCritical {
		priority = PriorityCritical
	}

	priorityScore := float64(priority)
	timestampScore := -float64(createdAt.UnixMicro()) / 1e12

	return priorityScore*1e6 + timestampScore
}

// CalculateRetryAt computes the flat (non-exponential) retry due time:
// now + retry_delay_seconds, per the queue engine's fail() semantics.
func CalculateRetryAt(now time.Time, retryDelaySeconds int) time.Time {
	return now.Add(time.Duration(retryDelaySeconds) * time.Second)
}

// FormatQueueKey builds a broker key under the task_queue: prefix using the
// exact layout named in the external interfaces section:
// task_queue:<structure>[:<discriminator>].
func FormatQueueKey(structure, discriminator string) string {
	if discriminator == "" {
		return fmt.Sprintf("task_queue:%s", structure)
	}
	return fmt.Sprintf("task_queue:%s:%s", structure, discriminator)
}

// PendingKey, ProcessingKey, CompletedKey, RetryKey, DeadLetterKey are the
// named broker structures from the data model section.
func PendingKey(queueName string) string    { return FormatQueueKey("pending", queueName) }
func ProcessingKey(workerID string) string  { return FormatQueueKey("processing", workerID) }
func CompletedKey(queueName string) string  { return FormatQueueKey("completed", queueName) }
func RetryKey() string                      { return FormatQueueKey("retry", "") }
func DeadLetterKey() string                 { return FormatQueueKey("dead_letter", "") }
func ProcessingPattern() string             { return FormatQueueKey("processing", "*") }
