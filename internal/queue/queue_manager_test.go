package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskqueue/engine/internal/config"
	"github.com/taskqueue/engine/internal/models"
)

func TestNewRedisQueueManager_ValidatesArguments(t *testing.T) {
	redisCfg := &config.RedisConfig{Host: "localhost", Port: "6379"}
	queueCfg := &config.QueueConfig{}
	store := newFakeStore()

	_, err := NewRedisQueueManager(nil, queueCfg, store, slog.Default())
	assert.Contains(t, err.Error(), "redis config is required")

	_, err = NewRedisQueueManager(redisCfg, nil, store, slog.Default())
	assert.Contains(t, err.Error(), "queue config is required")

	_, err = NewRedisQueueManager(redisCfg, queueCfg, nil, slog.Default())
	assert.Contains(t, err.Error(), "task record store is required")
}

// fakeTaskQueue, fakeRetryQueue, fakeDeadLetterQueue, and fakeStore stand in
// for the broker-backed structures so RedisQueueManager's orchestration
// logic (the enqueue/dequeue/complete/fail/promote_retries sequencing) can
// be exercised without a live Redis instance.
type fakeTaskQueue struct {
	mu         sync.Mutex
	pending    map[string][]*Envelope
	processing map[string]map[uuid.UUID]*Envelope
	completed  map[string][]uuid.UUID
	enqueueErr error
}

func newFakeTaskQueue() *fakeTaskQueue {
	return &fakeTaskQueue{
		pending:    map[string][]*Envelope{},
		processing: map[string]map[uuid.UUID]*Envelope{},
		completed:  map[string][]uuid.UUID{},
	}
}

func (f *fakeTaskQueue) Enqueue(ctx context.Context, envelope *Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.pending[envelope.QueueName] = append(f.pending[envelope.QueueName], envelope)
	return nil
}

func (f *fakeTaskQueue) Dequeue(ctx context.Context, queueName, workerID string) (*Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.pending[queueName]
	if len(q) == 0 {
		return nil, nil
	}
	e := q[0]
	f.pending[queueName] = q[1:]
	if f.processing[workerID] == nil {
		f.processing[workerID] = map[uuid.UUID]*Envelope{}
	}
	f.processing[workerID][e.TaskID] = e
	return e, nil
}

func (f *fakeTaskQueue) Complete(ctx context.Context, queueName, workerID string, taskID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.processing[workerID][taskID]; !ok {
		return nil
	}
	delete(f.processing[workerID], taskID)
	f.completed[queueName] = append(f.completed[queueName], taskID)
	return nil
}

func (f *fakeTaskQueue) Abandon(ctx context.Context, workerID string, taskID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.processing[workerID], taskID)
	return nil
}

func (f *fakeTaskQueue) QueueCount(ctx context.Context, queueName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.pending[queueName])), nil
}

func (f *fakeTaskQueue) CompletedCount(ctx context.Context, queueName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.completed[queueName])), nil
}

func (f *fakeTaskQueue) ProcessingCount(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, m := range f.processing {
		total += int64(len(m))
	}
	return total, nil
}

func (f *fakeTaskQueue) IsHealthy(ctx context.Context) error { return nil }
func (f *fakeTaskQueue) Close() error                        { return nil }

type fakeRetryQueue struct {
	mu        sync.Mutex
	scheduled map[uuid.UUID]*Envelope
	due       map[uuid.UUID]time.Time
}

func newFakeRetryQueue() *fakeRetryQueue {
	return &fakeRetryQueue{scheduled: map[uuid.UUID]*Envelope{}, due: map[uuid.UUID]time.Time{}}
}

func (f *fakeRetryQueue) Schedule(ctx context.Context, envelope *Envelope, dueAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[envelope.TaskID] = envelope
	f.due[envelope.TaskID] = dueAt
	return nil
}

func (f *fakeRetryQueue) Due(ctx context.Context, now time.Time, limit int64) ([]*Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Envelope
	for id, dueAt := range f.due {
		if !dueAt.After(now) {
			out = append(out, f.scheduled[id])
		}
	}
	return out, nil
}

func (f *fakeRetryQueue) Remove(ctx context.Context, taskID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, taskID)
	delete(f.due, taskID)
	return nil
}

func (f *fakeRetryQueue) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.scheduled)), nil
}

func (f *fakeRetryQueue) Close() error { return nil }

type fakeDeadLetterQueue struct {
	mu      sync.Mutex
	entries []*Envelope
}

func (f *fakeDeadLetterQueue) Push(ctx context.Context, envelope *Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, envelope)
	return nil
}

func (f *fakeDeadLetterQueue) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.entries)), nil
}

func (f *fakeDeadLetterQueue) List(ctx context.Context, limit int64) ([]*Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries, nil
}

func (f *fakeDeadLetterQueue) Close() error { return nil }

type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.Task
	getErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[uuid.UUID]*models.Task{}}
}

func (s *fakeStore) put(t *models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[t.ID] = t
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	t, ok := s.records[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return t, nil
}

func (s *fakeStore) MarkProcessing(ctx context.Context, id uuid.UUID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.records[id]
	t.Status = models.TaskStatusProcessing
	t.WorkerID = &workerID
	now := time.Now()
	t.StartedAt = &now
	return nil
}

func (s *fakeStore) MarkCompleted(ctx context.Context, id uuid.UUID, result models.JSONB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.records[id]
	t.Status = models.TaskStatusSuccess
	t.Result = result
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.records[id]
	t.Status = models.TaskStatusFailed
	t.ErrorMessage = &errorMessage
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

func (s *fakeStore) MarkRetry(ctx context.Context, id uuid.UUID, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.records[id]
	t.Status = models.TaskStatusRetry
	t.RetryCount++
	t.NextRetryAt = &nextRetryAt
	return nil
}

func (s *fakeStore) ResetToPending(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.records[id]
	t.Status = models.TaskStatusPending
	return nil
}

// newTestManager builds a RedisQueueManager with fakes wired in directly
// (white-box, package-internal construction), bypassing NewRedisQueueManager
// so no live broker connection is required.
func newTestManager() (*RedisQueueManager, *fakeTaskQueue, *fakeRetryQueue, *fakeDeadLetterQueue, *fakeStore) {
	tq := newFakeTaskQueue()
	rq := newFakeRetryQueue()
	dlq := &fakeDeadLetterQueue{}
	store := newFakeStore()

	qm := &RedisQueueManager{
		logger:          slog.Default(),
		store:           store,
		taskQueue:       tq,
		retryQueue:      rq,
		deadLetterQueue: dlq,
	}
	qm.retryProcessor = NewRetryProcessor(slog.Default())

	return qm, tq, rq, dlq, store
}

func testEnvelope(queueName string, priority Priority) (*Envelope, *models.Task) {
	id := uuid.New()
	env := &Envelope{
		TaskID:     id,
		TaskName:   "add_numbers",
		Args:       []interface{}{float64(1), float64(2)},
		Kwargs:     map[string]interface{}{},
		Priority:   priority,
		QueueName:  queueName,
		CreatedAt:  time.Now(),
		RetryDelay: 60,
	}
	task := &models.Task{
		BaseModel:  models.BaseModel{ID: id, CreatedAt: env.CreatedAt},
		TaskName:   "add_numbers",
		Status:     models.TaskStatusPending,
		Priority:   models.Priority(priority),
		MaxRetries: 3,
		RetryDelay: 60,
		QueueName:  queueName,
	}
	return env, task
}

func TestQueueManager_EnqueueDequeue_RoundTrip(t *testing.T) {
	qm, _, _, _, store := newTestManager()

	env, task := testEnvelope("default", PriorityHigh)
	store.put(task)

	require.NoError(t, qm.Enqueue(context.Background(), env))

	got, err := qm.Dequeue(context.Background(), "default", "worker_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, env.TaskID, got.TaskID)
	assert.Equal(t, env.TaskName, got.TaskName)
	assert.Equal(t, env.Priority, got.Priority)
	assert.Equal(t, env.QueueName, got.QueueName)

	record, err := store.GetByID(context.Background(), env.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, record.Status)
	assert.NotNil(t, record.StartedAt)
}

func TestQueueManager_Dequeue_EmptyQueueReturnsNil(t *testing.T) {
	qm, _, _, _, _ := newTestManager()

	got, err := qm.Dequeue(context.Background(), "default", "worker_1")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueueManager_Dequeue_GeneratesWorkerIDWhenEmpty(t *testing.T) {
	qm, tq, _, _, store := newTestManager()
	env, task := testEnvelope("default", PriorityNormal)
	store.put(task)
	require.NoError(t, tq.Enqueue(context.Background(), env))

	got, err := qm.Dequeue(context.Background(), "default", "")
	require.NoError(t, err)
	require.NotNil(t, got)

	record, _ := store.GetByID(context.Background(), env.TaskID)
	require.NotNil(t, record.WorkerID)
	assert.Contains(t, *record.WorkerID, "worker_")
}

func TestQueueManager_Complete(t *testing.T) {
	qm, tq, _, _, store := newTestManager()
	env, task := testEnvelope("default", PriorityNormal)
	store.put(task)
	require.NoError(t, tq.Enqueue(context.Background(), env))
	_, err := qm.Dequeue(context.Background(), "default", "worker_1")
	require.NoError(t, err)

	require.NoError(t, qm.Complete(context.Background(), "default", "worker_1", env.TaskID, models.JSONB{"value": float64(3)}))

	record, err := store.GetByID(context.Background(), env.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, record.Status)
	assert.NotNil(t, record.CompletedAt)

	completedCount, _ := tq.CompletedCount(context.Background(), "default")
	assert.Equal(t, int64(1), completedCount)
}

func TestQueueManager_Complete_IdempotentOnRepeat(t *testing.T) {
	qm, tq, _, _, store := newTestManager()
	env, task := testEnvelope("default", PriorityNormal)
	store.put(task)
	require.NoError(t, tq.Enqueue(context.Background(), env))
	_, err := qm.Dequeue(context.Background(), "default", "worker_1")
	require.NoError(t, err)

	require.NoError(t, qm.Complete(context.Background(), "default", "worker_1", env.TaskID, nil))
	require.NoError(t, qm.Complete(context.Background(), "default", "worker_1", env.TaskID, nil))

	record, _ := store.GetByID(context.Background(), env.TaskID)
	assert.Equal(t, models.TaskStatusSuccess, record.Status)

	completedCount, _ := tq.CompletedCount(context.Background(), "default")
	assert.Equal(t, int64(1), completedCount, "a repeat Complete call does not append a second completed entry")
}

func TestQueueManager_Fail_SchedulesRetryWhenRetriesRemain(t *testing.T) {
	qm, tq, rq, dlq, store := newTestManager()
	env, task := testEnvelope("default", PriorityNormal)
	task.MaxRetries = 2
	store.put(task)
	require.NoError(t, tq.Enqueue(context.Background(), env))
	_, err := qm.Dequeue(context.Background(), "default", "worker_1")
	require.NoError(t, err)

	require.NoError(t, qm.Fail(context.Background(), "default", "worker_1", env, "boom"))

	record, _ := store.GetByID(context.Background(), env.TaskID)
	assert.Equal(t, models.TaskStatusRetry, record.Status)
	assert.Equal(t, 1, record.RetryCount)
	require.NotNil(t, record.NextRetryAt)
	assert.True(t, record.NextRetryAt.After(record.CreatedAt))

	retryCount, _ := rq.Count(context.Background())
	assert.Equal(t, int64(1), retryCount)

	dlCount, _ := dlq.Count(context.Background())
	assert.Equal(t, int64(0), dlCount)
}

func TestQueueManager_Fail_ExhaustsToDeadLetter(t *testing.T) {
	qm, tq, rq, dlq, store := newTestManager()
	env, task := testEnvelope("default", PriorityNormal)
	task.MaxRetries = 1
	task.RetryCount = 1
	store.put(task)
	require.NoError(t, tq.Enqueue(context.Background(), env))
	_, err := qm.Dequeue(context.Background(), "default", "worker_1")
	require.NoError(t, err)

	require.NoError(t, qm.Fail(context.Background(), "default", "worker_1", env, "still broken"))

	record, _ := store.GetByID(context.Background(), env.TaskID)
	assert.Equal(t, models.TaskStatusFailed, record.Status)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, "still broken", *record.ErrorMessage)

	retryCount, _ := rq.Count(context.Background())
	assert.Equal(t, int64(0), retryCount)

	dlCount, _ := dlq.Count(context.Background())
	assert.Equal(t, int64(1), dlCount)
}

func TestQueueManager_Fail_RecordLoadFailureFallsBackToDeadLetter(t *testing.T) {
	qm, tq, _, dlq, store := newTestManager()
	env, task := testEnvelope("default", PriorityNormal)
	store.put(task)
	require.NoError(t, tq.Enqueue(context.Background(), env))
	_, err := qm.Dequeue(context.Background(), "default", "worker_1")
	require.NoError(t, err)
	store.getErr = errors.New("store unavailable")

	require.NoError(t, qm.Fail(context.Background(), "default", "worker_1", env, "boom"))

	dlCount, _ := dlq.Count(context.Background())
	assert.Equal(t, int64(1), dlCount)
}

func TestQueueManager_PromoteRetries_MovesDueEntriesBackToPending(t *testing.T) {
	qm, tq, rq, _, store := newTestManager()
	env, task := testEnvelope("urgent", PriorityHigh)
	task.Status = models.TaskStatusRetry
	store.put(task)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, rq.Schedule(context.Background(), env, past))

	promoted, err := qm.PromoteRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	pendingCount, _ := tq.QueueCount(context.Background(), "urgent")
	assert.Equal(t, int64(1), pendingCount)

	retryCount, _ := rq.Count(context.Background())
	assert.Equal(t, int64(0), retryCount)

	record, _ := store.GetByID(context.Background(), env.TaskID)
	assert.Equal(t, models.TaskStatusPending, record.Status)
}

func TestQueueManager_PromoteRetries_NoDueEntriesIsNoop(t *testing.T) {
	qm, _, _, _, _ := newTestManager()

	promoted, err := qm.PromoteRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)
}

func TestQueueManager_PromoteRetries_SkipsFutureEntries(t *testing.T) {
	qm, _, rq, _, store := newTestManager()
	env, task := testEnvelope("default", PriorityNormal)
	task.Status = models.TaskStatusRetry
	store.put(task)

	future := time.Now().Add(time.Hour)
	require.NoError(t, rq.Schedule(context.Background(), env, future))

	promoted, err := qm.PromoteRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)

	retryCount, _ := rq.Count(context.Background())
	assert.Equal(t, int64(1), retryCount)
}

func TestQueueManager_Stats(t *testing.T) {
	qm, tq, rq, dlq, store := newTestManager()

	completedEnv, completedTask := testEnvelope("default", PriorityNormal)
	store.put(completedTask)
	require.NoError(t, tq.Enqueue(context.Background(), completedEnv))
	_, err := qm.Dequeue(context.Background(), "default", "worker_1")
	require.NoError(t, err)
	require.NoError(t, qm.Complete(context.Background(), "default", "worker_1", completedEnv.TaskID, nil))

	for i := 0; i < 3; i++ {
		env, task := testEnvelope("default", PriorityNormal)
		store.put(task)
		require.NoError(t, tq.Enqueue(context.Background(), env))
	}

	retryEnv, retryTask := testEnvelope("default", PriorityNormal)
	store.put(retryTask)
	require.NoError(t, rq.Schedule(context.Background(), retryEnv, time.Now().Add(time.Hour)))

	require.NoError(t, dlq.Push(context.Background(), retryEnv))

	stats, err := qm.Stats(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Pending)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Retry)
	assert.Equal(t, int64(1), stats.DeadLetter)
}

func TestQueueManager_ClosedManagerRejectsOperations(t *testing.T) {
	qm, _, _, _, _ := newTestManager()
	qm.closed = true

	env, _ := testEnvelope("default", PriorityNormal)
	assert.ErrorIs(t, qm.Enqueue(context.Background(), env), ErrQueueClosed)

	_, err := qm.Dequeue(context.Background(), "default", "worker_1")
	assert.ErrorIs(t, err, ErrQueueClosed)

	assert.ErrorIs(t, qm.Complete(context.Background(), "default", "worker_1", env.TaskID, nil), ErrQueueClosed)

	assert.ErrorIs(t, qm.Fail(context.Background(), "default", "worker_1", env, "boom"), ErrQueueClosed)

	_, err = qm.PromoteRetries(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = qm.Stats(context.Background(), "default")
	assert.ErrorIs(t, err, ErrQueueClosed)
}
