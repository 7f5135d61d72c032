package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskqueue/engine/internal/models"
	"github.com/taskqueue/engine/internal/queue"
	"github.com/taskqueue/engine/internal/registry"
)

// Config holds the construction-time parameters for a single worker:
// identity, queue binding, poll cadence, and an optional run cap used by
// tests and the CLI's --max-tasks flag.
type Config struct {
	ID             string
	QueueName      string
	PollInterval   time.Duration
	MaxTasksPerRun int
}

// loopWorker implements Worker: a single-threaded poll/dequeue/execute loop
// bound to one queue name. It depends only on the queue engine façade and
// the frozen task registry — no executor, no concurrency manager, no
// direct record-store access. The stop signal is delivered from the
// process root (Stop), never installed by the worker itself.
type loopWorker struct {
	id             string
	queueName      string
	pollInterval   time.Duration
	maxTasksPerRun int

	manager  queue.QueueManager
	registry *registry.Registry
	logStore TaskLogStore
	logger   *slog.Logger

	running atomic.Bool

	statsMu sync.Mutex
	stats   Stats
}

// New creates a worker bound to manager and registry. registry must already
// be frozen; manager must already be open. A nil logStore is accepted — the
// per-task log trail is supplemental and never gates the state machine.
func New(cfg Config, manager queue.QueueManager, reg *registry.Registry, logStore TaskLogStore, logger *slog.Logger) (*loopWorker, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: worker id is required", ErrInvalidConfig)
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("%w: queue name is required", ErrInvalidConfig)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if manager == nil {
		return nil, fmt.Errorf("%w: queue manager is required", ErrInvalidConfig)
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if logStore == nil {
		logStore = noopTaskLogStore{}
	}

	return &loopWorker{
		id:             cfg.ID,
		queueName:      cfg.QueueName,
		pollInterval:   cfg.PollInterval,
		maxTasksPerRun: cfg.MaxTasksPerRun,
		manager:        manager,
		registry:       reg,
		logStore:       logStore,
		logger:         logger.With("worker_id", cfg.ID, "queue_name", cfg.QueueName),
	}, nil
}

func (w *loopWorker) ID() string { return w.id }

// Start runs the single-threaded poll/dequeue/execute loop until ctx is
// cancelled, or, if MaxTasksPerRun is set, until that many tasks have
// completed successfully; failed and unknown-task attempts do not count
// toward the cap. It never installs its own signal handler; the caller (the
// worker pool, or a standalone cmd/worker process) owns ctx's lifetime.
func (w *loopWorker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	w.statsMu.Lock()
	w.stats = Stats{WorkerID: w.id, StartedAt: time.Now()}
	w.statsMu.Unlock()

	w.logger.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping: context cancelled")
			return nil
		default:
		}

		if w.maxTasksPerRun > 0 {
			w.statsMu.Lock()
			succeeded := w.stats.TasksSucceeded
			w.statsMu.Unlock()
			if succeeded >= int64(w.maxTasksPerRun) {
				w.logger.Info("worker stopping: max_tasks_per_run reached", "max_tasks_per_run", w.maxTasksPerRun)
				return nil
			}
		}

		outcome := w.attempt(ctx)

		switch outcome {
		case OutcomeNoTaskAvailable, OutcomeInfrastructureError:
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.pollInterval):
			}
		case OutcomeTaskExecutedOK, OutcomeTaskExecutionFailed, OutcomeTaskUnknown:
			w.statsMu.Lock()
			w.stats.TasksProcessed++
			if outcome == OutcomeTaskExecutedOK {
				w.stats.TasksSucceeded++
			} else {
				w.stats.TasksFailed++
			}
			w.statsMu.Unlock()
		}
	}
}

// attempt performs one dequeue-execute-report cycle and returns an explicit
// outcome rather than branching on raised exceptions.
func (w *loopWorker) attempt(ctx context.Context) Outcome {
	envelope, err := w.manager.Dequeue(ctx, w.queueName, w.id)
	if err != nil {
		w.logger.Error("dequeue failed", "error", err)
		return OutcomeInfrastructureError
	}
	if envelope == nil {
		return OutcomeNoTaskAvailable
	}

	w.appendLog(ctx, envelope.TaskID, models.LogLevelInfo, fmt.Sprintf("dequeued by %s", w.id))

	fn, ok := w.registry.Lookup(envelope.TaskName)
	if !ok {
		msg := fmt.Sprintf("Task function not found: %s", envelope.TaskName)
		w.logger.Warn("task unknown", "task_id", envelope.TaskID, "task_name", envelope.TaskName)
		w.appendLog(ctx, envelope.TaskID, models.LogLevelWarn, msg)
		if err := w.manager.Fail(ctx, w.queueName, w.id, envelope, msg); err != nil {
			w.logger.Error("fail() failed for unknown task", "task_id", envelope.TaskID, "error", err)
			return OutcomeInfrastructureError
		}
		return OutcomeTaskUnknown
	}

	result, execErr := fn(envelope.Args, envelope.Kwargs)
	if execErr != nil {
		msg := fmt.Sprintf("Task execution failed: %v", execErr)
		w.logger.Warn("task execution failed", "task_id", envelope.TaskID, "task_name", envelope.TaskName, "error", execErr)
		w.appendLog(ctx, envelope.TaskID, models.LogLevelError, msg)
		if err := w.manager.Fail(ctx, w.queueName, w.id, envelope, msg); err != nil {
			w.logger.Error("fail() failed after execution error", "task_id", envelope.TaskID, "error", err)
			return OutcomeInfrastructureError
		}
		return OutcomeTaskExecutionFailed
	}

	if err := w.manager.Complete(ctx, w.queueName, w.id, envelope.TaskID, wrapResult(result)); err != nil {
		w.logger.Error("complete() failed", "task_id", envelope.TaskID, "error", err)
		return OutcomeInfrastructureError
	}

	w.logger.Info("task executed", "task_id", envelope.TaskID, "task_name", envelope.TaskName)
	w.appendLog(ctx, envelope.TaskID, models.LogLevelInfo, "completed successfully")
	return OutcomeTaskExecutedOK
}

// appendLog writes one line to the supplemental task log trail. Failures
// are logged and otherwise ignored — the log trail is read-only
// administrative context and never gates the state machine.
func (w *loopWorker) appendLog(ctx context.Context, taskID uuid.UUID, level models.LogLevel, message string) {
	if err := w.logStore.Create(ctx, &models.TaskLog{TaskID: taskID, Level: level, Message: message}); err != nil {
		w.logger.Debug("failed to append task log", "task_id", taskID, "error", err)
	}
}

// Stats returns a snapshot of this worker's lifetime counters.
func (w *loopWorker) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// wrapResult converts a task function's return value to the JSONB shape
// the durable record's result column expects. A map is stored as-is; any
// other value is wrapped under "value" so non-object results remain
// representable in a jsonb column.
func wrapResult(result interface{}) map[string]interface{} {
	if result == nil {
		return nil
	}
	if m, ok := result.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"value": result}
}
