package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskqueue/engine/internal/queue"
	"github.com/taskqueue/engine/internal/registry"
)

// PoolConfig holds the construction-time parameters for a worker pool:
// size, queue binding, and the per-worker poll/run-cap settings shared
// by every worker in the pool.
type PoolConfig struct {
	Size           int
	QueueName      string
	PollInterval   time.Duration
	MaxTasksPerRun int
}

// pool is a fixed-size set of workers bound to one queue, each on its own
// goroutine, joined with a WaitGroup. Stop broadcasts the stop signal to
// every worker but does not cancel a running task body.
type pool struct {
	workers []*loopWorker
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool builds a pool of cfg.Size workers with deterministic ids
// worker_<queue>_<1..N>. logStore may be nil.
func NewPool(cfg PoolConfig, manager queue.QueueManager, reg *registry.Registry, logStore TaskLogStore, logger *slog.Logger) (*pool, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("%w: pool size must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	workers := make([]*loopWorker, 0, cfg.Size)
	for i := 1; i <= cfg.Size; i++ {
		w, err := New(Config{
			ID:             fmt.Sprintf("worker_%s_%d", cfg.QueueName, i),
			QueueName:      cfg.QueueName,
			PollInterval:   cfg.PollInterval,
			MaxTasksPerRun: cfg.MaxTasksPerRun,
		}, manager, reg, logStore, logger)
		if err != nil {
			return nil, fmt.Errorf("building worker %d/%d: %w", i, cfg.Size, err)
		}
		workers = append(workers, w)
	}

	return &pool{workers: workers, logger: logger}, nil
}

// Start launches every worker on its own goroutine and returns immediately;
// it does not block on completion. Calling Start twice is an error.
func (p *pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for _, w := range p.workers {
		w := w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := w.Start(runCtx); err != nil {
				p.logger.Error("worker exited with error", "worker_id", w.ID(), "error", err)
			}
		}()
	}

	p.logger.Info("worker pool started", "worker_count", len(p.workers))
	return nil
}

// Stop broadcasts the stop signal to every worker and blocks until each has
// returned from its current attempt. It does not cancel a task body already
// in flight — a running task function runs to completion.
func (p *pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// WorkerCount returns the number of workers in the pool.
func (p *pool) WorkerCount() int {
	return len(p.workers)
}
