// Package main is the run_worker CLI: it starts one worker or a fixed-size
// pool against a single queue, plus the process-wide retry promoter.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/taskqueue/engine/internal/config"
	"github.com/taskqueue/engine/internal/database"
	"github.com/taskqueue/engine/internal/queue"
	"github.com/taskqueue/engine/internal/registry"
	"github.com/taskqueue/engine/internal/tasks"
	"github.com/taskqueue/engine/internal/worker"
	"github.com/taskqueue/engine/pkg/logger"
)

func main() {
	queueName := flag.String("queue", "default", "queue name to process")
	workers := flag.Int("workers", 1, "number of workers to run in parallel")
	workerID := flag.String("worker-id", "", "specific worker id (only valid when workers=1)")
	pollInterval := flag.Int("poll-interval", 1, "seconds to wait between queue polls")
	maxTasks := flag.Int("max-tasks", 0, "maximum number of successfully completed tasks before stopping (0 = unlimited)")
	logLevel := flag.String("log-level", "INFO", "log level: DEBUG, INFO, WARNING, ERROR")
	flag.Parse()

	if *workerID != "" && *workers > 1 {
		fmt.Fprintln(os.Stderr, "--worker-id cannot be used with --workers > 1")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(normalizeLevel(*logLevel), cfg.Logger.Format)
	log.Info("starting workers", "queue", *queueName, "count", *workers)

	dbConn, err := database.NewConnection(&cfg.Database, log.Logger)
	if err != nil {
		log.Error("failed to initialize database connection", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	repos := database.NewRepositories(dbConn)

	queueManager, err := queue.NewRedisQueueManager(&cfg.Redis, &cfg.Queue, repos.Tasks, log.Logger)
	if err != nil {
		log.Error("failed to initialize queue manager", "error", err)
		os.Exit(1)
	}
	defer queueManager.Close()

	reg := registry.New()
	tasks.Register(reg)
	reg.Freeze()
	log.Info("task registry frozen", "registered_tasks", reg.Names())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queueManager.StartRetryPromoter(ctx, queueManager.PromoteRetries)
	defer queueManager.StopRetryPromoter()

	poll := time.Duration(*pollInterval) * time.Second
	if poll <= 0 {
		poll = cfg.Worker.PollInterval
	}

	var stop func()
	if *workers == 1 {
		id := *workerID
		if id == "" {
			id = fmt.Sprintf("%s_%s_1", cfg.Worker.WorkerIDPrefix, *queueName)
		}
		w, err := worker.New(worker.Config{
			ID:             id,
			QueueName:      *queueName,
			PollInterval:   poll,
			MaxTasksPerRun: *maxTasks,
		}, queueManager, reg, repos.TaskLogs, log.Logger)
		if err != nil {
			log.Error("failed to build worker", "error", err)
			os.Exit(1)
		}

		go func() {
			if err := w.Start(ctx); err != nil {
				log.Error("worker exited with error", "error", err)
			}
		}()
		stop = cancel
	} else {
		pool, err := worker.NewPool(worker.PoolConfig{
			Size:           *workers,
			QueueName:      *queueName,
			PollInterval:   poll,
			MaxTasksPerRun: *maxTasks,
		}, queueManager, reg, repos.TaskLogs, log.Logger)
		if err != nil {
			log.Error("failed to build worker pool", "error", err)
			os.Exit(1)
		}

		if err := pool.Start(ctx); err != nil {
			log.Error("failed to start worker pool", "error", err)
			os.Exit(1)
		}
		stop = func() {
			cancel()
			pool.Stop()
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutdown signal received, stopping workers...")
	stop()

	log.Info("worker(s) stopped successfully")
}

// normalizeLevel maps the original management command's --log-level
// choices onto pkg/logger's slog-based levels.
func normalizeLevel(level string) string {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return "debug"
	case "WARNING":
		return "warn"
	case "ERROR":
		return "error"
	default:
		return "info"
	}
}
