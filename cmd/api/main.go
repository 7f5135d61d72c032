// Package main is the task submission API server: it exposes the HTTP
// surface for creating and listing tasks, backed by the Postgres record
// store and the Redis broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskqueue/engine/internal/api/routes"
	"github.com/taskqueue/engine/internal/config"
	"github.com/taskqueue/engine/internal/database"
	"github.com/taskqueue/engine/internal/queue"
	"github.com/taskqueue/engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)

	dbConn, err := database.NewConnection(&cfg.Database, log.Logger)
	if err != nil {
		log.Error("failed to initialize database connection", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	migrateConfig := &database.MigrateConfig{
		DatabaseConfig: &cfg.Database,
		MigrationsPath: "file://migrations",
		Logger:         log.Logger,
	}
	if err := database.MigrateUp(migrateConfig); err != nil {
		log.Error("failed to run database migrations", "error", err)
		os.Exit(1)
	}

	repos := database.NewRepositories(dbConn)

	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := dbConn.HealthCheck(healthCtx); err != nil {
		healthCancel()
		log.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	healthCancel()
	log.Info("database initialized successfully")

	queueManager, err := queue.NewRedisQueueManager(&cfg.Redis, &cfg.Queue, repos.Tasks, log.Logger)
	if err != nil {
		log.Error("failed to initialize queue manager", "error", err)
		os.Exit(1)
	}
	defer queueManager.Close()
	log.Info("queue manager initialized successfully")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	routes.Setup(router, cfg, log, dbConn, repos, queueManager)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("starting server",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"env", cfg.Server.Env,
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}
