package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskqueue/engine/internal/api/handlers"
	"github.com/taskqueue/engine/internal/api/middleware"
	"github.com/taskqueue/engine/internal/config"
	"github.com/taskqueue/engine/internal/database"
	"github.com/taskqueue/engine/internal/queue"
	"github.com/taskqueue/engine/pkg/logger"
)

// Setup wires the gin router: ambient middleware, health/readiness
// endpoints, and the task submission/listing surface.
func Setup(router *gin.Engine, cfg *config.Config, log *logger.Logger, dbConn *database.Connection, repos *database.Repositories, queueManager queue.QueueManager) {
	setupMiddleware(router, cfg, log)
	setupRoutes(router, log, dbConn, repos, queueManager)
}

func setupMiddleware(router *gin.Engine, cfg *config.Config, log *logger.Logger) {
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))
	router.Use(log.GinLogger())
	router.Use(log.GinRecovery())
	router.Use(middleware.ErrorHandler())
}

func setupRoutes(router *gin.Engine, log *logger.Logger, dbConn *database.Connection, repos *database.Repositories, queueManager queue.QueueManager) {
	healthHandler := handlers.NewHealthHandler()
	healthHandler.AddHealthCheck("database", &DatabaseHealthChecker{conn: dbConn})
	if queueManager != nil {
		healthHandler.AddHealthCheck("queue", &QueueHealthChecker{manager: queueManager})
	}

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Readiness)

	taskHandler := handlers.NewTaskHandler(repos.Tasks, queueManager, log.Logger)
	taskValidation := middleware.TaskValidation(log.Logger)

	api := router.Group("/api")
	{
		tasks := api.Group("/tasks")
		{
			tasks.POST("/",
				middleware.RequestSizeLimit(log.Logger),
				taskValidation.ValidateTaskCreation(),
				taskHandler.Create,
			)
			tasks.GET("/", taskHandler.List)
			tasks.GET("/:id", taskHandler.GetByID)
		}
	}
}

// DatabaseHealthChecker implements health checking for the Postgres
// connection pool.
type DatabaseHealthChecker struct {
	conn *database.Connection
}

func (d *DatabaseHealthChecker) CheckHealth() (status string, err error) {
	if d.conn == nil {
		return "ready", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.conn.HealthCheck(ctx); err != nil {
		return "unhealthy", err
	}
	return "ready", nil
}

// QueueHealthChecker implements health checking for the broker connection.
type QueueHealthChecker struct {
	manager queue.QueueManager
}

func (q *QueueHealthChecker) CheckHealth() (status string, err error) {
	if q.manager == nil {
		return "ready", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.manager.IsHealthy(ctx); err != nil {
		return "unhealthy", err
	}
	return "ready", nil
}
