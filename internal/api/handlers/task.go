package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taskqueue/engine/internal/database"
	"github.com/taskqueue/engine/internal/models"
	"github.com/taskqueue/engine/internal/queue"
)

// TaskHandler implements the task submission and listing surface:
// producers post a task through this handler, which writes the durable
// record first and only then pushes the broker-side envelope, and can
// list tasks back by status/priority/queue_name.
type TaskHandler struct {
	taskRepo database.TaskRepository
	queue    queue.QueueManager
	logger   *slog.Logger
}

// NewTaskHandler creates a new task handler. queueManager may be nil in
// tests that only exercise listing.
func NewTaskHandler(taskRepo database.TaskRepository, queueManager queue.QueueManager, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		taskRepo: taskRepo,
		queue:    queueManager,
		logger:   logger,
	}
}

// Create handles POST /api/tasks/: validate, persist, enqueue.
//
//	@Summary		Submit a new task
//	@Description	Creates a durable task record and pushes it onto the broker queue
//	@Tags			Tasks
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.CreateTaskRequest	true	"Task submission"
//	@Success		201		{object}	models.TaskCreateResponse
//	@Failure		400		{object}	models.TaskErrorResponse
//	@Failure		500		{object}	models.TaskErrorResponse
//	@Router			/api/tasks/ [post]
func (h *TaskHandler) Create(c *gin.Context) {
	validated, exists := c.Get("validated_body")
	var req *models.CreateTaskRequest
	if exists {
		req, _ = validated.(*models.CreateTaskRequest)
	}
	if req == nil {
		req = &models.CreateTaskRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			h.logger.Warn("invalid task creation request", "error", err)
			c.JSON(http.StatusBadRequest, models.TaskErrorResponse{
				Success: false,
				Message: "invalid request body",
				Errors:  map[string][]string{"body": {err.Error()}},
			})
			return
		}
	}

	priority, maxRetries, retryDelay, queueName := req.Normalize()

	task := &models.Task{
		TaskName:   req.TaskName,
		Status:     models.TaskStatusPending,
		Priority:   priority,
		Args:       models.JSONArray(req.Args),
		Kwargs:     models.JSONB(req.Kwargs),
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		QueueName:  queueName,
	}

	if err := h.taskRepo.Create(c.Request.Context(), task); err != nil {
		h.logger.Error("failed to create task record", "error", err)
		c.JSON(http.StatusInternalServerError, models.TaskErrorResponse{
			Success: false,
			Message: "failed to create task",
		})
		return
	}

	if h.queue != nil {
		envelope := &queue.Envelope{
			TaskID:     task.ID,
			TaskName:   task.TaskName,
			Args:       req.Args,
			Kwargs:     req.Kwargs,
			Priority:   queue.Priority(task.Priority),
			QueueName:  task.QueueName,
			CreatedAt:  task.CreatedAt,
			RetryDelay: task.RetryDelay,
		}
		if err := h.queue.Enqueue(c.Request.Context(), envelope); err != nil {
			// A broker outage during enqueue is the one producer error the
			// engine does not recover from; it must propagate as 500. The
			// durable record is left as an orphan pending row, the same
			// allowance the engine makes for a crash between the two
			// writes.
			h.logger.Error("failed to enqueue task envelope", "task_id", task.ID, "error", err)
			c.JSON(http.StatusInternalServerError, models.TaskErrorResponse{
				Success: false,
				Message: "failed to enqueue task",
			})
			return
		}
	}

	c.JSON(http.StatusCreated, models.TaskCreateResponse{
		Success: true,
		Message: "task created",
		Data:    task.ToResponse(),
	})
}

// List handles GET /api/tasks/: optional status/priority/queue_name
// filters, newest first.
//
//	@Summary		List tasks
//	@Description	Lists tasks, optionally filtered by status, priority, or queue_name
//	@Tags			Tasks
//	@Produce		json
//	@Param			status		query		string	false	"pending|processing|success|failed|retry|cancelled"
//	@Param			priority	query		string	false	"low|normal|high|critical"
//	@Param			queue_name	query		string	false	"queue name"
//	@Param			limit		query		int		false	"page size, default 50"
//	@Param			offset		query		int		false	"page offset, default 0"
//	@Success		200			{object}	models.TaskListResponse
//	@Router			/api/tasks/ [get]
func (h *TaskHandler) List(c *gin.Context) {
	filter := database.TaskFilter{}

	if status := c.Query("status"); status != "" {
		s := models.TaskStatus(status)
		filter.Status = &s
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		p := models.ParsePriority(priorityStr)
		filter.Priority = &p
	}
	if queueName := c.Query("queue_name"); queueName != "" {
		filter.QueueName = &queueName
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	tasks, err := h.taskRepo.ListFiltered(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("failed to list tasks", "error", err)
		c.JSON(http.StatusInternalServerError, models.TaskErrorResponse{
			Success: false,
			Message: "failed to list tasks",
		})
		return
	}

	data := make([]models.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		data = append(data, t.ToResponse())
	}

	c.JSON(http.StatusOK, models.TaskListResponse{
		Success: true,
		Message: "tasks retrieved",
		Data:    data,
		Count:   len(data),
	})
}

// GetByID handles GET /api/tasks/:id.
//
//	@Summary		Get a task by id
//	@Tags			Tasks
//	@Produce		json
//	@Param			id	path		string	true	"task id"
//	@Success		200	{object}	models.TaskCreateResponse
//	@Failure		404	{object}	models.TaskErrorResponse
//	@Router			/api/tasks/{id} [get]
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, err := models.ValidateID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.TaskErrorResponse{Success: false, Message: "invalid task id"})
		return
	}

	task, err := h.taskRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, models.TaskErrorResponse{Success: false, Message: "task not found"})
			return
		}
		h.logger.Error("failed to get task", "task_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, models.TaskErrorResponse{Success: false, Message: "failed to get task"})
		return
	}

	c.JSON(http.StatusOK, models.TaskCreateResponse{
		Success: true,
		Message: "task retrieved",
		Data:    task.ToResponse(),
	})
}
