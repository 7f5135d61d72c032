package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/taskqueue/engine/internal/models"
)

// ValidationMiddleware binds and validates request bodies against struct
// tags via go-playground/validator.
type ValidationMiddleware struct {
	validator *validator.Validate
	logger    *slog.Logger
}

// NewValidationMiddleware creates a new validation middleware.
func NewValidationMiddleware(logger *slog.Logger) *ValidationMiddleware {
	v := validator.New()
	_ = v.RegisterValidation("task_name", validateTaskName)

	return &ValidationMiddleware{
		validator: v,
		logger:    logger,
	}
}

// ValidateJSON binds the request body into a fresh instance of modelType
// and validates it, storing the result under "validated_body" for the
// handler to read back.
func (vm *ValidationMiddleware) ValidateJSON(modelType interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		model := reflect.New(reflect.TypeOf(modelType)).Interface()

		if err := c.ShouldBindJSON(model); err != nil {
			vm.logger.Warn("JSON binding failed", "error", err)
			c.JSON(http.StatusBadRequest, models.TaskErrorResponse{
				Success: false,
				Message: "invalid request format",
				Errors:  map[string][]string{"body": {err.Error()}},
			})
			c.Abort()
			return
		}

		if err := vm.validator.Struct(model); err != nil {
			vm.logger.Warn("validation failed", "error", err)
			c.JSON(http.StatusBadRequest, models.TaskErrorResponse{
				Success: false,
				Message: "validation failed",
				Errors:  vm.formatValidationErrors(err),
			})
			c.Abort()
			return
		}

		c.Set("validated_body", model)
		c.Next()
	}
}

// ValidateTaskCreation validates task submission requests (POST /api/tasks/).
func (vm *ValidationMiddleware) ValidateTaskCreation() gin.HandlerFunc {
	return vm.ValidateJSON(models.CreateTaskRequest{})
}

// ValidateRequestSize rejects bodies larger than maxSize bytes.
func (vm *ValidationMiddleware) ValidateRequestSize(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			vm.logger.Warn("request body too large",
				"content_length", c.Request.ContentLength,
				"max_size", maxSize,
			)
			c.JSON(http.StatusRequestEntityTooLarge, models.TaskErrorResponse{
				Success: false,
				Message: fmt.Sprintf("request body too large, maximum size: %d bytes", maxSize),
			})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// formatValidationErrors groups validator.ValidationErrors by field, the
// shape models.TaskErrorResponse.Errors expects.
func (vm *ValidationMiddleware) formatValidationErrors(err error) map[string][]string {
	errors := make(map[string][]string)

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errors["body"] = []string{err.Error()}
		return errors
	}

	for _, fe := range validationErrs {
		field := fe.Field()
		errors[field] = append(errors[field], vm.getValidationMessage(fe))
	}

	return errors
}

// getValidationMessage returns a user-friendly validation message.
func (vm *ValidationMiddleware) getValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	case "task_name":
		return "task_name contains invalid characters or is too long"
	default:
		return fmt.Sprintf("%s failed validation: %s", err.Field(), err.Tag())
	}
}

// validateTaskName enforces the same non-blank constraint as
// models.ValidateTaskName plus a length cap and a control-character
// block, since task names become Redis key fragments and log lines.
func validateTaskName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if err := models.ValidateTaskName(name); err != nil {
		return false
	}
	if len(name) > 255 {
		return false
	}
	return !strings.ContainsAny(name, "\n\r\t")
}

// TaskValidation returns validation middleware for task endpoints.
func TaskValidation(logger *slog.Logger) *ValidationMiddleware {
	return NewValidationMiddleware(logger)
}

// RequestSizeLimit returns middleware that limits request body size to 1MB.
func RequestSizeLimit(logger *slog.Logger) gin.HandlerFunc {
	vm := NewValidationMiddleware(logger)
	return vm.ValidateRequestSize(1024 * 1024)
}
