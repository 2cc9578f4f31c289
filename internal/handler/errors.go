package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/task"
)

const retryAfterSeconds = "5"

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, task.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, task.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, task.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, task.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, task.ErrBusy):
		return http.StatusServiceUnavailable, "GENERATION_IN_PROGRESS"
	case errors.Is(err, task.ErrGenerationFailure):
		return http.StatusBadGateway, "GENERATION_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func respondError(c *gin.Context, log *logger.Logger, err error) {
	status, code := statusFor(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(status, gin.H{"error": "today's tasks are still being prepared, try again shortly", "code": code})
		return
	}
	if status == http.StatusBadGateway {
		log.Warn("upstream generation failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "tutor is unavailable, try again later", "code": code})
		return
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			"path", c.FullPath(),
			"user_id", c.GetString("userID"),
			"error", err)
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
