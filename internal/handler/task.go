package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/middleware"
	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/store"
	"github.com/reverba/api/internal/task"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 100
)

type TaskHandler struct {
	store     *store.Store
	generator *task.Generator
	completer *task.Completer
	loc       *time.Location
	log       *logger.Logger
	now       func() time.Time
}

// NewTaskHandler creates the task endpoints. loc decides the user's "today"
// and must match the completer's location.
func NewTaskHandler(s *store.Store, generator *task.Generator, completer *task.Completer, loc *time.Location, log *logger.Logger) *TaskHandler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TaskHandler{
		store:     s,
		generator: generator,
		completer: completer,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

func (h *TaskHandler) today() string {
	return h.now().In(h.loc).Format(model.DateLayout)
}

// Today returns today's batch, generating it when the scheduler has not run
// yet for this user. A user without active words gets an empty batch that is
// not stored.
func (h *TaskHandler) Today(c *gin.Context) {
	userID := middleware.UserID(c)

	report, err := h.generator.GenerateForUser(c.Request.Context(), userID, h.today())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, report.Batch)
}

// History returns the user's past batches, newest first.
func (h *TaskHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	batches, err := h.store.ListBatches(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}

type CompleteRequest struct {
	Result string `json:"result" binding:"required"`
}

// Complete records PASS or FAIL for one of today's tasks and returns the
// updated batch.
func (h *TaskHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "result is required"})
		return
	}
	result, err := model.ParseTaskResult(req.Result)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "result must be PASS or FAIL"})
		return
	}

	res, err := h.completer.Complete(c.Request.Context(), middleware.UserID(c), c.Param("taskId"), result)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res.Batch)
}
