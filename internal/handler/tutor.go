package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/middleware"
	"github.com/reverba/api/internal/tutor"
)

type TutorHandler struct {
	service *tutor.Service
	log     *logger.Logger
}

func NewTutorHandler(service *tutor.Service, log *logger.Logger) *TutorHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TutorHandler{service: service, log: log}
}

// Evaluate grades a free-text answer. The task stays PENDING; the client
// completes it with the verdict it accepts.
func (h *TutorHandler) Evaluate(c *gin.Context) {
	var req tutor.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "taskId and userResponse are required"})
		return
	}

	resp, err := h.service.Evaluate(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
