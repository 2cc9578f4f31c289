package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups the authenticated API endpoints.
type Handlers struct {
	Auth      *AuthHandler
	Tasks     *TaskHandler
	Words     *WordHandler
	Dashboard *DashboardHandler
	Tutor     *TutorHandler
}

// Register mounts the endpoints on api, which must already require auth.
func (h *Handlers) Register(api *gin.RouterGroup) {
	api.GET("/auth/me", h.Auth.Me)

	tasks := api.Group("/tasks")
	{
		tasks.GET("/today", h.Tasks.Today)
		tasks.GET("/history", h.Tasks.History)
		tasks.POST("/:taskId/complete", h.Tasks.Complete)
	}

	words := api.Group("/words")
	{
		words.POST("", h.Words.Create)
		words.GET("", h.Words.List)
		words.GET("/:id", h.Words.Get)
		words.PUT("/:id", h.Words.Update)
		words.DELETE("/:id", h.Words.Delete)
		words.POST("/:id/promote", h.Words.Promote)
		words.POST("/:id/demote", h.Words.Demote)
		words.POST("/:id/reintroduce", h.Words.Reintroduce)
	}

	api.GET("/dashboard", h.Dashboard.Get)
	api.POST("/tutor/evaluate", h.Tutor.Evaluate)
}
