package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/middleware"
	"github.com/reverba/api/internal/store"
)

// AuthHandler serves the signed-in user's profile. Tokens are issued
// elsewhere; this service only verifies them.
type AuthHandler struct {
	store *store.Store
	log   *logger.Logger
}

func NewAuthHandler(s *store.Store, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandler{store: s, log: log}
}

// Me returns current user info
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.store.GetUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
