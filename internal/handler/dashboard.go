package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/middleware"
	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/store"
)

const recentWordsLimit = 5

type DashboardHandler struct {
	store *store.Store
	log   *logger.Logger
}

func NewDashboardHandler(s *store.Store, log *logger.Logger) *DashboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DashboardHandler{store: s, log: log}
}

type DashboardResponse struct {
	PassCount          int64        `json:"passCount"`
	FailCount          int64        `json:"failCount"`
	WordsMasteredCount int64        `json:"wordsMasteredCount"`
	RecentlyAddedWords []model.Word `json:"recentlyAddedWords"`
}

// Get returns completion totals, the mastered-word count and the most
// recently added words.
func (h *DashboardHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	var resp DashboardResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := h.store.CountResults(gctx, userID)
		resp.PassCount, resp.FailCount = counts.Pass, counts.Fail
		return err
	})
	g.Go(func() error {
		n, err := h.store.CountMastered(gctx, userID)
		resp.WordsMasteredCount = n
		return err
	})
	g.Go(func() error {
		words, err := h.store.RecentWords(gctx, userID, recentWordsLimit)
		resp.RecentlyAddedWords = words
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, h.log, err)
		return
	}
	if resp.RecentlyAddedWords == nil {
		resp.RecentlyAddedWords = []model.Word{}
	}
	c.JSON(http.StatusOK, resp)
}
