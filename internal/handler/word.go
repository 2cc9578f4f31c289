package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reverba/api/internal/limiter"
	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/middleware"
	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/store"
	"github.com/reverba/api/internal/task"
)

const (
	maxWordLength = 255
	// Reintroduced words restart at the sentence tier.
	reintroducePriority = 2
)

// DailyQuota limits how many words a user may add per day.
type DailyQuota interface {
	ConsumeDaily(ctx context.Context, userID, action, date string, limit int64) (*limiter.CheckResult, error)
	ReleaseDaily(ctx context.Context, userID, action, date string) error
}

type WordHandler struct {
	store      *store.Store
	quota      DailyQuota
	dailyLimit int64
	loc        *time.Location
	log        *logger.Logger
	now        func() time.Time
}

// NewWordHandler creates the word endpoints. quota may be nil, in which case
// adding words is not capped.
func NewWordHandler(s *store.Store, quota DailyQuota, dailyLimit int, loc *time.Location, log *logger.Logger) *WordHandler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WordHandler{
		store:      s,
		quota:      quota,
		dailyLimit: int64(dailyLimit),
		loc:        loc,
		log:        log,
		now:        time.Now,
	}
}

type CreateWordRequest struct {
	Word     string `json:"word" binding:"required"`
	Meaning  string `json:"meaning" binding:"required"`
	Example  string `json:"example"`
	Priority int    `json:"priority"`
}

type UpdateWordRequest struct {
	Meaning  *string `json:"meaning"`
	Example  *string `json:"example"`
	Priority *int    `json:"priority"`
}

func (h *WordHandler) Create(c *gin.Context) {
	var req CreateWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "word and meaning are required"})
		return
	}
	if req.Priority == 0 {
		req.Priority = model.MinPriority
	}
	if !model.ValidPriority(req.Priority) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be between 1 and 4"})
		return
	}
	text := strings.TrimSpace(req.Word)
	if text == "" || len(text) > maxWordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "word must be 1 to 255 characters"})
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	date := h.now().In(h.loc).Format(model.DateLayout)

	consumed := false
	if h.quota != nil {
		res, err := h.quota.ConsumeDaily(ctx, userID, limiter.ActionAddWord, date, h.dailyLimit)
		switch {
		case err != nil:
			h.log.Warn("word quota unavailable, allowing request", "user_id", userID, "error", err)
		case !res.Allowed:
			c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt, 10))
			respondError(c, h.log, task.ErrRateLimited)
			return
		default:
			consumed = true
		}
	}

	word := &model.Word{
		UserID:   userID,
		Word:     text,
		Meaning:  strings.TrimSpace(req.Meaning),
		Example:  strings.TrimSpace(req.Example),
		Priority: req.Priority,
		State:    model.WordStateActive,
	}
	if err := h.store.CreateWord(ctx, word); err != nil {
		if consumed {
			if rerr := h.quota.ReleaseDaily(ctx, userID, limiter.ActionAddWord, date); rerr != nil {
				h.log.Warn("failed to release word quota", "user_id", userID, "error", rerr)
			}
		}
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, word)
}

func (h *WordHandler) List(c *gin.Context) {
	var filter store.WordFilter
	if raw := c.Query("priority"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || !model.ValidPriority(p) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be between 1 and 4"})
			return
		}
		filter.Priority = p
	}
	if raw := c.Query("state"); raw != "" {
		state := model.WordState(strings.ToUpper(raw))
		if !state.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "state must be ACTIVE or MASTERED"})
			return
		}
		filter.State = state
	}

	words, total, err := h.store.ListWords(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, words)
}

func (h *WordHandler) Get(c *gin.Context) {
	word, err := h.store.GetUserWord(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, word)
}

func (h *WordHandler) Update(c *gin.Context) {
	var req UpdateWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Priority != nil && !model.ValidPriority(*req.Priority) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be between 1 and 4"})
		return
	}

	h.mutate(c, func(w *model.Word, now time.Time) (model.WordPatch, error) {
		patch := model.WordPatch{Meaning: req.Meaning, Example: req.Example}
		if req.Priority != nil {
			patch.Priority = req.Priority
			patch.LastPromotedAt = &now
		}
		return patch, nil
	})
}

func (h *WordHandler) Delete(c *gin.Context) {
	if err := h.store.DeleteWord(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "word deleted"})
}

// Promote moves the word one tier up.
func (h *WordHandler) Promote(c *gin.Context) {
	h.mutate(c, func(w *model.Word, now time.Time) (model.WordPatch, error) {
		if w.Priority >= model.MaxPriority {
			return model.WordPatch{}, task.Validationf("word is already at maximum priority")
		}
		p := w.Priority + 1
		return model.WordPatch{Priority: &p, LastPromotedAt: &now}, nil
	})
}

// Demote moves the word one tier down.
func (h *WordHandler) Demote(c *gin.Context) {
	h.mutate(c, func(w *model.Word, now time.Time) (model.WordPatch, error) {
		if w.Priority <= model.MinPriority {
			return model.WordPatch{}, task.Validationf("word is already at minimum priority")
		}
		p := w.Priority - 1
		return model.WordPatch{Priority: &p}, nil
	})
}

// Reintroduce returns a mastered word to daily practice.
func (h *WordHandler) Reintroduce(c *gin.Context) {
	h.mutate(c, func(w *model.Word, now time.Time) (model.WordPatch, error) {
		if w.State != model.WordStateMastered {
			return model.WordPatch{}, task.Validationf("word is not MASTERED")
		}
		state := model.WordStateActive
		priority := reintroducePriority
		mastery := w.MasteryCount - 1
		if mastery < 0 {
			mastery = 0
		}
		return model.WordPatch{State: &state, Priority: &priority, MasteryCount: &mastery}, nil
	})
}

// mutate loads the caller's word, builds a patch from it and writes the patch
// only if nothing else changed the word in between.
func (h *WordHandler) mutate(c *gin.Context, build func(w *model.Word, now time.Time) (model.WordPatch, error)) {
	ctx := c.Request.Context()
	word, err := h.store.GetUserWord(ctx, middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	patch, err := build(word, h.now().UTC())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	updated, err := h.store.UpdateWord(ctx, word.ID, word.Version, patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
