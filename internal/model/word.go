package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WordState string

const (
	WordStateActive   WordState = "ACTIVE"
	WordStateMastered WordState = "MASTERED"
)

func (s WordState) Valid() bool {
	return s == WordStateActive || s == WordStateMastered
}

// Priority bounds. Each priority level maps to exactly one task type.
const (
	MinPriority = 1
	MaxPriority = 4
)

func ValidPriority(p int) bool {
	return p >= MinPriority && p <= MaxPriority
}

// FailureStats counts failed free-text tasks per task type. MCQ failures are
// never tallied.
type FailureStats struct {
	Meaning   int `gorm:"column:failure_meaning;not null;default:0" json:"meaning"`
	Sentence  int `gorm:"column:failure_sentence;not null;default:0" json:"sentence"`
	Paragraph int `gorm:"column:failure_paragraph;not null;default:0" json:"paragraph"`
}

// Increment returns a copy with the counter for taskType bumped by one.
// Task types without a counter leave the stats unchanged.
func (f FailureStats) Increment(taskType TaskType) FailureStats {
	switch taskType {
	case TaskTypeMeaning:
		f.Meaning++
	case TaskTypeSentence:
		f.Sentence++
	case TaskTypeParagraph:
		f.Paragraph++
	}
	return f
}

type Word struct {
	ID             string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string       `gorm:"type:varchar(36);not null;uniqueIndex:idx_words_user_normalized,priority:1;index:idx_words_user_state,priority:1" json:"userId"`
	Word           string       `gorm:"not null;size:255" json:"word"`
	NormalizedWord string       `gorm:"not null;size:255;uniqueIndex:idx_words_user_normalized,priority:2" json:"normalizedWord"`
	Meaning        string       `gorm:"type:text" json:"meaning"`
	Example        string       `gorm:"type:text" json:"example"`
	Priority       int          `gorm:"not null" json:"priority"`
	State          WordState    `gorm:"not null;size:20;index:idx_words_user_state,priority:2" json:"state"`
	MasteryCount   int          `gorm:"not null;default:0" json:"masteryCount"`
	LastReviewedAt *time.Time   `json:"lastReviewedAt"`
	LastPromotedAt *time.Time   `json:"lastPromotedAt"`
	FailureStats   FailureStats `gorm:"embedded" json:"failureStats"`
	Version        int64        `gorm:"not null;default:1" json:"-"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func (Word) TableName() string {
	return "words"
}

func (w *Word) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.NormalizedWord == "" {
		w.NormalizedWord = NormalizeWord(w.Word)
	}
	if w.State == "" {
		w.State = WordStateActive
	}
	if w.Priority == 0 {
		w.Priority = MinPriority
	}
	if w.Version == 0 {
		w.Version = 1
	}
	return nil
}

// NormalizeWord returns the per-user uniqueness key for a word.
func NormalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// WordPatch is a partial update of a word. Nil fields are left unchanged.
type WordPatch struct {
	Meaning        *string
	Example        *string
	Priority       *int
	State          *WordState
	MasteryCount   *int
	LastReviewedAt *time.Time
	LastPromotedAt *time.Time
	FailureStats   *FailureStats
}

// Columns returns the column assignments for the patch.
func (p WordPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Meaning != nil {
		cols["meaning"] = *p.Meaning
	}
	if p.Example != nil {
		cols["example"] = *p.Example
	}
	if p.Priority != nil {
		cols["priority"] = *p.Priority
	}
	if p.State != nil {
		cols["state"] = *p.State
	}
	if p.MasteryCount != nil {
		cols["mastery_count"] = *p.MasteryCount
	}
	if p.LastReviewedAt != nil {
		cols["last_reviewed_at"] = *p.LastReviewedAt
	}
	if p.LastPromotedAt != nil {
		cols["last_promoted_at"] = *p.LastPromotedAt
	}
	if p.FailureStats != nil {
		cols["failure_meaning"] = p.FailureStats.Meaning
		cols["failure_sentence"] = p.FailureStats.Sentence
		cols["failure_paragraph"] = p.FailureStats.Paragraph
	}
	return cols
}

// Apply copies the patch onto w.
func (p WordPatch) Apply(w *Word) {
	if p.Meaning != nil {
		w.Meaning = *p.Meaning
	}
	if p.Example != nil {
		w.Example = *p.Example
	}
	if p.Priority != nil {
		w.Priority = *p.Priority
	}
	if p.State != nil {
		w.State = *p.State
	}
	if p.MasteryCount != nil {
		w.MasteryCount = *p.MasteryCount
	}
	if p.LastReviewedAt != nil {
		t := *p.LastReviewedAt
		w.LastReviewedAt = &t
	}
	if p.LastPromotedAt != nil {
		t := *p.LastPromotedAt
		w.LastPromotedAt = &t
	}
	if p.FailureStats != nil {
		w.FailureStats = *p.FailureStats
	}
}
