package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DateLayout is the calendar-date format used for batch keys.
const DateLayout = "2006-01-02"

type TaskType string

const (
	TaskTypeMeaning   TaskType = "MEANING"
	TaskTypeSentence  TaskType = "SENTENCE"
	TaskTypeMCQ       TaskType = "MCQ"
	TaskTypeParagraph TaskType = "PARAGRAPH"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeMeaning, TaskTypeSentence, TaskTypeMCQ, TaskTypeParagraph:
		return true
	}
	return false
}

// FreeText reports whether the task is answered in free text (and so has a
// tutor chat).
func (t TaskType) FreeText() bool {
	return t == TaskTypeMeaning || t == TaskTypeSentence || t == TaskTypeParagraph
}

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
)

// CanTransitionTo reports whether next is a legal successor of s.
// PENDING -> COMPLETED is the only legal transition; COMPLETED is terminal.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	return s == TaskStatusPending && next == TaskStatusCompleted
}

type TaskResult string

const (
	TaskResultPass TaskResult = "PASS"
	TaskResultFail TaskResult = "FAIL"
)

func (r TaskResult) Valid() bool {
	return r == TaskResultPass || r == TaskResultFail
}

// ParseTaskResult accepts PASS or FAIL in any case.
func ParseTaskResult(s string) (TaskResult, error) {
	r := TaskResult(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid task result %q", s)
	}
	return r, nil
}

// BatchStatus tells the client whether the task list is all it should
// have been.
type BatchStatus string

const (
	BatchStatusComplete BatchStatus = "COMPLETE"
	// BatchStatusPartial means some selected words got no task; they are
	// listed in Skipped.
	BatchStatusPartial BatchStatus = "PARTIAL"
	// BatchStatusEmpty means the user had no active words. Such batches are
	// never stored.
	BatchStatusEmpty BatchStatus = "EMPTY"
)

// SkippedTask is a selected word left out of a batch because its task could
// not be generated.
type SkippedTask struct {
	WordID   string   `json:"wordId"`
	Type     TaskType `json:"type"`
	Attempts int      `json:"attempts"`
	Reason   string   `json:"reason"`
}

// DailyTaskBatch is the set of tasks generated for one user on one date.
// (user_id, date) is unique.
type DailyTaskBatch struct {
	ID        string                           `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string                           `gorm:"type:varchar(36);not null;uniqueIndex:idx_batches_user_date,priority:1" json:"userId"`
	Date      string                           `gorm:"type:varchar(10);not null;uniqueIndex:idx_batches_user_date,priority:2" json:"date"`
	Status    BatchStatus                      `gorm:"size:20;not null;default:'COMPLETE'" json:"status"`
	Skipped   datatypes.JSONSlice[SkippedTask] `gorm:"not null;default:'[]'" json:"skipped"`
	Tasks     []TaskItem                       `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"tasks"`
	CreatedAt time.Time                        `json:"createdAt"`
}

func (DailyTaskBatch) TableName() string {
	return "daily_task_batches"
}

func (b *DailyTaskBatch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BatchStatusComplete
	}
	if b.Skipped == nil {
		b.Skipped = datatypes.JSONSlice[SkippedTask]{}
	}
	return nil
}

// Task returns the task with the given id, or nil.
func (b *DailyTaskBatch) Task(taskID string) *TaskItem {
	for i := range b.Tasks {
		if b.Tasks[i].TaskID == taskID {
			return &b.Tasks[i]
		}
	}
	return nil
}

// TaskItem is one practice task inside a batch. MCQ fields are only set for
// MCQ tasks; ChatID only for free-text tasks.
type TaskItem struct {
	TaskID        string      `gorm:"type:varchar(36);primaryKey" json:"taskId"`
	BatchID       string      `gorm:"type:varchar(36);not null;index:idx_task_items_batch_position,priority:1" json:"-"`
	Position      int         `gorm:"not null;index:idx_task_items_batch_position,priority:2" json:"-"`
	Type          TaskType    `gorm:"not null;size:20" json:"type"`
	WordID        string      `gorm:"type:varchar(36);not null;index" json:"-"`
	Status        TaskStatus  `gorm:"not null;size:20" json:"status"`
	Result        *TaskResult `gorm:"size:10" json:"result"`
	ChatID        *string     `gorm:"type:varchar(36)" json:"chatId"`
	Question      *string     `gorm:"type:text" json:"question"`
	Options       StringList  `gorm:"type:text" json:"options"`
	CorrectOption *int        `json:"correctOption"`
	OptionReasons StringList  `gorm:"type:text" json:"optionReasons"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
}

func (TaskItem) TableName() string {
	return "task_items"
}

// WordIDs returns the singleton list of words the task practices.
func (t TaskItem) WordIDs() []string {
	return []string{t.WordID}
}

// MarshalJSON renders the single word reference as the wordIds list.
func (t TaskItem) MarshalJSON() ([]byte, error) {
	type alias TaskItem
	return json.Marshal(struct {
		alias
		WordIDs []string `json:"wordIds"`
	}{alias: alias(t), WordIDs: t.WordIDs()})
}

// Validate checks the shape invariants of a task before it is persisted.
func (t TaskItem) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("invalid task type %q", t.Type)
	}
	if t.WordID == "" {
		return errors.New("task has no word")
	}
	if t.Type == TaskTypeMCQ {
		if t.ChatID != nil {
			return errors.New("mcq task must not have a chat")
		}
		if t.Question == nil || t.CorrectOption == nil {
			return errors.New("mcq task is missing its question")
		}
		return (MCQ{
			Question:      *t.Question,
			Options:       t.Options,
			CorrectOption: *t.CorrectOption,
			OptionReasons: t.OptionReasons,
		}).Validate()
	}
	if t.Question != nil || t.Options != nil || t.CorrectOption != nil || t.OptionReasons != nil {
		return fmt.Errorf("%s task must not carry mcq fields", t.Type)
	}
	return nil
}

// MCQOptionCount is the number of options every generated question has.
const MCQOptionCount = 4

// MCQ is a generated multiple-choice question. CorrectOption is 1-indexed.
type MCQ struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
	OptionReasons []string `json:"optionReasons"`
}

func (m MCQ) Validate() error {
	if strings.TrimSpace(m.Question) == "" {
		return errors.New("mcq question is empty")
	}
	if len(m.Options) != MCQOptionCount {
		return fmt.Errorf("mcq must have exactly %d options, got %d", MCQOptionCount, len(m.Options))
	}
	for i, o := range m.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("mcq option %d is empty", i+1)
		}
	}
	if m.CorrectOption < 1 || m.CorrectOption > MCQOptionCount {
		return fmt.Errorf("mcq correctOption must be 1..%d, got %d", MCQOptionCount, m.CorrectOption)
	}
	if len(m.OptionReasons) != MCQOptionCount {
		return fmt.Errorf("mcq must have exactly %d option reasons, got %d", MCQOptionCount, len(m.OptionReasons))
	}
	return nil
}

// TaskPatch is the completion update for a task.
type TaskPatch struct {
	Status      TaskStatus
	Result      *TaskResult
	CompletedAt *time.Time
}
