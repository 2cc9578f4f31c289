package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type ChatStatus string

const (
	ChatStatusPending ChatStatus = "PENDING"
	ChatStatusPass    ChatStatus = "PASS"
	ChatStatusFail    ChatStatus = "FAIL"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Verdict is set on assistant messages that carried an evaluation.
	Verdict TaskResult `json:"verdict,omitempty"`
}

// TutorChat is the conversation behind one free-text task. Its ID is the
// chatId allocated when the task was built.
type TutorChat struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string         `gorm:"type:varchar(36);not null;index" json:"userId"`
	WordID      string         `gorm:"type:varchar(36);not null;index" json:"wordId"`
	TaskID      string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"taskId"`
	TaskType    TaskType       `gorm:"not null;size:20" json:"taskType"`
	Messages    datatypes.JSON `json:"messages"`
	FinalResult ChatStatus     `gorm:"not null;size:10" json:"finalResult"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (TutorChat) TableName() string {
	return "tutor_chats"
}

// History decodes the stored messages.
func (c *TutorChat) History() ([]ChatMessage, error) {
	if len(c.Messages) == 0 {
		return nil, nil
	}
	var msgs []ChatMessage
	if err := json.Unmarshal(c.Messages, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SetHistory replaces the stored messages.
func (c *TutorChat) SetHistory(msgs []ChatMessage) error {
	b, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	c.Messages = datatypes.JSON(b)
	return nil
}

// FailureCount returns how many evaluations in the chat ended in FAIL.
func (c *TutorChat) FailureCount() int {
	msgs, err := c.History()
	if err != nil {
		return 0
	}
	n := 0
	for _, m := range msgs {
		if m.Role == "assistant" && m.Verdict == TaskResultFail {
			n++
		}
	}
	return n
}
