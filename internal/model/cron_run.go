package model

import (
	"time"

	"gorm.io/datatypes"
)

type CronRunStatus string

const (
	CronRunSuccess CronRunStatus = "SUCCESS"
	CronRunPartial CronRunStatus = "PARTIAL"
	CronRunFailed  CronRunStatus = "FAILED"
)

// CronRunStats is the JSON payload stored with each generation run.
type CronRunStats struct {
	UsersProcessed  int      `json:"usersProcessed"`
	BatchesCreated  int      `json:"batchesCreated"`
	TasksCreated    int      `json:"tasksCreated"`
	WordsRebalanced int64    `json:"wordsRebalanced"`
	Warnings        int      `json:"warnings"`
	Errors          []string `json:"errors"`
}

// CronRun records one execution of the daily generation job.
type CronRun struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Date       string         `gorm:"type:varchar(10);not null;index" json:"date"`
	RunAt      time.Time      `gorm:"not null" json:"runAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Status     CronRunStatus  `gorm:"not null;size:10" json:"status"`
	Stats      datatypes.JSON `json:"stats"`
}

func (CronRun) TableName() string {
	return "cron_runs"
}
