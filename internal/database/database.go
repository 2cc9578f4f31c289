package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reverba/api/internal/config"
	"github.com/reverba/api/internal/model"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	return Open(postgres.Open(cfg.DatabaseURL), cfg.LogMode)
}

// Open opens db with the project's gorm settings. Unique violations surface
// as gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector, logMode string) (*gorm.DB, error) {
	level := gormlogger.Info
	if logMode == "prod" {
		level = gormlogger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Word{},
		&model.DailyTaskBatch{},
		&model.TaskItem{},
		&model.TutorChat{},
		&model.CronRun{},
	)
}
