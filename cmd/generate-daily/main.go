package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reverba/api/internal/cache"
	"github.com/reverba/api/internal/config"
	"github.com/reverba/api/internal/database"
	"github.com/reverba/api/internal/llm"
	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/scheduler"
	"github.com/reverba/api/internal/store"
	"github.com/reverba/api/internal/task"
)

// Runs daily batch generation once, outside the server's scheduler.
func main() {
	date := flag.String("date", "", "Date to generate for (YYYY-MM-DD, default: today in CRON_TIMEZONE)")
	userID := flag.String("user", "", "Generate for one user only")
	dryRun := flag.Bool("dry-run", false, "Show what would be selected without generating anything")
	flag.Parse()

	startTime := time.Now()
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode, cfg.LogHashSalt)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}
	loc, _ := cfg.Location()
	if *date == "" {
		*date = time.Now().In(loc).Format(model.DateLayout)
	}
	if _, err := time.Parse(model.DateLayout, *date); err != nil {
		log.Fatal("invalid -date", "date", *date, "error", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}
	s := store.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		drafts task.DraftCache
		locker task.Locker
	)
	redisCache, err := cache.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Warn("failed to connect to Redis, continuing without it", "error", err)
	} else {
		defer redisCache.Close()
		drafts, locker = redisCache, redisCache
	}

	llmClient, err := llm.New(llm.Options{
		Provider:      cfg.LLMProvider,
		OpenAIKey:     cfg.OpenAIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
		OllamaURL:     cfg.OllamaURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		log.Fatal("failed to create LLM client", "error", err)
	}

	builder := task.NewBuilder(llm.NewMCQGenerator(llmClient), drafts, task.BuilderOptions{
		GenerateTimeout: cfg.LLMTimeout,
		RetryBackoff:    cfg.LLMRetryBackoff,
	}, log)
	generator := task.NewGenerator(s, builder, locker, task.GeneratorOptions{LockWait: cfg.GenerationLockWait}, log)

	users := []string{*userID}
	if *userID == "" && *dryRun {
		users, err = s.ListActiveUserIDs(ctx)
		if err != nil {
			log.Fatal("failed to list users", "error", err)
		}
	}

	switch {
	case *dryRun:
		fmt.Printf("[DRY RUN] %s, %d users\n", *date, len(users))
		for _, id := range users {
			sel, rebalanced, err := generator.Preview(ctx, id)
			if err != nil {
				log.Error("preview failed", "user_id", id, "error", err)
				continue
			}
			printPreview(id, sel, rebalanced)
		}
		fmt.Println("[DRY RUN] No changes made")

	case *userID != "":
		report, err := generator.GenerateForUser(ctx, *userID, *date)
		if err != nil {
			log.Fatal("generation failed", "user_id", *userID, "error", err)
		}
		fmt.Printf("user %s: created=%t status=%s tasks=%d rebalanced=%d skipped=%d\n",
			*userID, report.Created, report.Batch.Status, len(report.Batch.Tasks), report.Rebalanced, len(report.Batch.Skipped))

	default:
		hour, minute, _ := cfg.RunAt()
		runner := scheduler.NewDailyScheduler(s, generator, scheduler.Config{
			Location:    loc,
			Hour:        hour,
			Minute:      minute,
			Concurrency: cfg.GenerationConcurrency,
		}, log)
		run, err := runner.RunOnce(ctx, *date)
		if err != nil {
			log.Error("generation run failed", "date", *date, "error", err)
		}
		if run != nil {
			fmt.Printf("%s: %s %s\n", run.Date, run.Status, string(run.Stats))
			if run.Status == model.CronRunFailed {
				os.Exit(1)
			}
		}
	}

	log.Info("generate-daily finished", "elapsed", time.Since(startTime).String())
}

func printPreview(userID string, sel task.Selection, rebalanced []model.Word) {
	fmt.Printf("user %s: %d tasks\n", userID, sel.Size())
	for _, tier := range sel.Tiers {
		if len(tier.Words) == 0 {
			continue
		}
		fmt.Printf("  %-9s", tier.Tier.Type)
		for _, w := range tier.Words {
			fmt.Printf(" %s", w.Word)
		}
		fmt.Println()
	}
	for _, w := range rebalanced {
		fmt.Printf("  rebalance %s -> %d\n", w.Word, w.Priority)
	}
}
