package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reverba/api/internal/cache"
	"github.com/reverba/api/internal/config"
	"github.com/reverba/api/internal/database"
	"github.com/reverba/api/internal/handler"
	"github.com/reverba/api/internal/limiter"
	"github.com/reverba/api/internal/llm"
	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/middleware"
	"github.com/reverba/api/internal/scheduler"
	"github.com/reverba/api/internal/store"
	"github.com/reverba/api/internal/task"
	"github.com/reverba/api/internal/tutor"
)

func main() {
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
	hour, minute, _ := cfg.RunAt()

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}
	s := store.New(db)

	// Redis backs drafts, locks and limits. Without it the service still
	// runs, relying on the batch unique key alone.
	var (
		drafts      task.DraftCache
		locker      task.Locker
		quota       handler.DailyQuota
		evalLimiter tutor.RateLimiter
	)
	redisCache, err := cache.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Warn("failed to connect to Redis, continuing without it", "error", err)
	} else {
		defer redisCache.Close()
		drafts, locker = redisCache, redisCache
		rl := limiter.New(redisCache.Client(), map[string]limiter.ActionConfig{
			limiter.ActionEvaluate: {Limit: int64(cfg.EvaluatePerMin), Window: time.Minute},
		})
		quota, evalLimiter = rl, rl
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
	completer := task.NewCompleter(s, s, task.CompleterOptions{
		MasteryThreshold: cfg.MasteryThreshold,
		Location:         loc,
	}, log)
	tutorService := tutor.NewService(s, llm.NewEvaluator(llmClient), evalLimiter, tutor.Options{
		Timeout:      cfg.LLMTimeout,
		RetryBackoff: cfg.LLMRetryBackoff,
	}, log)

	handlers := &handler.Handlers{
		Auth:      handler.NewAuthHandler(s, log),
		Tasks:     handler.NewTaskHandler(s, generator, completer, loc, log),
		Words:     handler.NewWordHandler(s, quota, cfg.DailyWordLimit, loc, log),
		Dashboard: handler.NewDashboardHandler(s, log),
		Tutor:     handler.NewTutorHandler(tutorService, log),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize and start background scheduler if enabled
	var dailyScheduler *scheduler.DailyScheduler
	if cfg.SchedulerEnabled {
		dailyScheduler = scheduler.NewDailyScheduler(s, generator, scheduler.Config{
			Location:    loc,
			Hour:        hour,
			Minute:      minute,
			Concurrency: cfg.GenerationConcurrency,
		}, log)
		go dailyScheduler.Start(ctx)
		log.Info("daily generation scheduler started", "timezone", cfg.CronTimezone, "run_at", cfg.CronRunAt)
	}

	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.CORS(cfg.CORSOrigins), middleware.MetricsMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok", "redis": redisCache != nil}
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status["status"] = "degraded"
		}
		c.JSON(http.StatusOK, status)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Scheduler status
	r.GET("/scheduler/status", func(c *gin.Context) {
		if dailyScheduler != nil {
			c.JSON(http.StatusOK, dailyScheduler.GetStatus())
		} else {
			c.JSON(http.StatusOK, gin.H{"enabled": false, "message": "Scheduler is disabled"})
		}
	})

	handlers.Register(r.Group("/api", middleware.AuthMiddleware(cfg.JWTSecret)))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("API server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")
	if dailyScheduler != nil {
		dailyScheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
