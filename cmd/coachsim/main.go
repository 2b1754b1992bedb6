// Package main runs the coaching simulator: a WebSocket backend that speaks
// the live coaching protocol with scripted responses, plus HTTP endpoints for
// patterns, session history, and recording uploads. Postgres, Redis, and S3
// are all optional; without them the simulator serves embedded patterns and
// skips persistence.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/reelcoach/companion/config"
	"github.com/reelcoach/companion/internal/auth"
	"github.com/reelcoach/companion/internal/middleware"
	"github.com/reelcoach/companion/internal/sim"
	"github.com/reelcoach/companion/internal/worker"
	"github.com/reelcoach/companion/pkg/database"
	"github.com/reelcoach/companion/pkg/queue"
	"github.com/reelcoach/companion/pkg/redis"
	"github.com/reelcoach/companion/pkg/response"
	"github.com/reelcoach/companion/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	embedded, err := sim.NewEmbeddedPatternStore()
	if err != nil {
		logger.Fatal("embedded patterns", zap.Error(err))
	}
	var patterns sim.PatternSource = embedded
	var sessionRepo *sim.SessionRepository
	var recordingRepo *sim.RecordingRepository
	if cfg.Database.URL != "" || os.Getenv("DB_HOST") != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		patterns = sim.NewPGPatternStore(pool)
		sessionRepo = sim.NewSessionRepository(pool)
		recordingRepo = sim.NewRecordingRepository(pool)
	} else {
		logger.Info("no database configured, serving embedded patterns only")
	}

	var pubsub *sim.RedisPubSub
	var jobQueue *queue.Queue
	if os.Getenv("REDIS_ADDR") != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		pubsub = sim.NewRedisPubSub(rdb.Client, logger)
		jobQueue = queue.NewQueue(rdb.Client, logger)

		// Mirror session events into the log, the way a dashboard consumer
		// would observe them.
		stopEvents, err := pubsub.SubscribeSessions(func(ev sim.SessionEvent) {
			logger.Info("session event",
				zap.String("event", ev.Event),
				zap.String("session_id", ev.SessionID))
		})
		if err != nil {
			logger.Warn("session event subscription failed", zap.Error(err))
		} else {
			defer stopEvents()
		}
	} else {
		logger.Info("no redis configured, session events and upload queue disabled")
	}

	var s3Client *storage.S3
	if cfg.AWS.AccessKeyID != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	handler := sim.NewHandler(patterns, logger)
	if sessionRepo != nil {
		handler.SetSessionRepository(sessionRepo)
	}
	if recordingRepo != nil {
		handler.SetRecordingRepository(recordingRepo)
	}
	if pubsub != nil {
		handler.SetEventPublisher(pubsub)
	}
	if jobQueue != nil {
		handler.SetUploadQueue(jobQueue)
	}
	if s3Client != nil {
		handler.SetStorage(s3Client)
	}
	if cfg.JWT.Secret != "" {
		handler.SetJWT(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	handler.RegisterRoutes(router.Group("/api/v1"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (recording upload to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil && recordingRepo != nil && jobQueue != nil {
		processor := worker.NewRecordingProcessor(recordingRepo, s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("recording worker started")
	}

	go func() {
		logger.Info("coachsim listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("coachsim stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
