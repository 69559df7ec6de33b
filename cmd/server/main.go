package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/database"
	"github.com/stemsi/aptitest-backend/internal/events"
	"github.com/stemsi/aptitest-backend/internal/handler"
	"github.com/stemsi/aptitest-backend/internal/logger"
	"github.com/stemsi/aptitest-backend/internal/middleware"
	"github.com/stemsi/aptitest-backend/internal/repository"
	"github.com/stemsi/aptitest-backend/internal/router"
	"github.com/stemsi/aptitest-backend/internal/service"
	"github.com/stemsi/aptitest-backend/internal/session"
	"github.com/stemsi/aptitest-backend/internal/timer"
	"github.com/stemsi/aptitest-backend/internal/validator"
	"github.com/stemsi/aptitest-backend/internal/worker"
)

// lockLease bounds how long a crashed process can hold a session lock.
const lockLease = 15 * time.Second

// broker publishes and delivers session events.
type broker interface {
	service.EventPublisher
	handler.EventSubscriber
}

// liveState is where sessions, locks, deadlines and events live.
type liveState struct {
	sessions  service.SessionStore
	locker    service.Locker
	deadlines timer.Scheduler
	broker    broker
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("sessions", cfg.SessionDriver).
		Strs("survey_types", cfg.SurveyTypes).
		Msg("Starting Aptitest Backend")

	if !cfg.HasSurveyType(cfg.DefaultSurveyType) {
		log.Fatal().Str("default", cfg.DefaultSurveyType).Msg("DEFAULT_SURVEY_TYPE is not in SURVEY_TYPES")
	}
	if cfg.AdminCodeHash == "" {
		log.Warn().Msg("ADMIN_CODE_HASH is empty, admin login disabled")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup(cfg.SurveyTypes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect Durable Store ─────────────────────────────────────────
	stores, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	// ─── Connect to Redis ──────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.SessionDriver == config.DriverRedis {
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	}
	live, err := newLiveState(cfg, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up session state")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	var codeQueue service.CodeUsedQueue
	if rdb != nil {
		codeQueue = worker.NewCodeUsedQueue(rdb)
	}

	authService := service.NewAuthService(cfg, stores.Codes, log)
	ledgerService := service.NewLedgerService(stores.Ledgers, stores.Codes, stores.Participants, codeQueue, log)
	questionService := service.NewQuestionService(stores.Questions, rdb, cfg.QuestionCacheTTL, cfg.AssetBaseURL, log)
	participantService := service.NewParticipantService(stores.Participants, log)
	codeService := service.NewCodeService(stores.Codes, log)
	testService := service.NewTestSessionService(
		live.sessions,
		live.locker,
		live.deadlines,
		ledgerService,
		live.broker,
		service.TestSessionOptions{Grace: cfg.DeadlineGrace, RetryDelay: cfg.CommitRetryDelay},
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, testService, cfg.DefaultSurveyType),
		Participant: handler.NewParticipantHandler(participantService),
		Test:        handler.NewTestHandler(testService, questionService),
		Admin:       handler.NewAdminHandler(testService, ledgerService, participantService, codeService, questionService, cfg.SurveyTypes),
		WS:          handler.NewWSHandler(testService, live.broker, log, cfg.AllowedOrigins),
		Monitor:     handler.NewMonitorHandler(testService, live.broker, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	runWorker := func(fn func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn(workerCtx)
		}()
	}

	runWorker(worker.NewDeadlineWorker(live.deadlines, testService, cfg.DeadlinePoll, log).Start)
	if rdb != nil {
		runWorker(worker.NewCodeUsedWorker(stores.Codes, rdb, log).Start)
	}

	// Rate limiter for the login route (30 requests per minute per IP).
	loginLimiter := middleware.NewRateLimiter(30, time.Minute)
	runWorker(loginLimiter.RunCleanup)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Render every question unit into Redis BEFORE accepting traffic.
	questionService.Prewarm(ctx, cfg.SurveyTypes)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, loginLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// openStore connects the durable store selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repository.Set, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresSet(pool), pool.Close, nil
	case config.DriverSQLite:
		db, err := database.NewSQLite(ctx, cfg.SQLiteDSN, log)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLiteSet(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// newLiveState picks the session backend selected by SESSION_DRIVER.
func newLiveState(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (*liveState, error) {
	switch cfg.SessionDriver {
	case config.DriverRedis:
		return &liveState{
			sessions:  session.NewRedisStore(rdb, cfg.SessionTTL),
			locker:    session.NewRedisLocker(rdb, lockLease, log),
			deadlines: timer.NewRedisScheduler(rdb, log),
			broker:    events.NewRedisBroker(rdb, log),
		}, nil
	case config.DriverMemory:
		return &liveState{
			sessions:  session.NewMemoryStore(cfg.SessionTTL),
			locker:    session.NewKeyedMutex(),
			deadlines: timer.NewMemoryScheduler(),
			broker:    events.NewMemoryBroker(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown SESSION_DRIVER %q", cfg.SessionDriver)
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
