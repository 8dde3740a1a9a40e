// Package main - точка входа фонового воркера движка прогрессии.
//
// Воркер выполняет регламентные работы: периодическую сверку агрегатов
// с журналом начислений и ремонт расхождений. Он работает отдельно от
// API-сервера, чтобы фоновая нагрузка не влияла на латентность записи.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/readstack-hub/progression-engine/config"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/messaging"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/scheduler"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/scheduler/jobs"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg).With(logger.Component("worker"))
	log.Info("starting progression worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.Duration("reconcile_interval", cfg.Scheduler.ReconcileInterval),
	)

	if !cfg.Scheduler.Enabled {
		return errors.New("scheduler is disabled, nothing to do (set SCHEDULER_ENABLED=true)")
	}

	// Сверка читает и чинит агрегаты, без базы воркер бессмыслен.
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required for the worker")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Миграции запускает и воркер тоже: он может стартовать первым.
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store := postgres.NewProgressionStore(dbConn).WithLockTimeout(cfg.Engine.LockTimeout)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS И ШИНА СОБЫТИЙ (опционально)
	// После ремонта агрегата воркер обновляет проекцию очков и рассылает
	// событие сверки, чтобы API-инстансы сбросили кэшированные снимки.
	// ─────────────────────────────────────────────────────────────────────────
	var (
		scores    jobs.ScoreWriter
		publisher shared.EventPublisher
	)

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, projections will lag until next write", logger.Err(err))
		} else {
			defer redisCache.Close()
			scores = redis.NewScoreBoard(redisCache)

			redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
				Client: redisCache.Client(),
				Local: messaging.InMemoryEventBusConfig{
					WorkerPoolSize: cfg.Engine.EventWorkers,
					Logger:         log,
				},
				Logger: log,
			})
			if err != nil {
				return fmt.Errorf("failed to create event bus: %w", err)
			}
			publisher = redisBus
			defer func() { _ = redisBus.Close() }()
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. РЕГИСТРАЦИЯ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	reconcileJob := jobs.NewReconcileLedgerJob(store, publisher, scores, log, jobs.ReconcileLedgerConfig{
		PageSize:   cfg.Scheduler.ReconcilePageSize,
		Timeout:    cfg.Scheduler.JobTimeout,
		MaxRepairs: cfg.Scheduler.ReconcileMaxRepairs,
		AutoRepair: cfg.Features.IsEnabled(config.FeatureReconcileAutoRepair, nil),
	})

	// По умолчанию сверка идёт с фиксированным интервалом; cron-выражение
	// позволяет привязать её к тихим часам (SCHEDULER_RECONCILE_CRON).
	var schedule scheduler.Schedule = scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileInterval)
	if cfg.Scheduler.ReconcileCron != "" {
		expr, err := scheduler.ParseCronExpression(cfg.Scheduler.ReconcileCron)
		if err != nil {
			return fmt.Errorf("invalid SCHEDULER_RECONCILE_CRON: %w", err)
		}
		schedule = expr
	}

	if err := sched.Register(reconcileJob, schedule); err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}
	log.Info("reconcile job registered", logger.String("schedule", schedule.String()))

	sched.OnJobComplete(func(result scheduler.JobResult) {
		log.Info("job completed",
			logger.String("job", result.JobName),
			logger.Duration("duration", result.Duration),
			logger.Bool("success", result.Success),
		)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()

	switch cfg.Observability.LogLevel {
	case "debug":
		opts.Level = logger.LevelDebug
	case "warn":
		opts.Level = logger.LevelWarn
	case "error":
		opts.Level = logger.LevelError
	default:
		opts.Level = logger.LevelInfo
	}
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}

	return logger.New(opts)
}
