// Package main - точка входа API-сервера движка прогрессии.
//
// Сервер - единственная поверхность записи: внешние сервисы сообщают сюда
// о действиях пользователя (начисление очков, активность дня, счётчики),
// а движок атомарно обновляет агрегат, журнал и награды.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries)
// - Infrastructure: хранилища, кэш, шина событий
// - Interface: HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/readstack-hub/progression-engine/config"
	"github.com/readstack-hub/progression-engine/internal/application/command"
	"github.com/readstack-hub/progression-engine/internal/application/eventhandler"
	"github.com/readstack-hub/progression-engine/internal/application/query"
	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/messaging"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/redis"
	httpserver "github.com/readstack-hub/progression-engine/internal/interface/http"
	"github.com/readstack-hub/progression-engine/internal/interface/http/handlers"
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
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting progression engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К ХРАНИЛИЩУ
	// Без DATABASE_URL сервер работает на in-memory хранилище. Годится для
	// локальной разработки и интеграционных тестов, но не для production
	// (валидация конфига это запрещает).
	// ─────────────────────────────────────────────────────────────────────────
	var (
		store   progression.Store
		catalog achievement.Provider
		dbConn  *postgres.Connection
	)

	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if err := dbConn.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		log.Info("database connection established")

		// ─────────────────────────────────────────────────────────────────
		// 4. МИГРАЦИИ И НАЧАЛЬНЫЙ КАТАЛОГ
		// ─────────────────────────────────────────────────────────────────
		log.Info("running database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		catalogRepo := postgres.NewCatalogRepo(dbConn)
		if cfg.Engine.SeedCatalog {
			seeded, err := catalogRepo.Seed(ctx)
			if err != nil {
				return fmt.Errorf("failed to seed achievement catalog: %w", err)
			}
			if seeded > 0 {
				log.Info("achievement catalog seeded", logger.Int("inserted", seeded))
			}
		}

		store = postgres.NewProgressionStore(dbConn).WithLockTimeout(cfg.Engine.LockTimeout)
		catalog = achievement.NewCachedProvider(catalogRepo, cfg.Engine.CatalogTTL)
	} else {
		log.Warn("DATABASE_URL is not set, using in-memory store")
		store = memory.NewStore()
		catalog = achievement.NewStaticProvider(achievement.DefaultCatalog())
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache  *redis.Cache
		viewCache   query.ViewCache
		invalidator eventhandler.SnapshotInvalidator
		scoreBoard  eventhandler.ScoreProjection
	)

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, read-side caching disabled", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			// Каждая проекция включается собственным feature-флагом, чтобы
			// при инциденте её можно было погасить без передеплоя.
			if cfg.Features.IsEnabled(config.FeatureCacheProgressSnapshot, nil) {
				vc := redis.NewViewCache(redisCache)
				viewCache = vc
				invalidator = vc
			} else {
				log.Warn("progress snapshot cache disabled by feature flag")
			}
			if cfg.Features.IsEnabled(config.FeatureScoreProjection, nil) {
				scoreBoard = redis.NewScoreBoard(redisCache)
			} else {
				log.Warn("score projection disabled by feature flag")
			}
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ШИНА СОБЫТИЙ
	// С Redis события расходятся между инстансами через Pub/Sub, без него
	// остаётся внутрипроцессная доставка.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	var (
		eventBus shared.EventBus
		closeBus func() error
	)

	localBusConfig := messaging.InMemoryEventBusConfig{
		WorkerPoolSize: cfg.Engine.EventWorkers,
		Logger:         log,
	}
	if redisCache != nil {
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client: redisCache.Client(),
			Local:  localBusConfig,
			Logger: log,
		})
		if err != nil {
			return fmt.Errorf("failed to create event bus: %w", err)
		}
		eventBus, closeBus = redisBus, redisBus.Close
	} else {
		localBus := messaging.NewInMemoryEventBus(localBusConfig)
		eventBus, closeBus = localBus, localBus.Close
	}
	defer func() {
		log.Info("closing event bus...")
		_ = closeBus()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers...")
	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		Bus:            eventBus,
		MaxAttempts:    cfg.Engine.HandlerMaxAttempts,
		HandlerTimeout: cfg.Engine.HandlerTimeout,
		Logger:         log,
	})

	onPointsAdded := eventhandler.NewOnPointsAddedHandler(scoreBoard, invalidator, log)
	if err := dispatcher.Register(onPointsAdded.EventType(), messaging.Registration{
		Name:    "score_projection",
		Handler: onPointsAdded.Handle,
	}); err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}

	onAwarded := eventhandler.NewOnAchievementAwardedHandler(invalidator, log)
	if err := dispatcher.Register(onAwarded.EventType(), messaging.Registration{
		Name:    "award_snapshot_invalidation",
		Handler: onAwarded.Handle,
	}); err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}

	onProgressChanged := eventhandler.NewOnProgressChangedHandler(invalidator, log)
	if err := dispatcher.RegisterEach(eventhandler.ProgressChangedEventTypes(), messaging.Registration{
		Name:    "snapshot_invalidation",
		Handler: onProgressChanged.Handle,
	}); err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")
	evaluator := achievement.NewEvaluator(log)

	// Выключенная оценка наград подменяет каталог команд пустым: записи
	// продолжают идти, но новые награды не выдаются. Чтение каталога при
	// этом не меняется.
	commandCatalog := catalog
	if !cfg.Features.AwardsEnabled(nil) {
		log.Warn("award evaluation disabled by feature flag")
		commandCatalog = achievement.NewStaticProvider(nil)
	}

	addPointsCmd := command.NewAddPointsHandler(store, evaluator, commandCatalog, eventBus, cfg.App.Location, log)
	touchStreakCmd := command.NewTouchStreakHandler(store, evaluator, commandCatalog, eventBus, cfg.App.Location, log)
	incrementCounterCmd := command.NewIncrementCounterHandler(store, evaluator, commandCatalog, eventBus, cfg.App.Location, log)
	markSeenCmd := command.NewMarkSeenHandler(store, eventBus, log)

	progressQuery := query.NewGetProgressHandler(store, catalog, viewCache, log)
	achievementsQuery := query.NewGetAchievementsHandler(store, catalog, log)
	ledgerQuery := query.NewGetLedgerHandler(store, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if dbConn != nil {
		healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	}
	if redisCache != nil {
		healthChecker.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeys = cfg.HTTP.APIKeys

	httpServer := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		AddPointsHandler:        addPointsCmd,
		TouchStreakHandler:      touchStreakCmd,
		IncrementCounterHandler: incrementCounterCmd,
		MarkSeenHandler:         markSeenCmd,
		GetProgressHandler:      progressQuery,
		GetAchievementsHandler:  achievementsQuery,
		GetLedgerHandler:        ledgerQuery,
		Logger:                  log,
		HealthChecker:           healthChecker,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", logger.String("address", httpServer.Address()))
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("progression engine is running",
		logger.String("http_address", httpServer.Address()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 12. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...",
		logger.String("timeout", cfg.App.ShutdownTimeout.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	// Шина событий и база данных закроются через defer.
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
