package cli

import (
	"fmt"

	"github.com/nioasoft/reminder-engine/internal/config"
	"github.com/nioasoft/reminder-engine/internal/dedup"
	"github.com/nioasoft/reminder-engine/internal/infra/postgresql"
	"github.com/nioasoft/reminder-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/nioasoft/reminder-engine/internal/infra/redis"
	"github.com/nioasoft/reminder-engine/internal/match"
	"github.com/nioasoft/reminder-engine/internal/notifier"
	"github.com/nioasoft/reminder-engine/internal/observability"
	"github.com/nioasoft/reminder-engine/internal/queue"
	"github.com/nioasoft/reminder-engine/internal/repository"
	"github.com/nioasoft/reminder-engine/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// engine holds every wired component of a running instance plus the handles
// needed to shut them down.
type engine struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	db        *gorm.DB
	redis     *goredis.Client
	publisher *queue.RabbitMQPublisher

	tenants   repository.TenantStore
	runStates repository.RunStateRepository

	runner    *service.TenantRunner
	scheduler *service.Scheduler
	monitor   *service.AlertMonitor
}

// buildEngine connects to every backing service and wires the full dispatch
// pipeline. Any failure here is a startup failure.
func buildEngine(cfg *config.Config, logger *zap.Logger) (*engine, error) {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return nil, startupError(fmt.Errorf("postgres: %w", err))
	}
	if err := migrations.Migrate(db); err != nil {
		return nil, startupError(fmt.Errorf("migrations: %w", err))
	}

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, startupError(fmt.Errorf("redis: %w", err))
	}

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return nil, startupError(fmt.Errorf("rabbitmq: %w", err))
	}
	publisher := queue.NewRabbitMQPublisher(broker)

	limiter, err := infraredis.NewTenantRateLimiter(rdb, cfg.TenantRatePerSec)
	if err != nil {
		return nil, startupError(fmt.Errorf("rate limiter: %w", err))
	}

	sender, err := notifier.NewWebhookNotifier(cfg.NotifierURL, cfg.NotifierTimeout())
	if err != nil {
		return nil, startupError(fmt.Errorf("notifier: %w", err))
	}

	tenants := repository.NewGormTenantStore(db)
	rules := repository.NewGormRuleStore(db)
	candidates := repository.NewGormCandidateSource(db)
	dispatches := repository.NewGormDispatchRepo(db)
	runStates := repository.NewGormRunStateRepo(db)
	alerts := repository.NewGormAlertRepo(db)

	metrics := observability.NewMetrics()

	guard, err := dedup.NewGuard(dispatches, limiter, cfg.DailyDispatchCap, cfg.MaxRemindersPerCandidate, logger)
	if err != nil {
		return nil, startupError(fmt.Errorf("dedup guard: %w", err))
	}

	dispatcher, err := service.NewDispatcher(guard, sender, cfg.DispatchMaxAttempts, cfg.NotifierTimeout(), logger)
	if err != nil {
		return nil, startupError(fmt.Errorf("dispatcher: %w", err))
	}
	dispatcher.SetMetrics(metrics)

	runner, err := service.NewTenantRunner(
		rules,
		candidates,
		runStates,
		match.NewMatcher(logger),
		dispatcher,
		cfg.CandidateBatchSize,
		cfg.RunBudget(),
		cfg.MaxDispatchesPerRun,
		logger,
	)
	if err != nil {
		return nil, startupError(fmt.Errorf("tenant runner: %w", err))
	}
	runner.SetMetrics(metrics)

	scheduler, err := service.NewScheduler(tenants, runner, cfg.ScanInterval(), cfg.WorkerConcurrency, logger)
	if err != nil {
		return nil, startupError(fmt.Errorf("scheduler: %w", err))
	}
	scheduler.SetMetrics(metrics)

	monitor, err := service.NewAlertMonitor(
		tenants,
		candidates,
		rules,
		dispatches,
		alerts,
		publisher,
		service.AlertThresholds{
			OverdueDays:   cfg.OverdueAlertDays,
			StaleOpenDays: cfg.StaleOpenAlertDays,
		},
		cfg.AlertInterval(),
		logger,
	)
	if err != nil {
		return nil, startupError(fmt.Errorf("alert monitor: %w", err))
	}
	monitor.SetMetrics(metrics)

	return &engine{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		db:        db,
		redis:     rdb,
		publisher: publisher,
		tenants:   tenants,
		runStates: runStates,
		runner:    runner,
		scheduler: scheduler,
		monitor:   monitor,
	}, nil
}

func (e *engine) Close() {
	if e == nil {
		return
	}
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			e.logger.Warn("failed to close rabbitmq", zap.Error(err))
		}
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			e.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if e.db != nil {
		if sqlDB, err := e.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
