package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	NotifierURL string `env:"NOTIFIER_URL,required=true"`

	// Scan cadence is a configuration input, not hard-coded policy.
	ScanIntervalSeconds  int `env:"SCAN_INTERVAL_SECONDS,default=86400"`
	AlertIntervalSeconds int `env:"ALERT_INTERVAL_SECONDS,default=3600"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=8"`

	// Per-candidate daily cap across all reminder types.
	DailyDispatchCap int `env:"DAILY_DISPATCH_CAP,default=3"`
	// Lifetime ceiling on reminders per candidate; 0 disables the check.
	MaxRemindersPerCandidate int `env:"MAX_REMINDERS_PER_CANDIDATE,default=0"`
	// Per-tenant notifier throughput ceiling.
	TenantRatePerSec int `env:"TENANT_RATE_PER_SEC,default=50"`
	// Hard ceiling on dispatches in one tenant run.
	MaxDispatchesPerRun int `env:"MAX_DISPATCHES_PER_RUN,default=10000"`

	CandidateBatchSize     int `env:"CANDIDATE_BATCH_SIZE,default=200"`
	RunBudgetSeconds       int `env:"RUN_BUDGET_SECONDS,default=1800"`
	NotifierTimeoutSeconds int `env:"NOTIFIER_TIMEOUT_SECONDS,default=10"`
	DispatchMaxAttempts    int `env:"DISPATCH_MAX_ATTEMPTS,default=3"`

	// Alert monitor thresholds, in days of backlog age.
	OverdueAlertDays   int `env:"OVERDUE_ALERT_DAYS,default=14"`
	StaleOpenAlertDays int `env:"STALE_OPEN_ALERT_DAYS,default=30"`

	MetricsPort int    `env:"METRICS_PORT,default=9090"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

func (c *Config) AlertInterval() time.Duration {
	return time.Duration(c.AlertIntervalSeconds) * time.Second
}

func (c *Config) RunBudget() time.Duration {
	return time.Duration(c.RunBudgetSeconds) * time.Second
}

func (c *Config) NotifierTimeout() time.Duration {
	return time.Duration(c.NotifierTimeoutSeconds) * time.Second
}
