package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobtrack/config"
	"github.com/target/jobtrack/internal/adapters/inlineexec"
	"github.com/target/jobtrack/internal/adapters/redisexec"
	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/observability/statsd"
)

// DeliveryRunner runs one delivery. service.TaskRunner implements it.
type DeliveryRunner interface {
	Run(ctx context.Context, d core.Delivery) error
}

// Worker consumes submitted work until ctx is cancelled.
type Worker interface {
	Run(ctx context.Context) error
}

// ExecutorBundle is the configured executor client plus what is needed to start its workers.
type ExecutorBundle struct {
	Executor core.Executor

	backend     config.ExecutorBackend
	cfg         config.ExecutorConfig
	redisClient redis.UniversalClient
	redisExec   *redisexec.Client
	inline      *inlineexec.Executor
}

// OpenExecutor builds the executor client for cfg.Executor.Backend.
func OpenExecutor(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*ExecutorBundle, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	b := &ExecutorBundle{backend: cfg.Executor.Backend, cfg: cfg.Executor}

	if cfg.Executor.Backend == config.ExecutorBackendInline {
		if logger != nil {
			logger.Warn("using inline executor; submitted work runs in this process only")
		}
		b.inline = inlineexec.New(nil)
		b.Executor = b.inline
		return b, nil
	}

	rdb, err := ConnectRedis(ctx, DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
	if err != nil {
		return nil, err
	}
	client, err := redisexec.NewClient(redisexec.ClientOptions{
		Redis:     rdb,
		Queue:     cfg.Executor.Queue,
		StatusTTL: cfg.Executor.StatusTTL,
	})
	if err != nil {
		return nil, errors.Join(err, rdb.Close())
	}
	b.redisClient = rdb
	b.redisExec = client
	b.Executor = client
	return b, nil
}

// NewWorker builds a worker pool for the bundle's backend.
//
//nolint:ireturn // worker type depends on the configured backend.
func (b *ExecutorBundle) NewWorker(runner DeliveryRunner, logger *slog.Logger, metrics statsd.Sink) (Worker, error) {
	if b.inline != nil {
		return inlineexec.NewWorker(inlineexec.WorkerOptions{
			Executor:    b.inline,
			Runner:      runner,
			Logger:      logger,
			Concurrency: b.cfg.Concurrency,
		})
	}
	return redisexec.NewWorker(redisexec.WorkerOptions{
		Client:       b.redisExec,
		Runner:       runner,
		Logger:       logger,
		Metrics:      metrics,
		Concurrency:  b.cfg.Concurrency,
		PollInterval: b.cfg.PollInterval,
	})
}

// Close releases the Redis connection, if any.
func (b *ExecutorBundle) Close() error {
	if b == nil || b.redisClient == nil {
		return nil
	}
	return b.redisClient.Close()
}
