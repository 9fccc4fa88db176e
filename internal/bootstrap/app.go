package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobtrack/config"
	"github.com/target/jobtrack/internal/adapters/natsevents"
	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/jobkind"
	"github.com/target/jobtrack/internal/jobkinds"
	"github.com/target/jobtrack/internal/observability/statsd"
	"github.com/target/jobtrack/internal/service"
	"github.com/target/jobtrack/internal/service/failurenotifier"
)

// App holds the wired services shared by the daemon and the admin CLI.
type App struct {
	Config   *config.AppConfig
	Logger   *slog.Logger
	Metrics  *statsd.Client
	Stores   *Stores
	Executor *ExecutorBundle
	Events   *natsevents.Publisher // nil when NATS is disabled
	Registry *jobkind.Registry
	Notifier *failurenotifier.Service

	Coordinator *service.LifecycleCoordinator
	Records     *service.JobRecordService
	Repeat      *service.RepeatService
	Progress    *service.ProgressReporter
}

// NewApp connects the configured backends and wires the services. Close releases them.
func NewApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	if err := app.init(ctx); err != nil {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	a.Metrics = buildMetrics(a.Logger, a.Config.Observability.Metrics)

	var err error
	if a.Stores, err = OpenStores(ctx, a.Config, a.Logger); err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	if a.Executor, err = OpenExecutor(ctx, a.Config, a.Logger); err != nil {
		return fmt.Errorf("open executor: %w", err)
	}

	nc, err := ConnectNATS(DatabaseConfig{NATSConfig: a.Config.NATS, Logger: a.Logger})
	if err != nil {
		return err
	}
	var publisher core.EventPublisher
	if nc != nil {
		a.Events, err = natsevents.New(natsevents.Options{
			Conn:          nc,
			SubjectPrefix: a.Config.NATS.SubjectPrefix,
			Logger:        a.Logger,
		})
		if err != nil {
			nc.Close()
			return fmt.Errorf("create event publisher: %w", err)
		}
		publisher = a.Events
	}

	if a.Registry, err = jobkinds.Default(jobkinds.Deps{Retention: a.Stores.Retention}); err != nil {
		return fmt.Errorf("register job kinds: %w", err)
	}

	a.Notifier = buildFailureNotifier(a.Logger, a.Config.Observability.Notifications)
	var notifier service.FailureNotifier
	if a.Notifier.Enabled() {
		notifier = a.Notifier
	}

	a.Coordinator, err = service.NewLifecycleCoordinator(service.LifecycleCoordinatorOptions{
		Store:       a.Stores.Records,
		Executor:    a.Executor.Executor,
		Registry:    a.Registry,
		Publisher:   publisher,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
		Notifier:    notifier,
		SubmitDelay: a.Config.Executor.SubmitDelay,
	})
	if err != nil {
		return fmt.Errorf("create lifecycle coordinator: %w", err)
	}

	a.Records, err = service.NewJobRecordService(service.JobRecordServiceOptions{
		Repo:     a.Stores.Records,
		Registry: a.Registry,
		Executor: a.Executor.Executor,
		Logger:   a.Logger,
	})
	if err != nil {
		return fmt.Errorf("create job record service: %w", err)
	}

	a.Repeat, err = service.NewRepeatService(service.RepeatServiceOptions{
		Records:     a.Records,
		Coordinator: a.Coordinator,
		Logger:      a.Logger,
	})
	if err != nil {
		return fmt.Errorf("create repeat service: %w", err)
	}

	a.Progress = service.NewProgressReporter(a.Executor.Executor, a.Logger)
	return nil
}

// NewTaskRunner builds the worker-side runner with the coordinator's hooks registered.
func (a *App) NewTaskRunner() (*service.TaskRunner, error) {
	return service.NewTaskRunner(service.TaskRunnerOptions{
		Executor: a.Executor.Executor,
		Registry: a.Registry,
		Hooks:    a.Coordinator.Hooks(),
		Progress: a.Progress,
		Logger:   a.Logger,
	})
}

// Close releases every connection the app opened. It is safe to call on a partially
// initialised App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Events != nil {
		a.Events.Close()
	}
	if err := a.Executor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close executor: %w", err))
	}
	if err := a.Stores.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.Metrics != nil {
		if err := a.Metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildMetrics returns a StatsD client, or a disabled no-op client when metrics are off or
// the agent cannot be reached.
func buildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		client, _ = statsd.NewClient(statsd.Config{Logger: logger})
	}
	return client
}
