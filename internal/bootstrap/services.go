package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/jobtrack/config"
	"github.com/target/jobtrack/internal/adapters/reaper"
	schedrunner "github.com/target/jobtrack/internal/adapters/scheduler"
)

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func newWorkerBackgroundService(app *App) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			runner, err := app.NewTaskRunner()
			if err != nil {
				return fmt.Errorf("create task runner: %w", err)
			}
			worker, err := app.Executor.NewWorker(runner, app.Logger, app.Metrics)
			if err != nil {
				return fmt.Errorf("create worker: %w", err)
			}
			return worker.Run(ctx)
		},
	}
}

func newSchedulerBackgroundService(app *App) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "scheduler",
		start: func(ctx context.Context) error {
			cfg := app.Config.Scheduler
			schedules, err := schedrunner.LoadSchedules(cfg.SchedulesFile)
			if err != nil {
				return fmt.Errorf("load schedules: %w", err)
			}
			if len(schedules) == 0 {
				app.Logger.WarnContext(ctx, "no schedules configured", "file", cfg.SchedulesFile)
			}
			runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
				Repeater:  app.Repeat,
				Audit:     app.Stores.Audit,
				Schedules: schedules,
				RateLimit: cfg.RateLimit,
				Burst:     cfg.Burst,
				Logger:    app.Logger,
				Metrics:   app.Metrics,
			})
			if err != nil {
				return fmt.Errorf("create scheduler runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newReaperBackgroundService(app *App) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			runner, err := reaper.NewRunner(reaper.RunnerOptions{
				Repo:    app.Stores.Retention,
				Config:  app.Config.Reaper,
				Logger:  app.Logger,
				Metrics: app.Metrics,
			})
			if err != nil {
				return fmt.Errorf("create reaper runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(app *App) []backgroundService {
	return []backgroundService{
		newWorkerBackgroundService(app),
		newSchedulerBackgroundService(app),
		newReaperBackgroundService(app),
	}
}

// enabledBackgroundServices filters services down to the enabled modes.
func enabledBackgroundServices(services []backgroundService, enabled map[config.ServiceMode]bool) []backgroundService {
	out := make([]backgroundService, 0, len(services))
	for _, svc := range services {
		if enabled[svc.mode] {
			out = append(out, svc)
		}
	}
	return out
}

// RunServices starts every enabled background service and blocks until ctx is cancelled
// or one of them fails. A failing service cancels the others.
func RunServices(ctx context.Context, app *App) error {
	if app == nil || app.Config == nil {
		return errors.New("app is required")
	}
	enabled, err := app.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	return runBackground(ctx, app.Logger, enabledBackgroundServices(buildBackgroundServices(app), enabled))
}

func runBackground(ctx context.Context, logger *slog.Logger, services []backgroundService) error {
	if logger == nil {
		logger = slog.Default()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		logger.InfoContext(ctx, "background service started", "service", svc.name, "mode", svc.mode)
		g.Go(func() error {
			err := svc.start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.Info(svc.name + " stopped")
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
	}

	logger.Info("shutting down services...")
	select {
	case err := <-done:
		return err
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for services to stop")
		return errors.New("timeout waiting for services to stop")
	}
}
