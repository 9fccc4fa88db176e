package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/jobtrack/config"
	"github.com/target/jobtrack/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.Observability)

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	app, err := bootstrap.NewApp(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.ErrorContext(ctx, "close app failed", "error", cerr)
		}
	}()

	return bootstrap.RunServices(ctx, app)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting jobtrack service",
		"store_backend", cfg.StoreBackend,
		"executor_backend", cfg.Executor.Backend,
		"executor_queue", cfg.Executor.Queue,
		"nats_enabled", cfg.NATS.Enabled,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}
