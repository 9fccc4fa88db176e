// Command jobtrack-admin inspects and manages job records from the command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/target/jobtrack/config"
	"github.com/target/jobtrack/internal/bootstrap"
)

type cliContextKey struct{}

// cliState is loaded once in the root pre-run and shared by every subcommand.
type cliState struct {
	cfg    config.AppConfig
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobtrack-admin",
		Short:         "Inspect and manage jobtrack records",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			logger := bootstrap.InitLogger(cfg.Observability)
			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, &cliState{cfg: cfg, logger: logger}))
			return nil
		},
	}
	root.AddCommand(
		newMigrateCmd(),
		newSubmitCmd(),
		newShowCmd(),
		newListCmd(),
		newRepeatCmd(),
		newWatchCmd(),
	)
	return root
}

func stateFrom(cmd *cobra.Command) (*cliState, error) {
	st, ok := cmd.Context().Value(cliContextKey{}).(*cliState)
	if !ok || st == nil {
		return nil, fmt.Errorf("%s: configuration not loaded", cmd.Name())
	}
	return st, nil
}

// withApp opens the configured stores and executor, runs fn, and closes everything.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	st, err := stateFrom(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := bootstrap.NewApp(ctx, &st.cfg, st.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
			st.logger.ErrorContext(ctx, "close app failed", "error", cerr)
		}
	}()
	return fn(ctx, app)
}
