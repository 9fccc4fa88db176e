package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/target/jobtrack/internal/bootstrap"
	"github.com/target/jobtrack/internal/core"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream lifecycle events from NATS as JSON lines",
		Long: `Subscribe to job record lifecycle events and print each one as a JSON line
until interrupted. Requires NATS_ENABLED=true.

Examples:
  jobtrack-admin watch
  jobtrack-admin watch --kind export`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	cmd.Flags().String("kind", "", "Only events for this kind")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	kind, _ := cmd.Flags().GetString("kind")

	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		if app.Events == nil {
			return errors.New("lifecycle events are disabled; set NATS_ENABLED=true")
		}
		out := cmd.OutOrStdout()
		enc := json.NewEncoder(out)
		var mu sync.Mutex
		sub, err := app.Events.Subscribe(kind, func(_ context.Context, evt core.LifecycleEvent) {
			mu.Lock()
			defer mu.Unlock()
			_ = enc.Encode(evt)
		})
		if err != nil {
			return err
		}
		defer func() { _ = sub.Unsubscribe() }()

		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "watching lifecycle events (kind=%q), ctrl-c to stop\n", kind)
		<-ctx.Done()
		return nil
	})
}
