package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/jobtrack/config"
	"github.com/target/jobtrack/internal/bootstrap"
	"github.com/target/jobtrack/internal/migrate"
)

const defaultMigrationTimeout = 5 * time.Minute

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL schema migrations",
		Long: `Apply every pending embedded schema migration to the configured PostgreSQL database.

Only the postgres store backend has migrations. MongoDB indexes are created on connect.

Examples:
  # Apply pending migrations
  jobtrack-admin migrate

  # Show which migrations have been applied
  jobtrack-admin migrate --status`,
		RunE: runMigrate,
	}
	cmd.Flags().Bool("status", false, "List migrations and their applied time instead of applying")
	cmd.Flags().Duration("timeout", defaultMigrationTimeout, "Maximum time to wait for migrations")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	st, err := stateFrom(cmd)
	if err != nil {
		return err
	}
	if st.cfg.StoreBackend != config.StoreBackendPostgres {
		return fmt.Errorf("migrations only apply to the postgres store (configured: %s)", st.cfg.StoreBackend)
	}
	statusOnly, _ := cmd.Flags().GetBool("status")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: st.cfg.Postgres, Logger: st.logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if !statusOnly {
		if err := bootstrap.RunMigrations(ctx, db, st.logger); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("migrations did not finish within %s: %w", timeout, err)
			}
			return err
		}
	}

	migrations, err := migrate.Status(ctx, db)
	if err != nil {
		return err
	}
	return printMigrations(cmd.OutOrStdout(), migrations)
}

func printMigrations(w io.Writer, migrations []migrate.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VERSION\tAPPLIED")
	for _, m := range migrations {
		applied := "pending"
		if m.AppliedAt != nil {
			applied = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", m.Version, applied)
	}
	return tw.Flush()
}
