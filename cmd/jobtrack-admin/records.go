package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/jobtrack/internal/bootstrap"
	"github.com/target/jobtrack/internal/domain/model"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <kind>",
		Short: "Create a job record and submit it to the executor",
		Long: `Create a job record of the given kind and hand it to the configured executor.

Parameters are passed as key=value. Values that parse as JSON are stored as-is,
anything else is stored as a JSON string.

Examples:
  jobtrack-admin submit export --param format=json --param rows=250
  jobtrack-admin submit cleanup --param older_than=72h --param dry_run=true --actor ops`,
		Args: cobra.ExactArgs(1),
		RunE: runSubmit,
	}
	cmd.Flags().StringArrayP("param", "p", nil, "Parameter as key=value (repeatable)")
	cmd.Flags().String("actor", "", "Who is submitting the record")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	rawParams, _ := cmd.Flags().GetStringArray("param")
	params, err := parseParams(rawParams)
	if err != nil {
		return err
	}
	actor := optionalString(cmd, "actor")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		rec, err := app.Records.Create(ctx, &model.CreateJobRecordRequest{
			Kind:        args[0],
			Parameters:  params,
			SubmittedBy: actor,
		})
		if err != nil {
			return err
		}
		recordAudit(ctx, app, model.AuditEntry{
			RecordID: rec.ID,
			Actor:    actor,
			Action:   model.AuditActionCreate,
			Message:  "record created via jobtrack-admin",
		})
		if _, err := app.Coordinator.Submit(ctx, rec); err != nil {
			return err
		}
		return printView(cmd.OutOrStdout(), app.Records.ViewOf(ctx, rec), jsonOutput)
	})
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job record with its effective state, logs and audit trail",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().Bool("logs", false, "Include the full log text")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	withLogs, _ := cmd.Flags().GetBool("logs")

	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		view, err := app.Records.View(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := printView(out, view, jsonOutput); err != nil {
			return err
		}
		if jsonOutput {
			return nil
		}
		if view.Record.WarningsText != "" {
			_, _ = fmt.Fprintf(out, "\nWarnings:\n%s\n", strings.TrimRight(view.Record.WarningsText, "\n"))
		}
		if withLogs && view.Record.LogText != "" {
			_, _ = fmt.Fprintf(out, "\nLog:\n%s\n", strings.TrimRight(view.Record.LogText, "\n"))
		}
		if app.Stores.Audit == nil {
			return nil
		}
		entries, err := app.Stores.Audit.ListByRecord(ctx, view.Record.ID)
		if err != nil {
			return fmt.Errorf("list audit entries: %w", err)
		}
		return printAudit(out, entries)
	})
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job records, newest first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().String("kind", "", "Only records of this kind")
	cmd.Flags().String("submitted-by", "", "Only records submitted by this actor")
	cmd.Flags().Int("limit", 50, "Maximum records to list (1-500)")
	cmd.Flags().Int("offset", 0, "Records to skip")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	opts := model.JobRecordListOptions{
		Kind:        kind,
		SubmittedBy: optionalString(cmd, "submitted-by"),
		Limit:       limit,
		Offset:      offset,
	}

	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		recs, err := app.Records.List(ctx, opts)
		if err != nil {
			return err
		}
		views := make([]*model.JobRecordView, 0, len(recs))
		for _, rec := range recs {
			views = append(views, app.Records.ViewOf(ctx, rec))
		}
		return printViews(cmd.OutOrStdout(), views, jsonOutput)
	})
}

func newRepeatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repeat <id>",
		Short: "Create and submit a copy of an existing record's parameters",
		Args:  cobra.ExactArgs(1),
		RunE:  runRepeat,
	}
	cmd.Flags().String("actor", "", "Who is requesting the repeat")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runRepeat(cmd *cobra.Command, args []string) error {
	actor := optionalString(cmd, "actor")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		rec, err := app.Repeat.RepeatByID(ctx, args[0], actor)
		if rec == nil {
			return err
		}
		// the record exists even when submission failed
		recordAudit(ctx, app, model.RepeatAuditEntry(rec, args[0], actor))
		if err != nil {
			return err
		}
		return printView(cmd.OutOrStdout(), app.Records.ViewOf(ctx, rec), jsonOutput)
	})
}

func recordAudit(ctx context.Context, app *bootstrap.App, entry model.AuditEntry) {
	if app.Stores.Audit == nil {
		return
	}
	if _, err := app.Stores.Audit.Record(ctx, entry); err != nil {
		app.Logger.WarnContext(ctx, "failed to record audit entry",
			"record_id", entry.RecordID, "action", entry.Action, "error", err)
	}
}

// parseParams turns key=value pairs into record parameters. Values that are valid JSON are
// kept verbatim; anything else is encoded as a JSON string.
func parseParams(pairs []string) (model.Parameters, error) {
	params := make(model.Parameters, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: want key=value", pair)
		}
		if _, dup := params[key]; dup {
			return nil, fmt.Errorf("parameter %q given more than once", key)
		}
		if json.Valid([]byte(value)) {
			params[key] = json.RawMessage(value)
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode parameter %q: %w", key, err)
		}
		params[key] = encoded
	}
	return params, nil
}

func optionalString(cmd *cobra.Command, name string) *string {
	v, _ := cmd.Flags().GetString(name)
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	return &v
}

func printView(w io.Writer, view *model.JobRecordView, jsonOutput bool) error {
	if view == nil || view.Record == nil {
		return errors.New("no record to print")
	}
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	rec := view.Record
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Record:\t%s\n", rec.Label())
	_, _ = fmt.Fprintf(tw, "Handle:\t%s\n", rec.ExecutionHandle)
	_, _ = fmt.Fprintf(tw, "State:\t%s\n", displayState(view.EffectiveState))
	_, _ = fmt.Fprintf(tw, "Progress:\t%s\n", view.ProgressPercent)
	_, _ = fmt.Fprintf(tw, "Submitted by:\t%s\n", deref(rec.SubmittedBy))
	_, _ = fmt.Fprintf(tw, "Created:\t%s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(tw, "Duration:\t%s\n", view.Duration)
	_, _ = fmt.Fprintf(tw, "Result:\t%s\n", view.EffectiveResult)
	if view.EffectiveException != model.Placeholder {
		_, _ = fmt.Fprintf(tw, "Exception:\t%s\n", firstLine(view.EffectiveException))
	}
	return tw.Flush()
}

func printViews(w io.Writer, views []*model.JobRecordView, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tKIND\tSTATE\tPROGRESS\tSUBMITTED BY\tCREATED\tDURATION")
	for _, v := range views {
		rec := v.Record
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Kind, displayState(v.EffectiveState), v.ProgressPercent,
			deref(rec.SubmittedBy), rec.CreatedAt.UTC().Format(time.RFC3339), v.Duration)
	}
	return tw.Flush()
}

func printAudit(w io.Writer, entries []*model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w, "\nAudit:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), e.Action, deref(e.Actor), e.Message)
	}
	return tw.Flush()
}

func displayState(s model.State) string {
	if s == model.StateUnset {
		return model.Placeholder
	}
	return string(s)
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return model.Placeholder
	}
	return *s
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
