package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/jobkind"
	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/domain/task"
)

// TaskRunnerOptions groups dependencies for TaskRunner.
type TaskRunnerOptions struct {
	// Executor is the status channel outcomes are reported to. Required.
	Executor core.Executor
	Registry *jobkind.Registry // Required
	// Hooks are registered once here and apply to every delivery.
	Hooks    task.Hooks
	Progress task.ProgressReporter
	Logger   *slog.Logger
}

// TaskRunner executes deliveries for executor workers: it resolves the kind, runs the task
// between the lifecycle hooks and reports the outcome to the executor's status channel.
type TaskRunner struct {
	executor core.Executor
	registry *jobkind.Registry
	hooks    task.Hooks
	progress task.ProgressReporter
	logger   *slog.Logger
}

// NewTaskRunner constructs a TaskRunner.
func NewTaskRunner(opts TaskRunnerOptions) (*TaskRunner, error) {
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("job kind registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskRunner{
		executor: opts.Executor,
		registry: opts.Registry,
		hooks:    opts.Hooks,
		progress: opts.Progress,
		logger:   logger,
	}, nil
}

// Run executes d. The returned error is non-nil when the delivery could not run to a
// recorded outcome: an unknown kind or a failing hook. Invariant violations are returned
// as-is and must not be retried.
func (r *TaskRunner) Run(ctx context.Context, d core.Delivery) error {
	logger := r.logger.With("handle", d.Handle, "kind", d.Kind)

	kind, err := r.registry.Lookup(d.Kind)
	if err != nil {
		logger.ErrorContext(ctx, "cannot run delivery", "error", err)
		r.reportFailure(ctx, logger, d.Handle, err)
		return err
	}

	exec := task.NewExecution(task.ExecutionOptions{
		Handle:     d.Handle,
		Kind:       d.Kind,
		Parameters: d.Parameters,
		Metadata:   d.Metadata,
		Fallback:   logger,
		Progress:   r.progress,
	})

	out, hookErr := task.Run(ctx, r.hooks, exec, kind.Task())
	if hookErr != nil {
		if IsInvariantViolation(hookErr) {
			logger.ErrorContext(ctx, "job record invariant violated, execution stopped", "error", hookErr)
		} else {
			logger.ErrorContext(ctx, "lifecycle hook failed", "error", hookErr)
		}
		r.reportFailure(ctx, logger, d.Handle, hookErr)
		return hookErr
	}

	if out.Failed() {
		r.reportFailure(ctx, logger, d.Handle, out.Err)
		return nil
	}

	result, err := model.MarshalResult(out.Result)
	if err != nil {
		logger.WarnContext(ctx, "task result is not JSON encodable", "error", err)
		result = nil
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	if err := r.executor.SetStatus(ctx, d.Handle, model.ExecutorStateSucceeded, result); err != nil {
		logger.WarnContext(ctx, "set executor status failed", "error", err)
	}
	return nil
}

func (r *TaskRunner) reportFailure(ctx context.Context, logger *slog.Logger, handle string, cause error) {
	tb, _ := json.Marshal(task.Describe(cause)) // strings always encode
	if err := r.executor.SetStatus(context.WithoutCancel(ctx), handle, model.ExecutorStateFailed, tb); err != nil {
		logger.WarnContext(ctx, "set executor status failed", "error", err)
	}
}
