// Package task defines the execution context handed to job-kind task functions and the
// lifecycle hook set executors invoke around them.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/target/jobtrack/internal/domain/model"
)

// Func is the unit of work a job kind runs. The returned value becomes the record's result.
type Func func(ctx context.Context, exec *Execution) (any, error)

// ProgressReporter records fractional progress for a running execution.
type ProgressReporter interface {
	Report(ctx context.Context, exec *Execution, current, total int64) error
}

// Execution is the context of one run of a submitted unit of work.
// Hooks and the task run sequentially on the same goroutine, so it needs no locking.
type Execution struct {
	Handle     string
	Kind       string
	Parameters model.Parameters
	Metadata   map[string]string

	logger   *slog.Logger
	fallback *slog.Logger
	recordID string
	progress ProgressReporter
}

// ExecutionOptions configures a new Execution.
type ExecutionOptions struct {
	Handle     string
	Kind       string
	Parameters model.Parameters
	Metadata   map[string]string
	// Fallback is the logger used until a hook installs a record-bound one.
	Fallback *slog.Logger
	Progress ProgressReporter
}

// NewExecution creates an execution context.
func NewExecution(opts ExecutionOptions) *Execution {
	fallback := opts.Fallback
	if fallback == nil {
		fallback = slog.Default()
	}
	return &Execution{
		Handle:     opts.Handle,
		Kind:       opts.Kind,
		Parameters: opts.Parameters,
		Metadata:   opts.Metadata,
		fallback:   fallback,
		progress:   opts.Progress,
	}
}

// Logger returns the installed logger, or the fallback logger when none is installed.
func (e *Execution) Logger() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	if e.fallback != nil {
		return e.fallback
	}
	return slog.Default()
}

// Fallback returns the process-level logger for this execution.
func (e *Execution) Fallback() *slog.Logger {
	if e.fallback != nil {
		return e.fallback
	}
	return slog.Default()
}

// InstallLogger binds l as the execution's logger.
func (e *Execution) InstallLogger(l *slog.Logger) {
	e.logger = l
}

// Bind associates the execution with a job record id.
func (e *Execution) Bind(recordID string) {
	e.recordID = recordID
}

// RecordID returns the bound job record id, if any.
func (e *Execution) RecordID() (string, bool) {
	return e.recordID, e.recordID != ""
}

// ReportProgress records current/total progress. It is a no-op without a reporter.
func (e *Execution) ReportProgress(ctx context.Context, current, total int64) error {
	if e.progress == nil {
		e.Logger().InfoContext(ctx, fmt.Sprintf("update progress: %d out of %d", current, total))
		return nil
	}
	return e.progress.Report(ctx, e, current, total)
}

// Outcome is what a task run produced.
type Outcome struct {
	Result any
	Err    error
}

// Failed reports whether the task failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Hooks are the lifecycle callbacks an executor invokes around each task run.
// They are registered once when the executor client is constructed and never removed.
type Hooks struct {
	PreRun    func(ctx context.Context, exec *Execution) error
	OnSuccess func(ctx context.Context, exec *Execution, result any) error
	OnFailure func(ctx context.Context, exec *Execution, err error) error
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v\n%s", e.Value, e.Stack)
}

// HookError reports a hook failure. The task outcome is kept so executors can still
// record it in their status channel.
type HookError struct {
	Phase string
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook: %v", e.Phase, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// Hook phases.
const (
	PhasePreRun    = "pre-run"
	PhaseOnSuccess = "on-success"
	PhaseOnFailure = "on-failure"
)

// Run executes fn between the hooks: PreRun, then fn, then OnSuccess or OnFailure.
// A PreRun error aborts the run before fn is called. Task panics are recovered into
// *PanicError and treated as failures. The returned error is non-nil only for hook failures.
func Run(ctx context.Context, hooks Hooks, exec *Execution, fn Func) (Outcome, error) {
	if hooks.PreRun != nil {
		if err := hooks.PreRun(ctx, exec); err != nil {
			return Outcome{Err: err}, &HookError{Phase: PhasePreRun, Err: err}
		}
	}

	out := invoke(ctx, exec, fn)

	if out.Failed() {
		if hooks.OnFailure != nil {
			if err := hooks.OnFailure(ctx, exec, out.Err); err != nil {
				return out, &HookError{Phase: PhaseOnFailure, Err: err}
			}
		}
		return out, nil
	}
	if hooks.OnSuccess != nil {
		if err := hooks.OnSuccess(ctx, exec, out.Result); err != nil {
			return out, &HookError{Phase: PhaseOnSuccess, Err: err}
		}
	}
	return out, nil
}

func invoke(ctx context.Context, exec *Execution, fn Func) (out Outcome) {
	if fn == nil {
		return Outcome{Err: errors.New("no task function")}
	}
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
	}()
	res, err := fn(ctx, exec)
	return Outcome{Result: res, Err: err}
}

// Describe renders err as a human-readable trace for persistence.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
