package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/data"
	"github.com/target/jobtrack/internal/domain/jobkind"
	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/domain/task"
	apperrors "github.com/target/jobtrack/internal/errors"
	obserrors "github.com/target/jobtrack/internal/observability/errors"
	"github.com/target/jobtrack/internal/observability/metrics"
	"github.com/target/jobtrack/internal/observability/notify"
	"github.com/target/jobtrack/internal/observability/statsd"
)

// Lifecycle phases reported by InvariantViolationError.
const (
	PhaseSubmit   = "submit"
	PhasePreRun   = task.PhasePreRun
	PhasePostRun  = "post-run"
	trackedLogKey = "tracked"
)

// InvariantViolationError reports that a lifecycle write matched a number of records other
// than one. It is fatal for the execution that hit it and must never be retried.
type InvariantViolationError struct {
	RecordID string
	Kind     string
	Phase    string
	Count    int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("job record %s: %s write matched %d records, want 1", e.RecordID, e.Phase, e.Count)
}

// Unwrap exposes the error as an invariant AppError.
func (e *InvariantViolationError) Unwrap() error {
	return apperrors.Invariantf("%s write matched %d records", e.Phase, e.Count)
}

// IsInvariantViolation reports whether err carries an *InvariantViolationError.
func IsInvariantViolation(err error) bool {
	var ive *InvariantViolationError
	return errors.As(err, &ive)
}

// FailureNotifier is told about failed records and invariant violations. Delivery is
// best-effort and must not return errors to the lifecycle.
type FailureNotifier interface {
	NotifyRecordFailure(ctx context.Context, payload notify.RecordFailurePayload)
}

// LifecycleCoordinatorOptions groups dependencies for LifecycleCoordinator.
type LifecycleCoordinatorOptions struct {
	Store    core.JobRecordRepository // Required
	Executor core.Executor            // Required
	Registry *jobkind.Registry        // Required
	// Publisher receives best-effort lifecycle events. Optional.
	Publisher core.EventPublisher
	Metrics   statsd.Sink
	Logger    *slog.Logger
	// Notifier receives FAILURE outcomes and invariant violations. Optional.
	Notifier FailureNotifier
	// Now defaults to time.Now in UTC.
	Now func() time.Time
	// SubmitDelay postpones the earliest start of submitted work.
	SubmitDelay time.Duration
}

// LifecycleCoordinator keeps job records in step with executor events: it stores the handle
// at submission, the start time before a task runs and the single terminal write after it.
type LifecycleCoordinator struct {
	store     core.JobRecordRepository
	executor  core.Executor
	registry  *jobkind.Registry
	publisher core.EventPublisher
	metrics   statsd.Sink
	notifier  FailureNotifier
	logger    *slog.Logger
	now       func() time.Time
	delay     time.Duration
}

// NewLifecycleCoordinator constructs a LifecycleCoordinator.
func NewLifecycleCoordinator(opts LifecycleCoordinatorOptions) (*LifecycleCoordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("JobRecordRepository is required")
	}
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
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &LifecycleCoordinator{
		store:     opts.Store,
		executor:  opts.Executor,
		registry:  opts.Registry,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		logger:    logger.With("component", "lifecycle"),
		now:       now,
		delay:     opts.SubmitDelay,
	}, nil
}

// MustNewLifecycleCoordinator constructs a LifecycleCoordinator and panics on error.
func MustNewLifecycleCoordinator(opts LifecycleCoordinatorOptions) *LifecycleCoordinator {
	c, err := NewLifecycleCoordinator(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // wiring error at startup
	}
	return c
}

// Executor returns the executor the coordinator submits to.
func (c *LifecycleCoordinator) Executor() core.Executor { return c.executor }

// Submit hands rec to the executor with an identity token and stores the returned handle.
// rec.ExecutionHandle is updated in place.
func (c *LifecycleCoordinator) Submit(ctx context.Context, rec *model.JobRecord) (string, error) {
	if rec == nil {
		return "", errors.New("record is required")
	}
	md, err := jobkind.NewToken(rec.ID, rec.Kind).Metadata()
	if err != nil {
		return "", err
	}

	handle, err := c.executor.Submit(ctx, core.SubmitRequest{
		Kind:       rec.Kind,
		Parameters: rec.Parameters.Clone(),
		Metadata:   md,
		Delay:      c.delay,
	})
	if err != nil {
		c.emit(rec.Kind, core.TransitionSubmitted, "", 0, err)
		return "", apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "submit %s", rec.Label())
	}

	n, err := c.store.UpdateIfExists(ctx, rec.ID, model.JobRecordUpdate{ExecutionHandle: &handle})
	if err != nil {
		return handle, fmt.Errorf("store execution handle: %w", err)
	}
	if n != 1 {
		return handle, c.violation(ctx, rec.ID, rec.Kind, PhaseSubmit, n)
	}
	rec.ExecutionHandle = handle

	c.logger.InfoContext(ctx, "job record submitted", "record_id", rec.ID, "kind", rec.Kind, "handle", handle)
	c.emit(rec.Kind, core.TransitionSubmitted, "", 0, nil)
	c.publish(ctx, core.LifecycleEvent{RecordID: rec.ID, Kind: rec.Kind, Transition: core.TransitionSubmitted, Handle: handle})
	return handle, nil
}

// ResolveIdentity maps executor metadata back to its job record. A missing or undecodable
// token, an unregistered kind, a missing row and a kind mismatch are misses (ok false, nil
// error). Any other store error is returned: the token named a record we could not load.
func (c *LifecycleCoordinator) ResolveIdentity(ctx context.Context, md map[string]string) (*model.JobRecord, bool, error) {
	tok, err := jobkind.TokenFromMetadata(md)
	if err != nil {
		c.logger.DebugContext(ctx, "identity miss", "reason", err)
		return nil, false, nil
	}
	if _, err = c.registry.Lookup(tok.Kind); err != nil {
		c.logger.DebugContext(ctx, "identity miss", "reason", err, "record_id", tok.ID)
		return nil, false, nil
	}
	rec, err := c.store.GetByID(ctx, tok.ID)
	if errors.Is(err, data.ErrJobRecordNotFound) {
		c.logger.DebugContext(ctx, "identity miss", "reason", err, "record_id", tok.ID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load job record %s: %w", tok.ID, err)
	}
	if rec.Kind != tok.Kind {
		c.logger.DebugContext(ctx, "identity miss", "reason", "kind mismatch", "record_id", tok.ID,
			"token_kind", tok.Kind, "record_kind", rec.Kind)
		return nil, false, nil
	}
	return rec, true, nil
}

// FallbackLogger returns the logger an untracked execution writes to.
func (c *LifecycleCoordinator) FallbackLogger(exec *task.Execution) *slog.Logger {
	return exec.Fallback().With("component", "task", trackedLogKey, false, "handle", exec.Handle, "kind", exec.Kind)
}

// OnPreRun binds exec to its record, installs the record's log sink and marks it started.
// A store error while resolving the record aborts the task rather than running it untracked.
func (c *LifecycleCoordinator) OnPreRun(ctx context.Context, exec *task.Execution) error {
	fallback := c.FallbackLogger(exec)
	rec, ok, err := c.ResolveIdentity(ctx, exec.Metadata)
	if err != nil {
		exec.InstallLogger(fallback)
		return err
	}
	if !ok {
		exec.InstallLogger(fallback)
		return nil
	}

	exec.Bind(rec.ID)
	exec.InstallLogger(slog.New(NewLogSink(LogSinkOptions{
		Store:    c.store,
		Record:   rec,
		Fallback: fallback.With(trackedLogKey, true, "record_id", rec.ID),
		Metrics:  c.metrics,
	})))

	started := c.now()
	n, err := c.store.UpdateIfExists(ctx, rec.ID, model.JobRecordUpdate{StartedAt: &started})
	if err != nil {
		return fmt.Errorf("mark record started: %w", err)
	}
	if n != 1 {
		return c.violation(ctx, rec.ID, rec.Kind, PhasePreRun, n)
	}

	c.emit(rec.Kind, core.TransitionStarted, "", 0, nil)
	c.publish(ctx, core.LifecycleEvent{RecordID: rec.ID, Kind: rec.Kind, Transition: core.TransitionStarted, Handle: exec.Handle})
	return nil
}

// OnPostRun performs the single terminal write for a bound execution.
func (c *LifecycleCoordinator) OnPostRun(ctx context.Context, exec *task.Execution, out task.Outcome) error {
	id, ok := exec.RecordID()
	if !ok {
		return nil
	}
	// The terminal write must land even when the task's context was cancelled.
	ctx = context.WithoutCancel(ctx)

	current, err := c.store.GetByID(ctx, id)
	if errors.Is(err, data.ErrJobRecordNotFound) {
		return c.violation(ctx, id, exec.Kind, PhasePostRun, 0)
	}
	if err != nil {
		return fmt.Errorf("reload record: %w", err)
	}

	finished := c.now()
	upd := model.JobRecordUpdate{FinishedAt: &finished}
	state := model.StateSuccess
	switch {
	case out.Failed():
		state = model.StateFailure
		exc := task.Describe(out.Err)
		upd.PersistedException = &exc
	default:
		if current.WarningsText != "" {
			state = model.StateSuccessWithWarnings
		}
		result, mErr := model.MarshalResult(out.Result)
		if mErr != nil {
			c.FallbackLogger(exec).WarnContext(ctx, "task result is not JSON encodable, storing null",
				"record_id", id, "error", mErr)
		}
		upd.PersistedResult = result
	}
	upd.PersistedState = &state

	n, err := c.store.UpdateIfExists(ctx, id, upd)
	if err != nil {
		return fmt.Errorf("store terminal state: %w", err)
	}
	if n != 1 {
		return c.violation(ctx, id, current.Kind, PhasePostRun, n)
	}

	var dur time.Duration
	if current.StartedAt != nil {
		dur = finished.Sub(*current.StartedAt)
	}
	c.emit(current.Kind, core.TransitionFinished, string(state), dur, out.Err)
	c.publish(ctx, core.LifecycleEvent{
		RecordID: id, Kind: current.Kind, Transition: core.TransitionFinished, State: state, Handle: exec.Handle,
	})
	if state == model.StateFailure {
		c.notify(ctx, notify.RecordFailurePayload{
			RecordID:   id,
			Kind:       current.Kind,
			Label:      current.Label(),
			Handle:     exec.Handle,
			Actor:      deref(current.SubmittedBy),
			Error:      out.Err.Error(),
			ErrorClass: obserrors.Classify(out.Err),
			Severity:   notify.SeverityError,
			OccurredAt: finished,
		})
	}
	return nil
}

// Hooks returns the hook set executor clients register at construction.
func (c *LifecycleCoordinator) Hooks() task.Hooks {
	return task.Hooks{
		PreRun: c.OnPreRun,
		OnSuccess: func(ctx context.Context, exec *task.Execution, result any) error {
			return c.OnPostRun(ctx, exec, task.Outcome{Result: result})
		},
		OnFailure: func(ctx context.Context, exec *task.Execution, err error) error {
			return c.OnPostRun(ctx, exec, task.Outcome{Err: err})
		},
	}
}

func (c *LifecycleCoordinator) violation(ctx context.Context, id, kind, phase string, n int64) error {
	err := &InvariantViolationError{RecordID: id, Kind: kind, Phase: phase, Count: n}
	c.logger.ErrorContext(ctx, "job record invariant violated", "record_id", id, "kind", kind, "phase", phase, "count", n)
	metrics.EmitInvariantViolation(c.metrics, kind, phase)
	c.notify(ctx, notify.RecordFailurePayload{
		RecordID:   id,
		Kind:       kind,
		Phase:      phase,
		Error:      err.Error(),
		ErrorClass: "invariant_violation",
		Severity:   notify.SeverityCritical,
		OccurredAt: c.now(),
		Metadata:   map[string]string{"matched_rows": strconv.FormatInt(n, 10)},
	})
	return err
}

func (c *LifecycleCoordinator) notify(ctx context.Context, payload notify.RecordFailurePayload) {
	if c.notifier == nil {
		return
	}
	c.notifier.NotifyRecordFailure(context.WithoutCancel(ctx), payload)
}

func (c *LifecycleCoordinator) emit(kind string, tr core.LifecycleTransition, state string, d time.Duration, err error) {
	result := metrics.ResultSuccess
	if err != nil && tr != core.TransitionFinished {
		result = metrics.ResultError
	}
	if tr == core.TransitionFinished && state == string(model.StateFailure) {
		result = metrics.ResultError
	}
	metrics.EmitRecordTransition(c.metrics, metrics.RecordMetric{
		Kind:       kind,
		Transition: string(tr),
		Result:     result,
		State:      state,
		Duration:   d,
		Err:        err,
	})
}

func (c *LifecycleCoordinator) publish(ctx context.Context, evt core.LifecycleEvent) {
	if c.publisher == nil {
		return
	}
	evt.At = c.now()
	if err := c.publisher.Publish(ctx, evt); err != nil {
		c.logger.WarnContext(ctx, "publish lifecycle event failed",
			"record_id", evt.RecordID, "transition", evt.Transition, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
