package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/model"
	obserrors "github.com/target/jobtrack/internal/observability/errors"
	"github.com/target/jobtrack/internal/observability/metrics"
	"github.com/target/jobtrack/internal/observability/statsd"
)

// Repeater creates and submits a copy of an existing record. service.RepeatService implements it.
type Repeater interface {
	RepeatByID(ctx context.Context, sourceID string, actor *string) (*model.JobRecord, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Repeater  Repeater             // Required
	Audit     core.AuditRepository // Optional: repeats are not audited when nil
	Schedules []Schedule
	// RateLimit caps repeat submissions per second across all schedules. Defaults to 1.
	RateLimit float64
	Burst     int
	Location  *time.Location
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// Runner fires repeats on cron schedules. Repeats are system submissions with no actor.
type Runner struct {
	cron      *cron.Cron
	repeater  Repeater
	audit     core.AuditRepository
	limiter   *rate.Limiter
	schedules []Schedule
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewRunner validates the schedules and registers them with a cron instance.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Repeater == nil {
		return nil, errors.New("repeater is required")
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		cron:      cron.New(cron.WithParser(cronParser), cron.WithLocation(opts.Location)),
		repeater:  opts.Repeater,
		audit:     opts.Audit,
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		schedules: opts.Schedules,
		logger:    logger.With("component", "scheduler"),
		metrics:   opts.Metrics,
	}
	return r, nil
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for in-flight
// repeats to finish.
func (r *Runner) Run(ctx context.Context) error {
	for _, s := range r.schedules {
		if _, err := r.cron.AddFunc(s.Cron, func() {
			if _, err := r.Fire(ctx, s); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "scheduled repeat failed",
					"schedule", s.Name, "source_id", s.SourceID, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("register schedule %q: %w", s.Name, err)
		}
	}

	r.logger.InfoContext(ctx, "starting scheduler", "schedules", len(r.schedules), "rate_limit", r.limiter.Limit())
	r.cron.Start()

	<-ctx.Done()
	r.logger.InfoContext(ctx, "scheduler stopping", "reason", ctx.Err())
	<-r.cron.Stop().Done()
	return nil
}

// Fire repeats the schedule's source record once, waiting for the rate limiter first.
// Every record the repeat created is audited, including one whose submission failed;
// audit failures are logged, not returned.
func (r *Runner) Fire(ctx context.Context, s Schedule) (*model.JobRecord, error) {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	created, err := r.repeater.RepeatByID(ctx, s.SourceID, nil)
	r.emit(s, time.Since(start), err)
	if err != nil {
		if created != nil {
			// The record exists but never reached the executor; it stays unsubmitted.
			r.logger.WarnContext(ctx, "scheduled repeat created an unsubmitted record",
				"schedule", s.Name, "source_id", s.SourceID, "record_id", created.ID, "error", err)
			r.auditRepeat(ctx, created, s.SourceID)
		}
		return created, fmt.Errorf("repeat %s: %w", s.SourceID, err)
	}

	r.logger.InfoContext(ctx, "scheduled repeat submitted",
		"schedule", s.Name, "source_id", s.SourceID, "record_id", created.ID)
	r.auditRepeat(ctx, created, s.SourceID)
	return created, nil
}

func (r *Runner) auditRepeat(ctx context.Context, created *model.JobRecord, sourceID string) {
	if r.audit == nil {
		return
	}
	if _, err := r.audit.Record(ctx, model.RepeatAuditEntry(created, sourceID, nil)); err != nil {
		r.logger.WarnContext(ctx, "audit repeat failed", "record_id", created.ID, "error", err)
	}
}

func (r *Runner) emit(s Schedule, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	tags := map[string]string{
		"schedule": s.Name,
		"result":   result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("scheduler.repeat", 1, tags)
	if elapsed > 0 {
		r.metrics.Timing("scheduler.repeat_duration", elapsed, maps.Clone(tags))
	}
	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}
