package redisexec

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/jobtrack/internal/core"
	apperrors "github.com/target/jobtrack/internal/errors"
	obserrors "github.com/target/jobtrack/internal/observability/errors"
	"github.com/target/jobtrack/internal/observability/metrics"
	"github.com/target/jobtrack/internal/observability/statsd"
)

// Runner executes one delivery. service.TaskRunner implements it.
type Runner interface {
	Run(ctx context.Context, d core.Delivery) error
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Client  *Client // Required
	Runner  Runner  // Required
	Logger  *slog.Logger
	Metrics statsd.Sink
	// Concurrency is the number of consumer goroutines. Defaults to 1.
	Concurrency int
	// PollInterval bounds each blocking pop and sets how often delayed work is promoted.
	// Defaults to 1s.
	PollInterval time.Duration
}

// Worker consumes the ready queue and runs each delivery through a Runner.
// A delivery is popped once and never requeued.
type Worker struct {
	client       *Client
	runner       Runner
	logger       *slog.Logger
	metrics      statsd.Sink
	concurrency  int
	pollInterval time.Duration
}

// NewWorker creates a Worker.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("runner is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Worker{
		client:       opts.Client,
		runner:       opts.Runner,
		logger:       logger.With("component", "redis_worker"),
		metrics:      opts.Metrics,
		concurrency:  opts.Concurrency,
		pollInterval: opts.PollInterval,
	}, nil
}

// Run starts the promoter and the consumers and blocks until ctx is cancelled or a
// consumer hits a Redis error.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "starting redis worker",
		"workers", w.concurrency,
		"queue", w.client.readyKey,
		"poll_interval", w.pollInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.promoteLoop(gctx) })
	for i := range w.concurrency {
		g.Go(func() error { return w.consumeLoop(gctx, i) })
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) promoteLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		if n, err := w.client.Promote(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.WarnContext(ctx, "promote delayed deliveries failed", "error", err)
		} else if n > 0 {
			w.logger.DebugContext(ctx, "promoted delayed deliveries", "count", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context, id int) error {
	for ctx.Err() == nil {
		d, ok, err := w.client.pop(ctx, w.pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, errDecode) {
				w.logger.ErrorContext(ctx, "dropping undecodable delivery", "worker", id, "error", err)
				continue
			}
			return err
		}
		if !ok {
			continue
		}
		w.process(ctx, id, d)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, id int, d core.Delivery) {
	start := time.Now()
	err := w.runner.Run(ctx, d)

	result := metrics.ResultSuccess
	switch {
	case err == nil:
	case apperrors.IsInvariant(err):
		result = metrics.ResultError
		w.logger.ErrorContext(ctx, "delivery stopped by invariant violation, not retried",
			"worker", id, "handle", d.Handle, "kind", d.Kind, "error", err)
	default:
		result = metrics.ResultError
		w.logger.WarnContext(ctx, "delivery failed",
			"worker", id, "handle", d.Handle, "kind", d.Kind, "error", err)
	}
	w.emit(d.Kind, result, time.Since(start), err)
}

func (w *Worker) emit(kind, result string, elapsed time.Duration, err error) {
	if w.metrics == nil {
		return
	}
	tags := map[string]string{"kind": kind, "result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	w.metrics.Count("executor.delivery", 1, tags)
	if elapsed > 0 {
		w.metrics.Timing("executor.delivery_duration", elapsed, maps.Clone(tags))
	}
}
