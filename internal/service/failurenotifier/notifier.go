package failurenotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/target/jobtrack/internal/observability/notify"
)

// SinkRegistration pairs a sink with the name used when logging its delivery errors.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SkipKinds lists job kinds whose failures are not forwarded.
	SkipKinds []string
}

// Service fans record failures out to every registered sink.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
	skip   map[string]struct{}
}

// NewService constructs a failure notifier. Nil sinks are ignored.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	s := &Service{logger: logger, skip: make(map[string]struct{}, len(opts.SkipKinds))}
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		s.sinks = append(s.sinks, entry)
	}
	for _, kind := range opts.SkipKinds {
		s.skip[kind] = struct{}{}
	}
	return s
}

// NotifyRecordFailure delivers payload to all sinks concurrently and waits for them.
// Sink errors are logged, never returned.
func (s *Service) NotifyRecordFailure(ctx context.Context, payload notify.RecordFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}
	if _, skipped := s.skip[payload.Kind]; skipped {
		s.logger.DebugContext(ctx, "failure notification skipped for kind",
			"record_id", payload.RecordID, "kind", payload.Kind)
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendRecordFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"record_id", payload.RecordID,
					"kind", payload.Kind,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether any sink is registered.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
