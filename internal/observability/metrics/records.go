// Package metrics emits the standard job record lifecycle metrics.
package metrics

import (
	"maps"
	"sync"
	"time"

	obserrors "github.com/target/jobtrack/internal/observability/errors"
	"github.com/target/jobtrack/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// RecordMetric captures one lifecycle transition of a job record.
type RecordMetric struct {
	Kind       string
	Transition string
	Result     string
	// State is the persisted terminal state, set on finished transitions.
	State    string
	Duration time.Duration
	Err      error
}

// EmitRecordTransition emits record.transition and, when a duration is known, record.duration.
func EmitRecordTransition(sink statsd.Sink, in RecordMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":       in.Kind,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.State != "" {
		tags["state"] = in.State
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("record.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("record.duration", in.Duration, maps.Clone(tags))
	}
}

// EmitInvariantViolation counts an identity lookup that matched the wrong number of records.
func EmitInvariantViolation(sink statsd.Sink, kind, phase string) {
	if sink == nil {
		return
	}
	sink.Count("record.invariant_violation", 1, map[string]string{"kind": kind, "phase": phase})
}

// EmitLogFallback counts a task log line that could not be persisted.
func EmitLogFallback(sink statsd.Sink, kind string) {
	if sink == nil {
		return
	}
	sink.Count("record.log_fallback", 1, map[string]string{"kind": kind})
}

// Recorder is an in-memory Sink for tests.
type Recorder struct {
	mu     sync.Mutex
	counts map[string]int64
	tags   map[string][]map[string]string
}

var _ statsd.Sink = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{counts: map[string]int64{}, tags: map[string][]map[string]string{}}
}

func (r *Recorder) add(name string, v int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += v
	r.tags[name] = append(r.tags[name], maps.Clone(tags))
}

// Count records a counter increment.
func (r *Recorder) Count(name string, value int64, tags map[string]string) { r.add(name, value, tags) }

// Gauge records a gauge sample as one observation.
func (r *Recorder) Gauge(name string, _ float64, tags map[string]string) { r.add(name, 1, tags) }

// Timing records a timing sample as one observation.
func (r *Recorder) Timing(name string, _ time.Duration, tags map[string]string) {
	r.add(name, 1, tags)
}

// Total returns the summed value recorded for name.
func (r *Recorder) Total(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

// Tags returns the tag sets recorded for name in emission order.
func (r *Recorder) Tags(name string) []map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]string(nil), r.tags[name]...)
}
