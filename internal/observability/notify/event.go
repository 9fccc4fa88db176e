package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// RecordFailurePayload is what sinks receive when a tracked job fails or a lifecycle
// write breaks the one-row rule.
type RecordFailurePayload struct {
	RecordID   string
	Kind       string
	Label      string
	Handle     string
	Phase      string
	Actor      string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink is a destination for record failure notifications.
type Sink interface {
	SendRecordFailure(ctx context.Context, payload RecordFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload RecordFailurePayload) error

// SendRecordFailure implements Sink.
func (f SinkFunc) SendRecordFailure(ctx context.Context, payload RecordFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
