package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/target/jobtrack/internal/domain/model"
)

// This file contains port definitions (hexagonal architecture).
// Services depend on these interfaces; data and adapter packages implement them.

// JobRecordRepository is the durable store of job records.
type JobRecordRepository interface {
	Create(ctx context.Context, req *model.CreateJobRecordRequest) (*model.JobRecord, error)
	GetByID(ctx context.Context, id string) (*model.JobRecord, error)
	// UpdateIfExists applies a single-row atomic update and returns the affected row count (0 or 1).
	// Set-once fields keep their first value; terminal updates match only rows with no persisted state.
	UpdateIfExists(ctx context.Context, id string, upd model.JobRecordUpdate) (int64, error)
	// AppendText concatenates text onto a text field server-side.
	AppendText(ctx context.Context, id string, field model.TextField, text string) error
	List(ctx context.Context, opts model.JobRecordListOptions) ([]*model.JobRecord, error)
}

// RetentionRepository deletes terminal records past their retention window.
type RetentionRepository interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// AuditRepository records audit entries written by callers of record operations.
type AuditRepository interface {
	Record(ctx context.Context, entry model.AuditEntry) (*model.AuditEntry, error)
	ListByRecord(ctx context.Context, recordID string) ([]*model.AuditEntry, error)
}

// SubmitRequest is a unit of work handed to the executor.
type SubmitRequest struct {
	Kind       string
	Parameters model.Parameters
	Metadata   map[string]string
	// Delay postpones the earliest start of the work.
	Delay time.Duration
}

// Delivery is a submitted unit of work as a worker receives it.
type Delivery struct {
	Handle     string            `json:"handle"`
	Kind       string            `json:"kind"`
	Parameters model.Parameters  `json:"parameters,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Executor is the external facility that runs submitted work.
type Executor interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// QueryStatus returns the live status for handle. Unknown handles yield ExecutorStateUnknown.
	QueryStatus(ctx context.Context, handle string) (*model.ExecutorStatus, error)
	SetStatus(ctx context.Context, handle string, state model.ExecutorState, info json.RawMessage) error
}

// LifecycleTransition names a lifecycle event.
type LifecycleTransition string

const (
	TransitionSubmitted LifecycleTransition = "submitted"
	TransitionStarted   LifecycleTransition = "started"
	TransitionFinished  LifecycleTransition = "finished"
)

// LifecycleEvent describes a record transition for external subscribers.
type LifecycleEvent struct {
	RecordID   string              `json:"record_id"`
	Kind       string              `json:"kind"`
	Transition LifecycleTransition `json:"transition"`
	State      model.State         `json:"state,omitempty"`
	Handle     string              `json:"handle,omitempty"`
	At         time.Time           `json:"at"`
}

// EventPublisher fans lifecycle events out to subscribers. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, evt LifecycleEvent) error
}
