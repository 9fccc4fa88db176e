// Package model defines the core data types shared by the jobtrack store, services, and adapters.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the persisted (terminal) state of a job record.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type State string

const (
	// StateUnset means no terminal write has happened yet.
	StateUnset State = ""
	// StateSuccess indicates the task returned without error and logged no warnings.
	StateSuccess State = "SUCCESS"
	// StateFailure indicates the task returned an error or panicked.
	StateFailure State = "FAILURE"
	// StateSuccessWithWarnings indicates the task succeeded but logged at least one warning.
	StateSuccessWithWarnings State = "SUCCESS_WITH_WARNINGS"
)

// Derived (non-persisted) states reported by effective state resolution.
const (
	StateProgress State = "PROGRESS"
	StateRunning  State = "RUNNING"
	StatePending  State = "PENDING"
)

// NoHandle is the execution handle sentinel stored before submission.
const NoHandle = "-"

// Placeholder is rendered for effective values that are neither persisted nor known to the executor.
const Placeholder = "-"

// Valid reports whether s is a persistable state (unset or terminal).
func (s State) Valid() bool {
	return s == StateUnset || s.Terminal()
}

// Terminal reports whether s is one of the terminal states.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateSuccessWithWarnings
}

// UnmarshalText implements encoding.TextUnmarshaler so states can be parsed from flags and env.
func (s *State) UnmarshalText(text []byte) error {
	v := State(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid state: %q", v)
	}
	*s = v
	return nil
}

// Parameters holds the kind-specific parameter fields of a record.
// Values are kept as raw JSON so a repeat reproduces them byte for byte.
type Parameters map[string]json.RawMessage

// Clone returns a deep copy of p.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Only returns a copy of p restricted to the given field names.
// Fields missing from p are left out.
func (p Parameters) Only(fields []string) Parameters {
	out := make(Parameters, len(fields))
	for _, f := range fields {
		if v, ok := p[f]; ok {
			out[f] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Decode unmarshals the parameter set into dst (a struct with json tags).
func (p Parameters) Decode(dst any) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return nil
}

// JobRecord is the durable row tracking one submitted unit of asynchronous work.
type JobRecord struct {
	ID                 string          `json:"id"                            db:"id"`
	Kind               string          `json:"kind"                          db:"kind"`
	ExecutionHandle    string          `json:"execution_handle"              db:"execution_handle"`
	Parameters         Parameters      `json:"parameters"                    db:"parameters"`
	SubmittedBy        *string         `json:"submitted_by,omitempty"        db:"submitted_by"`
	PersistedState     State           `json:"persisted_state"               db:"persisted_state"`
	PersistedResult    json.RawMessage `json:"persisted_result,omitempty"    db:"persisted_result"`
	PersistedException *string         `json:"persisted_exception,omitempty" db:"persisted_exception"`
	LogText            string          `json:"log_text"                      db:"log_text"`
	WarningsText       string          `json:"warnings_text"                 db:"warnings_text"`
	CreatedAt          time.Time       `json:"created_at"                    db:"created_at"`
	StartedAt          *time.Time      `json:"started_at,omitempty"          db:"started_at"`
	FinishedAt         *time.Time      `json:"finished_at,omitempty"         db:"finished_at"`
}

// Label renders the record as "Kind #id".
func (r *JobRecord) Label() string {
	if r == nil {
		return ""
	}
	return Label(r.Kind, r.ID)
}

// Label renders a record reference as "Kind #id".
func Label(kind, id string) string {
	return kind + " #" + id
}

// Submitted reports whether the record has been handed to the executor.
func (r *JobRecord) Submitted() bool {
	return r.ExecutionHandle != "" && r.ExecutionHandle != NoHandle
}

// Duration returns the elapsed run time: finishedAt - startedAt, or now - startedAt while running.
// It returns zero when the record never started.
func (r *JobRecord) Duration(now time.Time) time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := now
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	if end.Before(*r.StartedAt) {
		return 0
	}
	return end.Sub(*r.StartedAt)
}

// CreateJobRecordRequest represents a request to create a new job record.
type CreateJobRecordRequest struct {
	Kind        string     `json:"kind"`
	Parameters  Parameters `json:"parameters"`
	SubmittedBy *string    `json:"submitted_by,omitempty"`
}

// Validate validates the request shape; kind-specific checks happen in the registry.
func (r *CreateJobRecordRequest) Validate() error {
	if strings.TrimSpace(r.Kind) == "" {
		return errors.New("kind is required")
	}
	for name := range r.Parameters {
		if strings.TrimSpace(name) == "" {
			return errors.New("parameter names must not be empty")
		}
	}
	return nil
}

// JobRecordUpdate is the set of fields written by a single atomic UpdateIfExists call.
// Nil fields are left untouched.
type JobRecordUpdate struct {
	ExecutionHandle    *string
	StartedAt          *time.Time
	FinishedAt         *time.Time
	PersistedState     *State
	PersistedResult    json.RawMessage
	PersistedException *string
}

// Terminal reports whether the update carries a terminal state.
func (u JobRecordUpdate) Terminal() bool {
	return u.PersistedState != nil && u.PersistedState.Terminal()
}

// Empty reports whether the update writes no fields.
func (u JobRecordUpdate) Empty() bool {
	return u.ExecutionHandle == nil && u.StartedAt == nil && u.FinishedAt == nil &&
		u.PersistedState == nil && u.PersistedResult == nil && u.PersistedException == nil
}

// Validate rejects updates that would store a non-terminal persisted state or an outcome
// without a terminal state.
func (u JobRecordUpdate) Validate() error {
	if u.PersistedState != nil && !u.PersistedState.Terminal() {
		return fmt.Errorf("persisted state %q is not terminal", *u.PersistedState)
	}
	if !u.Terminal() && (u.PersistedResult != nil || u.PersistedException != nil) {
		return errors.New("result and exception are only written with a terminal state")
	}
	if u.ExecutionHandle != nil && (*u.ExecutionHandle == "" || *u.ExecutionHandle == NoHandle) {
		return errors.New("execution handle must not be empty")
	}
	return nil
}

// TextField names an append-only text column of a job record.
type TextField string

const (
	// TextFieldLog is the full log blob.
	TextFieldLog TextField = "log_text"
	// TextFieldWarnings is the warning-and-above subset of the log.
	TextFieldWarnings TextField = "warnings_text"
)

// Valid reports whether f names an appendable field.
func (f TextField) Valid() bool {
	return f == TextFieldLog || f == TextFieldWarnings
}

// JobRecordListOptions filters and paginates record listings.
type JobRecordListOptions struct {
	Kind        string
	SubmittedBy *string
	Limit       int
	Offset      int
}

// Normalize applies default pagination bounds.
func (o *JobRecordListOptions) Normalize() {
	if o.Limit <= 0 || o.Limit > 500 {
		o.Limit = 50
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
