package model

import (
	"encoding/json"
	"time"
)

// JobRecordView is a read model combining the persisted record with live executor state.
type JobRecordView struct {
	Record             *JobRecord `json:"record"`
	EffectiveState     State      `json:"effective_state"`
	EffectiveResult    string     `json:"effective_result"`
	EffectiveException string     `json:"effective_exception"`
	ProgressPercent    string     `json:"progress_percent"`
	Duration           string     `json:"duration"`
}

// EffectiveState resolves the state shown for a record: persisted wins, then the live
// executor state, then what the record timestamps imply, then the placeholder.
func EffectiveState(r *JobRecord, live *ExecutorStatus) State {
	if r == nil {
		return Placeholder
	}
	if r.PersistedState != StateUnset {
		return r.PersistedState
	}
	if live != nil {
		switch live.State {
		case ExecutorStateInProgress:
			return StateProgress
		case ExecutorStateSucceeded:
			return StateSuccess
		case ExecutorStateFailed:
			return StateFailure
		case ExecutorStateUnknown:
		}
	}
	if r.StartedAt != nil {
		return StateRunning
	}
	if r.Submitted() {
		return StatePending
	}
	return Placeholder
}

// EffectiveResult returns the persisted result, the live result, or the placeholder.
func EffectiveResult(r *JobRecord, live *ExecutorStatus) string {
	if r != nil && len(r.PersistedResult) > 0 && string(r.PersistedResult) != "null" {
		return string(r.PersistedResult)
	}
	if res, ok := live.Result(); ok {
		return string(res)
	}
	return Placeholder
}

// EffectiveException returns the persisted exception, the live traceback, or the placeholder.
func EffectiveException(r *JobRecord, live *ExecutorStatus) string {
	if r != nil && r.PersistedException != nil && *r.PersistedException != "" {
		return *r.PersistedException
	}
	if tb, ok := live.Traceback(); ok {
		return tb
	}
	return Placeholder
}

// NewJobRecordView builds the read model for r given the live executor status (may be nil).
func NewJobRecordView(r *JobRecord, live *ExecutorStatus, now time.Time) *JobRecordView {
	view := &JobRecordView{
		Record:             r,
		EffectiveState:     EffectiveState(r, live),
		EffectiveResult:    EffectiveResult(r, live),
		EffectiveException: EffectiveException(r, live),
		ProgressPercent:    ProgressFromStatus(live).String(),
		Duration:           Placeholder,
	}
	if r != nil {
		view.Duration = FormatDuration(r.Duration(now))
	}
	return view
}

// MarshalResult encodes a task result for storage; nil results are stored as SQL NULL.
func MarshalResult(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// FormatDuration formats a run duration for display; zero renders as the placeholder.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return Placeholder
	case d < time.Millisecond:
		return d.String()
	case d < time.Minute:
		return d.Truncate(time.Millisecond).String()
	default:
		return d.Truncate(time.Second).String()
	}
}
