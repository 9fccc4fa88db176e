package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// ExecutorState is the live state reported by the executor's status channel.
type ExecutorState string

const (
	// ExecutorStateUnknown means the executor has no status for the handle (never run, or expired).
	ExecutorStateUnknown ExecutorState = "unknown"
	// ExecutorStateInProgress means the task is running and may carry progress info.
	ExecutorStateInProgress ExecutorState = "in-progress"
	// ExecutorStateSucceeded means the task returned; info carries the result value.
	ExecutorStateSucceeded ExecutorState = "succeeded"
	// ExecutorStateFailed means the task failed; info carries the traceback string.
	ExecutorStateFailed ExecutorState = "failed"
)

// Valid returns true if the ExecutorState is one of the known states.
func (s ExecutorState) Valid() bool {
	switch s {
	case ExecutorStateUnknown, ExecutorStateInProgress, ExecutorStateSucceeded, ExecutorStateFailed:
		return true
	default:
		return false
	}
}

// ExecutorStatus is a transient status entry queried from the executor.
type ExecutorStatus struct {
	State     ExecutorState   `json:"state"`
	Info      json.RawMessage `json:"info,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProgressInfo is the info payload written while a task is in progress.
type ProgressInfo struct {
	Current int64 `json:"current"`
	Total   int64 `json:"total"`
}

// ProgressInfo decodes the status info as progress metadata.
// ok is false when the status is nil, carries no info, or the info has another shape.
func (s *ExecutorStatus) ProgressInfo() (ProgressInfo, bool) {
	if s == nil || len(s.Info) == 0 {
		return ProgressInfo{}, false
	}
	var raw struct {
		Current *int64 `json:"current"`
		Total   *int64 `json:"total"`
	}
	if err := json.Unmarshal(s.Info, &raw); err != nil {
		return ProgressInfo{}, false
	}
	if raw.Current == nil && raw.Total == nil {
		return ProgressInfo{}, false
	}
	info := ProgressInfo{Current: 1, Total: 1}
	if raw.Current != nil {
		info.Current = *raw.Current
	}
	if raw.Total != nil {
		info.Total = *raw.Total
	}
	return info, true
}

// Traceback decodes the info of a failed status as a human-readable trace.
func (s *ExecutorStatus) Traceback() (string, bool) {
	if s == nil || s.State != ExecutorStateFailed || len(s.Info) == 0 {
		return "", false
	}
	var tb string
	if err := json.Unmarshal(s.Info, &tb); err != nil {
		return string(s.Info), true
	}
	return tb, tb != ""
}

// Result returns the result value of a succeeded status.
func (s *ExecutorStatus) Result() (json.RawMessage, bool) {
	if s == nil || s.State != ExecutorStateSucceeded || len(s.Info) == 0 || string(s.Info) == "null" {
		return nil, false
	}
	return s.Info, true
}

// Progress is a 0-100 completion percentage, or unknown.
type Progress struct {
	Percent int
	Known   bool
}

// UnknownProgress is rendered as "-".
var UnknownProgress = Progress{}

// String renders the percentage, or "-" when unknown.
func (p Progress) String() string {
	if !p.Known {
		return Placeholder
	}
	return strconv.Itoa(p.Percent)
}

// ProgressFromStatus derives the completion percentage from a live status.
// Missing status or a state other than in-progress/succeeded yields UnknownProgress.
// A total of zero (or less) is treated as one.
func ProgressFromStatus(status *ExecutorStatus) Progress {
	if status == nil {
		return UnknownProgress
	}
	switch status.State {
	case ExecutorStateSucceeded:
		return Progress{Percent: 100, Known: true}
	case ExecutorStateInProgress:
		info, ok := status.ProgressInfo()
		if !ok {
			return UnknownProgress
		}
		total := info.Total
		if total <= 0 {
			total = 1
		}
		pct := math.Round(100 * float64(info.Current) / float64(total))
		return Progress{Percent: int(pct), Known: true}
	default:
		return UnknownProgress
	}
}
