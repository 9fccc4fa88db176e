package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestEffectiveState(t *testing.T) {
	started := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	inProgress := &ExecutorStatus{State: ExecutorStateInProgress}
	failed := &ExecutorStatus{State: ExecutorStateFailed}

	tests := []struct {
		name   string
		record *JobRecord
		live   *ExecutorStatus
		want   State
	}{
		{
			name:   "persisted wins over live",
			record: &JobRecord{PersistedState: StateSuccess, ExecutionHandle: "h"},
			live:   failed,
			want:   StateSuccess,
		},
		{
			name:   "live in progress",
			record: &JobRecord{ExecutionHandle: "h", StartedAt: &started},
			live:   inProgress,
			want:   StateProgress,
		},
		{
			name:   "live failed before terminal write",
			record: &JobRecord{ExecutionHandle: "h"},
			live:   failed,
			want:   StateFailure,
		},
		{
			name:   "started without live status",
			record: &JobRecord{ExecutionHandle: "h", StartedAt: &started},
			live:   &ExecutorStatus{State: ExecutorStateUnknown},
			want:   StateRunning,
		},
		{
			name:   "submitted only",
			record: &JobRecord{ExecutionHandle: "h"},
			want:   StatePending,
		},
		{
			name:   "never submitted",
			record: &JobRecord{ExecutionHandle: NoHandle},
			want:   Placeholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveState(tt.record, tt.live))
		})
	}
}

func TestEffectiveResultAndException(t *testing.T) {
	rec := &JobRecord{}
	assert.Equal(t, Placeholder, EffectiveResult(rec, nil))
	assert.Equal(t, Placeholder, EffectiveException(rec, nil))

	live := &ExecutorStatus{State: ExecutorStateSucceeded, Info: json.RawMessage(`42`)}
	assert.Equal(t, "42", EffectiveResult(rec, live))

	rec.PersistedResult = json.RawMessage(`{"ok":true}`)
	assert.Equal(t, `{"ok":true}`, EffectiveResult(rec, live))

	liveFail := &ExecutorStatus{State: ExecutorStateFailed, Info: json.RawMessage(`"trace"`)}
	assert.Equal(t, "trace", EffectiveException(rec, liveFail))

	rec.PersistedException = ptr("bad input")
	assert.Equal(t, "bad input", EffectiveException(rec, liveFail))
}

func TestParameters_OnlyAndClone(t *testing.T) {
	p := Parameters{
		"x": json.RawMessage(`5`),
		"y": json.RawMessage(`"a"`),
		"z": json.RawMessage(`true`),
	}

	only := p.Only([]string{"x", "y", "missing"})
	assert.Equal(t, Parameters{"x": json.RawMessage(`5`), "y": json.RawMessage(`"a"`)}, only)

	clone := p.Clone()
	clone["x"][0] = '9'
	assert.Equal(t, json.RawMessage(`5`), p["x"])

	var dst struct {
		X int    `json:"x"`
		Y string `json:"y"`
	}
	require.NoError(t, p.Decode(&dst))
	assert.Equal(t, 5, dst.X)
	assert.Equal(t, "a", dst.Y)
}

func TestJobRecordUpdate_Validate(t *testing.T) {
	require.NoError(t, JobRecordUpdate{PersistedState: ptr(StateFailure)}.Validate())
	require.Error(t, JobRecordUpdate{PersistedState: ptr(StateRunning)}.Validate())
	require.Error(t, JobRecordUpdate{ExecutionHandle: ptr(NoHandle)}.Validate())

	assert.True(t, JobRecordUpdate{}.Empty())
	assert.True(t, JobRecordUpdate{PersistedState: ptr(StateSuccessWithWarnings)}.Terminal())
	assert.False(t, JobRecordUpdate{StartedAt: ptr(time.Now())}.Terminal())
}

func TestJobRecord_DurationAndLabel(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := &JobRecord{ID: "abc", Kind: "export", StartedAt: &start}

	assert.Equal(t, "export #abc", rec.Label())
	assert.Equal(t, 90*time.Second, rec.Duration(start.Add(90*time.Second)))

	finish := start.Add(2 * time.Second)
	rec.FinishedAt = &finish
	assert.Equal(t, 2*time.Second, rec.Duration(start.Add(time.Hour)))
	assert.Equal(t, "2s", FormatDuration(rec.Duration(time.Time{})))

	var state State
	require.NoError(t, state.UnmarshalText([]byte("failure")))
	assert.Equal(t, StateFailure, state)
	require.Error(t, state.UnmarshalText([]byte("running")))
}
