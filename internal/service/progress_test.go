package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobtrack/internal/data/memstore"
	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/domain/task"
	"github.com/target/jobtrack/internal/mocks"
)

func TestProgressReporter_Report(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().
		SetStatus(gomock.Any(), "h-1", model.ExecutorStateInProgress, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ model.ExecutorState, info json.RawMessage) error {
			assert.JSONEq(t, `{"current":2,"total":5}`, string(info))
			return nil
		})

	store := memstore.New(nil)
	rec, err := store.Create(context.Background(), &model.CreateJobRecordRequest{Kind: demoKind})
	require.NoError(t, err)

	reporter := NewProgressReporter(exec, slog.New(slog.DiscardHandler))
	e := task.NewExecution(task.ExecutionOptions{Handle: "h-1", Kind: demoKind, Progress: reporter})
	e.InstallLogger(NewLogSinkLogger(store, rec, nil))

	require.NoError(t, e.ReportProgress(context.Background(), 2, 5))

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Contains(t, got.LogText, "[INFO] update progress: 2 out of 5")
	// Only the log line reaches the store; state and timestamps are untouched.
	assert.Equal(t, model.StateUnset, got.PersistedState)
	assert.Nil(t, got.StartedAt)
}

func TestProgressReporter_ReportSetStatusError(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().SetStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	reporter := NewProgressReporter(exec, nil)
	e := task.NewExecution(task.ExecutionOptions{Handle: "h-1", Fallback: slog.New(slog.DiscardHandler)})
	err := reporter.Report(context.Background(), e, 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set progress status")
}

func TestProgressReporter_ReadProgress(t *testing.T) {
	tests := []struct {
		name   string
		status *model.ExecutorStatus
		err    error
		want   string
	}{
		{name: "unknown", status: &model.ExecutorStatus{State: model.ExecutorStateUnknown}, want: "-"},
		{name: "failed", status: &model.ExecutorStatus{State: model.ExecutorStateFailed}, want: "-"},
		{name: "succeeded", status: &model.ExecutorStatus{State: model.ExecutorStateSucceeded}, want: "100"},
		{
			name:   "in progress",
			status: &model.ExecutorStatus{State: model.ExecutorStateInProgress, Info: json.RawMessage(`{"current":1,"total":3}`)},
			want:   "33",
		},
		{
			name:   "zero total",
			status: &model.ExecutorStatus{State: model.ExecutorStateInProgress, Info: json.RawMessage(`{"current":1,"total":0}`)},
			want:   "100",
		},
		{name: "in progress without info", status: &model.ExecutorStatus{State: model.ExecutorStateInProgress}, want: "-"},
		{name: "query error", err: errors.New("timeout"), want: "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			exec := mocks.NewMockExecutor(ctrl)
			exec.EXPECT().QueryStatus(gomock.Any(), "h").Return(tt.status, tt.err)

			reporter := NewProgressReporter(exec, slog.New(slog.DiscardHandler))
			assert.Equal(t, tt.want, reporter.ReadProgress(context.Background(), "h").String())
		})
	}
}

func TestProgressReporter_ReadProgressWithoutHandle(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := NewProgressReporter(mocks.NewMockExecutor(ctrl), nil)
	assert.Equal(t, model.UnknownProgress, reporter.ReadProgress(context.Background(), model.NoHandle))
}
