package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobtrack/internal/data"
	"github.com/target/jobtrack/internal/domain/model"
	apperrors "github.com/target/jobtrack/internal/errors"
	"github.com/target/jobtrack/internal/mocks"
	"github.com/target/jobtrack/internal/testutil"
)

func TestJobRecordService_CreateValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	t.Run("unknown kind", func(t *testing.T) {
		_, err := h.records.Create(ctx, &model.CreateJobRecordRequest{Kind: "missing"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "kind", apperrors.GetField(err))
	})

	t.Run("unknown parameter field", func(t *testing.T) {
		_, err := h.records.Create(ctx, &model.CreateJobRecordRequest{
			Kind:       demoKind,
			Parameters: params(t, map[string]any{"mode": "ok", "colour": "red"}),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Contains(t, err.Error(), "colour")
	})

	t.Run("empty kind", func(t *testing.T) {
		_, err := h.records.Create(ctx, &model.CreateJobRecordRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := h.records.Create(ctx, nil)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("valid", func(t *testing.T) {
		rec, err := h.records.Create(ctx, &model.CreateJobRecordRequest{
			Kind:        demoKind,
			Parameters:  params(t, map[string]any{"mode": "ok"}),
			SubmittedBy: testutil.StringPtr("alice"),
		})
		require.NoError(t, err)
		assert.Equal(t, model.NoHandle, rec.ExecutionHandle)
		assert.Equal(t, model.StateUnset, rec.PersistedState)
		assert.Equal(t, "alice", *rec.SubmittedBy)
	})
}

func TestJobRecordService_GetNotFound(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.records.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestJobRecordService_GetMapsStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRecordRepository(ctrl)
	repo.EXPECT().GetByID(gomock.Any(), "x").Return(nil, context.DeadlineExceeded)

	svc := MustNewJobRecordService(JobRecordServiceOptions{Repo: repo, Registry: newTestRegistry(t)})
	_, err := svc.Get(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.False(t, errors.Is(err, data.ErrJobRecordNotFound))
}

func TestJobRecordService_ListFilters(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for _, actor := range []*string{nil, testutil.StringPtr("bob"), testutil.StringPtr("bob")} {
		_, err := h.records.Create(ctx, &model.CreateJobRecordRequest{Kind: demoKind, SubmittedBy: actor})
		require.NoError(t, err)
	}
	_, err := h.records.Create(ctx, &model.CreateJobRecordRequest{Kind: "other"})
	require.NoError(t, err)

	all, err := h.records.List(ctx, model.JobRecordListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	bobs, err := h.records.List(ctx, model.JobRecordListOptions{SubmittedBy: testutil.StringPtr("bob")})
	require.NoError(t, err)
	assert.Len(t, bobs, 2)

	others, err := h.records.List(ctx, model.JobRecordListOptions{Kind: "other"})
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestJobRecordService_ViewUsesLiveStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRecordRepository(ctrl)
	exec := mocks.NewMockExecutor(ctrl)
	started := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)

	rec := &model.JobRecord{ID: "r1", Kind: demoKind, ExecutionHandle: "h1", StartedAt: &started}
	repo.EXPECT().GetByID(gomock.Any(), "r1").Return(rec, nil)
	exec.EXPECT().QueryStatus(gomock.Any(), "h1").Return(&model.ExecutorStatus{
		State: model.ExecutorStateInProgress,
		Info:  json.RawMessage(`{"current":1,"total":4}`),
	}, nil)

	svc := MustNewJobRecordService(JobRecordServiceOptions{
		Repo: repo, Registry: newTestRegistry(t), Executor: exec, Now: func() time.Time { return now },
	})
	view, err := svc.View(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, model.StateProgress, view.EffectiveState)
	assert.Equal(t, "25", view.ProgressPercent)
	assert.Equal(t, model.Placeholder, view.EffectiveResult)
	assert.Equal(t, model.Placeholder, view.EffectiveException)
	assert.Equal(t, "1m30s", view.Duration)
}

func TestJobRecordService_ViewUnsubmittedSkipsExecutor(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl) // no expectations

	svc := MustNewJobRecordService(JobRecordServiceOptions{
		Repo: mocks.NewMockJobRecordRepository(ctrl), Registry: newTestRegistry(t), Executor: exec,
	})
	view := svc.ViewOf(context.Background(), &model.JobRecord{ID: "r", Kind: demoKind, ExecutionHandle: model.NoHandle})
	assert.Equal(t, model.State(model.Placeholder), view.EffectiveState)
	assert.Equal(t, "-", view.ProgressPercent)
	assert.Equal(t, "-", view.Duration)
}
