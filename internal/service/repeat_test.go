package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtrack/internal/domain/model"
	apperrors "github.com/target/jobtrack/internal/errors"
	"github.com/target/jobtrack/internal/testutil"
)

func TestRepeatService_CopiesOnlyParameters(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	source := h.submit(t, params(t, map[string]any{"mode": "warn", "count": 7}), testutil.StringPtr("alice"))
	h.drain(t)
	finished := h.reload(t, source.ID)
	require.Equal(t, model.StateSuccessWithWarnings, finished.PersistedState)

	repeated, err := h.repeat.Repeat(ctx, finished, testutil.StringPtr("bob"))
	require.NoError(t, err)

	assert.NotEqual(t, finished.ID, repeated.ID)
	assert.Equal(t, demoKind, repeated.Kind)
	assert.Equal(t, "bob", *repeated.SubmittedBy)
	assert.NotEqual(t, model.NoHandle, repeated.ExecutionHandle)
	assert.NotEqual(t, finished.ExecutionHandle, repeated.ExecutionHandle)

	stored := h.reload(t, repeated.ID)
	assert.Equal(t, model.StateUnset, stored.PersistedState)
	assert.Empty(t, stored.LogText)
	assert.Empty(t, stored.WarningsText)
	assert.Nil(t, stored.StartedAt)
	assert.Nil(t, stored.PersistedResult)
	assert.JSONEq(t, string(finished.Parameters["mode"]), string(stored.Parameters["mode"]))
	assert.JSONEq(t, string(finished.Parameters["count"]), string(stored.Parameters["count"]))

	h.drain(t)
	assert.Equal(t, model.StateSuccessWithWarnings, h.reload(t, repeated.ID).PersistedState)
}

func TestRepeatService_DropsUndeclaredFields(t *testing.T) {
	h := newHarness(t, nil)
	source := &model.JobRecord{
		ID:   "legacy",
		Kind: demoKind,
		Parameters: model.Parameters{
			"mode":    json.RawMessage(`"ok"`),
			"retired": json.RawMessage(`true`),
		},
	}

	repeated, err := h.repeat.Repeat(context.Background(), source, nil)
	require.NoError(t, err)
	assert.Nil(t, repeated.SubmittedBy)
	assert.Equal(t, model.Parameters{"mode": json.RawMessage(`"ok"`)}, h.reload(t, repeated.ID).Parameters)
}

func TestRepeatService_WritesNoAudit(t *testing.T) {
	h := newHarness(t, nil)
	source := h.submit(t, params(t, map[string]any{"mode": "ok"}), nil)

	repeated, err := h.repeat.RepeatByID(context.Background(), source.ID, nil)
	require.NoError(t, err)

	entries, err := h.store.ListByRecord(context.Background(), repeated.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepeatService_Errors(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.repeat.Repeat(ctx, nil, nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.repeat.Repeat(ctx, &model.JobRecord{ID: "x", Kind: "retired-kind", CreatedAt: time.Now()}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.repeat.RepeatByID(ctx, "00000000-0000-0000-0000-000000000000", nil)
	assert.True(t, apperrors.IsNotFound(err))
}
