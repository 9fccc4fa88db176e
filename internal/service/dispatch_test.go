package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtrack/internal/adapters/inlineexec"
	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/jobkind"
	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/domain/task"
)

func TestNewTaskRunner_Requirements(t *testing.T) {
	_, err := NewTaskRunner(TaskRunnerOptions{Registry: jobkind.NewRegistry()})
	require.Error(t, err)
	_, err = NewTaskRunner(TaskRunnerOptions{Executor: inlineexec.New(nil)})
	require.Error(t, err)
}

func TestTaskRunner_UnknownKindReportsFailure(t *testing.T) {
	exec := inlineexec.New(nil)
	r, err := NewTaskRunner(TaskRunnerOptions{
		Executor: exec,
		Registry: newTestRegistry(t),
		Logger:   slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	err = r.Run(context.Background(), core.Delivery{Handle: "h-1", Kind: "nope"})
	require.ErrorIs(t, err, jobkind.ErrUnknownKind)

	st, err := exec.QueryStatus(context.Background(), "h-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutorStateFailed, st.State)
	tb, ok := st.Traceback()
	require.True(t, ok)
	assert.Contains(t, tb, "nope")
}

func TestTaskRunner_NoHooksReportsOutcome(t *testing.T) {
	exec := inlineexec.New(nil)
	r, err := NewTaskRunner(TaskRunnerOptions{
		Executor: exec,
		Registry: newTestRegistry(t),
		Hooks:    task.Hooks{},
		Logger:   slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, core.Delivery{Handle: "ok", Kind: demoKind, Parameters: params(t, map[string]any{"mode": "ok"})}))
	st, err := exec.QueryStatus(ctx, "ok")
	require.NoError(t, err)
	res, ok := st.Result()
	require.True(t, ok)
	assert.JSONEq(t, `{"status":"done"}`, string(res))

	// task failures are reported, not returned
	require.NoError(t, r.Run(ctx, core.Delivery{Handle: "bad", Kind: demoKind, Parameters: params(t, map[string]any{"mode": "fail"})}))
	st, err = exec.QueryStatus(ctx, "bad")
	require.NoError(t, err)
	tb, ok := st.Traceback()
	require.True(t, ok)
	assert.Contains(t, tb, "demo failed")
}
