package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/target/jobtrack/internal/adapters/inlineexec"
	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/data/memstore"
	"github.com/target/jobtrack/internal/domain/jobkind"
	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/domain/task"
	"github.com/target/jobtrack/internal/observability/metrics"
)

const demoKind = "demo"

// demoRuns counts task invocations across tests that need to assert a task never ran.
var demoRuns atomic.Int64

type demoParams struct {
	Mode  string `json:"mode"`
	Count int64  `json:"count"`
}

func demoTask(ctx context.Context, exec *task.Execution) (any, error) {
	demoRuns.Add(1)
	var p demoParams
	if err := exec.Parameters.Decode(&p); err != nil {
		return nil, err
	}
	exec.Logger().InfoContext(ctx, "starting", "mode", p.Mode)
	switch p.Mode {
	case "fail":
		return nil, errors.New("demo failed")
	case "warn":
		exec.Logger().WarnContext(ctx, "careful")
		return map[string]bool{"ok": true}, nil
	case "panic":
		panic("kaboom")
	case "progress":
		for i := int64(1); i <= p.Count; i++ {
			if err := exec.ReportProgress(ctx, i, p.Count); err != nil {
				return nil, err
			}
		}
		return p.Count, nil
	case "unencodable":
		return func() {}, nil
	}
	return map[string]string{"status": "done"}, nil
}

func newTestRegistry(t *testing.T) *jobkind.Registry {
	t.Helper()
	reg := jobkind.NewRegistry()
	reg.MustRegister(
		jobkind.Spec{KindName: demoKind, ParameterFields: []string{"mode", "count"}, Run: demoTask},
		jobkind.Spec{KindName: "other", ParameterFields: []string{"target"}, Run: demoTask},
	)
	return reg
}

func params(t *testing.T, kv map[string]any) model.Parameters {
	t.Helper()
	out := model.Parameters{}
	for k, v := range kv {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		out[k] = raw
	}
	return out
}

// harness wires the services against the in-memory store and the inline executor.
type harness struct {
	store    *memstore.Store
	exec     *inlineexec.Executor
	worker   *inlineexec.Worker
	registry *jobkind.Registry
	coord    *LifecycleCoordinator
	records  *JobRecordService
	repeat   *RepeatService
	progress *ProgressReporter
	metrics  *metrics.Recorder
}

func newHarness(t *testing.T, publisher core.EventPublisher) *harness {
	t.Helper()
	h := &harness{
		store:    memstore.New(nil),
		exec:     inlineexec.New(nil),
		registry: newTestRegistry(t),
		metrics:  metrics.NewRecorder(),
	}
	logger := slog.New(slog.DiscardHandler)

	var err error
	h.coord, err = NewLifecycleCoordinator(LifecycleCoordinatorOptions{
		Store:     h.store,
		Executor:  h.exec,
		Registry:  h.registry,
		Publisher: publisher,
		Metrics:   h.metrics,
		Logger:    logger,
	})
	require.NoError(t, err)

	h.records = MustNewJobRecordService(JobRecordServiceOptions{
		Repo:     h.store,
		Registry: h.registry,
		Executor: h.exec,
		Logger:   logger,
	})
	h.repeat, err = NewRepeatService(RepeatServiceOptions{Records: h.records, Coordinator: h.coord, Logger: logger})
	require.NoError(t, err)

	h.progress = NewProgressReporter(h.exec, logger)
	runner, err := NewTaskRunner(TaskRunnerOptions{
		Executor: h.exec,
		Registry: h.registry,
		Hooks:    h.coord.Hooks(),
		Progress: h.progress,
		Logger:   logger,
	})
	require.NoError(t, err)
	h.worker, err = inlineexec.NewWorker(inlineexec.WorkerOptions{Executor: h.exec, Runner: runner, Logger: logger})
	require.NoError(t, err)
	return h
}

// submit creates a demo record with the given parameters and submits it.
func (h *harness) submit(t *testing.T, p model.Parameters, actor *string) *model.JobRecord {
	t.Helper()
	ctx := context.Background()
	rec, err := h.records.Create(ctx, &model.CreateJobRecordRequest{Kind: demoKind, Parameters: p, SubmittedBy: actor})
	require.NoError(t, err)
	_, err = h.coord.Submit(ctx, rec)
	require.NoError(t, err)
	return rec
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	_, err := h.worker.Drain(context.Background())
	require.NoError(t, err)
}

func (h *harness) reload(t *testing.T, id string) *model.JobRecord {
	t.Helper()
	rec, err := h.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return rec
}
