package redisexec

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/model"
	apperrors "github.com/target/jobtrack/internal/errors"
	"github.com/target/jobtrack/internal/observability/metrics"
	"github.com/target/jobtrack/internal/testutil"
)

type recordingRunner struct {
	mu   sync.Mutex
	got  []core.Delivery
	err  error
	done chan struct{}
}

func newRecordingRunner(err error) *recordingRunner {
	return &recordingRunner{err: err, done: make(chan struct{}, 16)}
}

func (r *recordingRunner) Run(_ context.Context, d core.Delivery) error {
	r.mu.Lock()
	r.got = append(r.got, d)
	r.mu.Unlock()
	r.done <- struct{}{}
	return r.err
}

func (r *recordingRunner) deliveries() []core.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Delivery(nil), r.got...)
}

func waitRuns(t *testing.T, r *recordingRunner, n int) {
	t.Helper()
	for range n {
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d deliveries", n)
		}
	}
}

func TestNewClient_RequiresRedis(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	require.Error(t, err)
	assert.Panics(t, func() { MustNewClient(ClientOptions{}) })
}

func TestNewWorker_Requirements(t *testing.T) {
	_, err := NewWorker(WorkerOptions{Runner: newRecordingRunner(nil)})
	require.Error(t, err)

	c := &Client{}
	_, err = NewWorker(WorkerOptions{Client: c})
	require.Error(t, err)

	w, err := NewWorker(WorkerOptions{Client: c, Runner: newRecordingRunner(nil)})
	require.NoError(t, err)
	assert.Equal(t, 1, w.concurrency)
	assert.Equal(t, time.Second, w.pollInterval)
}

func TestClient_SubmitAndStatus(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	ctx := context.Background()
	c := MustNewClient(ClientOptions{Redis: rdb, Queue: "t_submit", StatusTTL: time.Minute})

	handle, err := c.Submit(ctx, core.SubmitRequest{
		Kind:       "demo",
		Parameters: model.Parameters{"mode": json.RawMessage(`"ok"`)},
		Metadata:   map[string]string{"k": "v"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	ready, delayed, err := c.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ready)
	assert.Equal(t, int64(0), delayed)

	st, err := c.QueryStatus(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutorStateUnknown, st.State)

	require.NoError(t, c.SetStatus(ctx, handle, model.ExecutorStateInProgress, json.RawMessage(`{"current":1,"total":4}`)))
	st, err = c.QueryStatus(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutorStateInProgress, st.State)
	assert.JSONEq(t, `{"current":1,"total":4}`, string(st.Info))

	ttl, err := rdb.TTL(ctx, statusKey(handle)).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
	assert.LessOrEqual(t, ttl, time.Minute)

	require.Error(t, c.SetStatus(ctx, handle, model.ExecutorState("bogus"), nil))
	_, err = c.Submit(ctx, core.SubmitRequest{})
	require.Error(t, err)
}

func TestClient_DelayedPromotion(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	ctx := context.Background()

	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c := MustNewClient(ClientOptions{Redis: rdb, Queue: "t_delay", Now: clock})

	_, err := c.Submit(ctx, core.SubmitRequest{Kind: "demo", Delay: time.Second})
	require.NoError(t, err)

	n, err := c.Promote(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	n, err = c.Promote(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ready, delayed, err := c.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ready)
	assert.Zero(t, delayed)
}

func TestWorker_RunsDeliveriesInOrder(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := MustNewClient(ClientOptions{Redis: rdb, Queue: "t_worker"})
	runner := newRecordingRunner(nil)
	rec := metrics.NewRecorder()
	w, err := NewWorker(WorkerOptions{Client: c, Runner: runner, Metrics: rec, PollInterval: 100 * time.Millisecond})
	require.NoError(t, err)

	h1, err := c.Submit(ctx, core.SubmitRequest{Kind: "demo", Metadata: map[string]string{"n": "1"}})
	require.NoError(t, err)
	h2, err := c.Submit(ctx, core.SubmitRequest{Kind: "demo", Metadata: map[string]string{"n": "2"}})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	waitRuns(t, runner, 2)
	cancel()
	require.NoError(t, <-errCh)

	got := runner.deliveries()
	require.Len(t, got, 2)
	assert.Equal(t, h1, got[0].Handle)
	assert.Equal(t, h2, got[1].Handle)
	assert.Equal(t, "2", got[1].Metadata["n"])
	assert.Equal(t, int64(2), rec.Total("executor.delivery"))
}

func TestWorker_DoesNotRequeueFailures(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := MustNewClient(ClientOptions{Redis: rdb, Queue: "t_fail"})
	runner := newRecordingRunner(apperrors.Invariantf("record matched %d rows", 0))
	rec := metrics.NewRecorder()
	w, err := NewWorker(WorkerOptions{Client: c, Runner: runner, Metrics: rec, PollInterval: 100 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Submit(ctx, core.SubmitRequest{Kind: "demo"})
	require.NoError(t, err)

	go func() { _ = w.Run(ctx) }()
	waitRuns(t, runner, 1)

	// no retry
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, runner.deliveries(), 1)

	tags := rec.Tags("executor.delivery")
	require.NotEmpty(t, tags)
	assert.Equal(t, metrics.ResultError, tags[0]["result"])
}

func TestWorker_SkipsUndecodablePayload(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := MustNewClient(ClientOptions{Redis: rdb, Queue: "t_garbage"})
	require.NoError(t, rdb.LPush(ctx, c.readyKey, "not json").Err())
	handle, err := c.Submit(ctx, core.SubmitRequest{Kind: "demo"})
	require.NoError(t, err)

	runner := newRecordingRunner(nil)
	w, err := NewWorker(WorkerOptions{Client: c, Runner: runner, PollInterval: 100 * time.Millisecond})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	waitRuns(t, runner, 1)
	cancel()

	err = <-errCh
	require.False(t, errors.Is(err, errDecode))
	assert.Equal(t, handle, runner.deliveries()[0].Handle)
}
