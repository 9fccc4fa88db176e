// Package storetest holds the behavioural contract every job record store must satisfy.
// Backend packages call RunJobRecordContract from their own tests.
package storetest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/testutil"
)

// Store is what the contract exercises.
type Store interface {
	core.JobRecordRepository
	core.RetentionRepository
}

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) Store

// missingID is a well-formed id that no store ever generates.
const missingID = "00000000-0000-0000-0000-000000000000"

// RunJobRecordContract runs every contract case against stores built by newStore.
func RunJobRecordContract(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("create starts unsubmitted", func(t *testing.T) { testCreate(t, newStore(t)) })
	t.Run("get missing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("set-once fields", func(t *testing.T) { testSetOnce(t, newStore(t)) })
	t.Run("terminal write is single", func(t *testing.T) { testTerminalOnce(t, newStore(t)) })
	t.Run("timestamps stay ordered", func(t *testing.T) { testTimestampOrder(t, newStore(t)) })
	t.Run("update missing matches nothing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("append text", func(t *testing.T) { testAppend(t, newStore(t)) })
	t.Run("concurrent appends are not lost", func(t *testing.T) { testConcurrentAppend(t, newStore(t)) })
	t.Run("list filters", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("delete finished before", func(t *testing.T) { testRetention(t, newStore(t)) })
}

func create(t *testing.T, s Store, kind string, by *string) *model.JobRecord {
	t.Helper()
	req := testutil.NewRecordRequest(kind).WithRawParam("name", `"weekly"`).Build()
	req.SubmittedBy = by
	rec, err := s.Create(context.Background(), req)
	require.NoError(t, err)
	return rec
}

func ptr[T any](v T) *T { return &v }

func testCreate(t *testing.T, s Store) {
	rec := create(t, s, "export", ptr("alice"))

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "export", rec.Kind)
	assert.Equal(t, model.NoHandle, rec.ExecutionHandle)
	assert.Equal(t, model.StateUnset, rec.PersistedState)
	assert.Nil(t, rec.StartedAt)
	assert.Nil(t, rec.FinishedAt)
	assert.Empty(t, rec.LogText)
	assert.Empty(t, rec.WarningsText)
	require.NotNil(t, rec.SubmittedBy)
	assert.Equal(t, "alice", *rec.SubmittedBy)

	got, err := s.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.JSONEq(t, `"weekly"`, string(got.Parameters["name"]))
}

func testGetMissing(t *testing.T, s Store) {
	_, err := s.GetByID(context.Background(), missingID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func testSetOnce(t *testing.T, s Store) {
	ctx := context.Background()
	rec := create(t, s, "export", nil)
	start := time.Now().UTC().Add(time.Second).Truncate(time.Millisecond)

	n, err := s.UpdateIfExists(ctx, rec.ID, model.JobRecordUpdate{
		ExecutionHandle: ptr("handle-1"),
		StartedAt:       ptr(start),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.UpdateIfExists(ctx, rec.ID, model.JobRecordUpdate{
		ExecutionHandle: ptr("handle-2"),
		StartedAt:       ptr(start.Add(time.Hour)),
	})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "handle-1", got.ExecutionHandle)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(start), "started_at changed to %v", got.StartedAt)
}

func testTerminalOnce(t *testing.T, s Store) {
	ctx := context.Background()
	rec := create(t, s, "export", nil)
	now := time.Now().UTC().Add(time.Second)

	n, err := s.UpdateIfExists(ctx, rec.ID, model.JobRecordUpdate{
		FinishedAt:      ptr(now),
		PersistedState:  ptr(model.StateSuccess),
		PersistedResult: json.RawMessage(`{"rows":3}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.UpdateIfExists(ctx, rec.ID, model.JobRecordUpdate{
		PersistedState:     ptr(model.StateFailure),
		PersistedException: ptr("late failure"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateSuccess, got.PersistedState)
	assert.JSONEq(t, `{"rows":3}`, string(got.PersistedResult))
	assert.Nil(t, got.PersistedException)
}

func testTimestampOrder(t *testing.T, s Store) {
	ctx := context.Background()
	rec := create(t, s, "export", nil)
	past := rec.CreatedAt.Add(-time.Hour)

	_, err := s.UpdateIfExists(ctx, rec.ID, model.JobRecordUpdate{StartedAt: ptr(past)})
	require.NoError(t, err)
	_, err = s.UpdateIfExists(ctx, rec.ID, model.JobRecordUpdate{
		FinishedAt:     ptr(past.Add(-time.Hour)),
		PersistedState: ptr(model.StateFailure),
	})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.False(t, got.StartedAt.Before(got.CreatedAt))
	assert.False(t, got.FinishedAt.Before(*got.StartedAt))
}

func testUpdateMissing(t *testing.T, s Store) {
	n, err := s.UpdateIfExists(context.Background(), missingID, model.JobRecordUpdate{
		PersistedState: ptr(model.StateSuccess),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	err = s.AppendText(context.Background(), missingID, model.TextFieldLog, "x")
	require.Error(t, err)
}

func testAppend(t *testing.T, s Store) {
	ctx := context.Background()
	rec := create(t, s, "export", nil)

	require.NoError(t, s.AppendText(ctx, rec.ID, model.TextFieldLog, "\nfirst"))
	require.NoError(t, s.AppendText(ctx, rec.ID, model.TextFieldLog, "\nsecond"))
	require.NoError(t, s.AppendText(ctx, rec.ID, model.TextFieldWarnings, "\nsecond"))
	require.Error(t, s.AppendText(ctx, rec.ID, model.TextField("kind"), "x"))

	got, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "\nfirst\nsecond", got.LogText)
	assert.Equal(t, "\nsecond", got.WarningsText)
}

func testConcurrentAppend(t *testing.T, s Store) {
	ctx := context.Background()
	rec := create(t, s, "export", nil)

	const writers = 8
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendText(ctx, rec.ID, model.TextFieldLog, "\nline"))
		}()
	}
	wg.Wait()

	got, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, strings.Count(got.LogText, "\nline"))
}

func testList(t *testing.T, s Store) {
	ctx := context.Background()
	create(t, s, "export", ptr("alice"))
	create(t, s, "export", ptr("bob"))
	create(t, s, "cleanup", ptr("alice"))

	all, err := s.List(ctx, model.JobRecordListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	exports, err := s.List(ctx, model.JobRecordListOptions{Kind: "export"})
	require.NoError(t, err)
	assert.Len(t, exports, 2)

	alice, err := s.List(ctx, model.JobRecordListOptions{SubmittedBy: ptr("alice")})
	require.NoError(t, err)
	assert.Len(t, alice, 2)
	for _, r := range alice {
		assert.Equal(t, "alice", *r.SubmittedBy)
	}

	page, err := s.List(ctx, model.JobRecordListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func testRetention(t *testing.T, s Store) {
	ctx := context.Background()
	old := create(t, s, "export", nil)
	running := create(t, s, "export", nil)

	_, err := s.UpdateIfExists(ctx, old.ID, model.JobRecordUpdate{
		FinishedAt:     ptr(time.Now().UTC()),
		PersistedState: ptr(model.StateSuccess),
	})
	require.NoError(t, err)
	_, err = s.UpdateIfExists(ctx, running.ID, model.JobRecordUpdate{StartedAt: ptr(time.Now().UTC())})
	require.NoError(t, err)

	n, err := s.DeleteFinishedBefore(ctx, time.Now().UTC().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetByID(ctx, old.ID)
	require.Error(t, err)
	_, err = s.GetByID(ctx, running.ID)
	require.NoError(t, err)
}
