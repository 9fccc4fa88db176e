package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/jobtrack/internal/data/storetest"
	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/testutil"
)

func TestJobRecordRepo_Contract(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	storetest.RunJobRecordContract(t, func(t *testing.T) storetest.Store {
		db := testutil.SetupEphemeralSchemaDB(t)
		return NewJobRecordRepo(db, RepoConfig{})
	})
}

func TestJobRecordRepo_MalformedIDs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRecordRepo(db, RepoConfig{})
		ctx := context.Background()

		_, err := repo.GetByID(ctx, "not-a-uuid")
		require.ErrorIs(t, err, ErrJobRecordNotFound)

		n, err := repo.UpdateIfExists(ctx, "not-a-uuid", model.JobRecordUpdate{ExecutionHandle: testutil.StringPtr("h")})
		require.NoError(t, err)
		assert.Zero(t, n)

		err = repo.AppendText(ctx, "not-a-uuid", model.TextFieldLog, "x")
		require.ErrorIs(t, err, ErrJobRecordNotFound)
	})
}

func TestJobRecordRepo_CreatedAtUsesTimeProvider(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewJobRecordRepo(db, RepoConfig{TimeProvider: tp})

		rec, err := repo.Create(context.Background(), &model.CreateJobRecordRequest{Kind: "export"})
		require.NoError(t, err)
		assert.True(t, rec.CreatedAt.Equal(testutil.TestTime()))
		assert.Empty(t, rec.Parameters)
	})
}

func TestJobRecordRepo_RejectsInvalidUpdate(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRecordRepo(db, RepoConfig{})
		rec, err := repo.Create(context.Background(), &model.CreateJobRecordRequest{Kind: "export"})
		require.NoError(t, err)

		progress := model.StateProgress
		_, err = repo.UpdateIfExists(context.Background(), rec.ID, model.JobRecordUpdate{PersistedState: &progress})
		require.Error(t, err)
	})
}

func TestAuditRepo_RecordAndList(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		records := NewJobRecordRepo(db, RepoConfig{})
		tp := NewFixedTimeProvider(testutil.TestTime())
		audits := NewAuditRepo(db, RepoConfig{TimeProvider: tp})

		src, err := records.Create(ctx, &model.CreateJobRecordRequest{Kind: "export"})
		require.NoError(t, err)
		dup, err := records.Create(ctx, &model.CreateJobRecordRequest{Kind: "export"})
		require.NoError(t, err)

		first, err := audits.Record(ctx, model.AuditEntry{
			RecordID: dup.ID,
			Action:   model.AuditActionCreate,
			Message:  "created",
		})
		require.NoError(t, err)
		assert.NotZero(t, first.ID)

		tp.Advance(time.Minute)
		_, err = audits.Record(ctx, model.RepeatAuditEntry(dup, src.ID, testutil.StringPtr("alice")))
		require.NoError(t, err)

		entries, err := audits.ListByRecord(ctx, dup.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, model.AuditActionCreate, entries[0].Action)
		assert.Equal(t, model.AuditActionRepeat, entries[1].Action)
		require.NotNil(t, entries[1].SourceID)
		assert.Equal(t, src.ID, *entries[1].SourceID)
		assert.Equal(t, "alice", *entries[1].Actor)

		_, err = audits.Record(ctx, model.AuditEntry{Action: model.AuditActionCreate})
		require.ErrorIs(t, err, ErrAuditRecordRequired)
	})
}
