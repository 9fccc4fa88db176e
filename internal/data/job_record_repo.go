package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/data/pgxutil"
	"github.com/target/jobtrack/internal/domain/model"
)

// RepoConfig holds configuration options for the job record repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRecordRepo stores job records in PostgreSQL.
type JobRecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var (
	_ core.JobRecordRepository = (*JobRecordRepo)(nil)
	_ core.RetentionRepository = (*JobRecordRepo)(nil)
)

// NewJobRecordRepo creates a JobRecordRepo.
func NewJobRecordRepo(db *sql.DB, cfg RepoConfig) *JobRecordRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRecordRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_record_repo"),
	}
}

const jobRecordColumns = `
  id,
  kind,
  execution_handle,
  parameters,
  submitted_by,
  persisted_state,
  persisted_result,
  persisted_exception,
  log_text,
  warnings_text,
  created_at,
  started_at,
  finished_at
`

// updateIfExistsSQL writes every field of JobRecordUpdate in one statement.
// Timestamps and the handle are set-once; timestamps are clamped so that
// created_at <= started_at <= finished_at. A terminal update only matches rows
// that have no persisted state yet.
const updateIfExistsSQL = `
  UPDATE job_records SET
    execution_handle = CASE
      WHEN $2::text IS NOT NULL AND execution_handle = '-' THEN $2::text
      ELSE execution_handle END,
    started_at = CASE
      WHEN $3::timestamptz IS NULL OR started_at IS NOT NULL THEN started_at
      ELSE GREATEST($3::timestamptz, created_at) END,
    finished_at = CASE
      WHEN $4::timestamptz IS NULL OR finished_at IS NOT NULL THEN finished_at
      ELSE GREATEST($4::timestamptz, COALESCE(started_at, created_at)) END,
    persisted_state = COALESCE($5::text, persisted_state),
    persisted_result = CASE WHEN $5::text IS NULL THEN persisted_result ELSE $6::jsonb END,
    persisted_exception = CASE WHEN $5::text IS NULL THEN persisted_exception ELSE $7::text END
  WHERE id = $1 AND ($5::text IS NULL OR persisted_state = '')`

const (
	appendLogSQL      = `UPDATE job_records SET log_text = log_text || $2 WHERE id = $1`
	appendWarningsSQL = `UPDATE job_records SET warnings_text = warnings_text || $2 WHERE id = $1`
)

// Create inserts a new record with a fresh id and no persisted state.
func (r *JobRecordRepo) Create(ctx context.Context, req *model.CreateJobRecordRequest) (*model.JobRecord, error) {
	if req == nil {
		return nil, errors.New("create job record request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := req.Parameters
	if params == nil {
		params = model.Parameters{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO job_records (id, kind, execution_handle, parameters, submitted_by, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		RETURNING `+jobRecordColumns,
		uuid.NewString(),
		req.Kind,
		model.NoHandle,
		string(paramsJSON),
		nullString(req.SubmittedBy),
		r.timeProvider.Now(),
	)
	rec, err := scanJobRecord(row)
	if err != nil {
		return nil, fmt.Errorf("insert job record: %w", err)
	}
	return rec, nil
}

// GetByID loads a record. Missing rows and malformed ids yield ErrJobRecordNotFound.
func (r *JobRecordRepo) GetByID(ctx context.Context, id string) (*model.JobRecord, error) {
	if !validID(id) {
		return nil, ErrJobRecordNotFound
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobRecordColumns+` FROM job_records WHERE id = $1`, id)
	rec, err := scanJobRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", err)
	}
	return rec, nil
}

// UpdateIfExists applies upd atomically and returns the number of rows it matched.
func (r *JobRecordRepo) UpdateIfExists(ctx context.Context, id string, upd model.JobRecordUpdate) (int64, error) {
	if err := upd.Validate(); err != nil {
		return 0, err
	}
	if !validID(id) {
		return 0, nil
	}

	var state *string
	if upd.PersistedState != nil {
		s := string(*upd.PersistedState)
		state = &s
	}
	var result any
	if upd.PersistedResult != nil {
		result = string(upd.PersistedResult)
	}

	res, err := r.DB.ExecContext(ctx, updateIfExistsSQL,
		id,
		nullString(upd.ExecutionHandle),
		nullTime(upd.StartedAt),
		nullTime(upd.FinishedAt),
		nullString(state),
		result,
		nullString(upd.PersistedException),
	)
	if err != nil {
		return 0, fmt.Errorf("update job record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// AppendText concatenates text onto field server-side so concurrent appends are never lost.
func (r *JobRecordRepo) AppendText(ctx context.Context, id string, field model.TextField, text string) error {
	var query string
	switch field {
	case model.TextFieldLog:
		query = appendLogSQL
	case model.TextFieldWarnings:
		query = appendWarningsSQL
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTextField, field)
	}
	if !validID(id) {
		return ErrJobRecordNotFound
	}

	res, err := r.DB.ExecContext(ctx, query, id, text)
	if err != nil {
		return fmt.Errorf("append %s: %w", field, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobRecordNotFound
	}
	return nil
}

// List returns records newest first, optionally filtered by kind and submitter.
func (r *JobRecordRepo) List(ctx context.Context, opts model.JobRecordListOptions) ([]*model.JobRecord, error) {
	opts.Normalize()

	query := `SELECT ` + jobRecordColumns + ` FROM job_records
		WHERE ($1::text = '' OR kind = $1)
		  AND ($2::text IS NULL OR submitted_by = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`

	var out []*model.JobRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, opts.Kind, opts.SubmittedBy, opts.Limit, opts.Offset)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.JobRecord, error) {
			return scanJobRecord(row)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list job records: %w", err)
	}
	return out, nil
}

// Retention advisory lock keys.
const (
	advisoryLockRetentionMajor  = 2000
	advisoryLockRetentionDelete = 1
)

// DeleteFinishedBefore deletes up to batchSize terminal records finished before cutoff.
// Concurrent reapers skip the batch instead of blocking.
func (r *JobRecordRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var deleted int64
	err := pgxutil.WithSQLTx(ctx, r.DB, nil, func(tx *sql.Tx) error {
		locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockRetentionMajor, advisoryLockRetentionDelete)
		if err != nil || !locked {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			DELETE FROM job_records
			WHERE id IN (
				SELECT id FROM job_records
				WHERE persisted_state <> ''
				  AND finished_at < $1
				ORDER BY finished_at
				LIMIT $2
			)`, cutoff.UTC(), batchSize)
		if err != nil {
			return fmt.Errorf("delete finished job records: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRecord(row rowScanner) (*model.JobRecord, error) {
	var (
		rec         model.JobRecord
		params      []byte
		result      []byte
		submittedBy sql.NullString
		exception   sql.NullString
		state       string
		startedAt   sql.NullTime
		finishedAt  sql.NullTime
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Kind,
		&rec.ExecutionHandle,
		&params,
		&submittedBy,
		&state,
		&result,
		&exception,
		&rec.LogText,
		&rec.WarningsText,
		&rec.CreatedAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	rec.PersistedState = model.State(state)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &rec.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
	}
	if len(result) > 0 {
		rec.PersistedResult = json.RawMessage(result)
	}
	rec.SubmittedBy = fromNullString(submittedBy)
	rec.PersistedException = fromNullString(exception)
	rec.StartedAt = fromNullTime(startedAt)
	rec.FinishedAt = fromNullTime(finishedAt)
	return &rec, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
