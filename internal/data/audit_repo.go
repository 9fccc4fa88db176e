package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/model"
)

// AuditRepo stores audit entries in PostgreSQL.
type AuditRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.AuditRepository = (*AuditRepo)(nil)

// NewAuditRepo creates an AuditRepo.
func NewAuditRepo(db *sql.DB, cfg RepoConfig) *AuditRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &AuditRepo{DB: db, timeProvider: tp}
}

// Record appends entry and returns it with its id and timestamp populated.
func (r *AuditRepo) Record(ctx context.Context, entry model.AuditEntry) (*model.AuditEntry, error) {
	if entry.RecordID == "" {
		return nil, ErrAuditRecordRequired
	}
	entry.CreatedAt = r.timeProvider.Now()

	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO audit_entries (record_id, actor, action, message, source_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.RecordID,
		nullString(entry.Actor),
		string(entry.Action),
		entry.Message,
		nullString(entry.SourceID),
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	return &entry, nil
}

// ListByRecord returns the entries for recordID oldest first.
func (r *AuditRepo) ListByRecord(ctx context.Context, recordID string) ([]*model.AuditEntry, error) {
	if !validID(recordID) {
		return nil, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, record_id, actor, action, message, source_id, created_at
		FROM audit_entries
		WHERE record_id = $1
		ORDER BY created_at, id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.AuditEntry
	for rows.Next() {
		var (
			e        model.AuditEntry
			actor    sql.NullString
			sourceID sql.NullString
			action   string
		)
		if err = rows.Scan(&e.ID, &e.RecordID, &actor, &action, &e.Message, &sourceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = model.AuditAction(action)
		e.Actor = fromNullString(actor)
		e.SourceID = fromNullString(sourceID)
		out = append(out, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
