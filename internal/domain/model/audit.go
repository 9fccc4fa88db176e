package model

import "time"

// AuditAction classifies an audit entry.
type AuditAction string

const (
	// AuditActionCreate records that a job record was created.
	AuditActionCreate AuditAction = "create"
	// AuditActionRepeat records that a job record was created as a repeat of another.
	AuditActionRepeat AuditAction = "repeat"
)

// AuditEntry is an append-only record of an action taken on a job record.
type AuditEntry struct {
	ID        int64       `json:"id"                  db:"id"`
	RecordID  string      `json:"record_id"           db:"record_id"`
	Actor     *string     `json:"actor,omitempty"     db:"actor"`
	Action    AuditAction `json:"action"              db:"action"`
	Message   string      `json:"message"             db:"message"`
	SourceID  *string     `json:"source_id,omitempty" db:"source_id"`
	CreatedAt time.Time   `json:"created_at"          db:"created_at"`
}

// RepeatAuditEntry builds the entry callers write after a successful repeat.
func RepeatAuditEntry(created *JobRecord, sourceID string, actor *string) AuditEntry {
	src := sourceID
	return AuditEntry{
		RecordID: created.ID,
		Actor:    actor,
		Action:   AuditActionRepeat,
		Message:  "record created via repeat of " + sourceID,
		SourceID: &src,
	}
}
