package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobRecordNotFound is returned when a job record does not exist.
	ErrJobRecordNotFound = errors.New("job record not found")
	// ErrInvalidTextField is returned when AppendText names a field that is not append-only.
	ErrInvalidTextField = errors.New("invalid text field")
	// ErrAuditRecordRequired is returned when an audit entry has no record id.
	ErrAuditRecordRequired = errors.New("audit entry record_id is required")
)
