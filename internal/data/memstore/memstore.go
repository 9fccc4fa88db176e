// Package memstore is an in-process job record store for tests and single-process development.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/data"
	"github.com/target/jobtrack/internal/domain/model"
)

// Store keeps records and audit entries in memory. The zero value is not usable; call New.
type Store struct {
	mu      sync.Mutex
	records map[string]*model.JobRecord
	audit   []*model.AuditEntry
	nextID  int64
	now     data.TimeProvider
}

var (
	_ core.JobRecordRepository = (*Store)(nil)
	_ core.RetentionRepository = (*Store)(nil)
	_ core.AuditRepository     = (*Store)(nil)
)

// New creates an empty Store. A nil TimeProvider uses the system clock.
func New(tp data.TimeProvider) *Store {
	if tp == nil {
		tp = data.RealTimeProvider{}
	}
	return &Store{records: make(map[string]*model.JobRecord), now: tp}
}

// Create stores a new record.
func (s *Store) Create(_ context.Context, req *model.CreateJobRecordRequest) (*model.JobRecord, error) {
	if req == nil {
		return nil, errors.New("create job record request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	params := req.Parameters.Clone()
	if params == nil {
		params = model.Parameters{}
	}
	rec := &model.JobRecord{
		ID:              uuid.NewString(),
		Kind:            req.Kind,
		ExecutionHandle: model.NoHandle,
		Parameters:      params,
		SubmittedBy:     clonePtr(req.SubmittedBy),
		CreatedAt:       s.now.Now(),
	}

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return cloneRecord(rec), nil
}

// GetByID returns a copy of the record.
func (s *Store) GetByID(_ context.Context, id string) (*model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, data.ErrJobRecordNotFound
	}
	return cloneRecord(rec), nil
}

// UpdateIfExists applies upd under the store lock with the same rules as the SQL store.
func (s *Store) UpdateIfExists(_ context.Context, id string, upd model.JobRecordUpdate) (int64, error) {
	if err := upd.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return 0, nil
	}
	if upd.Terminal() && rec.PersistedState != model.StateUnset {
		return 0, nil
	}

	if upd.ExecutionHandle != nil && rec.ExecutionHandle == model.NoHandle {
		rec.ExecutionHandle = *upd.ExecutionHandle
	}
	if upd.StartedAt != nil && rec.StartedAt == nil {
		rec.StartedAt = ptr(latest(upd.StartedAt.UTC(), rec.CreatedAt))
	}
	if upd.FinishedAt != nil && rec.FinishedAt == nil {
		floor := rec.CreatedAt
		if rec.StartedAt != nil {
			floor = *rec.StartedAt
		}
		rec.FinishedAt = ptr(latest(upd.FinishedAt.UTC(), floor))
	}
	if upd.Terminal() {
		rec.PersistedState = *upd.PersistedState
		rec.PersistedResult = append(json.RawMessage(nil), upd.PersistedResult...)
		if upd.PersistedResult == nil {
			rec.PersistedResult = nil
		}
		rec.PersistedException = clonePtr(upd.PersistedException)
	}
	return 1, nil
}

// AppendText concatenates text onto field.
func (s *Store) AppendText(_ context.Context, id string, field model.TextField, text string) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", data.ErrInvalidTextField, field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return data.ErrJobRecordNotFound
	}
	switch field {
	case model.TextFieldLog:
		rec.LogText += text
	case model.TextFieldWarnings:
		rec.WarningsText += text
	}
	return nil
}

// List returns records newest first.
func (s *Store) List(_ context.Context, opts model.JobRecordListOptions) ([]*model.JobRecord, error) {
	opts.Normalize()

	s.mu.Lock()
	matched := make([]*model.JobRecord, 0, len(s.records))
	for _, rec := range s.records {
		if opts.Kind != "" && rec.Kind != opts.Kind {
			continue
		}
		if opts.SubmittedBy != nil && (rec.SubmittedBy == nil || *rec.SubmittedBy != *opts.SubmittedBy) {
			continue
		}
		matched = append(matched, cloneRecord(rec))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if opts.Offset >= len(matched) {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, len(matched))
	return matched[opts.Offset:end], nil
}

// DeleteFinishedBefore removes up to batchSize terminal records finished before cutoff,
// oldest FinishedAt first.
func (s *Store) DeleteFinishedBefore(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*model.JobRecord
	for _, rec := range s.records {
		if rec.PersistedState.Terminal() && rec.FinishedAt != nil && rec.FinishedAt.Before(cutoff) {
			expired = append(expired, rec)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].FinishedAt.Equal(*expired[j].FinishedAt) {
			return expired[i].FinishedAt.Before(*expired[j].FinishedAt)
		}
		return expired[i].ID < expired[j].ID
	})
	if len(expired) > batchSize {
		expired = expired[:batchSize]
	}
	for _, rec := range expired {
		delete(s.records, rec.ID)
	}
	return int64(len(expired)), nil
}

// Record appends an audit entry.
func (s *Store) Record(_ context.Context, entry model.AuditEntry) (*model.AuditEntry, error) {
	if entry.RecordID == "" {
		return nil, data.ErrAuditRecordRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	entry.ID = s.nextID
	entry.CreatedAt = s.now.Now()
	stored := entry
	s.audit = append(s.audit, &stored)
	out := stored
	return &out, nil
}

// ListByRecord returns audit entries for recordID in insertion order.
func (s *Store) ListByRecord(_ context.Context, recordID string) ([]*model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.AuditEntry
	for _, e := range s.audit {
		if e.RecordID == recordID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func cloneRecord(r *model.JobRecord) *model.JobRecord {
	c := *r
	c.Parameters = r.Parameters.Clone()
	c.SubmittedBy = clonePtr(r.SubmittedBy)
	c.PersistedException = clonePtr(r.PersistedException)
	c.StartedAt = clonePtr(r.StartedAt)
	c.FinishedAt = clonePtr(r.FinishedAt)
	if r.PersistedResult != nil {
		c.PersistedResult = append(json.RawMessage(nil), r.PersistedResult...)
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptr[T any](v T) *T { return &v }

func latest(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
