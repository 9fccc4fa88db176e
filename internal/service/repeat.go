package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobtrack/internal/domain/model"
	apperrors "github.com/target/jobtrack/internal/errors"
)

// RepeatServiceOptions groups dependencies for RepeatService.
type RepeatServiceOptions struct {
	Records     *JobRecordService     // Required
	Coordinator *LifecycleCoordinator // Required
	Logger      *slog.Logger
}

// RepeatService re-runs a job with exactly the parameters of an existing record.
type RepeatService struct {
	records     *JobRecordService
	coordinator *LifecycleCoordinator
	logger      *slog.Logger
}

// NewRepeatService constructs a RepeatService.
func NewRepeatService(opts RepeatServiceOptions) (*RepeatService, error) {
	if opts.Records == nil {
		return nil, errors.New("JobRecordService is required")
	}
	if opts.Coordinator == nil {
		return nil, errors.New("LifecycleCoordinator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RepeatService{
		records:     opts.Records,
		coordinator: opts.Coordinator,
		logger:      logger.With("component", "repeat_service"),
	}, nil
}

// Repeat creates a new record of the source's kind carrying only the kind's parameter
// fields, then submits it. Logs, state, timestamps and results are not copied. The caller
// writes the audit entry.
func (s *RepeatService) Repeat(ctx context.Context, source *model.JobRecord, actor *string) (*model.JobRecord, error) {
	if source == nil {
		return nil, apperrors.Validation("source record is required")
	}
	kind, err := s.records.registry.Lookup(source.Kind)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "repeat %s", source.Label())
	}

	rec, err := s.records.Create(ctx, &model.CreateJobRecordRequest{
		Kind:        kind.Name(),
		Parameters:  source.Parameters.Only(kind.ParameterFieldNames()),
		SubmittedBy: actor,
	})
	if err != nil {
		return nil, fmt.Errorf("repeat %s: %w", source.Label(), err)
	}

	if _, err := s.coordinator.Submit(ctx, rec); err != nil {
		return rec, fmt.Errorf("submit repeat of %s: %w", source.Label(), err)
	}

	s.logger.InfoContext(ctx, "job record repeated",
		"source_id", source.ID, "record_id", rec.ID, "kind", rec.Kind)
	return rec, nil
}

// RepeatByID loads the source record and repeats it.
func (s *RepeatService) RepeatByID(ctx context.Context, sourceID string, actor *string) (*model.JobRecord, error) {
	source, err := s.records.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return s.Repeat(ctx, source, actor)
}
