package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/data"
	"github.com/target/jobtrack/internal/domain/jobkind"
	"github.com/target/jobtrack/internal/domain/model"
	apperrors "github.com/target/jobtrack/internal/errors"
)

// JobRecordServiceOptions groups dependencies for JobRecordService.
type JobRecordServiceOptions struct {
	Repo     core.JobRecordRepository // Required
	Registry *jobkind.Registry        // Required
	// Executor supplies live status for views. Optional: views fall back to persisted values.
	Executor core.Executor
	Logger   *slog.Logger
	Now      func() time.Time
}

// JobRecordService creates and reads job records.
type JobRecordService struct {
	repo     core.JobRecordRepository
	registry *jobkind.Registry
	executor core.Executor
	logger   *slog.Logger
	now      func() time.Time
}

// NewJobRecordService constructs a JobRecordService.
func NewJobRecordService(opts JobRecordServiceOptions) (*JobRecordService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRecordRepository is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("job kind registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JobRecordService{
		repo:     opts.Repo,
		registry: opts.Registry,
		executor: opts.Executor,
		logger:   logger.With("component", "jobrecord_service"),
		now:      now,
	}, nil
}

// MustNewJobRecordService constructs a JobRecordService and panics on error.
func MustNewJobRecordService(opts JobRecordServiceOptions) *JobRecordService {
	svc, err := NewJobRecordService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // wiring error at startup
	}
	return svc
}

// Create validates req against its kind and stores a new record.
func (s *JobRecordService) Create(ctx context.Context, req *model.CreateJobRecordRequest) (*model.JobRecord, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	if err := s.registry.ValidateParameters(req.Kind, req.Parameters); err != nil {
		if errors.Is(err, jobkind.ErrUnknownKind) {
			return nil, apperrors.ValidationField("kind", err.Error())
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	rec, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job record: %w", apperrors.MapDBError(err))
	}
	s.logger.DebugContext(ctx, "job record created", "record_id", rec.ID, "kind", rec.Kind)
	return rec, nil
}

// Get returns the record with id, or a not_found AppError.
func (s *JobRecordService) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, data.ErrJobRecordNotFound) {
		return nil, apperrors.NotFoundf("job record %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", apperrors.MapDBError(err))
	}
	return rec, nil
}

// List returns records newest first.
func (s *JobRecordService) List(ctx context.Context, opts model.JobRecordListOptions) ([]*model.JobRecord, error) {
	opts.Normalize()
	recs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list job records: %w", apperrors.MapDBError(err))
	}
	return recs, nil
}

// View loads the record with id and resolves its effective values.
func (s *JobRecordService) View(ctx context.Context, id string) (*model.JobRecordView, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ViewOf(ctx, rec), nil
}

// ViewOf resolves effective values for an already loaded record. Live status is only
// queried for submitted records.
func (s *JobRecordService) ViewOf(ctx context.Context, rec *model.JobRecord) *model.JobRecordView {
	var live *model.ExecutorStatus
	if s.executor != nil && rec.Submitted() {
		status, err := s.executor.QueryStatus(ctx, rec.ExecutionHandle)
		if err != nil {
			s.logger.WarnContext(ctx, "query executor status failed",
				"record_id", rec.ID, "handle", rec.ExecutionHandle, "error", err)
		} else {
			live = status
		}
	}
	return model.NewJobRecordView(rec, live, s.now())
}
