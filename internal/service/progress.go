package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/domain/task"
)

// ProgressReporter publishes task progress through the executor's status channel.
// It never writes to the job record store.
type ProgressReporter struct {
	executor core.Executor
	logger   *slog.Logger
}

var _ task.ProgressReporter = (*ProgressReporter)(nil)

// NewProgressReporter creates a ProgressReporter.
func NewProgressReporter(executor core.Executor, logger *slog.Logger) *ProgressReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressReporter{executor: executor, logger: logger.With("component", "progress")}
}

// Report logs the progress through the execution's logger and stores it as in-progress status.
func (p *ProgressReporter) Report(ctx context.Context, exec *task.Execution, current, total int64) error {
	if exec == nil {
		return errors.New("execution is required")
	}
	exec.Logger().InfoContext(ctx, fmt.Sprintf("update progress: %d out of %d", current, total))

	info, err := json.Marshal(model.ProgressInfo{Current: current, Total: total})
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := p.executor.SetStatus(ctx, exec.Handle, model.ExecutorStateInProgress, info); err != nil {
		return fmt.Errorf("set progress status: %w", err)
	}
	return nil
}

// ReadProgress returns the completion percentage for handle. Executor errors yield unknown.
func (p *ProgressReporter) ReadProgress(ctx context.Context, handle string) model.Progress {
	if handle == "" || handle == model.NoHandle {
		return model.UnknownProgress
	}
	status, err := p.executor.QueryStatus(ctx, handle)
	if err != nil {
		p.logger.WarnContext(ctx, "query executor status failed", "handle", handle, "error", err)
		return model.UnknownProgress
	}
	return model.ProgressFromStatus(status)
}
