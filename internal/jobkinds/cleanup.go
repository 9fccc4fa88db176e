package jobkinds

import (
	"context"
	"fmt"
	"time"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/task"
)

const (
	cleanupBatch     = 500
	minCleanupWindow = time.Hour
)

var cleanupFields = []string{"older_than", "dry_run"}

type cleanupParams struct {
	OlderThan string `json:"older_than"`
	DryRun    bool   `json:"dry_run"`
}

// CleanupResult reports what a cleanup run removed.
type CleanupResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
	DryRun  bool      `json:"dry_run"`
}

type cleanup struct {
	repo core.RetentionRepository
	now  func() time.Time
}

// run deletes terminal records that finished before now minus older_than.
func (c cleanup) run(ctx context.Context, exec *task.Execution) (any, error) {
	var p cleanupParams
	if err := exec.Parameters.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode cleanup parameters: %w", err)
	}
	if p.OlderThan == "" {
		return nil, fmt.Errorf("older_than is required")
	}
	window, err := time.ParseDuration(p.OlderThan)
	if err != nil {
		return nil, fmt.Errorf("parse older_than: %w", err)
	}
	log := exec.Logger()
	if window < minCleanupWindow {
		log.WarnContext(ctx, fmt.Sprintf("older_than %s raised to %s", window, minCleanupWindow))
		window = minCleanupWindow
	}

	res := CleanupResult{Cutoff: c.now().UTC().Add(-window), DryRun: p.DryRun}
	if p.DryRun {
		log.InfoContext(ctx, "dry run, nothing deleted", "cutoff", res.Cutoff)
		return res, nil
	}

	for {
		n, err := c.repo.DeleteFinishedBefore(ctx, res.Cutoff, cleanupBatch)
		if err != nil {
			return nil, fmt.Errorf("delete finished records: %w", err)
		}
		res.Deleted += n
		if n > 0 {
			log.InfoContext(ctx, "deleted batch", "count", n, "total", res.Deleted)
		}
		if n < cleanupBatch {
			break
		}
	}
	return res, nil
}
