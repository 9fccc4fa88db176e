// Package jobkinds holds the job kinds built into jobtrack.
package jobkinds

import (
	"fmt"
	"time"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/jobkind"
)

// Kind tags.
const (
	ExportKind  = "export"
	CleanupKind = "cleanup"
)

// Deps are the collaborators built-in tasks need.
type Deps struct {
	// Retention backs the cleanup kind. When nil the cleanup kind is not registered.
	Retention core.RetentionRepository
	Now       func() time.Time
}

// Register adds the built-in kinds to reg.
func Register(reg *jobkind.Registry, deps Deps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	kinds := []jobkind.Kind{
		jobkind.Spec{KindName: ExportKind, ParameterFields: exportFields, Run: runExport},
	}
	if deps.Retention != nil {
		c := cleanup{repo: deps.Retention, now: deps.Now}
		kinds = append(kinds, jobkind.Spec{KindName: CleanupKind, ParameterFields: cleanupFields, Run: c.run})
	}
	for _, k := range kinds {
		if err := reg.Register(k); err != nil {
			return fmt.Errorf("register %s: %w", k.Name(), err)
		}
	}
	return nil
}

// Default returns a registry holding the built-in kinds.
func Default(deps Deps) (*jobkind.Registry, error) {
	reg := jobkind.NewRegistry()
	if err := Register(reg, deps); err != nil {
		return nil, err
	}
	return reg, nil
}
