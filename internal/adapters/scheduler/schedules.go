// Package scheduler repeats job records on cron schedules read from a YAML file.
package scheduler

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// cronParser accepts standard five-field specs plus descriptors such as @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule repeats SourceID every time Cron fires.
type Schedule struct {
	Name     string `yaml:"name"`
	Cron     string `yaml:"cron"`
	SourceID string `yaml:"source_id"`
}

type schedulesFile struct {
	Schedules []Schedule `yaml:"schedules"`
}

// LoadSchedules reads and validates a schedules file. A missing file yields no schedules.
func LoadSchedules(path string) ([]Schedule, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedules file: %w", err)
	}
	return ParseSchedules(data)
}

// ParseSchedules decodes YAML schedules and validates every entry. Unnamed entries are named
// after their source id.
func ParseSchedules(data []byte) ([]Schedule, error) {
	var f schedulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid YAML in schedules file: %w", err)
	}

	seen := make(map[string]bool, len(f.Schedules))
	out := make([]Schedule, 0, len(f.Schedules))
	for i, s := range f.Schedules {
		s.Cron = strings.TrimSpace(s.Cron)
		s.SourceID = strings.TrimSpace(s.SourceID)
		s.Name = strings.TrimSpace(s.Name)
		if s.SourceID == "" {
			return nil, fmt.Errorf("schedule %d: source_id is required", i)
		}
		if s.Name == "" {
			s.Name = s.SourceID
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("schedule %d: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if _, err := cronParser.Parse(s.Cron); err != nil {
			return nil, fmt.Errorf("schedule %q: invalid cron %q: %w", s.Name, s.Cron, err)
		}
		out = append(out, s)
	}
	return out, nil
}
