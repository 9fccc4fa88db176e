package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the executor worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeScheduler runs the periodic repeat scheduler.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeReaper runs the retention reaper.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeScheduler,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeScheduler, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, scheduler, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ExecutorBackend names an executor implementation.
type ExecutorBackend string

const (
	// ExecutorBackendRedis queues work in Redis.
	ExecutorBackendRedis ExecutorBackend = "redis"
	// ExecutorBackendInline runs work in-process. Development only.
	ExecutorBackendInline ExecutorBackend = "inline"
)

// ExecutorConfig contains executor client and worker pool configuration.
type ExecutorConfig struct {
	Backend ExecutorBackend `env:"EXECUTOR_BACKEND" envDefault:"redis"`

	// Queue is the Redis key namespace for this executor's queues.
	Queue string `env:"EXECUTOR_QUEUE" envDefault:"default"`

	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"EXECUTOR_CONCURRENCY" envDefault:"4"`

	// StatusTTL is how long executor status entries are kept after the last update.
	StatusTTL time.Duration `env:"EXECUTOR_STATUS_TTL" envDefault:"24h"`

	// PollInterval bounds how long a worker blocks waiting for work and how often
	// delayed work is promoted.
	PollInterval time.Duration `env:"EXECUTOR_POLL_INTERVAL" envDefault:"1s"`

	// SubmitDelay postpones the earliest start of submitted work.
	SubmitDelay time.Duration `env:"EXECUTOR_SUBMIT_DELAY" envDefault:"1s"`
}

// Sanitize applies guardrails to executor configuration values.
func (e *ExecutorConfig) Sanitize() {
	e.Backend = ExecutorBackend(strings.ToLower(strings.TrimSpace(string(e.Backend))))
	if e.Backend != ExecutorBackendInline {
		e.Backend = ExecutorBackendRedis
	}
	if e.Queue = strings.TrimSpace(e.Queue); e.Queue == "" {
		e.Queue = "default"
	}
	if e.Concurrency < 1 {
		e.Concurrency = 1
	}
	if e.StatusTTL < time.Minute {
		e.StatusTTL = time.Minute
	}
	if e.PollInterval < 100*time.Millisecond {
		e.PollInterval = 100 * time.Millisecond
	}
	if e.SubmitDelay < 0 {
		e.SubmitDelay = 0
	}
}

// SchedulerConfig contains periodic repeat scheduler configuration.
type SchedulerConfig struct {
	// SchedulesFile is the YAML file mapping cron specs to source record ids.
	SchedulesFile string `env:"SCHEDULER_SCHEDULES_FILE" envDefault:"schedules.yaml"`

	// RateLimit caps repeat submissions per second across all schedules.
	RateLimit float64 `env:"SCHEDULER_RATE_LIMIT" envDefault:"5"`

	// Burst is the number of submissions allowed above RateLimit at once.
	Burst int `env:"SCHEDULER_BURST" envDefault:"5"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	s.SchedulesFile = strings.TrimSpace(s.SchedulesFile)
	if s.RateLimit <= 0 {
		s.RateLimit = 1
	}
	if s.Burst < 1 {
		s.Burst = 1
	}
}

// ReaperConfig contains retention reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// Retention is how long terminal records are kept after they finish.
	Retention time.Duration `env:"REAPER_RETENTION" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to delete per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.Retention < 1*time.Hour {
		r.Retention = 1 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
