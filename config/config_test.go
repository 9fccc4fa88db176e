package config

import (
	"log/slog"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - worker",
			input:    "worker",
			expected: map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:  "all services",
			input: "worker,scheduler,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeWorker:    true,
				ServiceModeScheduler: true,
				ServiceModeReaper:    true,
			},
		},
		{
			name:  "services with spaces",
			input: " worker , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:     "duplicate services",
			input:    "scheduler,scheduler",
			expected: map[ServiceMode]bool{ServiceModeScheduler: true},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only spaces and commas", input: " , , ", expectError: true},
		{name: "invalid service name", input: "worker,http", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name              string
		services          string
		expectedWorker    bool
		expectedScheduler bool
		expectedReaper    bool
	}{
		{name: "worker only", services: "worker", expectedWorker: true},
		{name: "scheduler and reaper", services: "scheduler,reaper", expectedScheduler: true, expectedReaper: true},
		{name: "invalid config disables everything", services: "invalid-service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsWorkerEnabled() != tt.expectedWorker {
				t.Errorf("IsWorkerEnabled(): expected %v, got %v", tt.expectedWorker, cfg.IsWorkerEnabled())
			}
			if cfg.IsSchedulerEnabled() != tt.expectedScheduler {
				t.Errorf("IsSchedulerEnabled(): expected %v, got %v", tt.expectedScheduler, cfg.IsSchedulerEnabled())
			}
			if cfg.IsReaperEnabled() != tt.expectedReaper {
				t.Errorf("IsReaperEnabled(): expected %v, got %v", tt.expectedReaper, cfg.IsReaperEnabled())
			}
		})
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{ServiceModeWorker, ServiceModeScheduler, ServiceModeReaper}

	if len(modes) != len(expected) {
		t.Fatalf("expected %d service modes, got %d", len(expected), len(modes))
	}
	for i, mode := range modes {
		if mode != expected[i] {
			t.Errorf("expected service mode %s at index %d, got %s", expected[i], i, mode)
		}
	}
}

func TestAppConfig_ParseEnvDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.StoreBackend != StoreBackendPostgres {
		t.Errorf("expected postgres backend, got %q", cfg.StoreBackend)
	}
	if cfg.Postgres.Name != "jobtrack" {
		t.Errorf("expected db name jobtrack, got %q", cfg.Postgres.Name)
	}
	if cfg.Executor.SubmitDelay != time.Second {
		t.Errorf("expected 1s submit delay, got %v", cfg.Executor.SubmitDelay)
	}
	if cfg.Reaper.Retention != 720*time.Hour {
		t.Errorf("expected 30 day retention, got %v", cfg.Reaper.Retention)
	}
	if !cfg.IsWorkerEnabled() {
		t.Error("expected worker to be enabled by default")
	}
}

func TestAppConfig_ParseEnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", " Mongo ")
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("MONGO_DATABASE", "records")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("NATS_URL", "nats://bus:4222")
	t.Setenv("EXECUTOR_CONCURRENCY", "0")
	t.Setenv("EXECUTOR_QUEUE", "exports")
	t.Setenv("SCHEDULER_SCHEDULES_FILE", "/etc/jobtrack/schedules.yaml")
	t.Setenv("LOG_LEVEL", "DEBUG")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.StoreBackend != StoreBackendMongo {
		t.Errorf("expected mongo backend, got %q", cfg.StoreBackend)
	}
	if cfg.Mongo.URI != "mongodb://db:27017" || cfg.Mongo.Database != "records" {
		t.Errorf("unexpected mongo config: %+v", cfg.Mongo)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://bus:4222" {
		t.Errorf("unexpected nats config: %+v", cfg.NATS)
	}
	if cfg.Executor.Concurrency != 1 {
		t.Errorf("expected concurrency clamped to 1, got %d", cfg.Executor.Concurrency)
	}
	if cfg.Executor.Queue != "exports" {
		t.Errorf("expected queue exports, got %q", cfg.Executor.Queue)
	}
	if cfg.Scheduler.SchedulesFile != "/etc/jobtrack/schedules.yaml" {
		t.Errorf("unexpected schedules file %q", cfg.Scheduler.SchedulesFile)
	}
	if cfg.Observability.Level() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Observability.Level())
	}
}

func TestAppConfig_SanitizeUnknownBackend(t *testing.T) {
	cfg := AppConfig{StoreBackend: "cassandra"}
	cfg.Sanitize()
	if cfg.StoreBackend != StoreBackendPostgres {
		t.Fatalf("expected unknown backend to fall back to postgres, got %q", cfg.StoreBackend)
	}
	if !cfg.NeedsPostgres() {
		t.Fatal("expected postgres to be required")
	}

	cfg = AppConfig{StoreBackend: StoreBackendMemory}
	cfg.Sanitize()
	if cfg.NeedsPostgres() {
		t.Fatal("memory backend should not require postgres")
	}

	cfg = AppConfig{StoreBackend: "MONGO"}
	cfg.Sanitize()
	if cfg.StoreBackend != StoreBackendMongo || cfg.NeedsPostgres() {
		t.Fatalf("mongo backend should not require postgres, got %q", cfg.StoreBackend)
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{Interval: time.Second, Retention: time.Minute, BatchSize: 50000}
	cfg.Sanitize()

	if cfg.Interval != time.Minute {
		t.Errorf("expected interval clamped to 1m, got %v", cfg.Interval)
	}
	if cfg.Retention != time.Hour {
		t.Errorf("expected retention clamped to 1h, got %v", cfg.Retention)
	}
	if cfg.BatchSize != 10000 {
		t.Errorf("expected batch size clamped to 10000, got %d", cfg.BatchSize)
	}
}

func TestNATSConfig_Sanitize(t *testing.T) {
	cfg := NATSConfig{Enabled: true, URL: " ", SubjectPrefix: ".custom.prefix."}
	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatal("expected nats to be disabled without a url")
	}
	if cfg.SubjectPrefix != "custom.prefix" {
		t.Fatalf("expected trimmed subject prefix, got %q", cfg.SubjectPrefix)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Timeout:    -1,
		RetryLimit: -2,
		SkipKinds:  []string{" export ", "", "scan"},
		Slack:      SlackNotificationConfig{Enabled: true, WebhookURL: " https://hooks.example.com/x "},
		PagerDuty:  PagerDutyNotificationConfig{Enabled: true, RoutingKey: " "},
	}

	cfg.Sanitize()

	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatalf("expected sinks disabled when notifications are off")
	}
	if cfg.Timeout != 5*time.Second || cfg.RetryLimit != 0 {
		t.Fatalf("expected timeout/retry defaults, got %v/%d", cfg.Timeout, cfg.RetryLimit)
	}
	if len(cfg.SkipKinds) != 2 || cfg.SkipKinds[0] != "export" || cfg.SkipKinds[1] != "scan" {
		t.Fatalf("unexpected skip kinds: %q", cfg.SkipKinds)
	}
	if cfg.Slack.Username != "jobtrack" || cfg.PagerDuty.Source != "jobtrack" {
		t.Fatalf("expected jobtrack defaults, got %q/%q", cfg.Slack.Username, cfg.PagerDuty.Source)
	}

	cfg.Enabled = true
	cfg.Slack.Enabled = true
	cfg.PagerDuty.Enabled = true
	cfg.Sanitize()

	if !cfg.Slack.Enabled || cfg.Slack.WebhookURL != "https://hooks.example.com/x" {
		t.Fatalf("expected slack to stay enabled with trimmed url, got %+v", cfg.Slack)
	}
	if cfg.PagerDuty.Enabled {
		t.Fatalf("expected pagerduty disabled without a routing key")
	}
}
