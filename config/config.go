package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: record store, Redis, MongoDB and NATS configuration
//   - services.go: service mode, executor, scheduler and reaper configuration
//   - observability.go: metrics and log level
type AppConfig struct {
	// IsDev enables human-readable logs and relaxed startup checks.
	IsDev bool `env:"DEV" envDefault:"false"`

	// StoreBackend selects the job record store.
	StoreBackend StoreBackend `env:"STORE_BACKEND" envDefault:"postgres"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Mongo    MongoConfig `envPrefix:"MONGO_"`
	NATS     NATSConfig  `envPrefix:"NATS_"`

	// Services is a comma-delimited list of enabled services (worker, scheduler, reaper).
	Services string `env:"SERVICES" envDefault:"worker"`

	Executor  ExecutorConfig
	Scheduler SchedulerConfig
	Reaper    ReaperConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.StoreBackend = StoreBackend(strings.ToLower(strings.TrimSpace(string(c.StoreBackend))))
	if !c.StoreBackend.Valid() {
		c.StoreBackend = StoreBackendPostgres
	}

	c.Mongo.Sanitize()
	c.NATS.Sanitize()
	c.Executor.Sanitize()
	c.Scheduler.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsWorkerEnabled returns true if the executor worker pool is enabled.
func (c *AppConfig) IsWorkerEnabled() bool { return c.serviceEnabled(ServiceModeWorker) }

// IsSchedulerEnabled returns true if the periodic repeat scheduler is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool { return c.serviceEnabled(ServiceModeScheduler) }

// IsReaperEnabled returns true if the retention reaper is enabled.
func (c *AppConfig) IsReaperEnabled() bool { return c.serviceEnabled(ServiceModeReaper) }

// NeedsPostgres reports whether the process must connect to PostgreSQL.
// Records and the audit log share the selected backend.
func (c *AppConfig) NeedsPostgres() bool {
	return c.StoreBackend == StoreBackendPostgres
}
