package config

import (
	"strings"
	"time"
)

// StoreBackend names a job record store implementation.
type StoreBackend string

const (
	// StoreBackendPostgres stores records in PostgreSQL.
	StoreBackendPostgres StoreBackend = "postgres"
	// StoreBackendMongo stores records in MongoDB.
	StoreBackendMongo StoreBackend = "mongo"
	// StoreBackendMemory keeps records in process memory. Development only.
	StoreBackendMemory StoreBackend = "memory"
)

// Valid reports whether b is a known backend.
func (b StoreBackend) Valid() bool {
	switch b {
	case StoreBackendPostgres, StoreBackendMongo, StoreBackendMemory:
		return true
	default:
		return false
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"jobtrack"`
	Password string `env:"PASSWORD"                envDefault:"jobtrack"`
	Name     string `env:"NAME"                    envDefault:"jobtrack"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"     envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"     envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"  envDefault:"5m"`
}

// RedisConfig contains Redis configuration for the executor.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// MongoConfig contains MongoDB configuration for STORE_BACKEND=mongo.
type MongoConfig struct {
	URI            string        `env:"URI"             envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"DATABASE"        envDefault:"jobtrack"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize    uint64        `env:"MAX_POOL_SIZE"   envDefault:"100"`
	MinPoolSize    uint64        `env:"MIN_POOL_SIZE"   envDefault:"5"`
}

// Sanitize applies guardrails to MongoDB configuration values.
func (c *MongoConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	if c.Database = strings.TrimSpace(c.Database); c.Database == "" {
		c.Database = "jobtrack"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MinPoolSize > c.MaxPoolSize {
		c.MinPoolSize = c.MaxPoolSize
	}
}

// NATSConfig contains NATS configuration for lifecycle events.
type NATSConfig struct {
	// Enabled turns on lifecycle event publishing.
	Enabled       bool   `env:"ENABLED"        envDefault:"false"`
	URL           string `env:"URL"            envDefault:"nats://localhost:4222"`
	SubjectPrefix string `env:"SUBJECT_PREFIX" envDefault:"jobtrack.records"`
}

// Sanitize applies guardrails to NATS configuration values.
func (c *NATSConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	c.SubjectPrefix = strings.Trim(strings.TrimSpace(c.SubjectPrefix), ".")
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "jobtrack.records"
	}
	if c.URL == "" {
		c.Enabled = false
	}
}
