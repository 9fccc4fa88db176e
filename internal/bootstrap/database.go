package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/target/jobtrack/config"
	"github.com/target/jobtrack/internal/adapters/natsevents"
	"github.com/target/jobtrack/internal/data"
	"github.com/target/jobtrack/internal/data/mongostore"
)

const pingTimeout = 5 * time.Second

// DatabaseConfig contains configuration for the record store, executor broker and event bus.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	MongoConfig config.MongoConfig
	NATSConfig  config.NATSConfig
	Logger      *slog.Logger
}

// postgresDSN builds the pgx DSN; url.URL escapes credentials.
func postgresDSN(c config.DBConfig) string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// ConnectDB opens the PostgreSQL record store pool and checks it answers.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	if cfg.DBConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBConfig.MaxOpenConns)
	}
	if cfg.DBConfig.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBConfig.MaxIdleConns)
	}
	if cfg.DBConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.DBConfig.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping record store: %w", err), db.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "record store connected",
			"backend", config.StoreBackendPostgres,
			"host", cfg.DBConfig.Host,
			"database", cfg.DBConfig.Name,
			"max_open_conns", cfg.DBConfig.MaxOpenConns,
		)
	}
	return db, nil
}

// RunMigrations applies the record store schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "record store migrations applied")
	}
	return nil
}

// ConnectRedis connects to the broker behind the redis executor. Cluster and sentinel
// topologies are selected by config; otherwise URI is a host:port or redis:// URL.
//
//nolint:ireturn // the concrete client depends on the configured topology.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, mode, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping executor broker: %w", err), client.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "executor broker connected",
			"backend", config.ExecutorBackendRedis,
			"mode", mode,
			"addrs", strings.Join(opts.Addrs, ","),
		)
	}
	return client, nil
}

// redisOptions maps RedisConfig onto go-redis universal options and names the topology.
// Credentials embedded in a redis:// URI take precedence over Password.
func redisOptions(c config.RedisConfig) (*redis.UniversalOptions, string, error) {
	opts := &redis.UniversalOptions{Password: c.Password, DB: c.DB}

	switch {
	case c.UseSentinel:
		opts.Addrs = trimAll(c.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis sentinel mode needs at least one sentinel node")
		}
		opts.MasterName = c.SentinelMasterName
		opts.SentinelPassword = c.SentinelPassword
		return opts, "sentinel", nil

	case c.UseCluster:
		opts.IsClusterMode = true
		opts.Addrs = trimAll(c.ClusterNodes)
		if len(opts.Addrs) == 0 {
			if err := applyRedisURI(opts, c.URI); err != nil {
				return nil, "", err
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis cluster mode needs CLUSTER_NODES or a URI")
		}
		// Cluster mode has no database selection.
		opts.DB = 0
		return opts, "cluster", nil

	default:
		if err := applyRedisURI(opts, c.URI); err != nil {
			return nil, "", err
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis URI is required")
		}
		return opts, "direct", nil
	}
}

// applyRedisURI sets the address from uri, which is either host:port or a redis(s):// URL.
func applyRedisURI(opts *redis.UniversalOptions, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil
	}
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis uri: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ConnectMongo connects to MongoDB and ensures the record store indexes exist.
func ConnectMongo(ctx context.Context, cfg DatabaseConfig) (*mongostore.MongoDB, error) {
	m, err := mongostore.Connect(ctx, mongostore.ConnectOptions{
		URI:            cfg.MongoConfig.URI,
		Database:       cfg.MongoConfig.Database,
		ConnectTimeout: cfg.MongoConfig.ConnectTimeout,
		MaxPoolSize:    cfg.MongoConfig.MaxPoolSize,
		MinPoolSize:    cfg.MongoConfig.MinPoolSize,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := mongostore.EnsureIndexes(ctx, m.Database); err != nil {
		if discErr := m.Disconnect(context.WithoutCancel(ctx)); discErr != nil {
			err = errors.Join(err, fmt.Errorf("disconnect mongo: %w", discErr))
		}
		return nil, err
	}
	return m, nil
}

// ConnectNATS connects to NATS when lifecycle events are enabled. It returns nil, nil when disabled.
func ConnectNATS(cfg DatabaseConfig) (*nats.Conn, error) {
	if !cfg.NATSConfig.Enabled {
		return nil, nil
	}
	nc, err := natsevents.Connect(cfg.NATSConfig.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("nats connected", "url", nc.ConnectedUrlRedacted())
	}
	return nc, nil
}
