package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobtrack/config"
	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/data"
	"github.com/target/jobtrack/internal/data/memstore"
	"github.com/target/jobtrack/internal/data/mongostore"
)

// Stores holds the repositories of the selected store backend.
type Stores struct {
	Backend   config.StoreBackend
	Records   core.JobRecordRepository
	Retention core.RetentionRepository
	Audit     core.AuditRepository
	// DB is set for the postgres backend.
	DB *sql.DB

	closers []func(context.Context) error
}

// OpenStores connects to the configured backend and builds its repositories.
func OpenStores(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, MongoConfig: cfg.Mongo, Logger: logger}

	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		if logger != nil {
			logger.WarnContext(ctx, "using in-memory record store; records are lost on exit")
		}
		s := memstore.New(nil)
		return &Stores{Backend: cfg.StoreBackend, Records: s, Retention: s, Audit: s}, nil

	case config.StoreBackendMongo:
		m, err := ConnectMongo(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		records := mongostore.NewJobRecordRepository(m.Database, nil)
		return &Stores{
			Backend:   cfg.StoreBackend,
			Records:   records,
			Retention: records,
			Audit:     mongostore.NewAuditRepository(m.Database, nil),
			closers:   []func(context.Context) error{m.Disconnect},
		}, nil

	default:
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrationsOnStart {
			if err := RunMigrations(ctx, db, logger); err != nil {
				return nil, errors.Join(err, db.Close())
			}
		}
		records := data.NewJobRecordRepo(db, data.RepoConfig{})
		return &Stores{
			Backend:   config.StoreBackendPostgres,
			Records:   records,
			Retention: records,
			Audit:     data.NewAuditRepo(db, data.RepoConfig{}),
			DB:        db,
			closers:   []func(context.Context) error{func(context.Context) error { return db.Close() }},
		}, nil
	}
}

// Close releases backend connections.
func (s *Stores) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, c := range s.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close stores: %w", errors.Join(errs...))
	}
	return nil
}
