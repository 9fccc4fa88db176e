// Package mongostore implements the job record and audit stores on MongoDB.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	CollectionJobRecords   = "job_records"
	CollectionAuditEntries = "audit_entries"
	CollectionCounters     = "counters"
)

// ConnectOptions configures Connect.
type ConnectOptions struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
	Logger         *slog.Logger
}

// MongoDB bundles a connected client and its database handle.
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	logger   *slog.Logger
}

// Connect establishes a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, opts ConnectOptions) (*MongoDB, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mongo")

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(opts.URI).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(timeout).
		SetSocketTimeout(30 * time.Second).
		SetServerSelectionTimeout(timeout).
		SetRetryWrites(true).
		SetRetryReads(true)
	if opts.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(opts.MinPoolSize)
	}

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err = client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	logger.InfoContext(ctx, "connected to MongoDB", "database", opts.Database)
	return &MongoDB{Client: client, Database: client.Database(opts.Database), logger: logger}, nil
}

// Disconnect closes the client.
func (m *MongoDB) Disconnect(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.Client.Disconnect(disconnectCtx); err != nil {
		return fmt.Errorf("disconnect from MongoDB: %w", err)
	}
	return nil
}

// GetCollection returns a collection by name.
func (m *MongoDB) GetCollection(name string) *mongo.Collection {
	return m.Database.Collection(name)
}

// EnsureIndexes creates the indexes the stores query by. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	records := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_kind_created"),
		},
		{
			Keys:    bson.D{{Key: "submitted_by", Value: 1}},
			Options: options.Index().SetName("idx_submitted_by"),
		},
		{
			Keys: bson.D{{Key: "finished_at", Value: 1}},
			Options: options.Index().
				SetName("idx_finished_terminal").
				SetPartialFilterExpression(bson.M{"persisted_state": bson.M{"$gt": ""}}),
		},
	}
	if _, err := db.Collection(CollectionJobRecords).Indexes().CreateMany(ctx, records); err != nil {
		return fmt.Errorf("create job record indexes: %w", err)
	}

	audit := []mongo.IndexModel{{
		Keys:    bson.D{{Key: "record_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("idx_record_created"),
	}}
	if _, err := db.Collection(CollectionAuditEntries).Indexes().CreateMany(ctx, audit); err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}
