package testutil

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetupTestMongo connects to TEST_MONGO_URI (default mongodb://localhost:57017) and returns a
// uniquely named database that is dropped when the test finishes.
func SetupTestMongo(t TestingTB) *mongo.Database {
	t.Helper()

	uri := getEnvOrDefault("TEST_MONGO_URI", "mongodb://localhost:57017")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(2*time.Second).
		SetConnectTimeout(2*time.Second))
	if err != nil {
		skipOrFail(t, requireMongo(), "MongoDB not available for testing:", err)
		return nil
	}
	if pingErr := client.Ping(ctx, nil); pingErr != nil {
		_ = client.Disconnect(context.Background())
		skipOrFail(t, requireMongo(), "MongoDB not available for testing:", pingErr)
		return nil
	}

	db := client.Database("jobtrack_" + generateSchemaName())
	registerCleanup(t, func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		if dropErr := db.Drop(cctx); dropErr != nil {
			t.Logf("warning: failed to drop mongo database %s: %v", db.Name(), dropErr)
		}
		if discErr := client.Disconnect(cctx); discErr != nil {
			t.Logf("warning: failed to disconnect mongo client: %v", discErr)
		}
	})
	return db
}

// SetupTestNATS connects to TEST_NATS_URL (default nats://localhost:54222).
func SetupTestNATS(t TestingTB) *nats.Conn {
	t.Helper()

	url := getEnvOrDefault("TEST_NATS_URL", "nats://localhost:54222")
	nc, err := nats.Connect(url, nats.Timeout(2*time.Second))
	if err != nil {
		skipOrFail(t, requireNATS(), "NATS not available for testing:", err)
		return nil
	}
	registerCleanup(t, nc.Close)
	return nc
}
