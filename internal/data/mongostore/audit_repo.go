package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/data"
	"github.com/target/jobtrack/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const auditCounterID = "audit_entries"

type auditDocument struct {
	ID        int64     `bson:"_id"`
	RecordID  string    `bson:"record_id"`
	Actor     *string   `bson:"actor"`
	Action    string    `bson:"action"`
	Message   string    `bson:"message"`
	SourceID  *string   `bson:"source_id"`
	CreatedAt time.Time `bson:"created_at"`
}

// AuditRepository stores audit entries with sequential ids drawn from a counters collection.
type AuditRepository struct {
	entries  *mongo.Collection
	counters *mongo.Collection
	now      data.TimeProvider
}

var _ core.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates an audit repository over db.
func NewAuditRepository(db *mongo.Database, tp data.TimeProvider) *AuditRepository {
	if tp == nil {
		tp = data.RealTimeProvider{}
	}
	return &AuditRepository{
		entries:  db.Collection(CollectionAuditEntries),
		counters: db.Collection(CollectionCounters),
		now:      tp,
	}
}

func (r *AuditRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": auditCounterID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next audit id: %w", err)
	}
	return counter.Seq, nil
}

// Record appends entry.
func (r *AuditRepository) Record(ctx context.Context, entry model.AuditEntry) (*model.AuditEntry, error) {
	if entry.RecordID == "" {
		return nil, data.ErrAuditRecordRequired
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id, err := r.nextID(ctxTimeout)
	if err != nil {
		return nil, err
	}
	entry.ID = id
	entry.CreatedAt = r.now.Now().Truncate(time.Millisecond)

	doc := auditDocument{
		ID:        entry.ID,
		RecordID:  entry.RecordID,
		Actor:     entry.Actor,
		Action:    string(entry.Action),
		Message:   entry.Message,
		SourceID:  entry.SourceID,
		CreatedAt: entry.CreatedAt,
	}
	if _, err = r.entries.InsertOne(ctxTimeout, doc); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	return &entry, nil
}

// ListByRecord returns the entries for recordID oldest first.
func (r *AuditRepository) ListByRecord(ctx context.Context, recordID string) ([]*model.AuditEntry, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.entries.Find(ctxTimeout, bson.M{"record_id": recordID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = cursor.Close(ctxTimeout) }()

	var docs []auditDocument
	if err = cursor.All(ctxTimeout, &docs); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}
	out := make([]*model.AuditEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, &model.AuditEntry{
			ID:        d.ID,
			RecordID:  d.RecordID,
			Actor:     d.Actor,
			Action:    model.AuditAction(d.Action),
			Message:   d.Message,
			SourceID:  d.SourceID,
			CreatedAt: d.CreatedAt,
		})
	}
	return out, nil
}
