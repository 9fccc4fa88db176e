package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/data"
	"github.com/target/jobtrack/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

// recordDocument is the stored shape of a job record. Parameters and the result are kept as
// JSON text so they round-trip byte for byte.
type recordDocument struct {
	ID                 string     `bson:"_id"`
	Kind               string     `bson:"kind"`
	ExecutionHandle    string     `bson:"execution_handle"`
	Parameters         string     `bson:"parameters"`
	SubmittedBy        *string    `bson:"submitted_by"`
	PersistedState     string     `bson:"persisted_state"`
	PersistedResult    *string    `bson:"persisted_result"`
	PersistedException *string    `bson:"persisted_exception"`
	LogText            string     `bson:"log_text"`
	WarningsText       string     `bson:"warnings_text"`
	CreatedAt          time.Time  `bson:"created_at"`
	StartedAt          *time.Time `bson:"started_at"`
	FinishedAt         *time.Time `bson:"finished_at"`
}

func (d *recordDocument) toModel() (*model.JobRecord, error) {
	rec := &model.JobRecord{
		ID:                 d.ID,
		Kind:               d.Kind,
		ExecutionHandle:    d.ExecutionHandle,
		SubmittedBy:        d.SubmittedBy,
		PersistedState:     model.State(d.PersistedState),
		PersistedException: d.PersistedException,
		LogText:            d.LogText,
		WarningsText:       d.WarningsText,
		CreatedAt:          d.CreatedAt,
		StartedAt:          d.StartedAt,
		FinishedAt:         d.FinishedAt,
	}
	if d.Parameters != "" {
		if err := json.Unmarshal([]byte(d.Parameters), &rec.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
	}
	if d.PersistedResult != nil {
		rec.PersistedResult = json.RawMessage(*d.PersistedResult)
	}
	return rec, nil
}

// JobRecordRepository stores job records in a MongoDB collection.
type JobRecordRepository struct {
	collection *mongo.Collection
	now        data.TimeProvider
}

var (
	_ core.JobRecordRepository = (*JobRecordRepository)(nil)
	_ core.RetentionRepository = (*JobRecordRepository)(nil)
)

// NewJobRecordRepository creates a repository over db.
func NewJobRecordRepository(db *mongo.Database, tp data.TimeProvider) *JobRecordRepository {
	if tp == nil {
		tp = data.RealTimeProvider{}
	}
	return &JobRecordRepository{collection: db.Collection(CollectionJobRecords), now: tp}
}

// Create inserts a new record.
func (r *JobRecordRepository) Create(ctx context.Context, req *model.CreateJobRecordRequest) (*model.JobRecord, error) {
	if req == nil {
		return nil, errors.New("create job record request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	params := req.Parameters
	if params == nil {
		params = model.Parameters{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}

	doc := recordDocument{
		ID:              uuid.NewString(),
		Kind:            req.Kind,
		ExecutionHandle: model.NoHandle,
		Parameters:      string(raw),
		SubmittedBy:     req.SubmittedBy,
		CreatedAt:       r.now.Now().Truncate(time.Millisecond),
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err = r.collection.InsertOne(ctxTimeout, doc); err != nil {
		return nil, fmt.Errorf("insert job record: %w", err)
	}
	return doc.toModel()
}

// GetByID loads a record.
func (r *JobRecordRepository) GetByID(ctx context.Context, id string) (*model.JobRecord, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc recordDocument
	err := r.collection.FindOne(ctxTimeout, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, data.ErrJobRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", err)
	}
	return doc.toModel()
}

// UpdateIfExists applies upd with a single pipeline update. Set-once fields use $ifNull, and a
// terminal update filters on an empty persisted_state.
func (r *JobRecordRepository) UpdateIfExists(ctx context.Context, id string, upd model.JobRecordUpdate) (int64, error) {
	if err := upd.Validate(); err != nil {
		return 0, err
	}
	if upd.Empty() {
		return r.matchOnly(ctx, id)
	}

	filter := bson.M{"_id": id}
	if upd.Terminal() {
		filter["persisted_state"] = ""
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctxTimeout, filter, updatePipeline(upd))
	if err != nil {
		return 0, fmt.Errorf("update job record: %w", err)
	}
	return res.MatchedCount, nil
}

func (r *JobRecordRepository) matchOnly(ctx context.Context, id string) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := r.collection.CountDocuments(ctxTimeout, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return 0, fmt.Errorf("count job record: %w", err)
	}
	return n, nil
}

// updatePipeline builds the staged update. finished_at is computed in a second stage so its
// floor sees a started_at written by the same update.
func updatePipeline(upd model.JobRecordUpdate) mongo.Pipeline {
	first := bson.D{}
	if upd.ExecutionHandle != nil {
		first = append(first, bson.E{Key: "execution_handle", Value: bson.M{
			"$cond": bson.A{
				bson.M{"$eq": bson.A{"$execution_handle", model.NoHandle}},
				bson.M{"$literal": *upd.ExecutionHandle},
				"$execution_handle",
			},
		}})
	}
	if upd.StartedAt != nil {
		first = append(first, bson.E{Key: "started_at", Value: bson.M{
			"$ifNull": bson.A{"$started_at", bson.M{"$max": bson.A{upd.StartedAt.UTC(), "$created_at"}}},
		}})
	}
	if upd.Terminal() {
		first = append(first,
			bson.E{Key: "persisted_state", Value: bson.M{"$literal": string(*upd.PersistedState)}},
			bson.E{Key: "persisted_result", Value: literalOrNull(rawString(upd.PersistedResult))},
			bson.E{Key: "persisted_exception", Value: literalOrNull(upd.PersistedException)},
		)
	}

	pipeline := mongo.Pipeline{}
	if len(first) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$set", Value: first}})
	}
	if upd.FinishedAt != nil {
		pipeline = append(pipeline, bson.D{{Key: "$set", Value: bson.D{{Key: "finished_at", Value: bson.M{
			"$ifNull": bson.A{"$finished_at", bson.M{"$max": bson.A{
				upd.FinishedAt.UTC(),
				bson.M{"$ifNull": bson.A{"$started_at", "$created_at"}},
			}}},
		}}}}})
	}
	return pipeline
}

func rawString(raw json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	s := string(raw)
	return &s
}

func literalOrNull(s *string) any {
	if s == nil {
		return nil
	}
	return bson.M{"$literal": *s}
}

// AppendText concatenates text onto field server-side.
func (r *JobRecordRepository) AppendText(ctx context.Context, id string, field model.TextField, text string) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", data.ErrInvalidTextField, field)
	}
	key := string(field)

	ctxTimeout, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctxTimeout, bson.M{"_id": id}, mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: key, Value: bson.M{
			"$concat": bson.A{"$" + key, bson.M{"$literal": text}},
		}}}}},
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", field, err)
	}
	if res.MatchedCount == 0 {
		return data.ErrJobRecordNotFound
	}
	return nil
}

// List returns records newest first.
func (r *JobRecordRepository) List(ctx context.Context, opts model.JobRecordListOptions) ([]*model.JobRecord, error) {
	opts.Normalize()

	filter := bson.M{}
	if opts.Kind != "" {
		filter["kind"] = opts.Kind
	}
	if opts.SubmittedBy != nil {
		filter["submitted_by"] = *opts.SubmittedBy
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 2*opTimeout)
	defer cancel()

	findOpts := options.Find().
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctxTimeout, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list job records: %w", err)
	}
	defer func() { _ = cursor.Close(ctxTimeout) }()

	var docs []recordDocument
	if err = cursor.All(ctxTimeout, &docs); err != nil {
		return nil, fmt.Errorf("decode job records: %w", err)
	}

	out := make([]*model.JobRecord, 0, len(docs))
	for i := range docs {
		rec, convErr := docs[i].toModel()
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteFinishedBefore removes up to batchSize terminal records finished before cutoff.
func (r *JobRecordRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 2*opTimeout)
	defer cancel()

	filter := bson.M{
		"persisted_state": bson.M{"$gt": ""},
		"finished_at":     bson.M{"$lt": cutoff.UTC()},
	}
	cursor, err := r.collection.Find(ctxTimeout, filter, options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "finished_at", Value: 1}}).
		SetLimit(int64(batchSize)))
	if err != nil {
		return 0, fmt.Errorf("find finished job records: %w", err)
	}
	var ids []struct {
		ID string `bson:"_id"`
	}
	if err = cursor.All(ctxTimeout, &ids); err != nil {
		return 0, fmt.Errorf("decode finished job records: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	in := make(bson.A, 0, len(ids))
	for _, d := range ids {
		in = append(in, d.ID)
	}
	res, err := r.collection.DeleteMany(ctxTimeout, bson.M{"_id": bson.M{"$in": in}})
	if err != nil {
		return 0, fmt.Errorf("delete finished job records: %w", err)
	}
	return res.DeletedCount, nil
}
