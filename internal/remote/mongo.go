package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"runclub/internal/club"
	"runclub/internal/model"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", mapErr(err))
	}
	return client, nil
}

// MongoStore keeps one Mongo collection per club collection. Records carry
// a string "id" field with a unique index plus createdAt/updatedAt.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	ids    club.IDGenerator
	clock  club.Clock

	mu      sync.Mutex
	indexed map[model.Collection]bool
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore uses database on an already connected client. Indexes are
// created lazily on first use of each collection.
func NewMongoStore(client *mongo.Client, database string, ids club.IDGenerator, clock club.Clock) *MongoStore {
	return &MongoStore{
		client:  client,
		db:      client.Database(database),
		ids:     ids,
		clock:   clock,
		indexed: make(map[model.Collection]bool),
	}
}

func (s *MongoStore) collection(ctx context.Context, coll model.Collection) *mongo.Collection {
	c := s.db.Collection(string(coll))
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.indexed[coll] {
		idx := mongo.IndexModel{Keys: bson.D{{Key: model.FieldID, Value: 1}}, Options: options.Index().SetUnique(true)}
		if _, err := c.Indexes().CreateOne(ctx, idx); err == nil {
			s.indexed[coll] = true
		}
	}
	return c
}

// Create inserts a document with a generated id and the store clock time.
func (s *MongoStore) Create(ctx context.Context, coll model.Collection, fields map[string]any) (*model.Document, error) {
	// BSON dates have millisecond precision.
	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	doc := model.NewDocument(s.ids.New(), now, fields)

	raw := bson.M{}
	for k, v := range doc.Fields {
		raw[k] = v
	}
	raw[model.FieldID] = doc.ID
	raw[model.FieldCreatedAt] = doc.CreatedAt
	raw[model.FieldUpdatedAt] = doc.UpdatedAt

	if _, err := s.collection(ctx, coll).InsertOne(ctx, raw); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", coll, mapErr(err))
	}
	return &doc, nil
}

// Query translates q into a Mongo filter with sort and limit options.
func (s *MongoStore) Query(ctx context.Context, coll model.Collection, q model.Query) ([]model.Document, error) {
	opts := options.Find()
	if q.Sort != nil {
		dir := 1
		if q.Sort.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.Sort.Field, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.collection(ctx, coll).Find(ctx, buildFilter(q.Filters), opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", coll, mapErr(err))
	}
	defer cur.Close(ctx)

	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("read %s: %w", coll, mapErr(err))
	}
	docs := make([]model.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, fromBSON(raw))
	}
	return docs, nil
}

// Count returns the exact number of documents in coll.
func (s *MongoStore) Count(ctx context.Context, coll model.Collection) (int, error) {
	n, err := s.db.Collection(string(coll)).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", coll, mapErr(err))
	}
	return int(n), nil
}

// Update sets fields on the document with id and returns the stored result.
// A missing id wraps club.ErrNotFound.
func (s *MongoStore) Update(ctx context.Context, coll model.Collection, id string, fields map[string]any) (*model.Document, error) {
	set := bson.M{}
	for k, v := range model.CopyFields(fields) {
		set[k] = v
	}
	set[model.FieldUpdatedAt] = s.clock.Now().UTC().Truncate(time.Millisecond)

	res := s.collection(ctx, coll).FindOneAndUpdate(ctx,
		bson.M{model.FieldID: id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var raw bson.M
	if err := res.Decode(&raw); err != nil {
		return nil, fmt.Errorf("update %s %s: %w", coll, id, mapErr(err))
	}
	doc := fromBSON(raw)
	return &doc, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var mongoOps = map[model.Op]string{
	model.OpEq:  "$eq",
	model.OpNe:  "$ne",
	model.OpGt:  "$gt",
	model.OpGte: "$gte",
	model.OpLt:  "$lt",
	model.OpLte: "$lte",
}

// buildFilter turns predicates into a Mongo filter, merging predicates on
// the same field into one operator document.
func buildFilter(preds []model.Predicate) bson.D {
	filter := bson.D{}
	index := make(map[string]int)
	for _, p := range preds {
		op := bson.E{Key: mongoOps[p.Op], Value: p.Value}
		if i, ok := index[p.Field]; ok {
			filter[i].Value = append(filter[i].Value.(bson.D), op)
			continue
		}
		index[p.Field] = len(filter)
		filter = append(filter, bson.E{Key: p.Field, Value: bson.D{op}})
	}
	return filter
}

// fromBSON normalizes a raw Mongo record into a Document.
func fromBSON(raw bson.M) model.Document {
	d := model.Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case "_id":
		case model.FieldID:
			d.ID = cast.ToString(v)
		case model.FieldCreatedAt:
			d.CreatedAt = cast.ToTime(normalize(v))
		case model.FieldUpdatedAt:
			d.UpdatedAt = cast.ToTime(normalize(v))
		default:
			d.Fields[k] = normalize(v)
		}
	}
	return d
}

func normalize(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.A:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	}
	return v
}

// mapErr reports anything that is not a server-side rejection as an
// unavailable backend.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return club.ErrNotFound
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", club.ErrBackendUnavailable, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return err
	}
	return fmt.Errorf("%w: %v", club.ErrBackendUnavailable, err)
}
