package persistence

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/BaSui01/phasegate/types"
)

// mongoAuditDoc mirrors types.AuditRecord with bson field names matching the
// JSON ones, so trails written here and elsewhere stay comparable.
type mongoAuditDoc struct {
	RecordID  string    `bson:"record_id"`
	SessionID string    `bson:"session_id"`
	Timestamp time.Time `bson:"timestamp"`
	Actor     string    `bson:"actor,omitempty"`
	Phase     string    `bson:"phase"`
	Action    string    `bson:"action"`
	Field     string    `bson:"field,omitempty"`
	Target    string    `bson:"target,omitempty"`
	Outcome   string    `bson:"outcome"`
	Reason    string    `bson:"reason,omitempty"`
	Revision  uint64    `bson:"revision"`
}

// MongoAuditStore keeps the audit trail in a MongoDB collection,
// insert-only, indexed by session.
type MongoAuditStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoAuditStore connects, verifies the connection, and ensures the
// session index.
func NewMongoAuditStore(cfg MongoConfig) (*MongoAuditStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit index: %w", err)
	}
	return &MongoAuditStore{client: client, coll: coll}, nil
}

// Append inserts one document.
func (s *MongoAuditStore) Append(ctx context.Context, rec types.AuditRecord) error {
	doc := mongoAuditDoc{
		RecordID:  rec.ID,
		SessionID: rec.SessionID,
		Timestamp: rec.Timestamp,
		Actor:     rec.Actor,
		Phase:     string(rec.Phase),
		Action:    string(rec.Action),
		Field:     rec.Field,
		Target:    string(rec.Target),
		Outcome:   string(rec.Outcome),
		Reason:    rec.Reason,
		Revision:  rec.Revision,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return types.NewError(types.ErrAuditUnavailable, "audit insert failed").WithCause(err).WithRetryable(true)
	}
	return nil
}

// Query returns the session's documents in chronological order.
func (s *MongoAuditStore) Query(ctx context.Context, sessionID string) ([]types.AuditRecord, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, types.NewError(types.ErrAuditUnavailable, "audit query failed").WithCause(err).WithRetryable(true)
	}

	var docs []mongoAuditDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode audit records: %w", err)
	}

	out := make([]types.AuditRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, types.AuditRecord{
			ID:        d.RecordID,
			SessionID: d.SessionID,
			Timestamp: d.Timestamp,
			Actor:     d.Actor,
			Phase:     types.Phase(d.Phase),
			Action:    types.AuditAction(d.Action),
			Field:     d.Field,
			Target:    types.Phase(d.Target),
			Outcome:   types.AuditOutcome(d.Outcome),
			Reason:    d.Reason,
			Revision:  d.Revision,
		})
	}
	return out, nil
}

// Close disconnects the client.
func (s *MongoAuditStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
