// Package mongo implements the audit sink on MongoDB. Each Record call
// becomes one InsertMany into a capped-free append-only collection.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/audit"
)

// Compile-time interface check.
var _ audit.Sink = (*Sink)(nil)

const (
	defaultDatabase   = "pgmanager"
	defaultCollection = "saga_audit_events"
)

// eventDoc is the stored shape of an audit event.
type eventDoc struct {
	ID         string         `bson:"_id"`
	Action     string         `bson:"action"`
	Resource   string         `bson:"resource"`
	Category   string         `bson:"category,omitempty"`
	ResourceID string         `bson:"resource_id,omitempty"`
	ActorID    string         `bson:"actor_id,omitempty"`
	ActorKind  saga.ActorKind `bson:"actor_kind,omitempty"`
	ScopeID    string         `bson:"scope_id,omitempty"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	Outcome    string         `bson:"outcome"`
	Severity   string         `bson:"severity"`
	Reason     string         `bson:"reason,omitempty"`
	RecordedAt time.Time      `bson:"recorded_at"`
}

// Sink is a MongoDB implementation of audit.Sink.
type Sink struct {
	client     *mongo.Client
	ownsClient bool
	database   string
	collection string
	logger     *slog.Logger
}

// Option configures the Sink.
type Option func(*Sink)

// WithLogger sets the logger for the sink.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// WithDatabase overrides the database name.
func WithDatabase(name string) Option {
	return func(s *Sink) {
		s.database = name
	}
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(s *Sink) {
		s.collection = name
	}
}

// New connects to MongoDB and returns a sink, e.g.
// New(ctx, "mongodb://localhost:27017").
func New(ctx context.Context, uri string, opts ...Option) (*Sink, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("audit/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("audit/mongo: ping: %w", err)
	}

	s := newSink(client, opts...)
	s.ownsClient = true
	return s, nil
}

// NewWithClient builds a sink from an existing client. The caller owns
// the client lifecycle.
func NewWithClient(client *mongo.Client, opts ...Option) *Sink {
	return newSink(client, opts...)
}

func newSink(client *mongo.Client, opts ...Option) *Sink {
	s := &Sink{
		client:     client,
		database:   defaultDatabase,
		collection: defaultCollection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the indexes the trail is queried by.
func (s *Sink) Migrate(ctx context.Context) error {
	coll := s.client.Database(s.database).Collection(s.collection)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "scope_id", Value: 1}, {Key: "recorded_at", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("audit/mongo: create indexes: %w", err)
	}
	return nil
}

// Close disconnects the client if this sink created it.
func (s *Sink) Close(ctx context.Context) error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Record implements audit.Sink.
func (s *Sink) Record(ctx context.Context, events []*audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]any, 0, len(events))
	for _, e := range events {
		docs = append(docs, eventDoc{
			ID:         e.ID.String(),
			Action:     e.Action,
			Resource:   e.Resource,
			Category:   e.Category,
			ResourceID: e.ResourceID,
			ActorID:    e.ActorID,
			ActorKind:  e.ActorKind,
			ScopeID:    e.ScopeID,
			Metadata:   e.Metadata,
			Outcome:    e.Outcome,
			Severity:   e.Severity,
			Reason:     e.Reason,
			RecordedAt: e.RecordedAt,
		})
	}

	coll := s.client.Database(s.database).Collection(s.collection)
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("audit/mongo: insert events: %w", err)
	}
	return nil
}
