// Package docstore persists the per-guild Q&A and setup documents in MongoDB.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guilddesk/internal/config"
)

// Collection names
const (
	DatasetCollection = "dataset"
	SetupCollection   = "setup"
)

// Store wraps the MongoDB client and the guild document collections
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Connect opens a MongoDB connection and verifies it with a ping
func Connect(ctx context.Context, cfg *config.MongoConfig, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("document store connection established", zap.String("database", cfg.Database))

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// Close disconnects from MongoDB
func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("closing document store connection")
	return s.client.Disconnect(ctx)
}

// Health checks the document store health
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("document store health check failed: %w", err)
	}

	return nil
}

// EnsureIndexes creates the unique server_id index on both collections
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, name := range []string{DatasetCollection, SetupCollection} {
		_, err := s.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "server_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("server_id_unique"),
		})
		if err != nil {
			return fmt.Errorf("failed to create server_id index on %s: %w", name, err)
		}
	}

	s.logger.Info("document store indexes ensured")
	return nil
}

// QA returns the Q&A store backed by the dataset collection
func (s *Store) QA() *QAStore {
	return &QAStore{coll: s.db.Collection(DatasetCollection), logger: s.logger}
}

// Setup returns the setup store backed by the setup collection
func (s *Store) Setup() *SetupStore {
	return &SetupStore{coll: s.db.Collection(SetupCollection), logger: s.logger}
}

// retryDuplicateUpsert runs an upserting write, repeating it once when two
// concurrent upserts raced to insert the same server_id
func retryDuplicateUpsert(write func() error) error {
	err := write()
	if mongo.IsDuplicateKeyError(err) {
		err = write()
	}
	return err
}
