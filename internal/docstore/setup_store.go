package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guilddesk/internal/models"
)

// SetupStore manages the per-guild bot setup record
type SetupStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// Get returns the guild's setup record, or nil if none is stored
func (s *SetupStore) Get(ctx context.Context, serverID string) (*models.SetupRecord, error) {
	var record models.SetupRecord
	err := s.coll.FindOne(ctx, bson.D{{Key: "server_id", Value: serverID}}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setup: %w", err)
	}

	return &record, nil
}

// Save replaces the guild's whole setup record with the given fields.
// The replacement is one upserting write, so readers never see the record missing.
func (s *SetupStore) Save(ctx context.Context, serverID string, setupType models.SetupType, channelID int64) error {
	record := models.SetupRecord{
		ServerID:            serverID,
		SetupType:           setupType,
		ChannelOrCategoryID: channelID,
	}

	err := retryDuplicateUpsert(func() error {
		_, err := s.coll.ReplaceOne(ctx,
			bson.D{{Key: "server_id", Value: serverID}},
			record,
			options.Replace().SetUpsert(true),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save setup: %w", err)
	}

	s.logger.Debug("setup saved",
		zap.String("server_id", serverID),
		zap.String("setup_type", string(setupType)),
	)

	return nil
}
