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

// QAStore manages the per-guild question to answer mapping.
//
// Every mutation is a single pipeline update on one document, so concurrent
// writers on the same guild cannot lose each other's changes. Questions are
// passed as $literal values and may contain dots or start with '$'.
type QAStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// Get returns the guild's Q&A mapping, or an empty mapping if none is stored
func (s *QAStore) Get(ctx context.Context, serverID string) (map[string]string, error) {
	var record models.QARecord
	err := s.coll.FindOne(ctx, bson.D{{Key: "server_id", Value: serverID}}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get qa data: %w", err)
	}

	if record.QAData == nil {
		return map[string]string{}, nil
	}
	return record.QAData, nil
}

// Add sets one answer, overwriting any previous answer for the question
func (s *QAStore) Add(ctx context.Context, serverID, question, answer string) error {
	return s.AddPairs(ctx, serverID, []models.QAPair{{Question: question, Answer: answer}})
}

// AddPairs sets many answers in one write. Later pairs win over earlier ones
// with the same question. The document is created when missing.
func (s *QAStore) AddPairs(ctx context.Context, serverID string, pairs []models.QAPair) error {
	if len(pairs) == 0 {
		return nil
	}

	index := make(map[string]int, len(pairs))
	entries := make(bson.A, 0, len(pairs))
	for _, p := range pairs {
		entry := bson.D{{Key: "k", Value: p.Question}, {Key: "v", Value: p.Answer}}
		if i, ok := index[p.Question]; ok {
			entries[i] = entry
			continue
		}
		index[p.Question] = len(entries)
		entries = append(entries, entry)
	}

	merged := bson.D{{Key: "$mergeObjects", Value: bson.A{
		bson.D{{Key: "$ifNull", Value: bson.A{"$qa_data", bson.D{}}}},
		bson.D{{Key: "$arrayToObject", Value: bson.D{{Key: "$literal", Value: entries}}}},
	}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "qa_data", Value: merged}}}},
	}

	err := retryDuplicateUpsert(func() error {
		_, err := s.coll.UpdateOne(ctx,
			bson.D{{Key: "server_id", Value: serverID}},
			pipeline,
			options.Update().SetUpsert(true),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add qa data: %w", err)
	}

	s.logger.Debug("qa pairs stored",
		zap.String("server_id", serverID),
		zap.Int("pair_count", len(pairs)),
	)

	return nil
}

// Remove deletes one question. Missing records and questions are a no-op.
func (s *QAStore) Remove(ctx context.Context, serverID, question string) error {
	return s.RemoveBulk(ctx, serverID, []string{question})
}

// RemoveBulk deletes a set of questions in one write, leaving all other keys
// untouched. Missing records and questions are a no-op.
func (s *QAStore) RemoveBulk(ctx context.Context, serverID string, questions []string) error {
	if len(questions) == 0 {
		return nil
	}

	remaining := bson.D{{Key: "$arrayToObject", Value: bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$objectToArray", Value: bson.D{
			{Key: "$ifNull", Value: bson.A{"$qa_data", bson.D{}}},
		}}}},
		{Key: "as", Value: "entry"},
		{Key: "cond", Value: bson.D{{Key: "$not", Value: bson.A{
			bson.D{{Key: "$in", Value: bson.A{"$$entry.k", bson.D{{Key: "$literal", Value: questions}}}}},
		}}}},
	}}}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "qa_data", Value: remaining}}}},
	}

	result, err := s.coll.UpdateOne(ctx, bson.D{{Key: "server_id", Value: serverID}}, pipeline)
	if err != nil {
		return fmt.Errorf("failed to remove qa data: %w", err)
	}

	s.logger.Debug("qa questions removed",
		zap.String("server_id", serverID),
		zap.Int("question_count", len(questions)),
		zap.Int64("matched", result.MatchedCount),
	)

	return nil
}
