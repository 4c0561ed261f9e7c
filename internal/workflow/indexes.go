package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the workflow collection indexes. Safe to call on every
// startup.
func (s *Service) EnsureIndexes(ctx context.Context) error {
	if s == nil {
		return nil
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "correlation_id", Value: 1}},
			Options: options.Index().SetName("idx_workflows_correlation_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "workflow_type", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_workflows_type_updated_at"),
		},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create workflow indexes: %w", err)
		}
	}

	return nil
}
