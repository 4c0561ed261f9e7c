package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"hookgate/internal/constants"
	"hookgate/internal/logger"
	"hookgate/pkg/metrics"
)

// Service tracks workflow progress in MongoDB. Workflow tracking is an
// observability aid: every failure degrades to "no tracking" instead of
// surfacing to the webhook caller. A nil *Service is valid and inert.
type Service struct {
	collection *mongo.Collection
	logger     logger.Logger
}

// NewService returns nil when no Mongo client is configured.
func NewService(client *mongo.Client, database string, log logger.Logger) *Service {
	if client == nil {
		return nil
	}
	if database == "" {
		database = constants.DefaultMongoDBName
	}
	return &Service{
		collection: client.Database(database).Collection(constants.WorkflowCollection),
		logger:     log,
	}
}

// StartWorkflow creates a workflow record and returns its correlation id, or
// "" when tracking is unavailable.
func (s *Service) StartWorkflow(ctx context.Context, workflowType string, totalSteps int, initialState map[string]interface{}, correlationID string) string {
	if s == nil {
		return ""
	}

	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	now := time.Now()
	rec := Record{
		CorrelationID: correlationID,
		WorkflowType:  workflowType,
		TotalSteps:    totalSteps,
		CurrentStep:   0,
		StateData:     initialState,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := s.collection.InsertOne(ctx, rec); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to start workflow",
			"workflow_type", workflowType,
			"error", err,
		)
		metrics.WorkflowOperationsTotal.WithLabelValues("start", "error").Inc()
		return ""
	}

	metrics.WorkflowOperationsTotal.WithLabelValues("start", "ok").Inc()
	return correlationID
}

// UpdateProgress advances a workflow to the given step, merging optional state
// data. Returns false on any failure or when tracking is unavailable.
func (s *Service) UpdateProgress(ctx context.Context, correlationID string, currentStep int, stateData map[string]interface{}) bool {
	if s == nil || correlationID == "" {
		return false
	}

	update := bson.M{
		"current_step": currentStep,
		"updated_at":   time.Now(),
	}
	for k, v := range stateData {
		update["state_data."+k] = v
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"correlation_id": correlationID},
		bson.M{"$set": update},
	)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Failed to update workflow progress",
			"correlation_id", correlationID,
			"error", err,
		)
		metrics.WorkflowOperationsTotal.WithLabelValues("update", "error").Inc()
		return false
	}
	if res.MatchedCount == 0 {
		metrics.WorkflowOperationsTotal.WithLabelValues("update", "not_found").Inc()
		return false
	}

	metrics.WorkflowOperationsTotal.WithLabelValues("update", "ok").Inc()
	return true
}
