package workflow

import "time"

// Record tracks a multi-step process spanning several webhook deliveries,
// e.g. a checkout followed by a subscription-created event. Terminal state is
// the caller's responsibility; records are never closed here.
type Record struct {
	CorrelationID string                 `bson:"correlation_id"`
	WorkflowType  string                 `bson:"workflow_type"`
	TotalSteps    int                    `bson:"total_steps"`
	CurrentStep   int                    `bson:"current_step"`
	StateData     map[string]interface{} `bson:"state_data,omitempty"`
	CreatedAt     time.Time              `bson:"created_at"`
	UpdatedAt     time.Time              `bson:"updated_at"`
}
