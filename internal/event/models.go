package event

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type ClaimState string

const (
	ClaimNew              ClaimState = "new"
	ClaimAlreadyProcessed ClaimState = "already_processed"
	ClaimInProgress       ClaimState = "in_progress"
)

// Identity is the normalized triple the dispatcher derives from an inbound
// webhook. Stable across provider redeliveries of the same logical event.
type Identity struct {
	Provider  string
	EventID   string
	EventType string
	Signature string
}

// Record is a row in the webhook_events ledger.
type Record struct {
	ID           string
	Provider     string
	EventID      string
	EventType    string
	Signature    string
	Payload      json.RawMessage
	Status       Status
	Result       json.RawMessage
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// Claim is the outcome of the atomic claim step.
type Claim struct {
	State   ClaimState
	EventID string
	Result  json.RawMessage
}

// Outcome is what ProcessEvent reports back to the dispatcher.
type Outcome struct {
	Success   bool
	State     ClaimState
	Duplicate bool
	Result    map[string]interface{}
	Error     string
}
