package models

import "time"

// AlertEnvelope is the message published to the alert topic whenever a
// webhook event reaches a terminal state.
type AlertEnvelope struct {
	ID        string                 `json:"id"`
	Provider  string                 `json:"provider"`
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Metadata  AlertMetadata          `json:"metadata"`
}

type AlertMetadata struct {
	RequestID    string `json:"request_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Duplicate    bool   `json:"duplicate,omitempty"`
}
