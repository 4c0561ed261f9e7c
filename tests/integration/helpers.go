package integration

import (
	"encoding/json"

	"hookgate/internal/event"
	"hookgate/internal/logger"
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestIdentity(provider, eventID string) event.Identity {
	return event.Identity{
		Provider:  provider,
		EventID:   eventID,
		EventType: "test.event",
		Signature: "sig",
	}
}

func rawPayload(id string) json.RawMessage {
	return json.RawMessage(`{"id":"` + id + `"}`)
}
