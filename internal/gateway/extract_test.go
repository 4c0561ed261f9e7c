package gateway

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"hookgate/internal/event"
)

func TestExtractIdentity(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		payload  map[string]interface{}
		headers  http.Header
		want     event.Identity
	}{
		{
			name:     "stripe",
			provider: "stripe",
			payload: map[string]interface{}{
				"id":   "evt_123",
				"type": "checkout.session.completed",
			},
			headers: http.Header{"Stripe-Signature": {"deadbeef"}},
			want: event.Identity{
				Provider:  "stripe",
				EventID:   "evt_123",
				EventType: "checkout.session.completed",
				Signature: "deadbeef",
			},
		},
		{
			name:     "stripe missing fields",
			provider: "stripe",
			payload:  map[string]interface{}{},
			headers:  http.Header{},
			want:     event.Identity{Provider: "stripe"},
		},
		{
			name:     "sendgrid with message id",
			provider: "sendgrid",
			payload: map[string]interface{}{
				"sg_message_id": "msg-abc.filter001",
				"event":         "delivered",
				"email":         "user@example.com",
			},
			headers: http.Header{"X-Twilio-Email-Event-Webhook-Signature": {"sig=="}},
			want: event.Identity{
				Provider:  "sendgrid",
				EventID:   "msg-abc.filter001",
				EventType: "delivered",
				Signature: "sig==",
			},
		},
		{
			name:     "sendgrid falls back to email and timestamp",
			provider: "sendgrid",
			payload: map[string]interface{}{
				"email":     "user@example.com",
				"timestamp": float64(1700000000),
				"event":     "open",
			},
			headers: http.Header{},
			want: event.Identity{
				Provider:  "sendgrid",
				EventID:   "user@example.com-1700000000",
				EventType: "open",
			},
		},
		{
			name:     "twilio message",
			provider: "twilio",
			payload: map[string]interface{}{
				"MessageSid":    "SM123",
				"MessageStatus": "delivered",
			},
			headers: http.Header{"X-Twilio-Signature": {"b64sig"}},
			want: event.Identity{
				Provider:  "twilio",
				EventID:   "SM123",
				EventType: "delivered",
				Signature: "b64sig",
			},
		},
		{
			name:     "twilio call falls back to call sid",
			provider: "twilio",
			payload: map[string]interface{}{
				"CallSid":    "CA456",
				"CallStatus": "completed",
			},
			headers: http.Header{},
			want: event.Identity{
				Provider:  "twilio",
				EventID:   "CA456",
				EventType: "completed",
			},
		},
		{
			name:     "twilio sms sid last",
			provider: "twilio",
			payload: map[string]interface{}{
				"SmsSid":    "SS789",
				"SmsStatus": "sent",
			},
			headers: http.Header{},
			want: event.Identity{
				Provider:  "twilio",
				EventID:   "SS789",
				EventType: "sent",
			},
		},
		{
			name:     "generic with id and type",
			provider: "acme",
			payload: map[string]interface{}{
				"id":   "gen-1",
				"type": "user.created",
			},
			headers: http.Header{"X-Webhook-Signature": {"abc123"}},
			want: event.Identity{
				Provider:  "acme",
				EventID:   "gen-1",
				EventType: "user.created",
				Signature: "abc123",
			},
		},
		{
			name:     "generic event_id and event_type fallbacks",
			provider: "acme",
			payload: map[string]interface{}{
				"event_id":   "gen-2",
				"event_type": "user.deleted",
			},
			headers: http.Header{"X-Signature": {"def456"}},
			want: event.Identity{
				Provider:  "acme",
				EventID:   "gen-2",
				EventType: "user.deleted",
				Signature: "def456",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractIdentity(tt.provider, tt.payload, tt.headers)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractIdentityGenericSynthesizesID(t *testing.T) {
	got := ExtractIdentity("acme", map[string]interface{}{}, http.Header{})

	assert.Equal(t, "acme", got.Provider)
	assert.True(t, strings.HasPrefix(got.EventID, "acme-"))
	assert.Equal(t, "generic", got.EventType)
}

func TestExtractIdentityGenericPrefersPrimarySignatureHeader(t *testing.T) {
	headers := http.Header{
		"X-Webhook-Signature": {"primary"},
		"X-Signature":         {"alternate"},
	}
	got := ExtractIdentity("acme", map[string]interface{}{"id": "gen-1"}, headers)
	assert.Equal(t, "primary", got.Signature)
}
