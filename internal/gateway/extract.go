package gateway

import (
	"fmt"
	"net/http"
	"time"

	"hookgate/internal/constants"
	"hookgate/internal/event"
)

// ExtractionRule derives the normalized event identity from a parsed payload
// and the request headers. Rules must be deterministic so a provider
// redelivery re-derives the same provider event id.
type ExtractionRule func(provider string, payload map[string]interface{}, headers http.Header) event.Identity

var extractionRules = map[string]ExtractionRule{
	constants.ProviderStripe:   extractStripe,
	constants.ProviderSendGrid: extractSendGrid,
	constants.ProviderTwilio:   extractTwilio,
}

// ExtractIdentity applies the provider's extraction rule, falling back to the
// generic rule for unregistered providers.
func ExtractIdentity(provider string, payload map[string]interface{}, headers http.Header) event.Identity {
	if rule, ok := extractionRules[provider]; ok {
		return rule(provider, payload, headers)
	}
	return extractGeneric(provider, payload, headers)
}

func extractStripe(provider string, payload map[string]interface{}, headers http.Header) event.Identity {
	return event.Identity{
		Provider:  provider,
		EventID:   stringField(payload, "id"),
		EventType: stringField(payload, "type"),
		Signature: headers.Get(constants.HeaderStripeSignature),
	}
}

func extractSendGrid(provider string, payload map[string]interface{}, headers http.Header) event.Identity {
	eventID := stringField(payload, "sg_message_id")
	if eventID == "" {
		eventID = fmt.Sprintf("%s-%s", stringField(payload, "email"), rawField(payload, "timestamp"))
	}

	return event.Identity{
		Provider:  provider,
		EventID:   eventID,
		EventType: stringField(payload, "event"),
		Signature: headers.Get(constants.HeaderSendGridSignature),
	}
}

func extractTwilio(provider string, payload map[string]interface{}, headers http.Header) event.Identity {
	return event.Identity{
		Provider:  provider,
		EventID:   firstString(payload, "MessageSid", "CallSid", "SmsSid"),
		EventType: firstString(payload, "MessageStatus", "CallStatus", "SmsStatus"),
		Signature: headers.Get(constants.HeaderTwilioSignature),
	}
}

func extractGeneric(provider string, payload map[string]interface{}, headers http.Header) event.Identity {
	eventID := firstString(payload, "id", "event_id")
	if eventID == "" {
		eventID = fmt.Sprintf("%s-%d", provider, time.Now().UnixMilli())
	}

	eventType := firstString(payload, "type", "event_type")
	if eventType == "" {
		eventType = "generic"
	}

	signature := headers.Get(constants.HeaderGenericSignature)
	if signature == "" {
		signature = headers.Get(constants.HeaderGenericSignatureAlt)
	}

	return event.Identity{
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		Signature: signature,
	}
}

func stringField(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// rawField renders numbers without a decimal point so sendgrid's numeric
// timestamps produce stable ids.
func rawField(payload map[string]interface{}, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int64(v))
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func firstString(payload map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v := stringField(payload, key); v != "" {
			return v
		}
	}
	return ""
}
