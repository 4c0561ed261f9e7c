package constants

import "time"

const (
	ProviderStripe   = "stripe"
	ProviderSendGrid = "sendgrid"
	ProviderTwilio   = "twilio"
	ProviderUnknown  = "unknown"
)

const (
	HeaderStripeSignature     = "stripe-signature"
	HeaderSendGridSignature   = "x-twilio-email-event-webhook-signature"
	HeaderSendGridTimestamp   = "x-twilio-email-event-webhook-timestamp"
	HeaderTwilioSignature     = "x-twilio-signature"
	HeaderGenericSignature    = "x-webhook-signature"
	HeaderGenericSignatureAlt = "x-signature"
)

const (
	EnvStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	EnvSendGridPublicKey   = "SENDGRID_PUBLIC_KEY"
	EnvTwilioAuthToken     = "TWILIO_AUTH_TOKEN"
	// Any other provider resolves its secret from <PROVIDER>_WEBHOOK_SECRET.
	EnvGenericSecretSuffix = "_WEBHOOK_SECRET"
)

const (
	CacheKeyPrefixResult = "event:result:"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultLedgerTimeout = 5 * time.Second
	ShutdownTimeout      = 5 * time.Second
)

const (
	DefaultAlertTopic   = "hookgate.alerts"
	DefaultAlertWorkers = 4
)

const (
	DefaultMongoDBName        = "hookgate"
	WorkflowCollection        = "workflows"
	DefaultResultCacheSeconds = 86400
)
