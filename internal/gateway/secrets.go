package gateway

import (
	"os"
	"strings"

	"hookgate/internal/config"
	"hookgate/internal/constants"
)

// SecretResolver finds the verification secret for a provider, preferring
// explicit config over process environment. The env convention is the one
// providers document: STRIPE_WEBHOOK_SECRET, SENDGRID_PUBLIC_KEY,
// TWILIO_AUTH_TOKEN, and <PROVIDER>_WEBHOOK_SECRET for everything else.
type SecretResolver struct {
	providers map[string]config.ProviderConfig
}

func NewSecretResolver(providers map[string]config.ProviderConfig) *SecretResolver {
	return &SecretResolver{providers: providers}
}

func (r *SecretResolver) Resolve(provider string) string {
	if cfg, ok := r.providers[provider]; ok && cfg.Secret != "" {
		return cfg.Secret
	}

	switch provider {
	case constants.ProviderStripe:
		return os.Getenv(constants.EnvStripeWebhookSecret)
	case constants.ProviderSendGrid:
		return os.Getenv(constants.EnvSendGridPublicKey)
	case constants.ProviderTwilio:
		return os.Getenv(constants.EnvTwilioAuthToken)
	default:
		return os.Getenv(strings.ToUpper(provider) + constants.EnvGenericSecretSuffix)
	}
}
