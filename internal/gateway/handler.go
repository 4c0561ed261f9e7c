package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"hookgate/internal/alerts"
	"hookgate/internal/billing"
	"hookgate/internal/constants"
	"hookgate/internal/event"
	"hookgate/internal/filter"
	"hookgate/internal/logger"
	"hookgate/internal/signature"
	"hookgate/pkg/logging"
	"hookgate/pkg/metrics"
)

// Handler is the single webhook entry point. It identifies the provider,
// verifies the payload, and hands the normalized event to the processor.
type Handler struct {
	verifier  *signature.Verifier
	processor *event.Processor
	effects   *billing.Effects
	notifier  *alerts.Notifier
	filter    *filter.Filter
	secrets   *SecretResolver
	logger    logger.Logger
}

func NewHandler(
	verifier *signature.Verifier,
	processor *event.Processor,
	effects *billing.Effects,
	notifier *alerts.Notifier,
	eventFilter *filter.Filter,
	secrets *SecretResolver,
	log logger.Logger,
) *Handler {
	return &Handler{
		verifier:  verifier,
		processor: processor,
		effects:   effects,
		notifier:  notifier,
		filter:    eventFilter,
		secrets:   secrets,
		logger:    log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/", h.HandleWebhook)
}

// HandleWebhook godoc
// @Summary      Ingest a provider webhook
// @Description  Verifies the payload signature and processes the event exactly once
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        provider  query  string  false  "Provider name (stripe, sendgrid, twilio, ...)"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {string}  string  "Invalid signature"
// @Failure      500  {object}  map[string]interface{}
// @Router       / [post]
func (h *Handler) HandleWebhook(c *gin.Context) {
	provider := c.DefaultQuery("provider", constants.ProviderUnknown)
	metrics.WebhooksReceivedTotal.WithLabelValues(provider).Inc()

	ctx := logging.WithProvider(c.Request.Context(), provider)

	body, err := c.GetRawData()
	if err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to read request body", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read request body"})
		return
	}

	payload, formData := parseBody(body, c.ContentType())

	identity := ExtractIdentity(provider, payload, c.Request.Header)
	ctx = logging.WithEventID(ctx, identity.EventID)

	secret := h.secrets.Resolve(provider)
	ok, checked := h.verifier.Verify(signature.Request{
		Provider:  provider,
		Body:      body,
		URL:       requestURL(c),
		FormData:  formData,
		Signature: identity.Signature,
		Timestamp: c.GetHeader(constants.HeaderSendGridTimestamp),
	}, secret)
	if !ok {
		h.logger.WarnwCtx(ctx, "Webhook rejected",
			"verified", checked,
		)
		c.String(http.StatusUnauthorized, "Invalid signature")
		return
	}
	if !checked {
		h.logger.DebugwCtx(ctx, "Signature verification skipped")
	}

	if h.filter.ShouldDrop(ctx, provider, identity.EventType, payload) {
		h.logger.InfowCtx(ctx, "Event dropped by filter",
			"event_type", identity.EventType,
		)
		c.JSON(http.StatusOK, gin.H{"received": true, "dropped": true})
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, constants.DefaultLedgerTimeout)
	defer cancel()

	outcome, err := h.processor.ProcessEvent(processCtx, identity, payload, json.RawMessage(mustJSON(payload)), h.handlerFor(provider))
	if err != nil {
		h.logger.ErrorwCtx(ctx, "Event processing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.notifier.EventProcessed(ctx, identity, outcome)

	if !outcome.Success {
		c.JSON(http.StatusInternalServerError, gin.H{"error": outcome.Error})
		return
	}

	c.JSON(http.StatusOK, successBody(outcome))
}

// handlerFor selects the business handler. Only stripe carries concrete
// effects; every other provider gets an acknowledging no-op.
func (h *Handler) handlerFor(provider string) event.Handler {
	if provider == constants.ProviderStripe && h.effects != nil {
		return h.effects.Handle
	}
	return func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
		return map[string]interface{}{"received": true}, nil
	}
}

func successBody(outcome *event.Outcome) map[string]interface{} {
	body := make(map[string]interface{}, len(outcome.Result)+3)
	for k, v := range outcome.Result {
		body[k] = v
	}
	body["success"] = true
	if outcome.Duplicate {
		body["duplicate"] = true
	}
	if outcome.State == event.ClaimInProgress {
		body["status"] = string(event.ClaimInProgress)
	}
	return body
}

// parseBody decodes the raw body. JSON objects pass through; form-encoded
// bodies (Twilio) become a flat map and are kept for signature computation;
// anything else is wrapped as {"raw": <text>}.
func parseBody(body []byte, contentType string) (map[string]interface{}, url.Values) {
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(body))
		if err == nil {
			payload := make(map[string]interface{}, len(values))
			for k := range values {
				payload[k] = values.Get(k)
			}
			return payload, values
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return map[string]interface{}{"raw": string(body)}, nil
	}
	return payload, nil
}

func requestURL(c *gin.Context) string {
	scheme := "https"
	if c.Request.TLS == nil {
		scheme = "http"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + c.Request.Host + c.Request.RequestURI
}

func mustJSON(payload map[string]interface{}) []byte {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return []byte("{}")
	}
	return encoded
}
