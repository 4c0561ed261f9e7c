package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hookgate/internal/broker"
	"hookgate/internal/constants"
	"hookgate/internal/event"
	"hookgate/internal/logger"
	"hookgate/pkg/logging"
	"hookgate/pkg/metrics"
	"hookgate/pkg/models"
	"hookgate/pkg/retry"
)

// Notifier publishes alert envelopes for terminal event outcomes. Publishing
// is fire-and-forget with bounded concurrency and retry; a failed or dropped
// publish is logged and counted but never visible to the webhook caller.
type Notifier struct {
	producer broker.Producer
	topic    string
	policy   retry.Policy
	logger   logger.Logger
	group    *errgroup.Group
}

// NewNotifier returns nil when no producer is configured; a nil Notifier is
// valid and inert.
func NewNotifier(producer broker.Producer, topic string, workers int, policy retry.Policy, log logger.Logger) *Notifier {
	if producer == nil {
		return nil
	}
	if topic == "" {
		topic = constants.DefaultAlertTopic
	}
	if workers <= 0 {
		workers = constants.DefaultAlertWorkers
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}

	group := &errgroup.Group{}
	group.SetLimit(workers)

	return &Notifier{
		producer: producer,
		topic:    topic,
		policy:   policy,
		logger:   log,
		group:    group,
	}
}

// EventProcessed queues an alert for a processed webhook event.
func (n *Notifier) EventProcessed(ctx context.Context, identity event.Identity, outcome *event.Outcome) {
	if n == nil {
		return
	}

	// A fresh claim that succeeded is terminal in the ledger as "completed";
	// duplicates keep their claim state, failures override everything.
	status := string(outcome.State)
	if outcome.State == event.ClaimNew {
		status = string(event.StatusCompleted)
	}
	if !outcome.Success {
		status = string(event.StatusFailed)
	}

	envelope := models.AlertEnvelope{
		ID:        uuid.New().String(),
		Provider:  identity.Provider,
		EventID:   identity.EventID,
		EventType: identity.EventType,
		Status:    status,
		Timestamp: time.Now(),
		Payload:   outcome.Result,
		Metadata: models.AlertMetadata{
			RequestID:    logging.GetRequestID(ctx),
			ErrorMessage: outcome.Error,
			Duplicate:    outcome.Duplicate,
		},
	}

	// Detached from the request lifecycle so the HTTP response never waits on
	// Kafka. TryGo keeps that true when every worker is busy: the alert is
	// dropped instead of blocking the caller.
	publishCtx := context.WithoutCancel(ctx)

	if !n.group.TryGo(func() error {
		n.publish(publishCtx, envelope)
		return nil
	}) {
		metrics.AlertsPublishedTotal.WithLabelValues("dropped").Inc()
		n.logger.WarnwCtx(ctx, "Alert dropped, publish workers saturated",
			"provider", envelope.Provider,
			"event_id", envelope.EventID,
		)
	}
}

func (n *Notifier) publish(ctx context.Context, envelope models.AlertEnvelope) {
	ctx, cancel := context.WithTimeout(ctx, constants.KafkaWriteTimeout)
	defer cancel()

	err := retry.RetryWithCallback(ctx, n.policy,
		func() error {
			return n.producer.Publish(ctx, n.topic, envelope)
		},
		func(attempt int, err error, nextDelay time.Duration) {
			metrics.RetryAttemptsTotal.WithLabelValues("alerts", "publish").Inc()
			n.logger.WarnwCtx(ctx, "Alert publish failed, retrying",
				"attempt", attempt,
				"next_delay", nextDelay,
				"error", err,
			)
		},
	)
	if err != nil {
		metrics.AlertsPublishedTotal.WithLabelValues("error").Inc()
		n.logger.ErrorwCtx(ctx, "Failed to publish alert",
			"provider", envelope.Provider,
			"event_id", envelope.EventID,
			"error", err,
		)
		return
	}

	metrics.AlertsPublishedTotal.WithLabelValues("ok").Inc()
}

// Close waits for in-flight publishes and closes the producer.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	_ = n.group.Wait()
	return n.producer.Close()
}
