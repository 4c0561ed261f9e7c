package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hookgate/internal/constants"
	"hookgate/internal/logger"
	pkgerrors "hookgate/pkg/errors"
	"hookgate/pkg/logging"
	"hookgate/pkg/metrics"
)

// Handler performs the business effects for a freshly claimed event. The
// processor guarantees it runs at most once per logical event; within that
// single invocation it may freely perform non-idempotent writes.
type Handler func(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error)

type Processor struct {
	ledger   Ledger
	cache    ResultCache
	logger   logger.Logger
	cacheTTL time.Duration
}

// NewProcessor builds a processor. cache may be nil when no Redis is
// configured; the ledger alone upholds every correctness guarantee.
func NewProcessor(ledger Ledger, cache ResultCache, cacheTTL time.Duration, log logger.Logger) *Processor {
	if cacheTTL <= 0 {
		cacheTTL = constants.DefaultResultCacheSeconds * time.Second
	}
	return &Processor{
		ledger:   ledger,
		cache:    cache,
		logger:   log,
		cacheTTL: cacheTTL,
	}
}

// ProcessEvent claims the event and runs the handler exactly once per logical
// event. Redeliveries of a completed event short-circuit with the stored
// result; a concurrent claim short-circuits with an in-progress flag. Only a
// failed claim step returns an error.
func (p *Processor) ProcessEvent(ctx context.Context, identity Identity, payload map[string]interface{}, rawPayload json.RawMessage, handler Handler) (*Outcome, error) {
	ctx = logging.WithProvider(ctx, identity.Provider)
	ctx = logging.WithEventID(ctx, identity.EventID)

	start := time.Now()

	if outcome := p.checkCache(ctx, identity); outcome != nil {
		metrics.IncEventProcessed(identity.Provider, "cache_hit")
		return outcome, nil
	}

	claim, err := p.ledger.Claim(ctx, identity, rawPayload)
	if err != nil {
		metrics.IncEventProcessed(identity.Provider, "claim_error")
		return nil, fmt.Errorf("claim failed: %w", err)
	}

	switch claim.State {
	case ClaimAlreadyProcessed:
		p.logger.InfowCtx(ctx, "Duplicate delivery of completed event",
			"event_id", claim.EventID,
		)
		metrics.IncEventProcessed(identity.Provider, "already_processed")
		p.storeInCache(ctx, identity, claim.Result)
		return &Outcome{
			Success:   true,
			State:     ClaimAlreadyProcessed,
			Duplicate: true,
			Result:    decodeResult(claim.Result),
		}, nil

	case ClaimInProgress:
		p.logger.InfowCtx(ctx, "Concurrent delivery, event already claimed",
			"event_id", claim.EventID,
		)
		metrics.IncEventProcessed(identity.Provider, "in_progress")
		return &Outcome{
			Success:   true,
			State:     ClaimInProgress,
			Duplicate: true,
		}, nil
	}

	outcome := p.runHandler(ctx, identity, payload, claim.EventID, handler)
	metrics.ObserveProcessingDuration(identity.Provider, string(outcome.State), time.Since(start))
	return outcome, nil
}

// runHandler invokes the business handler for a fresh claim and always drives
// the ledger row to a terminal state. Terminal-write failures are logged, not
// re-thrown; the provider's redelivery is the recovery path.
func (p *Processor) runHandler(ctx context.Context, identity Identity, payload map[string]interface{}, eventID string, handler Handler) *Outcome {
	result, err := p.invoke(ctx, payload, eventID, handler)
	if err != nil {
		if failErr := p.ledger.Fail(ctx, eventID, err.Error()); failErr != nil {
			p.logger.ErrorwCtx(ctx, "Failed to record event failure",
				"event_id", eventID,
				"error", failErr,
			)
		}
		metrics.IncEventProcessed(identity.Provider, "failed")
		return &Outcome{
			Success: false,
			State:   ClaimNew,
			Error:   err.Error(),
		}
	}

	encoded, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		p.logger.ErrorwCtx(ctx, "Failed to encode handler result",
			"event_id", eventID,
			"error", marshalErr,
		)
		encoded = []byte("{}")
	}

	if completeErr := p.ledger.Complete(ctx, eventID, encoded); completeErr != nil {
		p.logger.ErrorwCtx(ctx, "Failed to record event completion",
			"event_id", eventID,
			"error", completeErr,
		)
		// The row stays claimed and the provider will redeliver; counting this
		// as completed would overcount against redelivery reprocessing.
		metrics.IncEventProcessed(identity.Provider, "complete_write_failed")
	} else {
		p.storeInCache(ctx, identity, encoded)
		metrics.IncEventProcessed(identity.Provider, "completed")
	}
	return &Outcome{
		Success: true,
		State:   ClaimNew,
		Result:  result,
	}
}

// invoke runs the handler with panic containment so a panicking business
// effect marks the event failed instead of taking the request down.
func (p *Processor) invoke(ctx context.Context, payload map[string]interface{}, eventID string, handler Handler) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.RecoverPanic(r)
			p.logger.ErrorwCtx(ctx, "Handler panicked",
				"event_id", eventID,
				"error", err,
			)
		}
	}()

	return handler(ctx, payload, eventID)
}

func (p *Processor) checkCache(ctx context.Context, identity Identity) *Outcome {
	if p.cache == nil {
		return nil
	}

	cached, err := p.cache.GetResult(ctx, identity.Provider, identity.EventID)
	if err != nil {
		p.logger.WarnwCtx(ctx, "Result cache lookup failed",
			"error", err,
		)
		metrics.ResultCacheHitsTotal.WithLabelValues("error").Inc()
		return nil
	}
	if cached == nil {
		metrics.ResultCacheHitsTotal.WithLabelValues("miss").Inc()
		return nil
	}

	metrics.ResultCacheHitsTotal.WithLabelValues("hit").Inc()
	return &Outcome{
		Success:   true,
		State:     ClaimAlreadyProcessed,
		Duplicate: true,
		Result:    decodeResult(cached),
	}
}

func (p *Processor) storeInCache(ctx context.Context, identity Identity, result json.RawMessage) {
	if p.cache == nil || len(result) == 0 {
		return
	}

	if err := p.cache.SetResult(ctx, identity.Provider, identity.EventID, result, p.cacheTTL); err != nil {
		p.logger.WarnwCtx(ctx, "Failed to cache event result",
			"error", err,
		)
	}
}

func decodeResult(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return result
}
