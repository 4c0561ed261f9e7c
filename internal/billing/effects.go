package billing

import (
	"context"
	"fmt"
	"time"

	"hookgate/internal/logger"
	"hookgate/internal/workflow"
)

// Effects maps Stripe event types to business mutations. The mapping is a
// strategy table: adding an event type means adding one entry, not editing a
// branching function.
type Effects struct {
	repo      Repository
	workflows *workflow.Service
	logger    logger.Logger
	table     map[string]effectFunc
}

type effectFunc func(ctx context.Context, object map[string]interface{}, eventID string) (map[string]interface{}, error)

func NewEffects(repo Repository, workflows *workflow.Service, log logger.Logger) *Effects {
	e := &Effects{
		repo:      repo,
		workflows: workflows,
		logger:    log,
	}
	e.table = map[string]effectFunc{
		"checkout.session.completed":    e.checkoutCompleted,
		"customer.subscription.created": e.subscriptionCreated,
		"customer.subscription.updated": e.subscriptionUpdated,
		"customer.subscription.deleted": e.subscriptionDeleted,
		"invoice.payment_succeeded":     e.invoicePaymentSucceeded,
		"invoice.payment_failed":        e.invoicePaymentFailed,
	}
	return e
}

// Handle runs the effect registered for the event type. Unknown types are
// recorded no-ops.
func (e *Effects) Handle(ctx context.Context, payload map[string]interface{}, eventID string) (map[string]interface{}, error) {
	eventType := getString(payload, "type")
	fn, ok := e.table[eventType]
	if !ok {
		e.logger.InfowCtx(ctx, "No effect registered for event type",
			"event_type", eventType,
		)
		return map[string]interface{}{"received": true, "handled": false}, nil
	}

	object := objectOf(payload)
	result, err := fn(ctx, object, eventID)
	if err != nil {
		return nil, err
	}

	result["received"] = true
	result["handled"] = true
	return result, nil
}

func (e *Effects) checkoutCompleted(ctx context.Context, object map[string]interface{}, eventID string) (map[string]interface{}, error) {
	metadata := getMap(object, "metadata")

	payment := &Payment{
		UserID:        getString(metadata, "user_id"),
		TrainerID:     getString(metadata, "trainer_id"),
		PackageID:     getString(metadata, "package_id"),
		PaymentIntent: getString(object, "payment_intent"),
		PaymentType:   getString(metadata, "payment_type"),
		AmountValue:   getNumber(object, "amount_total") / 100,
		Currency:      getString(object, "currency"),
	}

	if err := e.repo.InsertPayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("checkout completed: %w", err)
	}

	result := map[string]interface{}{
		"payment_id": payment.ID,
	}

	if payment.PaymentType == "coach_selection" {
		request := &CoachSelectionRequest{
			UserID:    payment.UserID,
			TrainerID: payment.TrainerID,
			PackageID: payment.PackageID,
			PaymentID: payment.ID,
		}
		if err := e.repo.InsertCoachSelectionRequest(ctx, request); err != nil {
			return nil, fmt.Errorf("checkout completed: %w", err)
		}

		if err := e.repo.UpdateEngagementStage(ctx, payment.UserID, payment.TrainerID, EngagementStageCoachSelected); err != nil {
			return nil, fmt.Errorf("checkout completed: %w", err)
		}

		correlationID := e.workflows.StartWorkflow(ctx, "coach_selection", 3, map[string]interface{}{
			"user_id":    payment.UserID,
			"trainer_id": payment.TrainerID,
			"payment_id": payment.ID,
		}, "")
		if correlationID != "" {
			e.workflows.UpdateProgress(ctx, correlationID, 1, nil)
			result["workflow_id"] = correlationID
		}
	}

	return result, nil
}

func (e *Effects) subscriptionCreated(ctx context.Context, object map[string]interface{}, eventID string) (map[string]interface{}, error) {
	membership := membershipFrom(object)
	membership.Status = "active"

	if err := e.repo.UpsertMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("subscription created: %w", err)
	}

	if membership.UserID != "" && membership.TrainerID != "" {
		if err := e.repo.UpdateEngagementStage(ctx, membership.UserID, membership.TrainerID, EngagementStageActiveTraining); err != nil {
			return nil, fmt.Errorf("subscription created: %w", err)
		}
	}

	return map[string]interface{}{"subscription_id": membership.SubscriptionID}, nil
}

func (e *Effects) subscriptionUpdated(ctx context.Context, object map[string]interface{}, eventID string) (map[string]interface{}, error) {
	membership := membershipFrom(object)
	if membership.Status == "" {
		membership.Status = "active"
	}

	if err := e.repo.UpsertMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("subscription updated: %w", err)
	}

	return map[string]interface{}{"subscription_id": membership.SubscriptionID}, nil
}

func (e *Effects) subscriptionDeleted(ctx context.Context, object map[string]interface{}, eventID string) (map[string]interface{}, error) {
	membership := membershipFrom(object)
	membership.Status = "canceled"

	if err := e.repo.UpsertMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("subscription deleted: %w", err)
	}

	if membership.UserID != "" && membership.TrainerID != "" {
		if err := e.repo.UpdateEngagementStage(ctx, membership.UserID, membership.TrainerID, EngagementStageEnded); err != nil {
			return nil, fmt.Errorf("subscription deleted: %w", err)
		}
	}

	return map[string]interface{}{"subscription_id": membership.SubscriptionID}, nil
}

func (e *Effects) invoicePaymentSucceeded(ctx context.Context, object map[string]interface{}, eventID string) (map[string]interface{}, error) {
	return e.recordInvoice(ctx, object, "paid", true)
}

func (e *Effects) invoicePaymentFailed(ctx context.Context, object map[string]interface{}, eventID string) (map[string]interface{}, error) {
	return e.recordInvoice(ctx, object, "payment_failed", false)
}

func (e *Effects) recordInvoice(ctx context.Context, object map[string]interface{}, status string, paid bool) (map[string]interface{}, error) {
	inv := &Invoice{
		InvoiceID:      getString(object, "id"),
		SubscriptionID: getString(object, "subscription"),
		AmountValue:    getNumber(object, "amount_paid") / 100,
		Currency:       getString(object, "currency"),
		Status:         status,
		Paid:           paid,
	}
	if inv.AmountValue == 0 {
		inv.AmountValue = getNumber(object, "amount_due") / 100
	}

	if err := e.repo.RecordInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("invoice %s: %w", status, err)
	}

	return map[string]interface{}{"invoice_id": inv.InvoiceID}, nil
}

func membershipFrom(object map[string]interface{}) *Membership {
	metadata := getMap(object, "metadata")

	m := &Membership{
		SubscriptionID: getString(object, "id"),
		UserID:         getString(metadata, "user_id"),
		TrainerID:      getString(metadata, "trainer_id"),
		Status:         getString(object, "status"),
	}

	if end := getNumber(object, "current_period_end"); end > 0 {
		t := time.Unix(int64(end), 0)
		m.CurrentPeriodEnd = &t
	}

	return m
}

func objectOf(payload map[string]interface{}) map[string]interface{} {
	data := getMap(payload, "data")
	if object := getMap(data, "object"); len(object) > 0 {
		return object
	}
	return payload
}

func getString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

func getNumber(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
