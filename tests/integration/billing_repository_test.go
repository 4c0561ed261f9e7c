package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookgate/internal/billing"
	pkgerrors "hookgate/pkg/errors"
)

func TestBillingInsertPayment(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	repo := billing.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	payment := &billing.Payment{
		UserID:        "u1",
		TrainerID:     "t1",
		PackageID:     "pkg_1",
		PaymentIntent: "pi_1",
		PaymentType:   "coach_selection",
		AmountValue:   100.00,
		Currency:      "usd",
	}

	require.NoError(t, repo.InsertPayment(ctx, payment))
	assert.NotEmpty(t, payment.ID)

	var amount float64
	err := infra.PostgresDB.QueryRowContext(ctx,
		"SELECT amount_value FROM customer_payments WHERE id = $1", payment.ID,
	).Scan(&amount)
	require.NoError(t, err)
	assert.Equal(t, 100.00, amount)
}

func TestBillingInsertPaymentDuplicateID(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	repo := billing.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	payment := &billing.Payment{UserID: "u1", AmountValue: 50.00}
	require.NoError(t, repo.InsertPayment(ctx, payment))

	dup := &billing.Payment{ID: payment.ID, UserID: "u1", AmountValue: 50.00}
	err := repo.InsertPayment(ctx, dup)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestBillingEngagementStageUpsert(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	repo := billing.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	require.NoError(t, repo.UpdateEngagementStage(ctx, "u1", "t1", billing.EngagementStageCoachSelected))
	require.NoError(t, repo.UpdateEngagementStage(ctx, "u1", "t1", billing.EngagementStageActiveTraining))

	var stage string
	var count int
	err := infra.PostgresDB.QueryRowContext(ctx,
		"SELECT stage, (SELECT count(*) FROM client_trainer_engagement WHERE user_id = $1 AND trainer_id = $2) FROM client_trainer_engagement WHERE user_id = $1 AND trainer_id = $2",
		"u1", "t1",
	).Scan(&stage, &count)
	require.NoError(t, err)
	assert.Equal(t, billing.EngagementStageActiveTraining, stage)
	assert.Equal(t, 1, count)
}

func TestBillingMembershipUpsert(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	repo := billing.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	end := time.Now().Add(30 * 24 * time.Hour)
	membership := &billing.Membership{
		SubscriptionID:   "sub_1",
		UserID:           "u1",
		TrainerID:        "t1",
		Status:           "active",
		CurrentPeriodEnd: &end,
	}
	require.NoError(t, repo.UpsertMembership(ctx, membership))

	membership.Status = "canceled"
	require.NoError(t, repo.UpsertMembership(ctx, membership))

	var status string
	err := infra.PostgresDB.QueryRowContext(ctx,
		"SELECT status FROM trainer_membership WHERE subscription_id = $1", "sub_1",
	).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, "canceled", status)
}

func TestBillingRecordInvoice(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	repo := billing.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	inv := &billing.Invoice{
		InvoiceID:      "in_1",
		SubscriptionID: "sub_1",
		AmountValue:    25.00,
		Currency:       "usd",
		Status:         "payment_failed",
		Paid:           false,
	}
	require.NoError(t, repo.RecordInvoice(ctx, inv))

	// A later succeeded delivery for the same invoice flips the status.
	inv.Status = "paid"
	inv.Paid = true
	require.NoError(t, repo.RecordInvoice(ctx, inv))

	var status string
	var paid bool
	err := infra.PostgresDB.QueryRowContext(ctx,
		"SELECT status, paid FROM billing_invoice WHERE invoice_id = $1", "in_1",
	).Scan(&status, &paid)
	require.NoError(t, err)
	assert.Equal(t, "paid", status)
	assert.True(t, paid)
}
