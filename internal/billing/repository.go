package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "hookgate/pkg/errors"
)

type Repository interface {
	InsertPayment(ctx context.Context, p *Payment) error
	InsertCoachSelectionRequest(ctx context.Context, r *CoachSelectionRequest) error
	UpdateEngagementStage(ctx context.Context, userID, trainerID, stage string) error
	UpsertMembership(ctx context.Context, m *Membership) error
	RecordInvoice(ctx context.Context, inv *Invoice) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertPayment(ctx context.Context, p *Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now()

	query := `
		INSERT INTO customer_payments (id, user_id, trainer_id, package_id, payment_intent, payment_type, amount_value, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.TrainerID, p.PackageID, p.PaymentIntent,
		p.PaymentType, p.AmountValue, p.Currency, p.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("payment for intent '%s' already recorded", p.PaymentIntent))
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

func (r *PostgresRepository) InsertCoachSelectionRequest(ctx context.Context, req *CoachSelectionRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = "pending"
	}
	req.CreatedAt = time.Now()

	query := `
		INSERT INTO coach_selection_requests (id, user_id, trainer_id, package_id, payment_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.UserID, req.TrainerID, req.PackageID, req.PaymentID, req.Status, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert coach selection request: %w", err)
	}

	return nil
}

func (r *PostgresRepository) UpdateEngagementStage(ctx context.Context, userID, trainerID, stage string) error {
	query := `
		INSERT INTO client_trainer_engagement (id, user_id, trainer_id, stage, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, trainer_id)
		DO UPDATE SET stage = EXCLUDED.stage, updated_at = now()
	`

	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), userID, trainerID, stage)
	if err != nil {
		return fmt.Errorf("failed to update engagement stage: %w", err)
	}

	return nil
}

func (r *PostgresRepository) UpsertMembership(ctx context.Context, m *Membership) error {
	m.UpdatedAt = time.Now()

	query := `
		INSERT INTO trainer_membership (subscription_id, user_id, trainer_id, status, current_period_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subscription_id)
		DO UPDATE SET status = EXCLUDED.status, current_period_end = EXCLUDED.current_period_end, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		m.SubscriptionID, m.UserID, m.TrainerID, m.Status, m.CurrentPeriodEnd, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}

	return nil
}

func (r *PostgresRepository) RecordInvoice(ctx context.Context, inv *Invoice) error {
	inv.CreatedAt = time.Now()

	query := `
		INSERT INTO billing_invoice (invoice_id, subscription_id, amount_value, currency, status, paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id)
		DO UPDATE SET status = EXCLUDED.status, paid = EXCLUDED.paid
	`

	_, err := r.db.ExecContext(ctx, query,
		inv.InvoiceID, inv.SubscriptionID, inv.AmountValue, inv.Currency, inv.Status, inv.Paid, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record invoice: %w", err)
	}

	return nil
}
