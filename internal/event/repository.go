package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hookgate/pkg/metrics"
)

// Ledger is the transactional event store behind the idempotency guarantee.
// Claim is atomic per (provider, provider event id); at most one caller ever
// observes ClaimNew for a given identity while the row is non-failed.
type Ledger interface {
	Claim(ctx context.Context, identity Identity, payload json.RawMessage) (*Claim, error)
	Complete(ctx context.Context, eventID string, result json.RawMessage) error
	Fail(ctx context.Context, eventID string, errorMessage string) error
	Get(ctx context.Context, provider, providerEventID string) (*Record, error)
}

type PostgresLedger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) Ledger {
	return &PostgresLedger{db: db}
}

// Claim inserts a claimed row, or reclaims a failed one. The conditional
// upsert returns no row when the existing row is claimed or completed, so a
// follow-up read distinguishes those two states.
func (r *PostgresLedger) Claim(ctx context.Context, identity Identity, payload json.RawMessage) (*Claim, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveLedgerOperation("claim", time.Since(start))
	}()

	query := `
		INSERT INTO webhook_events (id, provider_name, provider_event_id, event_type, signature, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'claimed', now())
		ON CONFLICT (provider_name, provider_event_id)
		DO UPDATE SET status = 'claimed', error_message = NULL, payload = EXCLUDED.payload
		WHERE webhook_events.status = 'failed'
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		uuid.New().String(), identity.Provider, identity.EventID,
		identity.EventType, identity.Signature, payload,
	).Scan(&id)

	if err == nil {
		return &Claim{State: ClaimNew, EventID: id}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim event: %w", err)
	}

	// Upsert matched an existing claimed or completed row.
	existing, err := r.Get(ctx, identity.Provider, identity.EventID)
	if err != nil {
		return nil, err
	}

	if existing.Status == StatusCompleted {
		return &Claim{
			State:   ClaimAlreadyProcessed,
			EventID: existing.ID,
			Result:  existing.Result,
		}, nil
	}

	return &Claim{State: ClaimInProgress, EventID: existing.ID}, nil
}

func (r *PostgresLedger) Complete(ctx context.Context, eventID string, result json.RawMessage) error {
	start := time.Now()
	defer func() {
		metrics.ObserveLedgerOperation("complete", time.Since(start))
	}()

	query := `
		UPDATE webhook_events
		SET status = 'completed', result = $2, completed_at = now()
		WHERE id = $1 AND status = 'claimed'
	`

	res, err := r.db.ExecContext(ctx, query, eventID, result)
	if err != nil {
		return fmt.Errorf("failed to complete event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("event %s is not in claimed state", eventID)
	}

	return nil
}

func (r *PostgresLedger) Fail(ctx context.Context, eventID string, errorMessage string) error {
	start := time.Now()
	defer func() {
		metrics.ObserveLedgerOperation("fail", time.Since(start))
	}()

	query := `
		UPDATE webhook_events
		SET status = 'failed', error_message = $2, completed_at = now()
		WHERE id = $1 AND status = 'claimed'
	`

	res, err := r.db.ExecContext(ctx, query, eventID, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("event %s is not in claimed state", eventID)
	}

	return nil
}

func (r *PostgresLedger) Get(ctx context.Context, provider, providerEventID string) (*Record, error) {
	query := `
		SELECT id, provider_name, provider_event_id, event_type, COALESCE(signature, ''),
		       payload, status, COALESCE(result, 'null'::jsonb), COALESCE(error_message, ''),
		       created_at, completed_at
		FROM webhook_events
		WHERE provider_name = $1 AND provider_event_id = $2
	`

	row := r.db.QueryRowContext(ctx, query, provider, providerEventID)

	var rec Record
	var payload, result []byte
	err := row.Scan(
		&rec.ID, &rec.Provider, &rec.EventID, &rec.EventType, &rec.Signature,
		&payload, &rec.Status, &result, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	rec.Payload = json.RawMessage(payload)
	if string(result) != "null" {
		rec.Result = json.RawMessage(result)
	}

	return &rec, nil
}
