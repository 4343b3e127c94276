package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"permit-payments/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Claim atomically inserts the ledger row for an event. ON CONFLICT DO
// NOTHING makes the insert the claim: under concurrent duplicate deliveries
// exactly one caller observes RowsAffected == 1 and may process the event.
func (r *WebhookEventRepo) Claim(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	query := `INSERT INTO webhook_events (event_id, event_type, gateway_order_id, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, e.EventID, e.EventType, e.GatewayOrderID, e.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("claim webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get fetches a webhook event by the gateway's event id.
func (r *WebhookEventRepo) Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	query := `SELECT event_id, event_type, gateway_order_id, received_at, processed_at, outcome, outcome_detail
		FROM webhook_events WHERE event_id = $1`

	e := &domain.WebhookEvent{}
	var outcome *string
	err := r.pool.QueryRow(ctx, query, eventID).Scan(
		&e.EventID, &e.EventType, &e.GatewayOrderID, &e.ReceivedAt,
		&e.ProcessedAt, &outcome, &e.OutcomeDetail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	if outcome != nil {
		o := domain.EventOutcome(*outcome)
		e.Outcome = &o
	}
	return e, nil
}

// RecordOutcome writes processed_at and the outcome onto a claimed row. Rows
// are written once; the ledger is retained for audit and replay diagnostics.
func (r *WebhookEventRepo) RecordOutcome(ctx context.Context, eventID string, outcome domain.EventOutcome, detail *string) error {
	query := `UPDATE webhook_events SET processed_at = $1, outcome = $2, outcome_detail = $3 WHERE event_id = $4`

	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), outcome, detail, eventID)
	if err != nil {
		return fmt.Errorf("record webhook outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}
	return nil
}
