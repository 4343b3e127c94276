package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"permit-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentOrderRepo implements ports.PaymentOrderRepository.
type PaymentOrderRepo struct {
	pool Pool
}

// NewPaymentOrderRepo creates a new PaymentOrderRepo.
func NewPaymentOrderRepo(pool Pool) *PaymentOrderRepo {
	return &PaymentOrderRepo{pool: pool}
}

const orderColumns = `id, application_id, method, gateway_customer_id, gateway_order_id,
	amount, currency, status, reference_code, failure_reason, expires_at, created_at, updated_at`

// Create inserts a new payment order. The partial unique index on
// application_id over non-terminal statuses rejects a second in-flight order
// for the same application.
func (r *PaymentOrderRepo) Create(ctx context.Context, o *domain.PaymentOrder) error {
	query := `INSERT INTO payment_orders (id, application_id, method, gateway_customer_id, gateway_order_id,
		amount, currency, status, reference_code, failure_reason, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.ApplicationID, o.Method, o.GatewayCustomerID, o.GatewayOrderID,
		o.Amount, o.Currency, o.Status, o.ReferenceCode, o.FailureReason,
		o.ExpiresAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment order: %w", err)
	}
	return nil
}

// GetByID fetches a payment order by UUID.
func (r *PaymentOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE id = $1`
	return r.scanOrder(r.pool.QueryRow(ctx, query, id))
}

// GetByGatewayOrderID fetches a payment order by the gateway's order id.
func (r *PaymentOrderRepo) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE gateway_order_id = $1`
	return r.scanOrder(r.pool.QueryRow(ctx, query, gatewayOrderID))
}

// GetActiveByApplication returns the non-terminal order for an application.
func (r *PaymentOrderRepo) GetActiveByApplication(ctx context.Context, applicationID uuid.UUID) (*domain.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders
		WHERE application_id = $1 AND status IN ('CREATED', 'PENDING_CONFIRMATION')
		ORDER BY created_at DESC LIMIT 1`
	return r.scanOrder(r.pool.QueryRow(ctx, query, applicationID))
}

// TransitionStatus is the compare-and-set transition guard. The WHERE clause
// pins the expected prior status, so of two racing updaters exactly one sees
// RowsAffected == 1; the loser must reload and re-evaluate.
func (r *PaymentOrderRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, failureReason *string) (bool, error) {
	query := `UPDATE payment_orders
		SET status = $1, failure_reason = COALESCE($2, failure_reason), updated_at = $3
		WHERE id = $4 AND status = $5`

	tag, err := r.pool.Exec(ctx, query, to, failureReason, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("transition payment order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStalePending returns PENDING_CONFIRMATION orders whose last update is
// older than the cutoff, oldest first.
func (r *PaymentOrderRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders
		WHERE status = 'PENDING_CONFIRMATION' AND updated_at < $1
		ORDER BY updated_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payment orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.PaymentOrder
	for rows.Next() {
		var o domain.PaymentOrder
		if err := rows.Scan(
			&o.ID, &o.ApplicationID, &o.Method, &o.GatewayCustomerID, &o.GatewayOrderID,
			&o.Amount, &o.Currency, &o.Status, &o.ReferenceCode, &o.FailureReason,
			&o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment order rows: %w", err)
	}
	return orders, nil
}

// scanOrder is a helper to scan a single row into a PaymentOrder.
func (r *PaymentOrderRepo) scanOrder(row pgx.Row) (*domain.PaymentOrder, error) {
	o := &domain.PaymentOrder{}
	err := row.Scan(
		&o.ID, &o.ApplicationID, &o.Method, &o.GatewayCustomerID, &o.GatewayOrderID,
		&o.Amount, &o.Currency, &o.Status, &o.ReferenceCode, &o.FailureReason,
		&o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment order: %w", err)
	}
	return o, nil
}
