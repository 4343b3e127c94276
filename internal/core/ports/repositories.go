package ports

import (
	"context"
	"time"

	"permit-payments/internal/core/domain"

	"github.com/google/uuid"
)

// PaymentOrderRepository defines persistence operations for payment orders.
type PaymentOrderRepository interface {
	Create(ctx context.Context, order *domain.PaymentOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentOrder, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.PaymentOrder, error)
	// GetActiveByApplication returns the non-terminal order for an
	// application, or nil when none is in flight.
	GetActiveByApplication(ctx context.Context, applicationID uuid.UUID) (*domain.PaymentOrder, error)
	// TransitionStatus performs the compare-and-set move from -> to. It
	// returns false when the row was not in the expected `from` status,
	// which means a concurrent updater won the race.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, failureReason *string) (bool, error)
	// ListStalePending returns PENDING_CONFIRMATION orders not updated since
	// the cutoff, oldest first, for the reconciliation sweep.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentOrder, error)
}

// WebhookEventRepository is the durable idempotency ledger.
type WebhookEventRepository interface {
	// Claim atomically inserts the event row. It returns false when the
	// event id already exists; the delivery is a duplicate and must not be
	// processed again.
	Claim(ctx context.Context, event *domain.WebhookEvent) (bool, error)
	Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error)
	// RecordOutcome writes processed_at and the outcome onto a claimed row.
	RecordOutcome(ctx context.Context, eventID string, outcome domain.EventOutcome, detail *string) error
}

// ApplicationRepository is the consumed application-status contract: the core
// reads applications and writes payment statuses, nothing else.
type ApplicationRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status domain.ApplicationStatus) error
}

// NotificationLogRepository records outbound notification delivery attempts.
type NotificationLogRepository interface {
	Create(ctx context.Context, log *domain.NotificationDeliveryLog) error
	Update(ctx context.Context, log *domain.NotificationDeliveryLog) error
}
