package ports

import (
	"context"
	"time"

	"permit-payments/internal/core/domain"

	"github.com/google/uuid"
)

// --- Service Ports (Business Logic) ---

// PaymentService is the payment orchestrator.
type PaymentService interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CheckoutPayload, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.PaymentOrder, error)
}

// CreatePaymentRequest holds validated input for payment initiation.
type CreatePaymentRequest struct {
	ApplicationID uuid.UUID
	UserID        uuid.UUID // requesting principal, must own the application
	Method        domain.PaymentMethod
	Amount        int64 // permit fee in minor units
	Currency      string
	Payer         PayerDetails
}

// PayerDetails identifies the payer towards the gateway.
type PayerDetails struct {
	Name  string
	Email string
	Phone string
}

// CheckoutPayload is returned to the caller after successful initiation.
type CheckoutPayload struct {
	OrderID           uuid.UUID                `json:"order_id"`
	GatewayOrderID    string                   `json:"gateway_order_id"`
	Method            domain.PaymentMethod     `json:"method"`
	Status            domain.OrderStatus       `json:"status"`
	ApplicationStatus domain.ApplicationStatus `json:"application_status"`
	Amount            int64                    `json:"amount"`
	Currency          string                   `json:"currency"`
	CheckoutURL       *string                  `json:"checkout_url,omitempty"`
	ReferenceCode     *string                  `json:"reference_code,omitempty"`
	ExpiresAt         *time.Time               `json:"expires_at,omitempty"`
}

// WebhookService is the ingestion path for gateway callbacks.
type WebhookService interface {
	// Receive verifies, claims and dispatches one raw delivery. A duplicate
	// delivery returns the prior outcome with Duplicate set; only signature
	// mismatches surface as errors.
	Receive(ctx context.Context, rawBody []byte, signature string) (*ReceiveResult, error)
}

// ReceiveResult describes how a delivery was handled.
type ReceiveResult struct {
	EventID   string                  `json:"event_id"`
	EventType domain.GatewayEventType `json:"event_type"`
	Duplicate bool                    `json:"duplicate"`
	Outcome   domain.EventOutcome     `json:"outcome"`
}

// ReconcileService pulls gateway-side truth for stale orders.
type ReconcileService interface {
	Reconcile(ctx context.Context, orderID uuid.UUID) (*ReconcileResult, error)
	// Run drives the periodic sweep until ctx is cancelled.
	Run(ctx context.Context)
}

// ReconcileResult reports the post-reconcile state of an order.
type ReconcileResult struct {
	OrderID uuid.UUID          `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	Changed bool               `json:"changed"`
}

// Notifier is the consumed fire-and-forget notification contract.
type Notifier interface {
	NotifyPaymentEvent(ctx context.Context, n PaymentNotification) error
}

// PaymentNotification tells the permits service about a payment outcome.
type PaymentNotification struct {
	ApplicationID uuid.UUID
	OrderID       uuid.UUID
	Status        domain.OrderStatus
	Method        domain.PaymentMethod
	Amount        int64
	Currency      string
	ReferenceCode *string
}

// EventDedupeCache is the Redis fast path in front of the durable claim.
// Seen is a read-only pre-check; ids are written back with MarkSeen only
// after the durable claim succeeds, so a failed claim keeps the retry path
// open. The durable ledger remains the source of truth when the cache is
// unavailable.
type EventDedupeCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

// MetricsService aggregates payment processing outcomes and derives health.
type MetricsService interface {
	Record(rec MetricRecord)
	Report() *HealthReport
}

// MetricRecord is one processing observation.
type MetricRecord struct {
	Success        bool
	ProcessingTime time.Duration
	Method         domain.PaymentMethod
	Amount         int64
	ErrorType      string // apperror kind name, empty on success
}

// WindowStats are the aggregated counters for one rolling window.
type WindowStats struct {
	Window           string                         `json:"window"`
	Total            int64                          `json:"total"`
	Succeeded        int64                          `json:"succeeded"`
	Failed           int64                          `json:"failed"`
	SuccessRate      float64                        `json:"success_rate"`
	MeanProcessingMs float64                        `json:"mean_processing_ms"`
	AmountTotal      int64                          `json:"amount_total"`
	ByMethod         map[domain.PaymentMethod]int64 `json:"by_method"`
	ByErrorType      map[string]int64               `json:"by_error_type"`
}

// HealthReport is the operator snapshot: per-window stats, sub-check scores,
// a composite score and human-readable recommendations.
type HealthReport struct {
	Status              string                `json:"status"` // healthy, degraded, critical
	Score               float64               `json:"score"`
	SubScores           map[string]float64    `json:"sub_scores"`
	ConsecutiveFailures int64                 `json:"consecutive_failures"`
	Windows             []WindowStats         `json:"windows"`
	Breakers            []CircuitBreakerState `json:"breakers"`
	Recommendations     []string              `json:"recommendations"`
	GeneratedAt         time.Time             `json:"generated_at"`
}
