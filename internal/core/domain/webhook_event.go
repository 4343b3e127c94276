package domain

import "time"

// GatewayEventType is the closed set of gateway callbacks the core handles.
// The webhook service builds its dispatch table over exactly these values and
// refuses to start if any is missing a handler.
type GatewayEventType string

const (
	EventOrderPaid     GatewayEventType = "order.paid"
	EventOrderDeclined GatewayEventType = "order.declined"
	EventOrderExpired  GatewayEventType = "order.expired"
	EventOrderCanceled GatewayEventType = "order.canceled"
)

// KnownEventTypes lists every handled event type.
func KnownEventTypes() []GatewayEventType {
	return []GatewayEventType{
		EventOrderPaid,
		EventOrderDeclined,
		EventOrderExpired,
		EventOrderCanceled,
	}
}

// EventOutcome records how processing of a claimed event ended.
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "SUCCESS"
	OutcomeFailure EventOutcome = "FAILURE"
	OutcomeSkipped EventOutcome = "SKIPPED" // unknown type or no-op transition
)

// WebhookEvent is the durable idempotency ledger entry. Inserting the row is
// the atomic claim: a second insert for the same EventID must no-op, which
// signals "already claimed" to the loser of the race. Rows are updated once
// with the outcome and retained for audit.
type WebhookEvent struct {
	EventID        string           `json:"event_id"` // gateway-issued, globally unique
	EventType      GatewayEventType `json:"event_type"`
	GatewayOrderID string           `json:"gateway_order_id"`
	ReceivedAt     time.Time        `json:"received_at"`
	ProcessedAt    *time.Time       `json:"processed_at,omitempty"`
	Outcome        *EventOutcome    `json:"outcome,omitempty"`
	OutcomeDetail  *string          `json:"outcome_detail,omitempty"`
}
