package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod identifies how the applicant pays.
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodCashVoucher  PaymentMethod = "cash_voucher"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// Valid reports whether the method is one of the supported kinds.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodCashVoucher, MethodBankTransfer:
		return true
	}
	return false
}

// HasReference reports whether the method produces a payment reference the
// applicant must act on (voucher barcode or CLABE) with an expiry window.
func (m PaymentMethod) HasReference() bool {
	return m == MethodCashVoucher || m == MethodBankTransfer
}

// OrderStatus is the lifecycle state of a payment order. Transitions are
// monotonic over statusRank; see CanTransitionTo.
type OrderStatus string

const (
	OrderStatusCreated             OrderStatus = "CREATED"
	OrderStatusPendingConfirmation OrderStatus = "PENDING_CONFIRMATION"
	OrderStatusConfirmed           OrderStatus = "CONFIRMED"
	OrderStatusFailed              OrderStatus = "FAILED"
	OrderStatusExpired             OrderStatus = "EXPIRED"
)

// statusRank imposes the total order CREATED < PENDING_CONFIRMATION <
// {CONFIRMED, FAILED, EXPIRED}. Webhook handlers and the sweeper both go
// through this ordering, so racing updates cannot move a status backward.
var statusRank = map[OrderStatus]int{
	OrderStatusCreated:             0,
	OrderStatusPendingConfirmation: 1,
	OrderStatusConfirmed:           2,
	OrderStatusFailed:              2,
	OrderStatusExpired:             2,
}

// IsTerminal reports whether the status is final.
func (s OrderStatus) IsTerminal() bool {
	return statusRank[s] == 2
}

// PaymentOrder is one payment attempt for an application. Created by the
// orchestrator, mutated only through guarded status transitions, never
// deleted; a restarted payment supersedes it with a new order.
type PaymentOrder struct {
	ID                uuid.UUID     `json:"id"`
	ApplicationID     uuid.UUID     `json:"application_id"`
	Method            PaymentMethod `json:"method"`
	GatewayCustomerID string        `json:"gateway_customer_id"`
	GatewayOrderID    *string       `json:"gateway_order_id,omitempty"` // write-once, set when the gateway acks
	Amount            int64         `json:"amount"`                     // minor units
	Currency          string        `json:"currency"`
	Status            OrderStatus   `json:"status"`
	ReferenceCode     *string       `json:"reference_code,omitempty"` // voucher barcode / SPEI CLABE
	FailureReason     *string       `json:"failure_reason,omitempty"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// CanTransitionTo reports whether moving to target is a forward move for this
// order. Same-status and backward moves are rejected; EXPIRED is reachable
// only from PENDING_CONFIRMATION for methods carrying an expiry window.
func (o *PaymentOrder) CanTransitionTo(target OrderStatus) bool {
	if _, ok := statusRank[target]; !ok {
		return false
	}
	if o.Status.IsTerminal() {
		return false
	}
	if statusRank[target] <= statusRank[o.Status] {
		return false
	}
	if target == OrderStatusExpired {
		return o.Method.HasReference() && o.Status == OrderStatusPendingConfirmation
	}
	return true
}

// ReferenceExpired reports whether a voucher/transfer reference has lapsed.
func (o *PaymentOrder) ReferenceExpired(now time.Time) bool {
	return o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

// BuildIdempotencyKey derives the gateway idempotency key so a retried client
// request for the same application and method maps to the same gateway order.
func BuildIdempotencyKey(applicationID uuid.UUID, method PaymentMethod) string {
	return applicationID.String() + ":" + string(method)
}
