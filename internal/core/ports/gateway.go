package ports

import (
	"context"
	"time"

	"permit-payments/internal/core/domain"
)

// GatewayClient is the typed surface of the external payment gateway. Every
// implementation call is circuit-breaker wrapped and carries a timeout.
type GatewayClient interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
	GetOrderStatus(ctx context.Context, gatewayOrderID string) (*GatewayOrderStatus, error)
}

// CustomerRequest carries payer details for gateway customer creation.
type CustomerRequest struct {
	ExternalID string // application id, so retries resolve to the same customer
	Name       string
	Email      string
	Phone      string
}

// OrderRequest is a method-specific charge request.
type OrderRequest struct {
	CustomerID     string
	Method         domain.PaymentMethod
	Amount         int64 // minor units
	Currency       string
	Description    string
	IdempotencyKey string
	ExpiresAt      *time.Time // only for voucher/transfer methods
}

// GatewayOrder is the gateway's acknowledgement of a created order.
type GatewayOrder struct {
	OrderID       string
	Accepted      bool
	DeclineReason string     // set when Accepted is false
	CheckoutURL   *string    // card method
	ReferenceCode *string    // voucher barcode / SPEI CLABE
	ExpiresAt     *time.Time
}

// GatewayOrderState is the authoritative order state as reported by the
// gateway's query API.
type GatewayOrderState string

const (
	GatewayOrderPending  GatewayOrderState = "pending"
	GatewayOrderPaid     GatewayOrderState = "paid"
	GatewayOrderDeclined GatewayOrderState = "declined"
	GatewayOrderExpired  GatewayOrderState = "expired"
	GatewayOrderCanceled GatewayOrderState = "canceled"
)

// GatewayOrderStatus is the result of a status query.
type GatewayOrderStatus struct {
	OrderID       string
	State         GatewayOrderState
	FailureReason string
}
