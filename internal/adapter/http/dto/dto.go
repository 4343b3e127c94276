package dto

import (
	"time"

	"permit-payments/internal/core/domain"
)

// PayerDTO carries payer contact details for gateway customer creation.
type PayerDTO struct {
	Name  string `json:"name" binding:"required,min=1,max=200"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone,omitempty" binding:"omitempty,max=20"`
}

// CreatePaymentRequest is the request body for payment initiation.
type CreatePaymentRequest struct {
	ApplicationID string   `json:"application_id" binding:"required,uuid"`
	Method        string   `json:"method" binding:"required,oneof=card cash_voucher bank_transfer"`
	Amount        int64    `json:"amount" binding:"required,gt=0"`
	Currency      string   `json:"currency" binding:"required,len=3"`
	Payer         PayerDTO `json:"payer" binding:"required"`
}

// OrderResponse is the response body for order lookups.
type OrderResponse struct {
	ID             string     `json:"id"`
	ApplicationID  string     `json:"application_id"`
	Method         string     `json:"method"`
	GatewayOrderID *string    `json:"gateway_order_id,omitempty"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	ReferenceCode  *string    `json:"reference_code,omitempty"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ToOrderResponse maps a domain order onto the wire shape.
func ToOrderResponse(o *domain.PaymentOrder) OrderResponse {
	return OrderResponse{
		ID:             o.ID.String(),
		ApplicationID:  o.ApplicationID.String(),
		Method:         string(o.Method),
		GatewayOrderID: o.GatewayOrderID,
		Amount:         o.Amount,
		Currency:       o.Currency,
		Status:         string(o.Status),
		ReferenceCode:  o.ReferenceCode,
		FailureReason:  o.FailureReason,
		ExpiresAt:      o.ExpiresAt,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}
