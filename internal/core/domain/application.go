package domain

import (
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus is the payment-relevant slice of a permit application's
// state. The core only ever reads the status and writes payment outcomes; all
// other application fields belong to the permits service.
type ApplicationStatus string

const (
	AppStatusPendingPayment  ApplicationStatus = "PENDING_PAYMENT"
	AppStatusPaymentPending  ApplicationStatus = "PAYMENT_PENDING"
	AppStatusAwaitingVoucher ApplicationStatus = "AWAITING_VOUCHER_PAYMENT"
	AppStatusPaid            ApplicationStatus = "PAID"
	AppStatusPaymentFailed   ApplicationStatus = "PAYMENT_FAILED"
	AppStatusPaymentExpired  ApplicationStatus = "PAYMENT_EXPIRED"
)

// Application is the consumed view of a permit application.
type Application struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Status    ApplicationStatus `json:"status"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsPayable reports whether a payment may be initiated for this application.
func (a *Application) IsPayable() bool {
	return a.Status == AppStatusPendingPayment
}

// StatusForOrder maps a terminal or pending order status onto the application
// status the permits service should see.
func StatusForOrder(orderStatus OrderStatus, method PaymentMethod) ApplicationStatus {
	switch orderStatus {
	case OrderStatusPendingConfirmation:
		if method.HasReference() {
			return AppStatusAwaitingVoucher
		}
		return AppStatusPaymentPending
	case OrderStatusConfirmed:
		return AppStatusPaid
	case OrderStatusFailed:
		return AppStatusPaymentFailed
	case OrderStatusExpired:
		return AppStatusPaymentExpired
	default:
		return AppStatusPendingPayment
	}
}
