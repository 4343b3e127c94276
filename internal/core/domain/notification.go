package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationStatus represents the delivery state of an outbound notification.
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "PENDING"
	NotificationStatusDelivered NotificationStatus = "DELIVERED"
	NotificationStatusFailed    NotificationStatus = "FAILED"
)

// NotificationDeliveryLog records each attempt to notify the permits service
// of a payment outcome.
type NotificationDeliveryLog struct {
	ID            uuid.UUID          `json:"id"`
	OrderID       uuid.UUID          `json:"order_id"`
	ApplicationID uuid.UUID          `json:"application_id"`
	Event         string             `json:"event"` // payment.confirmed / payment.failed / payment.expired
	URL           string             `json:"url"`
	HTTPStatus    *int               `json:"http_status,omitempty"`
	Attempt       int                `json:"attempt"`
	Status        NotificationStatus `json:"status"`
	LastError     *string            `json:"last_error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
