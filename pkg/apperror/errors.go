package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of failure categories the payment core produces.
// Callers switch over KindOf instead of matching code strings.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInvalidState
	KindGatewayRejected
	KindCircuitOpen
	KindUnauthenticated
	KindDuplicateEvent
	KindHandlerFailure
)

// String returns the stable name used in logs and metrics error histograms.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindGatewayRejected:
		return "gateway_rejected"
	case KindCircuitOpen:
		return "circuit_open"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindDuplicateEvent:
		return "duplicate_event"
	case KindHandlerFailure:
		return "handler_failure"
	default:
		return "internal"
	}
}

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind   `json:"-"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// KindOf extracts the Kind of an error. Non-AppError values are KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// ---- Payment preconditions & lifecycle (PAY) ----

func ErrApplicationNotFound() *AppError {
	return New(KindNotFound, "PAY_001", "Application not found", http.StatusNotFound)
}

func ErrNotOwner() *AppError {
	return New(KindInvalidState, "PAY_002", "Application is not owned by the requesting user", http.StatusConflict)
}

func ErrNotPayable(status string) *AppError {
	return New(KindInvalidState, "PAY_003",
		fmt.Sprintf("Application status %q is not eligible for payment", status), http.StatusConflict)
}

func ErrPaymentInProgress() *AppError {
	return New(KindInvalidState, "PAY_004", "A payment for this application is already in progress", http.StatusConflict)
}

func ErrOrderNotFound() *AppError {
	return New(KindNotFound, "PAY_005", "Payment order not found", http.StatusNotFound)
}

func ErrUnknownMethod(method string) *AppError {
	return New(KindValidation, "PAY_006", fmt.Sprintf("Unsupported payment method %q", method), http.StatusBadRequest)
}

// ---- Gateway (GW) ----

// ErrGatewayRejected carries the gateway's decline reason back to the caller.
// No PaymentOrder is persisted when this is returned.
func ErrGatewayRejected(reason string) *AppError {
	return New(KindGatewayRejected, "GW_001",
		fmt.Sprintf("Payment rejected by gateway: %s", reason), http.StatusUnprocessableEntity)
}

func ErrCircuitOpen(dependency string) *AppError {
	return New(KindCircuitOpen, "GW_002",
		fmt.Sprintf("Dependency %q is temporarily unavailable, retry later", dependency), http.StatusServiceUnavailable)
}

func ErrGatewayUnavailable(err error) *AppError {
	return Wrap(KindInternal, "GW_003", "Gateway call failed", http.StatusBadGateway, err)
}

// ---- Webhook ingestion (WH) ----

func ErrInvalidSignature() *AppError {
	return New(KindUnauthenticated, "WH_001", "Invalid webhook signature", http.StatusUnauthorized)
}

// ErrDuplicateEvent is a short-circuit marker, not a real failure: the caller
// acknowledges the delivery with the prior outcome.
func ErrDuplicateEvent(eventID string) *AppError {
	return New(KindDuplicateEvent, "WH_002",
		fmt.Sprintf("Event %q was already claimed", eventID), http.StatusOK)
}

func ErrUnknownEventType(eventType string) *AppError {
	return New(KindValidation, "WH_003", fmt.Sprintf("Unknown event type %q", eventType), http.StatusOK)
}

func ErrHandlerFailure(err error) *AppError {
	return Wrap(KindHandlerFailure, "WH_004", "Webhook handler failed", http.StatusOK, err)
}

// ---- Rate limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(KindInvalidState, "RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(KindValidation, "SYS_002", message, http.StatusBadRequest)
}
