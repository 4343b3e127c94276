package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := New(KindValidation, "SYS_002", "bad input", http.StatusBadRequest)
	assert.Equal(t, "[SYS_002] bad input", err.Error())

	wrapped := Wrap(KindInternal, "SYS_001", "Internal server error", http.StatusInternalServerError, fmt.Errorf("pq: connection refused"))
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := InternalError(inner)
	assert.ErrorIs(t, err, inner)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"invalid state", ErrPaymentInProgress(), KindInvalidState},
		{"gateway rejected", ErrGatewayRejected("card_declined"), KindGatewayRejected},
		{"circuit open", ErrCircuitOpen("gateway-create-order"), KindCircuitOpen},
		{"unauthenticated", ErrInvalidSignature(), KindUnauthenticated},
		{"duplicate event", ErrDuplicateEvent("evt_1"), KindDuplicateEvent},
		{"handler failure", ErrHandlerFailure(errors.New("nil deref")), KindHandlerFailure},
		{"not found", ErrOrderNotFound(), KindNotFound},
		{"plain error", errors.New("anything"), KindInternal},
		{"wrapped app error", fmt.Errorf("outer: %w", ErrNotOwner()), KindInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKind_String_Closed(t *testing.T) {
	// Every kind has a distinct stable name for the metrics histogram.
	kinds := []Kind{
		KindInternal, KindValidation, KindNotFound, KindInvalidState,
		KindGatewayRejected, KindCircuitOpen, KindUnauthenticated,
		KindDuplicateEvent, KindHandlerFailure,
	}
	seen := make(map[string]bool)
	for _, k := range kinds {
		name := k.String()
		assert.NotEmpty(t, name)
		assert.False(t, seen[name], "duplicate kind name %q", name)
		seen[name] = true
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusConflict, ErrPaymentInProgress().HTTPStatus)
	assert.Equal(t, http.StatusUnprocessableEntity, ErrGatewayRejected("x").HTTPStatus)
	assert.Equal(t, http.StatusServiceUnavailable, ErrCircuitOpen("x").HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidSignature().HTTPStatus)
	// Duplicate deliveries are acknowledged, not rejected.
	assert.Equal(t, http.StatusOK, ErrDuplicateEvent("evt").HTTPStatus)
}
