package service

import (
	"context"
	"fmt"
	"time"

	"permit-payments/internal/core/domain"
	"permit-payments/internal/core/ports"
	"permit-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	orderRepo     ports.PaymentOrderRepository
	appRepo       ports.ApplicationRepository
	gateway       ports.GatewayClient
	voucherExpiry time.Duration
	log           zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	orderRepo ports.PaymentOrderRepository,
	appRepo ports.ApplicationRepository,
	gateway ports.GatewayClient,
	voucherExpiry time.Duration,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		orderRepo:     orderRepo,
		appRepo:       appRepo,
		gateway:       gateway,
		voucherExpiry: voucherExpiry,
		log:           log,
	}
}

// CreatePayment initiates a payment for a permit application.
//
// Nothing is persisted until the gateway acknowledges the order, so a decline
// or breaker rejection leaves the application exactly as it was and the
// client may retry. The idempotency key derived from application id + method
// pins a retried request to the same gateway order.
func (s *PaymentServiceImpl) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*ports.CheckoutPayload, error) {
	if !req.Method.Valid() {
		return nil, apperror.ErrUnknownMethod(string(req.Method))
	}
	if req.Amount <= 0 {
		return nil, apperror.Validation("amount must be a positive minor-unit integer")
	}
	if req.Currency == "" {
		return nil, apperror.Validation("currency is required")
	}

	app, err := s.appRepo.Get(ctx, req.ApplicationID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load application: %w", err))
	}
	if app == nil {
		return nil, apperror.ErrApplicationNotFound()
	}
	if app.UserID != req.UserID {
		return nil, apperror.ErrNotOwner()
	}
	if !app.IsPayable() {
		return nil, apperror.ErrNotPayable(string(app.Status))
	}

	active, err := s.orderRepo.GetActiveByApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check active order: %w", err))
	}
	if active != nil {
		return nil, apperror.ErrPaymentInProgress()
	}

	customerID, err := s.gateway.CreateCustomer(ctx, ports.CustomerRequest{
		ExternalID: req.ApplicationID.String(),
		Name:       req.Payer.Name,
		Email:      req.Payer.Email,
		Phone:      req.Payer.Phone,
	})
	if err != nil {
		return nil, err
	}

	orderReq := ports.OrderRequest{
		CustomerID:     customerID,
		Method:         req.Method,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    fmt.Sprintf("Permit application %s", req.ApplicationID),
		IdempotencyKey: domain.BuildIdempotencyKey(req.ApplicationID, req.Method),
	}
	if req.Method.HasReference() {
		expiresAt := time.Now().UTC().Add(s.voucherExpiry)
		orderReq.ExpiresAt = &expiresAt
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, orderReq)
	if err != nil {
		return nil, err
	}
	if !gwOrder.Accepted {
		s.log.Info().
			Str("application_id", req.ApplicationID.String()).
			Str("method", string(req.Method)).
			Str("reason", gwOrder.DeclineReason).
			Msg("gateway declined payment order")
		return nil, apperror.ErrGatewayRejected(gwOrder.DeclineReason)
	}

	now := time.Now().UTC()
	order := &domain.PaymentOrder{
		ID:                uuid.New(),
		ApplicationID:     req.ApplicationID,
		Method:            req.Method,
		GatewayCustomerID: customerID,
		GatewayOrderID:    &gwOrder.OrderID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            domain.OrderStatusPendingConfirmation,
		ReferenceCode:     gwOrder.ReferenceCode,
		ExpiresAt:         gwOrder.ExpiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if order.ExpiresAt == nil && orderReq.ExpiresAt != nil {
		order.ExpiresAt = orderReq.ExpiresAt
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("persist payment order: %w", err))
	}

	appStatus := domain.StatusForOrder(order.Status, order.Method)
	if err := s.appRepo.SetPaymentStatus(ctx, req.ApplicationID, appStatus); err != nil {
		// The order exists and the webhook/sweeper path will re-apply the
		// application status on confirmation.
		s.log.Error().Err(err).
			Str("application_id", req.ApplicationID.String()).
			Str("status", string(appStatus)).
			Msg("failed to update application status after order creation")
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("gateway_order_id", gwOrder.OrderID).
		Str("application_id", req.ApplicationID.String()).
		Str("method", string(req.Method)).
		Int64("amount", req.Amount).
		Msg("payment order created")

	return &ports.CheckoutPayload{
		OrderID:           order.ID,
		GatewayOrderID:    gwOrder.OrderID,
		Method:            order.Method,
		Status:            order.Status,
		ApplicationStatus: appStatus,
		Amount:            order.Amount,
		Currency:          order.Currency,
		CheckoutURL:       gwOrder.CheckoutURL,
		ReferenceCode:     gwOrder.ReferenceCode,
		ExpiresAt:         order.ExpiresAt,
	}, nil
}

// GetOrder returns a payment order by id.
func (s *PaymentServiceImpl) GetOrder(ctx context.Context, id uuid.UUID) (*domain.PaymentOrder, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load payment order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound()
	}
	return order, nil
}

var _ ports.PaymentService = (*PaymentServiceImpl)(nil)
