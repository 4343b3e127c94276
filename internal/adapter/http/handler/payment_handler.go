package handler

import (
	"permit-payments/internal/adapter/http/dto"
	"permit-payments/internal/core/domain"
	"permit-payments/internal/core/ports"
	"permit-payments/pkg/apperror"
	"permit-payments/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// userIDHeader carries the authenticated principal, injected by the edge
// proxy. Authentication itself lives outside this service.
const userIDHeader = "X-User-ID"

// PaymentHandler handles payment lifecycle endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// CreatePayment handles POST /api/v1/payments.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	userID, err := uuid.Parse(c.GetHeader(userIDHeader))
	if err != nil {
		response.Error(c, apperror.Validation("missing or malformed X-User-ID header"))
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	applicationID, err := uuid.Parse(req.ApplicationID)
	if err != nil {
		response.Error(c, apperror.Validation("application_id must be a UUID"))
		return
	}

	payload, err := h.paymentSvc.CreatePayment(c.Request.Context(), ports.CreatePaymentRequest{
		ApplicationID: applicationID,
		UserID:        userID,
		Method:        domain.PaymentMethod(req.Method),
		Amount:        req.Amount,
		Currency:      req.Currency,
		Payer: ports.PayerDetails{
			Name:  req.Payer.Name,
			Email: req.Payer.Email,
			Phone: req.Payer.Phone,
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, payload)
}

// GetOrder handles GET /api/v1/payments/:id.
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("order id must be a UUID"))
		return
	}

	order, err := h.paymentSvc.GetOrder(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToOrderResponse(order))
}
