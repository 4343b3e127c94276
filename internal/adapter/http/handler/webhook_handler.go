package handler

import (
	"io"

	"permit-payments/internal/core/ports"
	"permit-payments/pkg/apperror"
	"permit-payments/pkg/response"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives gateway callbacks.
type WebhookHandler struct {
	webhookSvc      ports.WebhookService
	signatureHeader string
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.WebhookService, signatureHeader string) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc, signatureHeader: signatureHeader}
}

// Receive handles POST /webhooks/gateway.
//
// Every processing outcome acknowledges with 200 so the gateway stops
// retrying; only a signature mismatch returns 401 (the delivery may be
// forged) and infrastructure errors return 5xx (the delivery should be
// retried).
func (h *WebhookHandler) Receive(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	result, err := h.webhookSvc.Receive(c.Request.Context(), rawBody, c.GetHeader(h.signatureHeader))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}
