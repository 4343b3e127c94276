package handler

import (
	"net/http"

	"permit-payments/internal/core/ports"
	"permit-payments/pkg/apperror"
	"permit-payments/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OpsHandler exposes the operational surface: health, metrics and on-demand
// reconciliation.
type OpsHandler struct {
	reconcileSvc ports.ReconcileService
	metricsSvc   ports.MetricsService
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(reconcileSvc ports.ReconcileService, metricsSvc ports.MetricsService) *OpsHandler {
	return &OpsHandler{reconcileSvc: reconcileSvc, metricsSvc: metricsSvc}
}

// Reconcile handles POST /api/v1/payments/:id/reconcile.
func (h *OpsHandler) Reconcile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("order id must be a UUID"))
		return
	}

	result, err := h.reconcileSvc.Reconcile(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// Metrics handles GET /metrics/payments.
func (h *OpsHandler) Metrics(c *gin.Context) {
	response.OK(c, h.metricsSvc.Report())
}

// HealthCheck returns a deep health handler verifying every dependency.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
