package handler

import (
	"permit-payments/internal/adapter/http/middleware"
	redisStore "permit-payments/internal/adapter/storage/redis"
	"permit-payments/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc      ports.PaymentService
	WebhookSvc      ports.WebhookService
	ReconcileSvc    ports.ReconcileService
	MetricsSvc      ports.MetricsService
	SignatureHeader string
	RateLimitStore  *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers  []ports.HealthChecker
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// Gateway callbacks: signature-authenticated, never rate limited.
	webhookHandler := NewWebhookHandler(deps.WebhookSvc, deps.SignatureHeader)
	r.POST("/webhooks/gateway", webhookHandler.Receive)

	opsHandler := NewOpsHandler(deps.ReconcileSvc, deps.MetricsSvc)
	r.GET("/metrics/payments", rl("payments_stats"), opsHandler.Metrics)

	// API v1 routes
	v1 := r.Group("/api/v1")

	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	payments := v1.Group("/payments")
	{
		payments.POST("", rl("payments"), paymentHandler.CreatePayment)
		payments.GET("/:id", rl("payments_read"), paymentHandler.GetOrder)
		payments.POST("/:id/reconcile", rl("reconcile"), opsHandler.Reconcile)
	}

	return r
}
