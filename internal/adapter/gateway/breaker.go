package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"permit-payments/config"
	"permit-payments/internal/core/ports"
	"permit-payments/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Breaker names, one per gateway operation. Each operation degrades
// independently: a broken order-creation path must not block status queries
// the reconciler depends on.
const (
	BreakerCreateCustomer = "gateway-create-customer"
	BreakerCreateOrder    = "gateway-create-order"
	BreakerQueryStatus    = "gateway-query-status"
)

// trackedBreaker pairs a gobreaker instance with the failure bookkeeping the
// health surface reports.
type trackedBreaker struct {
	cb *gobreaker.CircuitBreaker

	mu                  sync.Mutex
	consecutiveFailures uint32
	lastFailureAt       *time.Time
	openedAt            *time.Time
}

// countsAsFailure reports whether an error should advance the breaker toward
// open. Business rejections are a healthy gateway saying no.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Kind == apperror.KindGatewayRejected {
		return false
	}
	return true
}

func newTrackedBreaker(name string, threshold uint32, cooldown time.Duration, log zerolog.Logger) *trackedBreaker {
	tb := &trackedBreaker{}
	tb.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		// One trial request after the cooldown expires.
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			tb.mu.Lock()
			if to == gobreaker.StateOpen {
				now := time.Now().UTC()
				tb.openedAt = &now
			} else if to == gobreaker.StateClosed {
				tb.openedAt = nil
			}
			tb.mu.Unlock()
			log.Warn().
				Str("breaker", name).
				Str("from", breakerStateName(from)).
				Str("to", breakerStateName(to)).
				Msg("circuit breaker state change")
		},
	})
	return tb
}

// execute runs fn through the breaker, mapping breaker-rejected calls to a
// circuit-open error and keeping the failure bookkeeping current.
func (b *trackedBreaker) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperror.ErrCircuitOpen(b.cb.Name())
	}

	b.mu.Lock()
	if countsAsFailure(err) {
		b.consecutiveFailures++
		now := time.Now().UTC()
		b.lastFailureAt = &now
	} else {
		b.consecutiveFailures = 0
	}
	b.mu.Unlock()

	return result, err
}

func (b *trackedBreaker) snapshot() ports.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ports.CircuitBreakerState{
		Name:                b.cb.Name(),
		State:               breakerStateName(b.cb.State()),
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureAt:       b.lastFailureAt,
		OpenedAt:            b.openedAt,
	}
}

func breakerStateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "OPEN"
	case gobreaker.StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// BreakerClient wraps a GatewayClient with one circuit breaker per
// operation. It implements both ports.GatewayClient and
// ports.BreakerInspector.
type BreakerClient struct {
	inner ports.GatewayClient

	createCustomer *trackedBreaker
	createOrder    *trackedBreaker
	queryStatus    *trackedBreaker
}

// NewBreakerClient wires the per-operation breakers around a raw client.
func NewBreakerClient(inner ports.GatewayClient, cfg config.GatewayConfig, log zerolog.Logger) *BreakerClient {
	return &BreakerClient{
		inner:          inner,
		createCustomer: newTrackedBreaker(BreakerCreateCustomer, cfg.FailureThreshold, cfg.BreakerCooldown, log),
		createOrder:    newTrackedBreaker(BreakerCreateOrder, cfg.FailureThreshold, cfg.BreakerCooldown, log),
		queryStatus:    newTrackedBreaker(BreakerQueryStatus, cfg.FailureThreshold, cfg.BreakerCooldown, log),
	}
}

// CreateCustomer runs the customer-creation call through its breaker.
func (c *BreakerClient) CreateCustomer(ctx context.Context, req ports.CustomerRequest) (string, error) {
	result, err := c.createCustomer.execute(func() (any, error) {
		return c.inner.CreateCustomer(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// CreateOrder runs the order-creation call through its breaker.
func (c *BreakerClient) CreateOrder(ctx context.Context, req ports.OrderRequest) (*ports.GatewayOrder, error) {
	result, err := c.createOrder.execute(func() (any, error) {
		return c.inner.CreateOrder(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ports.GatewayOrder), nil
}

// GetOrderStatus runs the status query through its breaker.
func (c *BreakerClient) GetOrderStatus(ctx context.Context, gatewayOrderID string) (*ports.GatewayOrderStatus, error) {
	result, err := c.queryStatus.execute(func() (any, error) {
		return c.inner.GetOrderStatus(ctx, gatewayOrderID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ports.GatewayOrderStatus), nil
}

// States returns a snapshot of every breaker for the health report.
func (c *BreakerClient) States() []ports.CircuitBreakerState {
	return []ports.CircuitBreakerState{
		c.createCustomer.snapshot(),
		c.createOrder.snapshot(),
		c.queryStatus.snapshot(),
	}
}

var (
	_ ports.GatewayClient    = (*BreakerClient)(nil)
	_ ports.BreakerInspector = (*BreakerClient)(nil)
)
