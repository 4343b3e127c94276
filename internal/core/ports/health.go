package ports

import (
	"context"
	"time"
)

// HealthChecker checks external dependency health.
type HealthChecker interface {
	// Ping verifies connectivity. Returns nil if healthy.
	Ping(ctx context.Context) error
	// Name returns the dependency name (e.g., "postgresql", "redis").
	Name() string
}

// CircuitBreakerState is a point-in-time snapshot of one breaker.
type CircuitBreakerState struct {
	Name                string     `json:"name"`
	State               string     `json:"state"` // CLOSED, OPEN, HALF_OPEN
	ConsecutiveFailures uint32     `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
}

// BreakerInspector exposes breaker snapshots to the health surface.
type BreakerInspector interface {
	States() []CircuitBreakerState
}
