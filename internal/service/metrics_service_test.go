package service

import (
	"testing"
	"time"

	"permit-payments/internal/core/domain"
	"permit-payments/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedInspector returns canned breaker snapshots.
type fixedInspector struct {
	states []ports.CircuitBreakerState
}

func (f *fixedInspector) States() []ports.CircuitBreakerState { return f.states }

func newTestMetrics(inspector ports.BreakerInspector) (*MetricsServiceImpl, *time.Time) {
	svc := NewMetricsService(inspector, zerolog.Nop())
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func success(method domain.PaymentMethod, amount int64, elapsed time.Duration) ports.MetricRecord {
	return ports.MetricRecord{Success: true, ProcessingTime: elapsed, Method: method, Amount: amount}
}

func failure(errorType string) ports.MetricRecord {
	return ports.MetricRecord{Success: false, ProcessingTime: 50 * time.Millisecond, Method: domain.MethodCard, ErrorType: errorType}
}

func TestMetricsService_WindowAggregation(t *testing.T) {
	svc, _ := newTestMetrics(nil)

	svc.Record(success(domain.MethodCard, 19700, 120*time.Millisecond))
	svc.Record(success(domain.MethodCashVoucher, 19700, 80*time.Millisecond))
	svc.Record(failure("gateway_rejected"))

	report := svc.Report()
	require.Len(t, report.Windows, 3)

	hour := report.Windows[0]
	assert.Equal(t, "1h", hour.Window)
	assert.Equal(t, int64(3), hour.Total)
	assert.Equal(t, int64(2), hour.Succeeded)
	assert.Equal(t, int64(1), hour.Failed)
	assert.InDelta(t, 2.0/3.0, hour.SuccessRate, 1e-9)
	assert.Equal(t, int64(39400+0), hour.AmountTotal)
	assert.Equal(t, int64(2), hour.ByMethod[domain.MethodCard])
	assert.Equal(t, int64(1), hour.ByMethod[domain.MethodCashVoucher])
	assert.Equal(t, int64(1), hour.ByErrorType["gateway_rejected"])

	// Larger windows see the same observations.
	assert.Equal(t, int64(3), report.Windows[1].Total)
	assert.Equal(t, int64(3), report.Windows[2].Total)
}

func TestMetricsService_ExpiredBucketsRollOver(t *testing.T) {
	svc, _ := newTestMetrics(nil)
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	current := base
	svc.now = func() time.Time { return current }

	svc.Record(failure("internal"))
	svc.Record(success(domain.MethodCard, 19700, 100*time.Millisecond))

	// Two hours later the 1h window is empty, 24h still sees both.
	current = base.Add(2 * time.Hour)
	report := svc.Report()

	hour := report.Windows[0]
	assert.Zero(t, hour.Total, "1h window rolled over")
	assert.GreaterOrEqual(t, hour.Total, int64(0), "counters never go negative")

	day := report.Windows[1]
	assert.Equal(t, int64(2), day.Total)
}

func TestMetricsService_ConsecutiveFailures(t *testing.T) {
	svc, _ := newTestMetrics(nil)

	svc.Record(failure("internal"))
	svc.Record(failure("internal"))
	svc.Record(failure("internal"))
	assert.Equal(t, int64(3), svc.Report().ConsecutiveFailures)

	svc.Record(success(domain.MethodCard, 19700, 100*time.Millisecond))
	assert.Zero(t, svc.Report().ConsecutiveFailures, "a success resets the streak")
}

func TestMetricsService_HealthBands(t *testing.T) {
	t.Run("no data is healthy", func(t *testing.T) {
		svc, _ := newTestMetrics(nil)
		report := svc.Report()
		assert.Equal(t, "healthy", report.Status)
		assert.Equal(t, float64(100), report.Score)
		assert.Empty(t, report.Recommendations)
	})

	t.Run("all failures is critical", func(t *testing.T) {
		svc, _ := newTestMetrics(nil)
		for i := 0; i < 10; i++ {
			svc.Record(failure("internal"))
		}
		report := svc.Report()
		assert.Equal(t, "critical", report.Status)
		assert.Less(t, report.Score, 50.0)
		assert.NotEmpty(t, report.Recommendations)
	})

	t.Run("partial failures degrade", func(t *testing.T) {
		svc, _ := newTestMetrics(nil)
		for i := 0; i < 6; i++ {
			svc.Record(success(domain.MethodCard, 19700, 100*time.Millisecond))
		}
		for i := 0; i < 4; i++ {
			svc.Record(failure("gateway_rejected"))
		}
		report := svc.Report()
		assert.Equal(t, "degraded", report.Status)
		assert.GreaterOrEqual(t, report.Score, 50.0)
		assert.Less(t, report.Score, 80.0)
	})
}

func TestMetricsService_BreakerSubScore(t *testing.T) {
	openBreaker := &fixedInspector{states: []ports.CircuitBreakerState{
		{Name: "gateway-create-order", State: "OPEN"},
		{Name: "gateway-query-status", State: "CLOSED"},
		{Name: "gateway-create-customer", State: "CLOSED"},
	}}
	svc, _ := newTestMetrics(openBreaker)

	report := svc.Report()
	assert.InDelta(t, 200.0/3.0, report.SubScores["circuit_breakers"], 1e-9)
	require.Len(t, report.Breakers, 3)

	var found bool
	for _, rec := range report.Recommendations {
		if rec == "gateway-create-order breaker open: check the gateway provider status page" {
			found = true
		}
	}
	assert.True(t, found, "open breaker produces a recommendation")
}

func TestMetricsService_SlowProcessingLowersScore(t *testing.T) {
	svc, _ := newTestMetrics(nil)

	for i := 0; i < 5; i++ {
		svc.Record(success(domain.MethodCard, 19700, 4*time.Second))
	}

	report := svc.Report()
	assert.Less(t, report.SubScores["processing_time"], 80.0)
	assert.Equal(t, float64(100), report.SubScores["success_rate"])
}
