package service

import (
	"fmt"
	"sync"
	"time"

	"permit-payments/internal/core/domain"
	"permit-payments/internal/core/ports"

	"github.com/rs/zerolog"
)

// bucket accumulates observations for one granularity slot.
type bucket struct {
	start           time.Time
	total           int64
	succeeded       int64
	failed          int64
	sumProcessingMs float64
	amountTotal     int64
	byMethod        map[domain.PaymentMethod]int64
	byErrorType     map[string]int64
}

func (b *bucket) reset(start time.Time) {
	b.start = start
	b.total = 0
	b.succeeded = 0
	b.failed = 0
	b.sumProcessingMs = 0
	b.amountTotal = 0
	b.byMethod = map[domain.PaymentMethod]int64{}
	b.byErrorType = map[string]int64{}
}

// window is a ring of buckets covering one rolling span. Expired buckets are
// lazily reset when their slot comes around again, so totals roll over and
// never go negative.
type window struct {
	name        string
	span        time.Duration
	granularity time.Duration
	buckets     []bucket
}

func newWindow(name string, span, granularity time.Duration) *window {
	n := int(span / granularity)
	w := &window{name: name, span: span, granularity: granularity, buckets: make([]bucket, n)}
	for i := range w.buckets {
		w.buckets[i].reset(time.Time{})
	}
	return w
}

func (w *window) slot(now time.Time) *bucket {
	aligned := now.Truncate(w.granularity)
	idx := int(aligned.UnixNano()/int64(w.granularity)) % len(w.buckets)
	b := &w.buckets[idx]
	if !b.start.Equal(aligned) {
		b.reset(aligned)
	}
	return b
}

func (w *window) record(now time.Time, rec ports.MetricRecord) {
	b := w.slot(now)
	b.total++
	if rec.Success {
		b.succeeded++
	} else {
		b.failed++
		if rec.ErrorType != "" {
			b.byErrorType[rec.ErrorType]++
		}
	}
	b.sumProcessingMs += float64(rec.ProcessingTime) / float64(time.Millisecond)
	b.amountTotal += rec.Amount
	if rec.Method != "" {
		b.byMethod[rec.Method]++
	}
}

func (w *window) stats(now time.Time) ports.WindowStats {
	cutoff := now.Add(-w.span)
	out := ports.WindowStats{
		Window:      w.name,
		ByMethod:    map[domain.PaymentMethod]int64{},
		ByErrorType: map[string]int64{},
	}
	var sumMs float64
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.start.IsZero() || b.start.Before(cutoff) {
			continue
		}
		out.Total += b.total
		out.Succeeded += b.succeeded
		out.Failed += b.failed
		out.AmountTotal += b.amountTotal
		sumMs += b.sumProcessingMs
		for m, c := range b.byMethod {
			out.ByMethod[m] += c
		}
		for e, c := range b.byErrorType {
			out.ByErrorType[e] += c
		}
	}
	if out.Total > 0 {
		out.SuccessRate = float64(out.Succeeded) / float64(out.Total)
		out.MeanProcessingMs = sumMs / float64(out.Total)
	}
	return out
}

// MetricsServiceImpl implements ports.MetricsService. It is an injectable
// instance, not package state, so tests and multiple servers never share
// counters.
type MetricsServiceImpl struct {
	mu                  sync.Mutex
	windows             []*window
	consecutiveFailures int64
	inspector           ports.BreakerInspector
	log                 zerolog.Logger

	// overridable in tests
	now func() time.Time
}

// NewMetricsService creates the metrics aggregator. inspector may be nil when
// no breaker registry is wired (the breaker sub-score then reports healthy).
func NewMetricsService(inspector ports.BreakerInspector, log zerolog.Logger) *MetricsServiceImpl {
	return &MetricsServiceImpl{
		windows: []*window{
			newWindow("1h", time.Hour, time.Minute),
			newWindow("24h", 24*time.Hour, time.Hour),
			newWindow("7d", 7*24*time.Hour, 6*time.Hour),
		},
		inspector: inspector,
		log:       log,
		now:       time.Now,
	}
}

// Record adds one processing observation.
func (s *MetricsServiceImpl) Record(rec ports.MetricRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, w := range s.windows {
		w.record(now, rec)
	}
	if rec.Success {
		s.consecutiveFailures = 0
	} else {
		s.consecutiveFailures++
	}
}

// Report builds the operator health snapshot.
func (s *MetricsServiceImpl) Report() *ports.HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	windows := make([]ports.WindowStats, 0, len(s.windows))
	for _, w := range s.windows {
		windows = append(windows, w.stats(now))
	}
	recent := windows[0] // 1h window drives the live scores

	var breakers []ports.CircuitBreakerState
	if s.inspector != nil {
		breakers = s.inspector.States()
	}

	subScores := map[string]float64{
		"success_rate":         successRateScore(recent),
		"processing_time":      processingTimeScore(recent),
		"error_rate":           errorRateScore(recent),
		"consecutive_failures": consecutiveFailureScore(s.consecutiveFailures),
		"circuit_breakers":     breakerScore(breakers),
	}

	var sum float64
	for _, v := range subScores {
		sum += v
	}
	score := sum / float64(len(subScores))

	status := "healthy"
	switch {
	case score < 50:
		status = "critical"
	case score < 80:
		status = "degraded"
	}

	return &ports.HealthReport{
		Status:              status,
		Score:               score,
		SubScores:           subScores,
		ConsecutiveFailures: s.consecutiveFailures,
		Windows:             windows,
		Breakers:            breakers,
		Recommendations:     recommendations(subScores, breakers, s.consecutiveFailures),
		GeneratedAt:         now.UTC(),
	}
}

// No observations means nothing is wrong; every score starts at 100.

func successRateScore(w ports.WindowStats) float64 {
	if w.Total == 0 {
		return 100
	}
	return w.SuccessRate * 100
}

// processingTimeScore is 100 up to 500ms mean, falling linearly to 0 at 5s.
func processingTimeScore(w ports.WindowStats) float64 {
	if w.Total == 0 || w.MeanProcessingMs <= 500 {
		return 100
	}
	if w.MeanProcessingMs >= 5000 {
		return 0
	}
	return 100 * (5000 - w.MeanProcessingMs) / 4500
}

func errorRateScore(w ports.WindowStats) float64 {
	if w.Total == 0 {
		return 100
	}
	return 100 * (1 - float64(w.Failed)/float64(w.Total))
}

// consecutiveFailureScore loses 20 points per failure in a row.
func consecutiveFailureScore(n int64) float64 {
	score := 100 - float64(n)*20
	if score < 0 {
		return 0
	}
	return score
}

func breakerScore(states []ports.CircuitBreakerState) float64 {
	if len(states) == 0 {
		return 100
	}
	var sum float64
	for _, st := range states {
		switch st.State {
		case "OPEN":
			// no points
		case "HALF_OPEN":
			sum += 50
		default:
			sum += 100
		}
	}
	return sum / float64(len(states))
}

func recommendations(subScores map[string]float64, breakers []ports.CircuitBreakerState, consecutive int64) []string {
	var recs []string
	for _, b := range breakers {
		if b.State == "OPEN" {
			recs = append(recs, fmt.Sprintf("%s breaker open: check the gateway provider status page", b.Name))
		}
	}
	if subScores["success_rate"] < 80 {
		recs = append(recs, "payment success rate below 80% over the last hour: inspect recent failure reasons")
	}
	if subScores["processing_time"] < 80 {
		recs = append(recs, "mean processing time elevated: check gateway latency and database load")
	}
	if consecutive >= 3 {
		recs = append(recs, fmt.Sprintf("%d consecutive failures: the gateway may be rejecting all traffic", consecutive))
	}
	return recs
}

var _ ports.MetricsService = (*MetricsServiceImpl)(nil)
