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

// ReconcileServiceImpl implements ports.ReconcileService. It pulls the
// gateway's authoritative order state for payments whose webhook never
// arrived, and applies the same guarded transition the webhook path uses, so
// a racing webhook and sweep resolve to exactly one state change.
type ReconcileServiceImpl struct {
	orderRepo ports.PaymentOrderRepository
	appRepo   ports.ApplicationRepository
	gateway   ports.GatewayClient
	notifier  ports.Notifier
	metrics   ports.MetricsService
	interval  time.Duration
	staleness time.Duration
	batchSize int
	log       zerolog.Logger

	// overridable in tests
	now func() time.Time
}

// NewReconcileService creates the reconciliation sweeper.
func NewReconcileService(
	orderRepo ports.PaymentOrderRepository,
	appRepo ports.ApplicationRepository,
	gateway ports.GatewayClient,
	notifier ports.Notifier,
	metrics ports.MetricsService,
	interval, staleness time.Duration,
	batchSize int,
	log zerolog.Logger,
) *ReconcileServiceImpl {
	return &ReconcileServiceImpl{
		orderRepo: orderRepo,
		appRepo:   appRepo,
		gateway:   gateway,
		notifier:  notifier,
		metrics:   metrics,
		interval:  interval,
		staleness: staleness,
		batchSize: batchSize,
		log:       log,
		now:       time.Now,
	}
}

// Reconcile resolves one order against the gateway. Terminal orders are a
// no-op returning the existing status.
func (s *ReconcileServiceImpl) Reconcile(ctx context.Context, orderID uuid.UUID) (*ports.ReconcileResult, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load payment order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound()
	}
	return s.reconcileOrder(ctx, order)
}

func (s *ReconcileServiceImpl) reconcileOrder(ctx context.Context, order *domain.PaymentOrder) (*ports.ReconcileResult, error) {
	noop := &ports.ReconcileResult{OrderID: order.ID, Status: order.Status, Changed: false}

	if order.Status.IsTerminal() {
		s.log.Debug().Str("order_id", order.ID.String()).Str("status", string(order.Status)).Msg("reconcile: order already terminal")
		return noop, nil
	}
	if order.GatewayOrderID == nil {
		s.log.Warn().Str("order_id", order.ID.String()).Msg("reconcile: order has no gateway order id")
		return noop, nil
	}

	status, err := s.gateway.GetOrderStatus(ctx, *order.GatewayOrderID)
	if err != nil {
		return nil, err
	}

	target, reason, ok := s.targetForState(order, status)
	if !ok {
		return noop, nil
	}

	changed, err := s.applyTransition(ctx, order, target, reason)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	result := &ports.ReconcileResult{OrderID: order.ID, Status: target, Changed: changed}
	if !changed {
		result.Status = order.Status
	}
	return result, nil
}

// targetForState maps the gateway's reported state (plus the local voucher
// expiry rule) onto a target status. ok is false when no transition applies.
func (s *ReconcileServiceImpl) targetForState(order *domain.PaymentOrder, status *ports.GatewayOrderStatus) (domain.OrderStatus, *string, bool) {
	switch status.State {
	case ports.GatewayOrderPaid:
		return domain.OrderStatusConfirmed, nil, true
	case ports.GatewayOrderDeclined:
		reason := status.FailureReason
		if reason == "" {
			reason = "declined by gateway"
		}
		return domain.OrderStatusFailed, &reason, true
	case ports.GatewayOrderExpired:
		reason := "payment reference expired"
		return domain.OrderStatusExpired, &reason, true
	case ports.GatewayOrderCanceled:
		reason := "canceled by payer"
		return domain.OrderStatusFailed, &reason, true
	case ports.GatewayOrderPending:
		// The gateway may keep a voucher pending past its validity window;
		// the local clock rules here.
		if order.Method.HasReference() && order.ReferenceExpired(s.now()) {
			reason := "payment reference expired"
			return domain.OrderStatusExpired, &reason, true
		}
		return "", nil, false
	default:
		s.log.Warn().Str("order_id", order.ID.String()).Str("state", string(status.State)).Msg("reconcile: unmapped gateway state")
		return "", nil, false
	}
}

// applyTransition is the sweeper's half of the shared compare-and-set
// discipline. A lost race means the webhook path already resolved the order.
func (s *ReconcileServiceImpl) applyTransition(ctx context.Context, order *domain.PaymentOrder, target domain.OrderStatus, reason *string) (bool, error) {
	if !order.CanTransitionTo(target) {
		s.log.Info().
			Str("order_id", order.ID.String()).
			Str("status", string(order.Status)).
			Str("target", string(target)).
			Msg("reconcile: transition is a no-op")
		return false, nil
	}

	won, err := s.orderRepo.TransitionStatus(ctx, order.ID, order.Status, target, reason)
	if err != nil {
		return false, fmt.Errorf("transition order %s: %w", order.ID, err)
	}
	if !won {
		s.log.Info().Str("order_id", order.ID.String()).Msg("reconcile: lost transition race, skipping")
		return false, nil
	}

	appStatus := domain.StatusForOrder(target, order.Method)
	if err := s.appRepo.SetPaymentStatus(ctx, order.ApplicationID, appStatus); err != nil {
		return true, fmt.Errorf("update application %s: %w", order.ApplicationID, err)
	}

	if err := s.notifier.NotifyPaymentEvent(ctx, ports.PaymentNotification{
		ApplicationID: order.ApplicationID,
		OrderID:       order.ID,
		Status:        target,
		Method:        order.Method,
		Amount:        order.Amount,
		Currency:      order.Currency,
		ReferenceCode: order.ReferenceCode,
	}); err != nil {
		s.log.Error().Err(err).Str("order_id", order.ID.String()).Msg("reconcile: failed to enqueue outcome notification")
	}

	s.metrics.Record(ports.MetricRecord{
		Success:        target == domain.OrderStatusConfirmed,
		ProcessingTime: 0,
		Method:         order.Method,
		Amount:         order.Amount,
		ErrorType:      errorTypeForTarget(target),
	})

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("from", string(order.Status)).
		Str("to", string(target)).
		Msg("reconcile: payment order transitioned")
	return true, nil
}

func errorTypeForTarget(target domain.OrderStatus) string {
	switch target {
	case domain.OrderStatusFailed:
		return apperror.KindGatewayRejected.String()
	case domain.OrderStatusExpired:
		return "expired"
	default:
		return ""
	}
}

// Run drives the periodic sweep until ctx is cancelled.
func (s *ReconcileServiceImpl) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.interval).
		Dur("staleness", s.staleness).
		Int("batch_size", s.batchSize).
		Msg("reconciliation sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("reconciliation sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep reconciles one batch of stale pending orders. Per-order failures are
// logged and skipped so one broken order cannot stall the batch.
func (s *ReconcileServiceImpl) sweep(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.staleness)
	orders, err := s.orderRepo.ListStalePending(ctx, cutoff, s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep: failed to list stale orders")
		return
	}
	if len(orders) == 0 {
		return
	}

	s.log.Info().Int("count", len(orders)).Time("cutoff", cutoff).Msg("sweep: reconciling stale orders")

	for i := range orders {
		order := &orders[i]
		if ctx.Err() != nil {
			return
		}
		result, err := s.reconcileOrder(ctx, order)
		if err != nil {
			s.log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("sweep: reconcile failed")
			if apperror.KindOf(err) == apperror.KindCircuitOpen {
				// The status-query breaker is open; the rest of the batch
				// would fail the same way.
				s.log.Warn().Msg("sweep: status query breaker open, abandoning batch")
				return
			}
			continue
		}
		if result.Changed {
			s.log.Info().
				Str("order_id", order.ID.String()).
				Str("status", string(result.Status)).
				Msg("sweep: order resolved")
		}
	}
}

var _ ports.ReconcileService = (*ReconcileServiceImpl)(nil)
