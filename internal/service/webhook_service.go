package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"permit-payments/internal/core/domain"
	"permit-payments/internal/core/ports"
	"permit-payments/pkg/apperror"

	"github.com/rs/zerolog"
)

// dedupeTTL bounds the Redis fast path. The webhook_events table stays
// authoritative after the cache entry lapses.
const dedupeTTL = 24 * time.Hour

// gatewayEventPayload is the wire shape of one gateway delivery.
type gatewayEventPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Data      struct {
		OrderID       string `json:"order_id"`
		FailureReason string `json:"failure_reason,omitempty"`
	} `json:"data"`
}

// eventHandler applies one event type to its order. It returns the recorded
// outcome and a detail string for SKIPPED/FAILURE rows.
type eventHandler func(ctx context.Context, order *domain.PaymentOrder, payload *gatewayEventPayload) (domain.EventOutcome, *string, error)

// WebhookServiceImpl implements ports.WebhookService.
type WebhookServiceImpl struct {
	eventRepo ports.WebhookEventRepository
	orderRepo ports.PaymentOrderRepository
	appRepo   ports.ApplicationRepository
	dedupe    ports.EventDedupeCache
	notifier  ports.Notifier
	metrics   ports.MetricsService
	sigSvc    *HMACSignatureService
	secret    string
	log       zerolog.Logger

	handlers map[domain.GatewayEventType]eventHandler
}

// NewWebhookService creates the webhook ingestion service. It panics when the
// dispatch table does not cover every known gateway event type, so a gap is
// caught at startup rather than on the first unlucky delivery.
func NewWebhookService(
	eventRepo ports.WebhookEventRepository,
	orderRepo ports.PaymentOrderRepository,
	appRepo ports.ApplicationRepository,
	dedupe ports.EventDedupeCache,
	notifier ports.Notifier,
	metrics ports.MetricsService,
	webhookSecret string,
	log zerolog.Logger,
) *WebhookServiceImpl {
	s := &WebhookServiceImpl{
		eventRepo: eventRepo,
		orderRepo: orderRepo,
		appRepo:   appRepo,
		dedupe:    dedupe,
		notifier:  notifier,
		metrics:   metrics,
		sigSvc:    NewHMACSignatureService(),
		secret:    webhookSecret,
		log:       log,
	}

	s.handlers = map[domain.GatewayEventType]eventHandler{
		domain.EventOrderPaid: s.transitionHandler(domain.OrderStatusConfirmed, func(*gatewayEventPayload) *string {
			return nil
		}),
		domain.EventOrderDeclined: s.transitionHandler(domain.OrderStatusFailed, func(p *gatewayEventPayload) *string {
			reason := p.Data.FailureReason
			if reason == "" {
				reason = "declined by gateway"
			}
			return &reason
		}),
		domain.EventOrderExpired: s.transitionHandler(domain.OrderStatusExpired, func(*gatewayEventPayload) *string {
			reason := "payment reference expired"
			return &reason
		}),
		domain.EventOrderCanceled: s.transitionHandler(domain.OrderStatusFailed, func(*gatewayEventPayload) *string {
			reason := "canceled by payer"
			return &reason
		}),
	}

	for _, et := range domain.KnownEventTypes() {
		if _, ok := s.handlers[et]; !ok {
			panic(fmt.Sprintf("webhook dispatch table is missing handler for %q", et))
		}
	}

	return s
}

// Receive verifies, claims and processes one raw gateway delivery.
func (s *WebhookServiceImpl) Receive(ctx context.Context, rawBody []byte, signature string) (*ports.ReceiveResult, error) {
	if !s.sigSvc.Verify(s.secret, rawBody, signature) {
		s.log.Warn().Msg("webhook delivery with invalid signature rejected")
		return nil, apperror.ErrInvalidSignature()
	}

	var payload gatewayEventPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, apperror.Validation("malformed webhook body")
	}
	if payload.EventID == "" {
		return nil, apperror.Validation("missing event_id")
	}

	eventType := domain.GatewayEventType(payload.EventType)
	start := time.Now()

	// Fast path: a cache hit skips the database entirely for retried
	// deliveries. The check is read-only; the id is cached only after the
	// durable claim, so a failed claim leaves the retry path open.
	seen, err := s.dedupe.Seen(ctx, payload.EventID)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", payload.EventID).Msg("redis dedupe check failed, falling through to claim")
	} else if seen {
		return s.duplicateResult(ctx, payload.EventID, eventType)
	}

	event := &domain.WebhookEvent{
		EventID:        payload.EventID,
		EventType:      eventType,
		GatewayOrderID: payload.Data.OrderID,
		ReceivedAt:     time.Now().UTC(),
	}
	claimed, err := s.eventRepo.Claim(ctx, event)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim webhook event: %w", err))
	}
	if !claimed {
		return s.duplicateResult(ctx, payload.EventID, eventType)
	}

	// The event is durably ours; cache the id so redeliveries stay off
	// the database. A cache write failure only costs the fast path.
	if err := s.dedupe.MarkSeen(ctx, payload.EventID, dedupeTTL); err != nil {
		s.log.Warn().Err(err).Str("event_id", payload.EventID).Msg("failed to cache claimed event id")
	}

	outcome, detail := s.process(ctx, eventType, &payload, start)

	if err := s.eventRepo.RecordOutcome(ctx, payload.EventID, outcome, detail); err != nil {
		s.log.Error().Err(err).Str("event_id", payload.EventID).Msg("failed to record webhook outcome")
	}

	return &ports.ReceiveResult{
		EventID:   payload.EventID,
		EventType: eventType,
		Duplicate: false,
		Outcome:   outcome,
	}, nil
}

// process dispatches a claimed event and records metrics. Handler failures
// are contained here: they are logged and recorded, never re-raised, so the
// gateway gets its acknowledgement and the sweeper heals the order later.
func (s *WebhookServiceImpl) process(ctx context.Context, eventType domain.GatewayEventType, payload *gatewayEventPayload, start time.Time) (domain.EventOutcome, *string) {
	handler, ok := s.handlers[eventType]
	if !ok {
		detail := fmt.Sprintf("unknown event type %q", payload.EventType)
		s.log.Warn().
			Str("event_id", payload.EventID).
			Str("event_type", payload.EventType).
			Msg("webhook event type not in dispatch table, skipping")
		return domain.OutcomeSkipped, &detail
	}

	order, err := s.loadOrder(ctx, payload.Data.OrderID)
	var outcome domain.EventOutcome
	var detail *string
	if err == nil {
		outcome, detail, err = handler(ctx, order, payload)
	}
	if err != nil {
		failure := apperror.ErrHandlerFailure(err)
		s.log.Error().Err(err).
			Str("event_id", payload.EventID).
			Str("event_type", payload.EventType).
			Str("gateway_order_id", payload.Data.OrderID).
			Msg("webhook handler failed")
		s.recordMetric(false, start, order, failure.Kind.String())
		msg := err.Error()
		return domain.OutcomeFailure, &msg
	}

	if outcome == domain.OutcomeSuccess {
		s.recordMetric(true, start, order, "")
	}
	return outcome, detail
}

func (s *WebhookServiceImpl) loadOrder(ctx context.Context, gatewayOrderID string) (*domain.PaymentOrder, error) {
	if gatewayOrderID == "" {
		return nil, fmt.Errorf("delivery carries no order id")
	}
	order, err := s.orderRepo.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("no order for gateway order id %q", gatewayOrderID)
	}
	return order, nil
}

// transitionHandler builds the handler for one target status. All four event
// types funnel through the same guarded compare-and-set.
func (s *WebhookServiceImpl) transitionHandler(target domain.OrderStatus, reasonFn func(*gatewayEventPayload) *string) eventHandler {
	return func(ctx context.Context, order *domain.PaymentOrder, payload *gatewayEventPayload) (domain.EventOutcome, *string, error) {
		if !order.CanTransitionTo(target) {
			detail := fmt.Sprintf("order %s in status %s, transition to %s is a no-op", order.ID, order.Status, target)
			s.log.Info().
				Str("event_id", payload.EventID).
				Str("order_id", order.ID.String()).
				Str("status", string(order.Status)).
				Str("target", string(target)).
				Msg("webhook transition skipped")
			return domain.OutcomeSkipped, &detail, nil
		}

		won, err := s.orderRepo.TransitionStatus(ctx, order.ID, order.Status, target, reasonFn(payload))
		if err != nil {
			return "", nil, fmt.Errorf("transition order %s: %w", order.ID, err)
		}
		if !won {
			detail := fmt.Sprintf("order %s moved concurrently, transition to %s skipped", order.ID, target)
			s.log.Info().
				Str("event_id", payload.EventID).
				Str("order_id", order.ID.String()).
				Msg("lost transition race, skipping")
			return domain.OutcomeSkipped, &detail, nil
		}

		appStatus := domain.StatusForOrder(target, order.Method)
		if err := s.appRepo.SetPaymentStatus(ctx, order.ApplicationID, appStatus); err != nil {
			return "", nil, fmt.Errorf("update application %s: %w", order.ApplicationID, err)
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
			s.log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to enqueue outcome notification")
		}

		s.log.Info().
			Str("event_id", payload.EventID).
			Str("order_id", order.ID.String()).
			Str("from", string(order.Status)).
			Str("to", string(target)).
			Msg("payment order transitioned")
		return domain.OutcomeSuccess, nil, nil
	}
}

// duplicateResult returns the previously recorded outcome without touching
// the order.
func (s *WebhookServiceImpl) duplicateResult(ctx context.Context, eventID string, eventType domain.GatewayEventType) (*ports.ReceiveResult, error) {
	result := &ports.ReceiveResult{
		EventID:   eventID,
		EventType: eventType,
		Duplicate: true,
	}
	prior, err := s.eventRepo.Get(ctx, eventID)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", eventID).Msg("failed to load prior outcome for duplicate delivery")
	} else if prior != nil && prior.Outcome != nil {
		result.Outcome = *prior.Outcome
	}
	s.log.Info().Str("event_id", eventID).Msg("duplicate webhook delivery acknowledged")
	return result, nil
}

func (s *WebhookServiceImpl) recordMetric(success bool, start time.Time, order *domain.PaymentOrder, errorType string) {
	rec := ports.MetricRecord{
		Success:        success,
		ProcessingTime: time.Since(start),
		ErrorType:      errorType,
	}
	if order != nil {
		rec.Method = order.Method
		rec.Amount = order.Amount
	}
	s.metrics.Record(rec)
}

var _ ports.WebhookService = (*WebhookServiceImpl)(nil)
