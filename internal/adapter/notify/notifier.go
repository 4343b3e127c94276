package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"permit-payments/config"
	"permit-payments/internal/core/domain"
	"permit-payments/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// retryIntervals spaces out redelivery attempts after the initial one.
var retryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// Notification event types sent to the permits service.
const (
	EventPaymentConfirmed = "payment.confirmed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentExpired   = "payment.expired"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// payload is the JSON structure sent to the permits service.
type payload struct {
	EventType string      `json:"event_type"`
	Data      payloadData `json:"data"`
	Signature string      `json:"signature"`
}

// payloadData holds the payment outcome details in the notification.
type payloadData struct {
	ApplicationID string `json:"application_id"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	Method        string `json:"method"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	ReferenceCode string `json:"reference_code,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// Notifier implements ports.Notifier over HTTP with signed payloads and
// persistent delivery logs. Delivery is fire-and-forget: the caller is never
// blocked on the permits service being up.
type Notifier struct {
	url        string
	secret     string
	httpClient HTTPClient
	logRepo    ports.NotificationLogRepository
	log        zerolog.Logger

	stop     chan struct{}
	inFlight sync.WaitGroup

	// overridable in tests
	intervals []time.Duration
}

// NewNotifier creates an HTTP notifier.
func NewNotifier(cfg config.NotifyConfig, httpClient HTTPClient, logRepo ports.NotificationLogRepository, log zerolog.Logger) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{
		url:        cfg.URL,
		secret:     cfg.Secret,
		httpClient: httpClient,
		logRepo:    logRepo,
		log:        log,
		stop:       make(chan struct{}),
		intervals:  retryIntervals,
	}
}

// Shutdown interrupts pending retry waits and blocks until every in-flight
// delivery goroutine has finished updating its log.
func (n *Notifier) Shutdown() {
	close(n.stop)
	n.inFlight.Wait()
}

// NotifyPaymentEvent sends the outcome notification asynchronously with
// retries. Orders that are not in a terminal status produce no notification.
func (n *Notifier) NotifyPaymentEvent(ctx context.Context, notif ports.PaymentNotification) error {
	if n.url == "" {
		n.log.Debug().Str("order_id", notif.OrderID.String()).Msg("notify: no URL configured, skipping")
		return nil
	}

	eventType, ok := eventForStatus(notif.Status)
	if !ok {
		n.log.Debug().
			Str("order_id", notif.OrderID.String()).
			Str("status", string(notif.Status)).
			Msg("notify: non-terminal status, skipping")
		return nil
	}

	data := payloadData{
		ApplicationID: notif.ApplicationID.String(),
		OrderID:       notif.OrderID.String(),
		Status:        string(notif.Status),
		Method:        string(notif.Method),
		Amount:        notif.Amount,
		Currency:      notif.Currency,
		Timestamp:     time.Now().Unix(),
	}
	if notif.ReferenceCode != nil {
		data.ReferenceCode = *notif.ReferenceCode
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}

	p := payload{
		EventType: eventType,
		Data:      data,
		Signature: sign(n.secret, dataBytes),
	}

	now := time.Now().UTC()
	deliveryLog := &domain.NotificationDeliveryLog{
		ID:            uuid.New(),
		OrderID:       notif.OrderID,
		ApplicationID: notif.ApplicationID,
		Event:         eventType,
		URL:           n.url,
		Status:        domain.NotificationStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := n.logRepo.Create(ctx, deliveryLog); err != nil {
		n.log.Error().Err(err).Str("order_id", notif.OrderID.String()).Msg("notify: failed to create delivery log")
		// Still attempt delivery, the log is advisory.
	}

	n.inFlight.Add(1)
	go n.deliverWithRetries(p, deliveryLog)

	return nil
}

// deliverWithRetries attempts delivery until a 2xx response, exhaustion, or
// shutdown. A shutdown between attempts marks the log failed rather than
// leaving it pending forever.
func (n *Notifier) deliverWithRetries(p payload, deliveryLog *domain.NotificationDeliveryLog) {
	defer n.inFlight.Done()

	payloadBytes, err := json.Marshal(p)
	if err != nil {
		n.log.Error().Err(err).Str("order_id", deliveryLog.OrderID.String()).Msg("notify: failed to marshal payload")
		return
	}

	ctx := context.Background()

	for attempt := 0; attempt <= len(n.intervals); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(n.intervals[attempt-1]):
			case <-n.stop:
				msg := "shutdown before delivery completed"
				deliveryLog.Status = domain.NotificationStatusFailed
				deliveryLog.LastError = &msg
				n.updateLog(ctx, deliveryLog)
				n.log.Warn().Str("order_id", deliveryLog.OrderID.String()).Msg("notify: delivery abandoned on shutdown")
				return
			}
		}
		deliveryLog.Attempt = attempt + 1

		req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(payloadBytes))
		if err != nil {
			n.log.Error().Err(err).Str("order_id", deliveryLog.OrderID.String()).Int("attempt", attempt+1).Msg("notify: failed to create request")
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			msg := err.Error()
			deliveryLog.LastError = &msg
			n.updateLog(ctx, deliveryLog)
			n.log.Warn().Err(err).Str("order_id", deliveryLog.OrderID.String()).Int("attempt", attempt+1).Msg("notify: delivery failed")
			continue
		}
		resp.Body.Close()

		status := resp.StatusCode
		deliveryLog.HTTPStatus = &status

		if status >= 200 && status < 300 {
			deliveryLog.Status = domain.NotificationStatusDelivered
			deliveryLog.LastError = nil
			n.updateLog(ctx, deliveryLog)
			n.log.Info().Str("order_id", deliveryLog.OrderID.String()).Int("attempt", attempt+1).Int("status", status).Msg("notify: delivered successfully")
			return
		}

		n.updateLog(ctx, deliveryLog)
		n.log.Warn().Str("order_id", deliveryLog.OrderID.String()).Int("attempt", attempt+1).Int("status", status).Msg("notify: non-2xx response, retrying")
	}

	deliveryLog.Status = domain.NotificationStatusFailed
	n.updateLog(ctx, deliveryLog)
	n.log.Error().Str("order_id", deliveryLog.OrderID.String()).Msg("notify: all retry attempts exhausted")
}

func (n *Notifier) updateLog(ctx context.Context, deliveryLog *domain.NotificationDeliveryLog) {
	if err := n.logRepo.Update(ctx, deliveryLog); err != nil {
		n.log.Error().Err(err).Str("log_id", deliveryLog.ID.String()).Msg("notify: failed to update delivery log")
	}
}

func eventForStatus(status domain.OrderStatus) (string, bool) {
	switch status {
	case domain.OrderStatusConfirmed:
		return EventPaymentConfirmed, true
	case domain.OrderStatusFailed:
		return EventPaymentFailed, true
	case domain.OrderStatusExpired:
		return EventPaymentExpired, true
	default:
		return "", false
	}
}

// sign computes the hex HMAC-SHA256 of the data payload.
func sign(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ ports.Notifier = (*Notifier)(nil)
