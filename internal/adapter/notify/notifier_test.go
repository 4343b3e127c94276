package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"permit-payments/config"
	"permit-payments/internal/core/domain"
	"permit-payments/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHTTPClient captures deliveries and signals completion.
type recordingHTTPClient struct {
	mu        sync.Mutex
	bodies    []string
	responses []int
	errs      []error
	done      chan struct{}
}

func (c *recordingHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, _ := io.ReadAll(req.Body)
	c.bodies = append(c.bodies, string(b))

	idx := len(c.bodies) - 1
	if idx < len(c.errs) && c.errs[idx] != nil {
		return nil, c.errs[idx]
	}
	status := http.StatusOK
	if idx < len(c.responses) {
		status = c.responses[idx]
	}
	if status >= 200 && status < 300 {
		close(c.done)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("{}"))}, nil
}

// memoryLogRepo is an in-memory NotificationLogRepository.
type memoryLogRepo struct {
	mu      sync.Mutex
	created []domain.NotificationDeliveryLog
	updated []domain.NotificationDeliveryLog
}

func (r *memoryLogRepo) Create(_ context.Context, l *domain.NotificationDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *l)
	return nil
}

func (r *memoryLogRepo) Update(_ context.Context, l *domain.NotificationDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, *l)
	return nil
}

func (r *memoryLogRepo) lastUpdate() *domain.NotificationDeliveryLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updated) == 0 {
		return nil
	}
	l := r.updated[len(r.updated)-1]
	return &l
}

func newTestNotifier(client HTTPClient, repo ports.NotificationLogRepository) *Notifier {
	n := NewNotifier(config.NotifyConfig{
		URL:    "https://permits.test/payments/callback",
		Secret: "shared-secret",
	}, client, repo, zerolog.Nop())
	n.intervals = []time.Duration{time.Millisecond, time.Millisecond}
	return n
}

func confirmedNotification() ports.PaymentNotification {
	return ports.PaymentNotification{
		ApplicationID: uuid.New(),
		OrderID:       uuid.New(),
		Status:        domain.OrderStatusConfirmed,
		Method:        domain.MethodCard,
		Amount:        19700,
		Currency:      "MXN",
	}
}

func TestNotifier_DeliversSignedPayload(t *testing.T) {
	client := &recordingHTTPClient{done: make(chan struct{})}
	repo := &memoryLogRepo{}
	n := newTestNotifier(client, repo)

	err := n.NotifyPaymentEvent(context.Background(), confirmedNotification())
	require.NoError(t, err)

	select {
	case <-client.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}

	client.mu.Lock()
	body := client.bodies[0]
	client.mu.Unlock()

	var p payload
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.Equal(t, EventPaymentConfirmed, p.EventType)
	assert.Equal(t, "CONFIRMED", p.Data.Status)
	assert.Equal(t, int64(19700), p.Data.Amount)

	// The signature must verify against the marshaled data with the shared secret.
	dataBytes, err := json.Marshal(p.Data)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte("shared-secret"))
	mac.Write(dataBytes)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), p.Signature)
}

func TestNotifier_RetriesThenDelivers(t *testing.T) {
	client := &recordingHTTPClient{
		done:      make(chan struct{}),
		errs:      []error{errors.New("connection refused"), nil},
		responses: []int{0, http.StatusOK},
	}
	repo := &memoryLogRepo{}
	n := newTestNotifier(client, repo)

	require.NoError(t, n.NotifyPaymentEvent(context.Background(), confirmedNotification()))

	select {
	case <-client.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered after retry")
	}

	// Give the final log update a moment to land.
	assert.Eventually(t, func() bool {
		last := repo.lastUpdate()
		return last != nil && last.Status == domain.NotificationStatusDelivered && last.Attempt == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotifier_ExhaustionMarksFailed(t *testing.T) {
	client := &recordingHTTPClient{
		done:      make(chan struct{}),
		responses: []int{500, 500, 500},
	}
	repo := &memoryLogRepo{}
	n := newTestNotifier(client, repo)

	require.NoError(t, n.NotifyPaymentEvent(context.Background(), confirmedNotification()))

	assert.Eventually(t, func() bool {
		last := repo.lastUpdate()
		return last != nil && last.Status == domain.NotificationStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	client.mu.Lock()
	attempts := len(client.bodies)
	client.mu.Unlock()
	assert.Equal(t, 3, attempts, "initial attempt plus one per retry interval")
}

func TestNotifier_ShutdownInterruptsRetryWait(t *testing.T) {
	client := &recordingHTTPClient{
		done: make(chan struct{}),
		errs: []error{errors.New("connection refused")},
	}
	repo := &memoryLogRepo{}
	n := newTestNotifier(client, repo)
	// Long enough that only a shutdown can end the wait within the test.
	n.intervals = []time.Duration{time.Hour}

	require.NoError(t, n.NotifyPaymentEvent(context.Background(), confirmedNotification()))

	// Wait for the first attempt to fail so the goroutine is parked on the
	// retry interval.
	assert.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.bodies) == 1
	}, 2*time.Second, 10*time.Millisecond)

	finished := make(chan struct{})
	go func() {
		n.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not interrupt the retry wait")
	}

	last := repo.lastUpdate()
	require.NotNil(t, last)
	assert.Equal(t, domain.NotificationStatusFailed, last.Status, "abandoned delivery must not stay pending")
	require.NotNil(t, last.LastError)
	assert.Contains(t, *last.LastError, "shutdown")
}

func TestNotifier_NonTerminalStatusSkipped(t *testing.T) {
	client := &recordingHTTPClient{done: make(chan struct{})}
	repo := &memoryLogRepo{}
	n := newTestNotifier(client, repo)

	notif := confirmedNotification()
	notif.Status = domain.OrderStatusPendingConfirmation
	require.NoError(t, n.NotifyPaymentEvent(context.Background(), notif))

	time.Sleep(20 * time.Millisecond)
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Empty(t, client.bodies)
	assert.Empty(t, repo.created)
}

func TestNotifier_NoURLConfigured(t *testing.T) {
	client := &recordingHTTPClient{done: make(chan struct{})}
	repo := &memoryLogRepo{}
	n := NewNotifier(config.NotifyConfig{}, client, repo, zerolog.Nop())

	require.NoError(t, n.NotifyPaymentEvent(context.Background(), confirmedNotification()))

	time.Sleep(20 * time.Millisecond)
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Empty(t, client.bodies)
}
