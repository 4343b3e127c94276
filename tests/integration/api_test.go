package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"permit-payments/config"
	httpHandler "permit-payments/internal/adapter/http/handler"
	"permit-payments/internal/adapter/notify"
	redisStorage "permit-payments/internal/adapter/storage/redis"
	"permit-payments/internal/core/domain"
	"permit-payments/internal/service"
	"permit-payments/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const integrationWebhookSecret = "whsec_integration"

// testApp builds a full application stack: real HTTP layer, middleware,
// handlers and services over in-memory repos, miniredis and a scripted
// gateway. Outbound notifications land on a local receiver that counts
// deliveries.
type testApp struct {
	server       *httptest.Server
	redis        *miniredis.Miniredis
	notifyServer *httptest.Server
	delivered    *atomic.Int64

	orders    *inMemoryOrderRepo
	apps      *inMemoryApplicationRepo
	events    *inMemoryEventRepo
	gw        *scriptedGateway
	reconcile *service.ReconcileServiceImpl
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	eventCache := redisStorage.NewEventCache(rdb)

	orderRepo := newInMemoryOrderRepo()
	appRepo := newInMemoryApplicationRepo()
	eventRepo := newInMemoryEventRepo()
	notifLogRepo := newInMemoryNotifLogRepo()
	gw := newScriptedGateway()

	// Notification receiver counting successful deliveries.
	var delivered atomic.Int64
	notifyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	log := logger.New("debug", false)
	notifier := notify.NewNotifier(config.NotifyConfig{
		URL:    notifyServer.URL,
		Secret: "notify-secret",
	}, nil, notifLogRepo, log)

	metricsSvc := service.NewMetricsService(nil, log)
	paymentSvc := service.NewPaymentService(orderRepo, appRepo, gw, 72*time.Hour, log)
	webhookSvc := service.NewWebhookService(
		eventRepo, orderRepo, appRepo, eventCache, notifier, metricsSvc,
		integrationWebhookSecret, log,
	)
	reconcileSvc := service.NewReconcileService(
		orderRepo, appRepo, gw, notifier, metricsSvc,
		10*time.Millisecond, 5*time.Minute, 50, log,
	)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:      paymentSvc,
		WebhookSvc:      webhookSvc,
		ReconcileSvc:    reconcileSvc,
		MetricsSvc:      metricsSvc,
		SignatureHeader: "X-Gateway-Signature",
		Logger:          log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:       server,
		redis:        mr,
		notifyServer: notifyServer,
		delivered:    &delivered,
		orders:       orderRepo,
		apps:         appRepo,
		events:       eventRepo,
		gw:           gw,
		reconcile:    reconcileSvc,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.notifyServer.Close()
	a.redis.Close()
}

// seedApplication registers a payable application and returns its id and
// owner id.
func (a *testApp) seedApplication() (uuid.UUID, uuid.UUID) {
	appID := uuid.New()
	userID := uuid.New()
	a.apps.seed(&domain.Application{
		ID:        appID,
		UserID:    userID,
		Status:    domain.AppStatusPendingPayment,
		UpdatedAt: time.Now(),
	})
	return appID, userID
}

func (a *testApp) createPayment(t *testing.T, appID, userID uuid.UUID, method string) map[string]interface{} {
	t.Helper()

	body, _ := json.Marshal(map[string]interface{}{
		"application_id": appID.String(),
		"method":         method,
		"amount":         19700,
		"currency":       "MXN",
		"payer": map[string]string{
			"name":  "Ana Torres",
			"email": "ana@example.com",
		},
	})
	req, _ := http.NewRequest(http.MethodPost, a.server.URL+"/api/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID.String())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope["data"].(map[string]interface{})
}

// postWebhook delivers a signed gateway event and returns the decoded result
// alongside the HTTP status code.
func (a *testApp) postWebhook(t *testing.T, eventID, eventType, gatewayOrderID string) (map[string]interface{}, int) {
	t.Helper()

	body, _ := json.Marshal(map[string]interface{}{
		"event_id":   eventID,
		"event_type": eventType,
		"data": map[string]string{
			"order_id": gatewayOrderID,
		},
	})
	sig := service.NewHMACSignatureService().Sign(integrationWebhookSecret, body)

	req, _ := http.NewRequest(http.MethodPost, a.server.URL+"/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", sig)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	data, _ := envelope["data"].(map[string]interface{})
	return data, resp.StatusCode
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_CardPaymentLifecycle(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	appID, userID := app.seedApplication()

	// Initiate a card payment of 197.00 MXN.
	data := app.createPayment(t, appID, userID, "card")
	assert.Equal(t, "PENDING_CONFIRMATION", data["status"])
	assert.NotEmpty(t, data["checkout_url"])
	gatewayOrderID := data["gateway_order_id"].(string)
	orderID := data["order_id"].(string)

	application, err := app.apps.Get(context.Background(), appID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppStatusPaymentPending, application.Status)

	// Gateway confirms the charge.
	result, code := app.postWebhook(t, "evt_card_1", "order.paid", gatewayOrderID)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, result["duplicate"])
	assert.Equal(t, "SUCCESS", result["outcome"])

	// Order and application reflect the terminal state.
	resp, err := http.Get(app.server.URL + "/api/v1/payments/" + orderID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "CONFIRMED", envelope["data"].(map[string]interface{})["status"])

	application, err = app.apps.Get(context.Background(), appID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppStatusPaid, application.Status)

	// Exactly one outbound notification.
	assert.Eventually(t, func() bool {
		return app.delivered.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIntegration_VoucherFlowAndDuplicateWebhook(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	appID, userID := app.seedApplication()

	data := app.createPayment(t, appID, userID, "cash_voucher")
	assert.NotEmpty(t, data["reference_code"])
	assert.NotEmpty(t, data["expires_at"])
	gatewayOrderID := data["gateway_order_id"].(string)

	application, err := app.apps.Get(context.Background(), appID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppStatusAwaitingVoucher, application.Status)

	// First delivery processes, the replay acks as a duplicate.
	result, code := app.postWebhook(t, "evt_voucher_1", "order.paid", gatewayOrderID)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, result["duplicate"])

	replay, code := app.postWebhook(t, "evt_voucher_1", "order.paid", gatewayOrderID)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, replay["duplicate"])
	assert.Equal(t, "SUCCESS", replay["outcome"])

	application, err = app.apps.Get(context.Background(), appID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppStatusPaid, application.Status)
}

func TestIntegration_WebhookBadSignature(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	body := []byte(`{"event_id":"evt_x","event_type":"order.paid","data":{"order_id":"ord_1"}}`)
	req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", "deadbeef")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_DeclinedPaymentLeavesApplicationPayable(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	appID, userID := app.seedApplication()
	app.gw.declineNext = true
	app.gw.declineWith = "card_declined"

	body, _ := json.Marshal(map[string]interface{}{
		"application_id": appID.String(),
		"method":         "card",
		"amount":         19700,
		"currency":       "MXN",
		"payer":          map[string]string{"name": "Ana Torres", "email": "ana@example.com"},
	})
	req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID.String())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Nothing persisted: the same application accepts a retry.
	data := app.createPayment(t, appID, userID, "card")
	assert.Equal(t, "PENDING_CONFIRMATION", data["status"])
}

func TestIntegration_SecondPaymentConflicts(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	appID, userID := app.seedApplication()
	app.createPayment(t, appID, userID, "card")

	body, _ := json.Marshal(map[string]interface{}{
		"application_id": appID.String(),
		"method":         "cash_voucher",
		"amount":         19700,
		"currency":       "MXN",
		"payer":          map[string]string{"name": "Ana Torres", "email": "ana@example.com"},
	})
	req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID.String())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestIntegration_ReconcileEndpoint(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	appID, userID := app.seedApplication()
	data := app.createPayment(t, appID, userID, "card")
	orderID := data["order_id"].(string)
	gatewayOrderID := data["gateway_order_id"].(string)

	// The webhook never arrives; the gateway reports the order as paid.
	app.gw.setState(gatewayOrderID, "paid")

	resp, err := http.Post(app.server.URL+"/api/v1/payments/"+orderID+"/reconcile", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	result := envelope["data"].(map[string]interface{})
	assert.Equal(t, "CONFIRMED", result["status"])
	assert.Equal(t, true, result["changed"])

	application, err := app.apps.Get(context.Background(), appID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppStatusPaid, application.Status)
}

func TestIntegration_MetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	appID, userID := app.seedApplication()
	data := app.createPayment(t, appID, userID, "card")
	_, code := app.postWebhook(t, "evt_metrics_1", "order.paid", data["gateway_order_id"].(string))
	require.Equal(t, http.StatusOK, code)

	resp, err := http.Get(app.server.URL + "/metrics/payments")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	report := envelope["data"].(map[string]interface{})
	assert.Equal(t, "healthy", report["status"])

	windows := report["windows"].([]interface{})
	require.NotEmpty(t, windows)
	hour := windows[0].(map[string]interface{})
	assert.Equal(t, float64(1), hour["total"])
	assert.Equal(t, float64(1), hour["succeeded"])
}

func TestIntegration_UnknownEventTypeAcksSkipped(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	appID, userID := app.seedApplication()
	data := app.createPayment(t, appID, userID, "card")

	result, code := app.postWebhook(t, "evt_unknown_1", "order.refunded", data["gateway_order_id"].(string))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SKIPPED", result["outcome"])

	// The order is untouched.
	order, err := app.orders.GetByGatewayOrderID(context.Background(), data["gateway_order_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPendingConfirmation, order.Status)
}
