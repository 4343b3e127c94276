package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"permit-payments/internal/core/domain"
	"permit-payments/internal/core/ports"

	"github.com/google/uuid"
)

// --- In-Memory Payment Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.PaymentOrder
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[uuid.UUID]*domain.PaymentOrder)}
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, order *domain.PaymentOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *order
	r.orders[order.ID] = &stored
	return nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *inMemoryOrderRepo) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.PaymentOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.GatewayOrderID != nil && *o.GatewayOrderID == gatewayOrderID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryOrderRepo) GetActiveByApplication(ctx context.Context, applicationID uuid.UUID) (*domain.PaymentOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.ApplicationID == applicationID && !o.Status.IsTerminal() {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

// TransitionStatus mirrors the SQL compare-and-set: the move only happens
// when the row is still in the expected `from` status, so concurrent updaters
// resolve to exactly one winner.
func (r *inMemoryOrderRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, failureReason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, fmt.Errorf("order not found")
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	if failureReason != nil {
		o.FailureReason = failureReason
	}
	o.UpdatedAt = time.Now()
	return true, nil
}

func (r *inMemoryOrderRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.PaymentOrder
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusPendingConfirmation && o.UpdatedAt.Before(cutoff) {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// backdate moves an order's updated_at into the past so the sweeper sees it
// as stale.
func (r *inMemoryOrderRepo) backdate(id uuid.UUID, age time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		o.UpdatedAt = time.Now().Add(-age)
	}
}

// expireReference lapses the voucher/transfer payment window.
func (r *inMemoryOrderRepo) expireReference(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		past := time.Now().Add(-time.Hour)
		o.ExpiresAt = &past
	}
}

// --- In-Memory Webhook Event Repo ---

type inMemoryEventRepo struct {
	mu     sync.RWMutex
	events map[string]*domain.WebhookEvent
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{events: make(map[string]*domain.WebhookEvent)}
}

func (r *inMemoryEventRepo) Claim(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.EventID]; exists {
		return false, nil
	}
	stored := *event
	r.events[event.EventID] = &stored
	return true, nil
}

func (r *inMemoryEventRepo) Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[eventID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryEventRepo) RecordOutcome(ctx context.Context, eventID string, outcome domain.EventOutcome, detail *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return fmt.Errorf("event not claimed")
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.Outcome = &outcome
	e.OutcomeDetail = detail
	return nil
}

// --- In-Memory Application Repo ---

type inMemoryApplicationRepo struct {
	mu   sync.RWMutex
	apps map[uuid.UUID]*domain.Application
}

func newInMemoryApplicationRepo() *inMemoryApplicationRepo {
	return &inMemoryApplicationRepo{apps: make(map[uuid.UUID]*domain.Application)}
}

func (r *inMemoryApplicationRepo) seed(app *domain.Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *app
	r.apps[app.ID] = &stored
}

func (r *inMemoryApplicationRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.apps[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryApplicationRepo) SetPaymentStatus(ctx context.Context, id uuid.UUID, status domain.ApplicationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[id]
	if !ok {
		return fmt.Errorf("application not found")
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	return nil
}

// --- In-Memory Notification Log Repo ---

type inMemoryNotifLogRepo struct {
	mu   sync.RWMutex
	logs map[uuid.UUID]*domain.NotificationDeliveryLog
}

func newInMemoryNotifLogRepo() *inMemoryNotifLogRepo {
	return &inMemoryNotifLogRepo{logs: make(map[uuid.UUID]*domain.NotificationDeliveryLog)}
}

func (r *inMemoryNotifLogRepo) Create(ctx context.Context, log *domain.NotificationDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *log
	r.logs[log.ID] = &stored
	return nil
}

func (r *inMemoryNotifLogRepo) Update(ctx context.Context, log *domain.NotificationDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *log
	r.logs[log.ID] = &stored
	return nil
}

// --- Scripted Gateway ---

// scriptedGateway is a ports.GatewayClient whose responses the test controls.
// It accepts everything by default and counts calls.
type scriptedGateway struct {
	mu          sync.Mutex
	orderSeq    int
	customerSeq int
	states      map[string]ports.GatewayOrderState // order id -> queried state
	statusCalls int
	createCalls int
	declineNext bool
	declineWith string
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{states: make(map[string]ports.GatewayOrderState)}
}

func (g *scriptedGateway) CreateCustomer(ctx context.Context, req ports.CustomerRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customerSeq++
	return fmt.Sprintf("cus_%d", g.customerSeq), nil
}

func (g *scriptedGateway) CreateOrder(ctx context.Context, req ports.OrderRequest) (*ports.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.declineNext {
		g.declineNext = false
		return &ports.GatewayOrder{Accepted: false, DeclineReason: g.declineWith}, nil
	}
	g.orderSeq++
	orderID := fmt.Sprintf("ord_%d", g.orderSeq)
	g.states[orderID] = ports.GatewayOrderPending

	out := &ports.GatewayOrder{OrderID: orderID, Accepted: true}
	if req.Method == domain.MethodCard {
		url := fmt.Sprintf("https://gw.test/checkout/%s", orderID)
		out.CheckoutURL = &url
	} else {
		ref := fmt.Sprintf("93000012%04d", g.orderSeq)
		out.ReferenceCode = &ref
		out.ExpiresAt = req.ExpiresAt
	}
	return out, nil
}

func (g *scriptedGateway) GetOrderStatus(ctx context.Context, gatewayOrderID string) (*ports.GatewayOrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	state, ok := g.states[gatewayOrderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", gatewayOrderID)
	}
	return &ports.GatewayOrderStatus{OrderID: gatewayOrderID, State: state}, nil
}

func (g *scriptedGateway) setState(orderID string, state ports.GatewayOrderState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[orderID] = state
}
