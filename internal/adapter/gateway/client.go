package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"permit-payments/config"
	"permit-payments/internal/core/ports"
	"permit-payments/pkg/apperror"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the raw HTTP client for the external payment gateway. Callers
// should wrap it in a BreakerClient; only transport-level failures and 5xx
// responses surface as errors here, business declines come back as a
// non-accepted GatewayOrder so they never trip a breaker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewClient creates a gateway API client.
func NewClient(cfg config.GatewayConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		log:        log,
	}
}

type customerRequest struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
}

type customerResponse struct {
	ID string `json:"id"`
}

type orderRequest struct {
	CustomerID  string     `json:"customer_id"`
	Method      string     `json:"method"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Description string     `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type orderResponse struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"` // "accepted" or "declined"
	DeclineReason string     `json:"decline_reason,omitempty"`
	CheckoutURL   *string    `json:"checkout_url,omitempty"`
	ReferenceCode *string    `json:"reference_code,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type orderStatusResponse struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// CreateCustomer registers the payer with the gateway and returns the
// gateway customer id. ExternalID makes the call safe to retry: the gateway
// resolves a repeated external id to the existing customer.
func (c *Client) CreateCustomer(ctx context.Context, req ports.CustomerRequest) (string, error) {
	body := customerRequest{
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
	}

	var resp customerResponse
	if err := c.do(ctx, http.MethodPost, "/v1/customers", "", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreateOrder submits a charge request. The idempotency key pins retries of
// the same application+method to a single gateway order.
func (c *Client) CreateOrder(ctx context.Context, req ports.OrderRequest) (*ports.GatewayOrder, error) {
	body := orderRequest{
		CustomerID:  req.CustomerID,
		Method:      string(req.Method),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders", req.IdempotencyKey, body, &resp); err != nil {
		return nil, err
	}

	return &ports.GatewayOrder{
		OrderID:       resp.ID,
		Accepted:      resp.Status == "accepted",
		DeclineReason: resp.DeclineReason,
		CheckoutURL:   resp.CheckoutURL,
		ReferenceCode: resp.ReferenceCode,
		ExpiresAt:     resp.ExpiresAt,
	}, nil
}

// GetOrderStatus queries the authoritative state of an order.
func (c *Client) GetOrderStatus(ctx context.Context, gatewayOrderID string) (*ports.GatewayOrderStatus, error) {
	var resp orderStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+gatewayOrderID, "", nil, &resp); err != nil {
		return nil, err
	}

	state := ports.GatewayOrderState(resp.State)
	switch state {
	case ports.GatewayOrderPending, ports.GatewayOrderPaid, ports.GatewayOrderDeclined,
		ports.GatewayOrderExpired, ports.GatewayOrderCanceled:
	default:
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("unknown order state %q", resp.State))
	}

	return &ports.GatewayOrderStatus{
		OrderID:       resp.ID,
		State:         state,
		FailureReason: resp.FailureReason,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("marshal gateway request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("build gateway request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperror.ErrGatewayUnavailable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperror.ErrGatewayUnavailable(fmt.Errorf("read gateway response: %w", err))
	}

	if resp.StatusCode >= 500 {
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("gateway returned server error")
		return apperror.ErrGatewayUnavailable(fmt.Errorf("gateway status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("gateway status %d", resp.StatusCode)
		}
		return apperror.ErrGatewayRejected(apiErr.Message)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return apperror.ErrGatewayUnavailable(fmt.Errorf("decode gateway response: %w", err))
	}
	return nil
}

var _ ports.GatewayClient = (*Client)(nil)
