package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ============================================
// Catalog
// ============================================

// ListProducts returns every product; availability filtering is left to callers.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var resp productList
	if err := c.doRequest(ctx, http.MethodGet, "/api/products", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return resp.Data, nil
}

// ListCityAreas returns delivery cities with their areas, inactive ones included.
func (c *Client) ListCityAreas(ctx context.Context) ([]City, error) {
	var resp cityAreasResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/city-areas", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing city areas: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("listing city areas: %w", &Error{Status: http.StatusOK, Message: resp.Message})
	}
	return resp.Cities, nil
}

// ============================================
// Promos
// ============================================

// ValidatePromo asks the backend whether code is valid. A rejected code is
// reported in the response, not as an error, when the backend answers 2xx.
func (c *Client) ValidatePromo(ctx context.Context, code string) (*PromoResponse, error) {
	var resp PromoResponse
	body := map[string]string{"code": code}
	if err := c.doRequest(ctx, http.MethodPost, "/api/promos/validate", body, &resp); err != nil {
		return nil, fmt.Errorf("validating promo: %w", err)
	}
	return &resp, nil
}

// RestorePromo returns a consumed promo use after an order is cancelled.
func (c *Client) RestorePromo(ctx context.Context, code, orderID string) error {
	body := map[string]string{"orderId": orderID}
	endpoint := "/api/promos/" + pathID(code) + "/restore"
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("restoring promo: %w", err)
	}
	return nil
}

// ============================================
// Orders
// ============================================

// CreateOrder submits an order. idempotencyKey is sent as Idempotency-Key
// so a retried submission cannot create a second order.
func (c *Client) CreateOrder(ctx context.Context, req *OrderRequest, idempotencyKey string) (string, error) {
	var resp CreateOrderResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/orders", req, &resp,
		withHeader("Idempotency-Key", idempotencyKey))
	if err != nil {
		return "", fmt.Errorf("creating order: %w", err)
	}
	id := resp.ID()
	if id == "" {
		return "", fmt.Errorf("creating order: response carried no order id")
	}
	return id, nil
}

// DeleteOrder removes an order.
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/api/orders/"+pathID(id), nil, nil); err != nil {
		return fmt.Errorf("deleting order %s: %w", id, err)
	}
	return nil
}

// ListOrders returns the current user's order history.
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var resp struct {
		Data []Order `json:"data"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/orders", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return resp.Data, nil
}

// GetOrder fetches one order. Identifiers that are not 24-character object
// IDs are payment references, resolved by payment ID then invoice ID.
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	if len(id) == 24 {
		return c.getOrder(ctx, "/api/orders/"+pathID(id))
	}
	o, err := c.getOrder(ctx, "/api/orders/by-payment/"+pathID(id))
	if err == nil {
		return o, nil
	}
	if IsUnavailable(err) {
		return nil, err
	}
	return c.getOrder(ctx, "/api/orders/by-invoice/"+pathID(id))
}

func (c *Client) getOrder(ctx context.Context, endpoint string) (*Order, error) {
	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	// Detail responses are sometimes wrapped in {data: ...}.
	var wrapped struct {
		Data *Order `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil && wrapped.Data.ID != "" {
		return wrapped.Data, nil
	}
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decoding order: %w", err)
	}
	return &o, nil
}

// ============================================
// Schedule & Payment
// ============================================

// IsTodayClosed reports whether the shop has closed same-day booking.
func (c *Client) IsTodayClosed(ctx context.Context) (*ClosedStatus, error) {
	var resp ClosedStatus
	if err := c.doRequest(ctx, http.MethodGet, "/api/admin/is-today-closed", nil, &resp); err != nil {
		return nil, fmt.Errorf("checking closed status: %w", err)
	}
	return &resp, nil
}

// InitiatePayment opens a payment session with provider and returns its URL.
func (c *Client) InitiatePayment(ctx context.Context, provider string, req *PaymentRequest) (string, error) {
	provider = strings.Trim(provider, "/")
	var resp PaymentResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/payment/"+pathID(provider), req, &resp); err != nil {
		return "", fmt.Errorf("initiating payment: %w", err)
	}
	if !resp.IsSuccess || resp.PaymentURL == "" {
		msg := resp.Message
		if msg == "" {
			msg = "payment initiation failed"
		}
		return "", fmt.Errorf("initiating payment: %w", &Error{Status: http.StatusOK, Message: msg})
	}
	return resp.PaymentURL, nil
}

// ============================================
// Users
// ============================================

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	return c.auth(ctx, "/api/users/login", creds)
}

// GuestLogin opens a guest session.
func (c *Client) GuestLogin(ctx context.Context) (*AuthResponse, error) {
	return c.auth(ctx, "/api/users/guest-login", struct{}{})
}

// Register creates an account, or upgrades a guest when MergeCart is set.
func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResponse, error) {
	return c.auth(ctx, "/api/users/register", reg)
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodPost, "/api/users/logout", struct{}{}, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

func (c *Client) auth(ctx context.Context, endpoint string, body interface{}) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}
	if resp.Status != "success" || resp.Data.User == nil {
		msg := resp.Message
		if msg == "" {
			msg = "authentication failed"
		}
		return nil, fmt.Errorf("authenticating: %w", &Error{Status: http.StatusUnauthorized, Message: msg})
	}
	return &resp, nil
}
