// Package checkout turns a completed draft into a backend order and a
// payment session, and tracks the payment until it settles.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/cart"
	"github.com/thomas/lilyan-terminal-go/internal/order"
	"github.com/thomas/lilyan-terminal-go/internal/schedule"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

// rollbackTimeout bounds the compensating delete.
const rollbackTimeout = 10 * time.Second

// Backend is the subset of the API client used during checkout.
type Backend interface {
	CreateOrder(ctx context.Context, req *api.OrderRequest, idempotencyKey string) (string, error)
	DeleteOrder(ctx context.Context, id string) error
	InitiatePayment(ctx context.Context, provider string, req *api.PaymentRequest) (string, error)
	GetOrder(ctx context.Context, id string) (*api.Order, error)
	RestorePromo(ctx context.Context, code, orderID string) error
}

// Redirector hands the payment URL to the customer.
type Redirector interface {
	Redirect(ctx context.Context, url string) error
}

// RedirectFunc adapts a function to Redirector.
type RedirectFunc func(ctx context.Context, url string) error

// Redirect calls f.
func (f RedirectFunc) Redirect(ctx context.Context, url string) error { return f(ctx, url) }

// Result is a payment session ready for the customer.
type Result struct {
	OrderID    string
	PaymentURL string
	Amount     string
}

// SlotChecker reports whether a chosen delivery slot can still be booked.
type SlotChecker interface {
	StillOpen(s order.Slot) bool
}

// Handoff runs one session's checkout. It allows a single Pay at a time.
type Handoff struct {
	backend  Backend
	orders   *order.Aggregator
	cart     *cart.Cart
	store    storage.Store
	redirect Redirector
	slots    SlotChecker
	provider string
	userID   func() string
	logger   *log.Logger
	newKey   func() string

	inFlight atomic.Bool
}

// Option configures a Handoff.
type Option func(*Handoff)

// WithUserID sets the identity sent with payment requests.
func WithUserID(fn func() string) Option {
	return func(h *Handoff) { h.userID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Handoff) { h.logger = l }
}

// WithSlotChecker rejects drafts whose slot has closed since it was chosen.
func WithSlotChecker(sc SlotChecker) Option {
	return func(h *Handoff) { h.slots = sc }
}

// WithIdempotencyKeys overrides key generation.
func WithIdempotencyKeys(fn func() string) Option {
	return func(h *Handoff) { h.newKey = fn }
}

// New creates a handoff paying through provider.
func New(backend Backend, orders *order.Aggregator, c *cart.Cart, store storage.Store, redirect Redirector, provider string, opts ...Option) *Handoff {
	h := &Handoff{
		backend:  backend,
		orders:   orders,
		cart:     c,
		store:    store,
		redirect: redirect,
		provider: provider,
		userID:   func() string { return "guest" },
		logger:   log.Default(),
		newKey:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.WithPrefix("checkout")
	return h
}

// InFlight reports whether a Pay call is running.
func (h *Handoff) InFlight() bool {
	return h.inFlight.Load()
}

// Pay submits the draft and opens a payment session. When the order was
// created but a later step fails, the order is deleted once, best-effort.
func (h *Handoff) Pay(ctx context.Context, method string) (*Result, error) {
	if !h.inFlight.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	defer h.inFlight.Store(false)

	if method != "" {
		h.orders.SetPaymentMethod(method)
	}
	if err := h.orders.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Err: err}
	}
	if slot := h.orders.Draft().Slot; h.slots != nil && slot.Complete() && !h.slots.StillOpen(slot) {
		return nil, &Error{Kind: KindValidation, Err: schedule.ErrSlotClosed}
	}

	if err := h.recheckPromo(ctx); err != nil {
		return nil, err
	}

	payload, err := h.orders.BuildPayload()
	if err != nil {
		return nil, &Error{Kind: KindValidation, Err: err}
	}
	// The charged amount is the total the order was created with.
	amount := decimal.NewFromFloat(payload.TotalAmount).StringFixed(order.Places)

	key := h.newKey()
	orderID, err := h.backend.CreateOrder(ctx, payload, key)
	if err != nil {
		h.logger.Error("creating order", "key", key, "err", err)
		return nil, &Error{Kind: KindOrder, Err: err}
	}
	h.logger.Info("order created", "order", orderID, "amount", amount)

	d := h.orders.Draft()
	name := d.CustomerName
	if name == "" {
		name = "Guest Customer"
	}
	payReq := &api.PaymentRequest{
		Amount:        amount,
		CustomerName:  name,
		CustomerEmail: d.CustomerEmail,
		Phone:         payload.CustomerPhone,
		PaymentMethod: d.PaymentMethod,
		UserID:        h.userID(),
		PromoCode:     payload.PromoCode,
		PromoDiscount: payload.PromoDiscount,
		OrderID:       orderID,
		OrderData:     payload,
	}

	url, err := h.backend.InitiatePayment(ctx, h.provider, payReq)
	if err != nil {
		return nil, h.fail(ctx, KindPayment, orderID, err)
	}

	h.save(storage.KeyPaymentOrder, orderID)
	h.save(storage.KeyPaymentMethod, d.PaymentMethod)

	if err := h.redirect.Redirect(ctx, url); err != nil {
		h.forget()
		return nil, h.fail(ctx, KindRedirect, orderID, err)
	}
	return &Result{OrderID: orderID, PaymentURL: url, Amount: amount}, nil
}

// recheckPromo confirms the applied code still holds at the same percent.
func (h *Handoff) recheckPromo(ctx context.Context) error {
	d := h.orders.Draft()
	if d.PromoCode == "" {
		return nil
	}
	res := h.orders.ValidatePromo(ctx, d.PromoCode)
	if res.Status == order.PromoApplied && res.Percent.Equal(d.DiscountPercent) {
		return nil
	}

	err := res.Err
	if err == nil {
		err = errors.New(res.Message)
	}
	h.logger.Warn("promo changed before payment", "code", d.PromoCode, "status", res.Status)
	return &Error{Kind: KindPromoChanged, Promo: &res, Err: err}
}

// fail deletes the created order and wraps the cause.
func (h *Handoff) fail(ctx context.Context, kind Kind, orderID string, cause error) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	rolledBack := true
	if err := h.backend.DeleteOrder(rctx, orderID); err != nil {
		rolledBack = false
		h.logger.Error("rolling back order", "order", orderID, "err", err)
	} else {
		h.logger.Info("rolled back order", "order", orderID, "cause", cause)
	}
	return &Error{Kind: kind, OrderID: orderID, RolledBack: rolledBack, Err: cause}
}

// ============================================
// After the redirect
// ============================================

// PendingOrder returns the order awaiting payment, or "".
func (h *Handoff) PendingOrder() string {
	var id string
	if err := storage.Load(h.store, storage.KeyPaymentOrder, &id); err != nil {
		return ""
	}
	return id
}

// AwaitPayment polls the order until it is paid, then clears the cart and
// draft. Lookup failures are retried until ctx ends.
func (h *Handoff) AwaitPayment(ctx context.Context, orderID string, interval time.Duration) (*api.Order, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		o, err := h.backend.GetOrder(ctx, orderID)
		switch {
		case err != nil:
			h.logger.Debug("payment status check failed", "order", orderID, "err", err)
		case o.IsPaid:
			h.logger.Info("payment confirmed", "order", orderID)
			h.Complete()
			return o, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for payment of %s: %w", orderID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Complete clears all pre-order state after a confirmed payment.
func (h *Handoff) Complete() {
	if h.cart != nil {
		h.cart.Clear()
	}
	h.orders.Clear()
	h.forget()
}

// Cancel deletes an order and returns its promo use. If it was the order
// awaiting payment, the draft is cleared too.
func (h *Handoff) Cancel(ctx context.Context, orderID, promoCode string) error {
	if err := h.backend.DeleteOrder(ctx, orderID); err != nil {
		return fmt.Errorf("cancelling order: %w", err)
	}

	if code := strings.TrimSpace(promoCode); code != "" {
		if err := h.backend.RestorePromo(ctx, code, orderID); err != nil {
			h.logger.Warn("restoring promo", "code", code, "order", orderID, "err", err)
		}
	}

	if orderID == h.PendingOrder() {
		h.orders.Clear()
		h.forget()
	}
	h.logger.Info("order cancelled", "order", orderID)
	return nil
}

func (h *Handoff) forget() {
	for _, key := range []string{storage.KeyPaymentOrder, storage.KeyPaymentMethod} {
		if err := h.store.Delete(key); err != nil {
			h.logger.Warn("clearing payment scratch", "key", key, "err", err)
		}
	}
}

func (h *Handoff) save(key string, v any) {
	if err := storage.Save(h.store, key, v); err != nil {
		h.logger.Warn("persisting payment scratch", "key", key, "err", err)
	}
}
