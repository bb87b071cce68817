package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/cart"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

// PromoValidator checks a promo code with the backend.
type PromoValidator interface {
	ValidatePromo(ctx context.Context, code string) (*api.PromoResponse, error)
}

// Aggregator owns one session's draft. Every setter persists the draft.
type Aggregator struct {
	mu     sync.RWMutex
	draft  Draft
	store  storage.Store
	areas  *AreaTable
	promos PromoValidator
	logger *log.Logger
}

// NewAggregator restores the stored draft, or starts an empty one.
func NewAggregator(store storage.Store, areas *AreaTable, promos PromoValidator, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.Default()
	}
	if areas == nil {
		areas = NewAreaTable()
	}
	a := &Aggregator{
		draft:  newDraft(),
		store:  store,
		areas:  areas,
		promos: promos,
		logger: logger.WithPrefix("order"),
	}

	var saved Draft
	if err := storage.Load(store, storage.KeyOrder, &saved); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.Warn("discarding unreadable order draft", "err", err)
		}
		return a
	}
	if !saved.Fulfillment.Valid() {
		saved.Fulfillment = Delivery
	}
	saved.DiscountPercent = clampPercent(saved.DiscountPercent)
	if saved.PromoCode == "" {
		saved.DiscountPercent = decimal.Zero
	}
	a.draft = saved
	return a
}

// Areas returns the reference table used for shipping.
func (a *Aggregator) Areas() *AreaTable {
	return a.areas
}

// Draft returns a copy of the current draft.
func (a *Aggregator) Draft() Draft {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.draft.clone()
}

// update applies fn to the draft under lock and persists the result.
func (a *Aggregator) update(fn func(d *Draft)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fn(&a.draft)
	if err := storage.Save(a.store, storage.KeyOrder, a.draft); err != nil {
		a.logger.Warn("persisting order draft", "err", err)
	}
}

// ============================================
// Setters
// ============================================

// SetItems replaces the draft's items, usually with the cart contents.
func (a *Aggregator) SetItems(items []cart.Item) {
	items = append([]cart.Item(nil), items...)
	a.update(func(d *Draft) { d.Items = items })
}

// SetFulfillment selects pickup or delivery. Unknown values are ignored.
func (a *Aggregator) SetFulfillment(f Fulfillment) {
	if !f.Valid() {
		return
	}
	a.update(func(d *Draft) { d.Fulfillment = f })
}

// SetAddress merges the non-empty fields of p into the address.
func (a *Aggregator) SetAddress(p Address) {
	a.update(func(d *Draft) { d.Address = d.Address.merge(p) })
}

// SetLocation selects city and area. Changing the city clears the area
// unless a new one is given.
func (a *Aggregator) SetLocation(city, area string) {
	a.update(func(d *Draft) {
		if city != d.Address.City {
			d.Address.Area = ""
		}
		d.Address.City = city
		if area != "" {
			d.Address.Area = area
		}
	})
}

// SetSchedule stores the chosen slot.
func (a *Aggregator) SetSchedule(s Slot) {
	a.update(func(d *Draft) { d.Slot = s })
}

// SetCustomerInfo stores contact details. phone is expected normalized.
func (a *Aggregator) SetCustomerInfo(name, phone, email string) {
	a.update(func(d *Draft) {
		d.CustomerName = strings.TrimSpace(name)
		d.CustomerPhone = strings.TrimSpace(phone)
		d.CustomerEmail = strings.TrimSpace(email)
	})
}

// SetInstructions stores free-text instructions for the shop.
func (a *Aggregator) SetInstructions(s string) {
	a.update(func(d *Draft) { d.Instructions = strings.TrimSpace(s) })
}

// SetPaymentMethod stores the payment method and its scratch entry.
func (a *Aggregator) SetPaymentMethod(m string) {
	a.update(func(d *Draft) { d.PaymentMethod = m })
	if err := storage.Save(a.store, storage.KeyPaymentMethod, m); err != nil {
		a.logger.Warn("persisting payment method", "err", err)
	}
}

// SetPromo records a backend-confirmed promo. A zero percent clears it.
func (a *Aggregator) SetPromo(code string, pct decimal.Decimal) {
	code = NormalizeCode(code)
	pct = clampPercent(pct)
	if code == "" || pct.IsZero() {
		a.ClearPromo()
		return
	}
	a.update(func(d *Draft) {
		d.PromoCode = code
		d.DiscountPercent = pct
	})
}

// ClearPromo removes the promo code and discount.
func (a *Aggregator) ClearPromo() {
	a.update(func(d *Draft) {
		d.PromoCode = ""
		d.DiscountPercent = decimal.Zero
	})
	if err := a.store.Delete(storage.KeyPromoScratch); err != nil {
		a.logger.Warn("clearing promo scratch", "err", err)
	}
}

// Clear resets the draft and removes it from storage.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.draft = newDraft()
	a.mu.Unlock()

	for _, key := range []string{storage.KeyOrder, storage.KeyPromoScratch, storage.KeyPhoneScratch, storage.KeyPaymentMethod} {
		if err := a.store.Delete(key); err != nil {
			a.logger.Warn("clearing order state", "key", key, "err", err)
		}
	}
}

// ComputeTotals derives the current totals.
func (a *Aggregator) ComputeTotals() Totals {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return computeTotals(a.draft, a.areas)
}

// BuildPayload maps the draft to the order request. It refuses drafts whose
// total cannot be charged.
func (a *Aggregator) BuildPayload() (*api.OrderRequest, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t := computeTotals(a.draft, a.areas)
	if err := t.Payable(); err != nil {
		return nil, fmt.Errorf("building order payload: %w", err)
	}
	return buildPayload(a.draft, t), nil
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	switch {
	case p.IsNegative():
		return decimal.Zero
	case p.GreaterThan(hundred):
		return hundred
	}
	return p
}
