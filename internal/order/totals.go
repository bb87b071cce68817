package order

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/cart"
)

// Currency precision: the store's currency has three minor digits.
const Places = 3

// ShippingStatus says how far the shipping cost could be resolved.
type ShippingStatus int

const (
	// ShippingNotApplicable is a pickup order.
	ShippingNotApplicable ShippingStatus = iota
	// ShippingResolved means the selected area was found.
	ShippingResolved
	// ShippingPending means the reference table has not loaded.
	ShippingPending
	// ShippingUnknown means no area matches the selected city and area.
	ShippingUnknown
)

func (s ShippingStatus) String() string {
	switch s {
	case ShippingNotApplicable:
		return "not applicable"
	case ShippingResolved:
		return "resolved"
	case ShippingPending:
		return "pending"
	}
	return "unknown"
}

// Reasons a total cannot be paid.
var (
	ErrEmptyOrder      = errors.New("order has no items")
	ErrShippingPending = errors.New("delivery prices are still loading")
	ErrShippingUnknown = errors.New("shipping cost for the selected area is unknown")
	ErrZeroTotal       = errors.New("order total is zero")
)

// Totals are the derived amounts of a draft. Shipping is zero unless
// ShippingStatus is ShippingResolved.
type Totals struct {
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Shipping       decimal.Decimal
	Grand          decimal.Decimal
	ShippingStatus ShippingStatus
	Items          int
}

// Payable returns nil when the total is unambiguous and can be charged.
func (t Totals) Payable() error {
	switch {
	case t.Items == 0:
		return ErrEmptyOrder
	case t.ShippingStatus == ShippingPending:
		return ErrShippingPending
	case t.ShippingStatus == ShippingUnknown:
		return ErrShippingUnknown
	case !t.Grand.IsPositive():
		return ErrZeroTotal
	}
	return nil
}

// Subtotal sums price times quantity over items.
func Subtotal(items []cart.Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

var hundred = decimal.NewFromInt(100)

// computeTotals derives totals for d with shipping resolved against areas.
func computeTotals(d Draft, areas *AreaTable) Totals {
	if len(d.Items) == 0 {
		return Totals{ShippingStatus: shippingStatusFor(d, areas)}
	}

	t := Totals{Items: len(d.Items)}
	t.Subtotal = Subtotal(d.Items)
	t.Discount = t.Subtotal.Mul(d.DiscountPercent).Div(hundred)

	t.ShippingStatus = shippingStatusFor(d, areas)
	if t.ShippingStatus == ShippingResolved {
		a, _ := areas.Lookup(d.Address.City, d.Address.Area)
		t.Shipping = a.ShippingPrice
	}

	t.Grand = t.Subtotal.Sub(t.Discount).Add(t.Shipping).Round(Places)
	return t
}

func shippingStatusFor(d Draft, areas *AreaTable) ShippingStatus {
	if d.Fulfillment == Pickup {
		return ShippingNotApplicable
	}
	if areas == nil || !areas.Loaded() {
		return ShippingPending
	}
	if _, ok := areas.Lookup(d.Address.City, d.Address.Area); !ok {
		return ShippingUnknown
	}
	return ShippingResolved
}
