// Package order owns the in-progress order draft of a session: fulfillment,
// address, schedule, contact details and promo. It derives totals from the
// draft and maps it to the backend order payload.
package order

import (
	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/cart"
)

// Fulfillment is how the order reaches the customer.
type Fulfillment string

const (
	Pickup   Fulfillment = "pickup"
	Delivery Fulfillment = "delivery"
)

// Valid reports whether f is a known fulfillment type.
func (f Fulfillment) Valid() bool {
	return f == Pickup || f == Delivery
}

// Address is the delivery address. City and Area hold reference-data keys.
type Address struct {
	City           string `json:"city"`
	Area           string `json:"area"`
	Street         string `json:"street"`
	Block          string `json:"block"`
	House          string `json:"house"`
	Landmark       string `json:"landmark,omitempty"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// merge overlays the non-empty fields of p onto a.
func (a Address) merge(p Address) Address {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&a.City, p.City)
	set(&a.Area, p.Area)
	set(&a.Street, p.Street)
	set(&a.Block, p.Block)
	set(&a.House, p.House)
	set(&a.Landmark, p.Landmark)
	set(&a.AdditionalInfo, p.AdditionalInfo)
	return a
}

// Slot is a chosen delivery or pickup window.
type Slot struct {
	Date  string `json:"date"`
	Label string `json:"timeSlot"`
	Start string `json:"startTime,omitempty"`
	End   string `json:"endTime,omitempty"`
}

// Complete reports whether both date and window are chosen.
func (s Slot) Complete() bool {
	return s.Date != "" && s.Label != ""
}

// Draft is the pre-submission order.
type Draft struct {
	Items           []cart.Item     `json:"items"`
	Fulfillment     Fulfillment     `json:"orderType"`
	Address         Address         `json:"shippingAddress"`
	Slot            Slot            `json:"scheduleTime"`
	CustomerName    string          `json:"customerName"`
	CustomerPhone   string          `json:"customerPhone"`
	CustomerEmail   string          `json:"customerEmail,omitempty"`
	PromoCode       string          `json:"promoCode,omitempty"`
	DiscountPercent decimal.Decimal `json:"promoDiscount"`
	Instructions    string          `json:"specialInstructions,omitempty"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
}

// newDraft returns an empty draft defaulting to delivery.
func newDraft() Draft {
	return Draft{Fulfillment: Delivery}
}

// clone returns a deep enough copy for callers to read without locking.
func (d Draft) clone() Draft {
	d.Items = append([]cart.Item(nil), d.Items...)
	return d
}
