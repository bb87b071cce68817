package checkout

import (
	"errors"
	"fmt"

	"github.com/thomas/lilyan-terminal-go/internal/order"
)

// ErrInFlight is returned when Pay is called while a payment is being set up.
var ErrInFlight = errors.New("payment already in progress")

// Kind classifies a checkout failure for the customer-facing message.
type Kind int

const (
	// KindValidation means the draft is incomplete or not payable.
	KindValidation Kind = iota
	// KindPromoChanged means the promo no longer holds; the total changed.
	KindPromoChanged
	// KindOrder means the order could not be created.
	KindOrder
	// KindPayment means the payment session could not be opened.
	KindPayment
	// KindRedirect means the customer could not be sent to the provider.
	KindRedirect
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPromoChanged:
		return "promo changed"
	case KindOrder:
		return "order"
	case KindPayment:
		return "payment"
	case KindRedirect:
		return "redirect"
	}
	return "unknown"
}

// Error is a failed checkout attempt. OrderID is set when an order had been
// created; RolledBack reports whether it was deleted again.
type Error struct {
	Kind       Kind
	OrderID    string
	RolledBack bool
	Promo      *order.PromoResult
	Err        error
}

func (e *Error) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("checkout %s failed (order %s, rolled back: %v): %v", e.Kind, e.OrderID, e.RolledBack, e.Err)
	}
	return fmt.Sprintf("checkout %s failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a checkout error, and false for other errors.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}
