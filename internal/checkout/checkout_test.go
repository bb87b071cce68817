package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/cart"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
	"github.com/thomas/lilyan-terminal-go/internal/order"
	"github.com/thomas/lilyan-terminal-go/internal/schedule"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

type fakeBackend struct {
	mu sync.Mutex

	promoPercent string
	createErr    error
	paymentErr   error
	deleteErr    error
	paidAfter    int
	block        chan struct{}

	created  []*api.OrderRequest
	keys     []string
	deleted  []string
	restored []string
	payments []*api.PaymentRequest
	gets     int
}

func (f *fakeBackend) ValidatePromo(ctx context.Context, code string) (*api.PromoResponse, error) {
	if f.promoPercent == "" {
		return &api.PromoResponse{Success: false, Message: "Promo expired"}, nil
	}
	return &api.PromoResponse{Success: true, Promo: &api.Promo{Code: code, DiscountPercent: decimal.RequireFromString(f.promoPercent)}}, nil
}

func (f *fakeBackend) CreateOrder(ctx context.Context, req *api.OrderRequest, key string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, req)
	f.keys = append(f.keys, key)
	return "ord-1", nil
}

func (f *fakeBackend) DeleteOrder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeBackend) InitiatePayment(ctx context.Context, provider string, req *api.PaymentRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, req)
	if f.paymentErr != nil {
		return "", f.paymentErr
	}
	return "https://pay.example/" + req.OrderID, nil
}

func (f *fakeBackend) GetOrder(ctx context.Context, id string) (*api.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.gets < f.paidAfter {
		return &api.Order{ID: id}, nil
	}
	return &api.Order{ID: id, IsPaid: true}, nil
}

func (f *fakeBackend) RestorePromo(ctx context.Context, code, orderID string) error {
	f.restored = append(f.restored, code)
	return nil
}

type fixture struct {
	backend *fakeBackend
	store   *storage.Memory
	cart    *cart.Cart
	orders  *order.Aggregator
	handoff *Handoff
	urls    []string
}

func setup(t *testing.T, backend *fakeBackend) *fixture {
	t.Helper()
	f := &fixture{backend: backend, store: storage.NewMemory()}

	areas := order.NewAreaTableFrom([]api.City{{
		Key:  "hawalli",
		Name: i18n.Text{En: "Hawalli"},
		Areas: []api.Area{
			{ID: "salmiya", Name: i18n.Text{En: "Salmiya"}, ShippingPrice: decimal.RequireFromString("2.5")},
		},
	}})

	f.cart = cart.New(f.store, nil)
	f.cart.Add(cart.Item{ID: "a", Name: i18n.Text{En: "Roses"}, Price: decimal.RequireFromString("5")}, 2)

	f.orders = order.NewAggregator(f.store, areas, backend, nil)
	f.orders.SetItems(f.cart.Items())
	f.orders.SetFulfillment(order.Delivery)
	f.orders.SetLocation("hawalli", "salmiya")
	f.orders.SetAddress(order.Address{Street: "Salem St", Block: "3", House: "7"})
	f.orders.SetSchedule(order.Slot{Date: "2030-01-01", Label: "10:00 AM - 02:00 PM"})
	f.orders.SetCustomerInfo("Noor", order.NormalizePhone("+965", "12345678"), "")

	redirect := RedirectFunc(func(ctx context.Context, url string) error {
		f.urls = append(f.urls, url)
		return nil
	})
	f.handoff = New(backend, f.orders, f.cart, f.store, redirect, "myfatoorah",
		WithUserID(func() string { return "u1" }),
		WithIdempotencyKeys(func() string { return "key-1" }))
	return f
}

func TestPaySuccess(t *testing.T) {
	f := setup(t, &fakeBackend{})

	res, err := f.handoff.Pay(context.Background(), "card")
	if err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	if res.OrderID != "ord-1" || res.Amount != "12.500" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(f.urls) != 1 || f.urls[0] != "https://pay.example/ord-1" {
		t.Errorf("expected one redirect, got %v", f.urls)
	}
	if f.backend.keys[0] != "key-1" {
		t.Errorf("expected idempotency key forwarded, got %v", f.backend.keys)
	}

	pay := f.backend.payments[0]
	if pay.Amount != "12.500" || pay.UserID != "u1" || pay.Phone != "96512345678" || pay.PaymentMethod != "card" {
		t.Errorf("unexpected payment request: %+v", pay)
	}
	if f.handoff.PendingOrder() != "ord-1" {
		t.Errorf("expected pending order recorded, got %q", f.handoff.PendingOrder())
	}
	if len(f.backend.deleted) != 0 {
		t.Errorf("expected no rollback, got %v", f.backend.deleted)
	}
}

func TestPaymentFailureRollsBack(t *testing.T) {
	f := setup(t, &fakeBackend{paymentErr: &api.Error{Status: 502}})

	_, err := f.handoff.Pay(context.Background(), "card")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ce.Kind != KindPayment || ce.OrderID != "ord-1" || !ce.RolledBack {
		t.Errorf("unexpected error: %+v", ce)
	}
	if len(f.backend.deleted) != 1 || f.backend.deleted[0] != "ord-1" {
		t.Errorf("expected one delete of ord-1, got %v", f.backend.deleted)
	}
	if len(f.urls) != 0 {
		t.Error("expected no redirect")
	}
	if f.cart.IsEmpty() {
		t.Error("cart must survive a failed payment")
	}
}

func TestRollbackFailureIsReported(t *testing.T) {
	f := setup(t, &fakeBackend{paymentErr: errors.New("boom"), deleteErr: errors.New("still down")})

	_, err := f.handoff.Pay(context.Background(), "card")
	var ce *Error
	if !errors.As(err, &ce) || ce.RolledBack {
		t.Fatalf("expected unrolled-back payment error, got %v", err)
	}
	if len(f.backend.deleted) != 1 {
		t.Errorf("expected exactly one delete attempt, got %d", len(f.backend.deleted))
	}
}

func TestRedirectFailureRollsBack(t *testing.T) {
	f := setup(t, &fakeBackend{})
	f.handoff.redirect = RedirectFunc(func(ctx context.Context, url string) error {
		return errors.New("terminal closed")
	})

	_, err := f.handoff.Pay(context.Background(), "card")
	if kind, _ := KindOf(err); kind != KindRedirect {
		t.Fatalf("expected redirect error, got %v", err)
	}
	if len(f.backend.deleted) != 1 {
		t.Errorf("expected rollback, got %v", f.backend.deleted)
	}
	if f.handoff.PendingOrder() != "" {
		t.Error("expected pending order forgotten")
	}
}

func TestOrderFailureHasNothingToRollBack(t *testing.T) {
	f := setup(t, &fakeBackend{createErr: &api.Error{Status: 500}})

	_, err := f.handoff.Pay(context.Background(), "card")
	if kind, _ := KindOf(err); kind != KindOrder {
		t.Fatalf("expected order error, got %v", err)
	}
	if len(f.backend.deleted) != 0 || len(f.backend.payments) != 0 {
		t.Error("expected no delete and no payment after a failed create")
	}
}

func TestPromoRejectedBeforeOrder(t *testing.T) {
	f := setup(t, &fakeBackend{})
	f.orders.SetPromo("SAVE10", decimal.NewFromInt(10))

	_, err := f.handoff.Pay(context.Background(), "card")
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindPromoChanged {
		t.Fatalf("expected promo changed, got %v", err)
	}
	if len(f.backend.created) != 0 {
		t.Error("no order may be created when the promo is rejected")
	}
	if f.orders.Draft().PromoCode != "" {
		t.Error("expected rejected promo cleared")
	}

	// The customer reviews the new total and pays again.
	if _, err := f.handoff.Pay(context.Background(), "card"); err != nil {
		t.Fatalf("second Pay failed: %v", err)
	}
	if f.backend.created[0].TotalAmount != 12.5 {
		t.Errorf("expected undiscounted total, got %v", f.backend.created[0].TotalAmount)
	}
}

func TestPromoPercentChanged(t *testing.T) {
	f := setup(t, &fakeBackend{promoPercent: "5"})
	f.orders.SetPromo("SAVE10", decimal.NewFromInt(10))

	_, err := f.handoff.Pay(context.Background(), "card")
	if kind, _ := KindOf(err); kind != KindPromoChanged {
		t.Fatalf("expected promo changed, got %v", err)
	}
	if !f.orders.Draft().DiscountPercent.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected new percent applied, got %s", f.orders.Draft().DiscountPercent)
	}
}

func TestValidationBlocksPay(t *testing.T) {
	f := setup(t, &fakeBackend{})
	f.orders.SetCustomerInfo("", "", "")

	_, err := f.handoff.Pay(context.Background(), "card")
	if kind, _ := KindOf(err); kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verrs order.ValidationErrors
	if !errors.As(err, &verrs) || verrs.For("Name") == "" {
		t.Errorf("expected field errors, got %v", err)
	}
}

func TestChargedAmountMatchesOrderTotal(t *testing.T) {
	f := setup(t, &fakeBackend{promoPercent: "15"})
	f.orders.SetPromo("LILY15", decimal.NewFromInt(15))

	res, err := f.handoff.Pay(context.Background(), "card")
	if err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	want := decimal.NewFromFloat(f.backend.created[0].TotalAmount).StringFixed(order.Places)
	if res.Amount != want || f.backend.payments[0].Amount != want {
		t.Errorf("expected charged amount %s, got result %s payment %s", want, res.Amount, f.backend.payments[0].Amount)
	}
	if f.backend.payments[0].OrderData != f.backend.created[0] {
		t.Error("expected payment to carry the created payload")
	}
}

type slotChecker func(order.Slot) bool

func (f slotChecker) StillOpen(s order.Slot) bool { return f(s) }

func TestClosedSlotBlocksPay(t *testing.T) {
	f := setup(t, &fakeBackend{})
	var checked order.Slot
	f.handoff.slots = slotChecker(func(s order.Slot) bool {
		checked = s
		return false
	})

	_, err := f.handoff.Pay(context.Background(), "card")
	if kind, _ := KindOf(err); kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, schedule.ErrSlotClosed) {
		t.Errorf("expected slot closed error, got %v", err)
	}
	if checked.Label != "10:00 AM - 02:00 PM" {
		t.Errorf("expected draft slot checked, got %+v", checked)
	}
	if len(f.backend.created) != 0 {
		t.Error("no order may be created for a closed slot")
	}

	f.handoff.slots = slotChecker(func(order.Slot) bool { return true })
	if _, err := f.handoff.Pay(context.Background(), "card"); err != nil {
		t.Fatalf("Pay with open slot failed: %v", err)
	}
}

func TestPayInFlight(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	f := setup(t, backend)

	done := make(chan error, 1)
	go func() {
		_, err := f.handoff.Pay(context.Background(), "card")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !f.handoff.InFlight() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if _, err := f.handoff.Pay(context.Background(), "card"); !errors.Is(err, ErrInFlight) {
		t.Errorf("expected ErrInFlight, got %v", err)
	}

	close(backend.block)
	if err := <-done; err != nil {
		t.Fatalf("first Pay failed: %v", err)
	}
	if f.handoff.InFlight() {
		t.Error("expected in-flight flag released")
	}
}

func TestAwaitPaymentClearsState(t *testing.T) {
	f := setup(t, &fakeBackend{paidAfter: 3})
	if _, err := f.handoff.Pay(context.Background(), "card"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	o, err := f.handoff.AwaitPayment(context.Background(), "ord-1", time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitPayment failed: %v", err)
	}
	if !o.IsPaid || f.backend.gets != 3 {
		t.Errorf("expected paid after 3 checks, got paid=%v gets=%d", o.IsPaid, f.backend.gets)
	}
	if !f.cart.IsEmpty() || len(f.orders.Draft().Items) != 0 {
		t.Error("expected cart and draft cleared")
	}
	if f.handoff.PendingOrder() != "" {
		t.Error("expected pending order cleared")
	}
}

func TestAwaitPaymentStopsOnCancel(t *testing.T) {
	f := setup(t, &fakeBackend{paidAfter: 1 << 30})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := f.handoff.AwaitPayment(ctx, "ord-1", time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if f.cart.IsEmpty() {
		t.Error("cart must survive an unconfirmed payment")
	}
}

func TestCancelPendingOrder(t *testing.T) {
	f := setup(t, &fakeBackend{})
	if _, err := f.handoff.Pay(context.Background(), "card"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	if err := f.handoff.Cancel(context.Background(), "ord-1", "SAVE10"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if len(f.backend.deleted) != 1 || len(f.backend.restored) != 1 {
		t.Errorf("expected delete and promo restore, got %v %v", f.backend.deleted, f.backend.restored)
	}
	if len(f.orders.Draft().Items) != 0 || f.handoff.PendingOrder() != "" {
		t.Error("expected draft and pending order cleared")
	}
}
