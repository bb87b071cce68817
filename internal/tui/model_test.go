package tui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/cache"
	"github.com/thomas/lilyan-terminal-go/internal/cart"
	"github.com/thomas/lilyan-terminal-go/internal/catalog"
	"github.com/thomas/lilyan-terminal-go/internal/checkout"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
	"github.com/thomas/lilyan-terminal-go/internal/order"
	"github.com/thomas/lilyan-terminal-go/internal/schedule"
	"github.com/thomas/lilyan-terminal-go/internal/session"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

const productsJSON = `{"data":[
	{"_id":"p1","name":{"en":"Red Roses","ar":"ورد أحمر"},"category":{"en":"Bouquets"},"price":"12.5","createdAt":"2024-01-01T00:00:00Z"},
	{"_id":"p2","name":{"en":"White Lilies"},"category":{"en":"Vases"},"price":"30","actualPrice":"25","createdAt":"2024-02-01T00:00:00Z"}
]}`

const cityAreasJSON = `{"success":true,"cities":[
	{"key":"hawalli","name":{"en":"Hawalli"},"areas":[{"_id":"salmiya","name":{"en":"Salmiya"},"shippingPrice":"2.5"}]}
]}`

const guestJSON = `{"status":"success","data":{"user":{"_id":"g1","isGuest":true},"token":"tok"}}`

type fixture struct {
	deps   Deps
	server *httptest.Server
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/products":
			w.Write([]byte(productsJSON))
		case "/api/city-areas":
			w.Write([]byte(cityAreasJSON))
		case "/api/users/guest-login":
			w.Write([]byte(guestJSON))
		case "/api/admin/is-today-closed":
			w.Write([]byte(`{"isClosed":false}`))
		case "/api/orders":
			w.Write([]byte(`{"data":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	store := storage.NewMemory()
	client := api.NewClient(server.URL)
	crt := cart.New(store, nil)
	agg := order.NewAggregator(store, order.NewAreaTable(), client, nil)
	poller := schedule.NewPoller(client, time.Minute, nil)
	sess := session.New(client, store, nil)

	deps := Deps{
		Context:          context.Background(),
		API:              client,
		Catalog:          catalog.New(client, cache.New[string, []api.Product](time.Minute), nil),
		Cities:           client,
		Cart:             crt,
		Orders:           agg,
		Schedule:         schedule.NewResolver(time.UTC, poller),
		Session:          sess,
		Checkout:         checkout.New(client, agg, crt, store, checkout.RedirectFunc(func(context.Context, string) error { return nil }), "myfatoorah", checkout.WithUserID(sess.UserID)),
		Lang:             i18n.NewState(store, i18n.English, nil),
		Store:            store,
		PaymentPollEvery: time.Second,
	}
	return fixture{deps: deps, server: server}
}

func products(t *testing.T, f fixture) []api.Product {
	t.Helper()
	ps, err := f.deps.Catalog.Load(context.Background())
	if err != nil {
		t.Fatalf("load products: %v", err)
	}
	return ps
}

// loaded returns a sized model with the catalog already delivered.
func loaded(t *testing.T, f fixture) Model {
	t.Helper()
	m := NewModel(f.deps)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	updated, _ = updated.Update(productsLoadedMsg{products: products(t, f)})
	return updated.(Model)
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func TestNewModel(t *testing.T) {
	m := NewModel(newFixture(t).deps)

	if m.GetViewState() != ViewProductList {
		t.Errorf("expected initial view state to be ProductList, got %v", m.GetViewState())
	}
	if m.GetSelectedProduct() != nil {
		t.Error("expected no product to be selected initially")
	}
	if !m.loadingProducts || !m.loadingCities {
		t.Error("expected products and cities to be loading")
	}
	if got := m.View(); got != "Loading..." {
		t.Errorf("unsized view = %q", got)
	}
}

func TestProductsLoaded(t *testing.T) {
	m := loaded(t, newFixture(t))

	if m.loadingProducts {
		t.Error("expected loading to finish")
	}
	if n := len(m.productList.Items()); n != 2 {
		t.Fatalf("expected 2 list items, got %d", n)
	}
	if view := m.View(); !strings.Contains(view, "Red Roses") {
		t.Error("expected product list to render product names")
	}
}

func TestViewStateTransitions(t *testing.T) {
	m := loaded(t, newFixture(t))

	m = press(t, m, "enter")
	if m.GetViewState() != ViewProductDetails {
		t.Fatalf("expected ProductDetails view after selection, got %v", m.GetViewState())
	}
	if p := m.GetSelectedProduct(); p == nil || p.ID != "p1" {
		t.Fatalf("expected p1 selected, got %+v", p)
	}
	if view := m.View(); !strings.Contains(view, "KWD 12.500") {
		t.Error("expected details to show the price")
	}

	m = press(t, m, "esc")
	if m.GetViewState() != ViewProductList {
		t.Error("expected ProductList view after pressing Esc")
	}
	if m.GetSelectedProduct() != nil {
		t.Error("expected selection to be cleared")
	}
}

func TestAddToCartFormOpens(t *testing.T) {
	m := loaded(t, newFixture(t))

	m = press(t, m, "enter", "a")
	if m.form == nil || m.addForm == nil {
		t.Fatal("expected add-to-cart form")
	}
	m = press(t, m, "esc")
	if m.form != nil || m.GetViewState() != ViewProductDetails {
		t.Error("expected esc to close the form and stay on details")
	}
}

func TestSubmitAddToCart(t *testing.T) {
	f := newFixture(t)
	m := loaded(t, f)
	ps := products(t, f)

	m.selectedProduct = &ps[1]
	m.viewState = ViewProductDetails
	m.addForm = &addToCartForm{Quantity: 3, Message: "Happy birthday"}

	m, _ = m.submitAddToCart()
	if m.GetViewState() != ViewCart {
		t.Fatalf("expected cart view, got %v", m.GetViewState())
	}
	item, ok := f.deps.Cart.Get("p2")
	if !ok || item.Quantity != 3 || item.Message != "Happy birthday" {
		t.Errorf("unexpected cart line %+v", item)
	}
	if got := f.deps.Orders.Draft().Items; len(got) != 1 {
		t.Errorf("expected draft to follow the cart, got %d lines", len(got))
	}
}

func TestCartKeys(t *testing.T) {
	f := newFixture(t)
	m := loaded(t, f)
	ps := products(t, f)
	f.deps.Cart.Add(cart.FromProduct(ps[0], ""), 1)
	f.deps.Cart.Add(cart.FromProduct(ps[1], ""), 1)

	m = press(t, m, "c")
	if m.GetViewState() != ViewCart {
		t.Fatalf("expected cart view, got %v", m.GetViewState())
	}

	m = press(t, m, "+", "+")
	if item, _ := f.deps.Cart.Get("p1"); item.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", item.Quantity)
	}

	m = press(t, m, "j", "d")
	if f.deps.Cart.Len() != 1 {
		t.Fatalf("expected one line after delete, got %d", f.deps.Cart.Len())
	}
	if m.cartIdx != 0 {
		t.Errorf("expected cursor clamped to 0, got %d", m.cartIdx)
	}

	m = press(t, m, "-", "-", "-")
	if !f.deps.Cart.IsEmpty() {
		t.Error("expected decreasing to zero to remove the line")
	}
	if view := m.View(); !strings.Contains(view, "Your cart is empty") {
		t.Error("expected empty cart message")
	}

	m = press(t, m, "o")
	if m.GetViewState() != ViewCart {
		t.Error("expected checkout to be unavailable for an empty cart")
	}
}

func TestSearchAndFilterKeys(t *testing.T) {
	m := loaded(t, newFixture(t))

	m = press(t, m, "/", "l", "i", "l", "enter")
	if m.showSearch {
		t.Error("expected search to close on enter")
	}
	if m.filter.Query != "lil" {
		t.Errorf("expected query %q, got %q", "lil", m.filter.Query)
	}
	if n := len(m.productList.Items()); n != 1 {
		t.Fatalf("expected 1 match, got %d", n)
	}

	m = press(t, m, "x")
	if m.filter.Active() || len(m.productList.Items()) != 2 {
		t.Error("expected reset to clear the filter")
	}

	m = press(t, m, "tab")
	if m.filter.Category != "bouquets" {
		t.Errorf("expected first category, got %q", m.filter.Category)
	}
	if n := len(m.productList.Items()); n != 1 {
		t.Errorf("expected 1 bouquet, got %d", n)
	}

	m = press(t, m, "p", "p", "p", "p")
	if m.filter.PriceCeiling != 25 {
		t.Errorf("expected ceiling 25, got %d", m.filter.PriceCeiling)
	}
}

func TestLanguageToggle(t *testing.T) {
	f := newFixture(t)
	m := loaded(t, f)

	m = press(t, m, "l")
	if f.deps.Lang.Lang() != i18n.Arabic {
		t.Fatalf("expected Arabic, got %v", f.deps.Lang.Lang())
	}
	item := m.productList.Items()[0].(productItem)
	if item.Title() != "ورد أحمر" {
		t.Errorf("expected Arabic title, got %q", item.Title())
	}
	// Products without Arabic text fall back to English.
	if item := m.productList.Items()[1].(productItem); item.Title() != "White Lilies" {
		t.Errorf("expected English fallback, got %q", item.Title())
	}
}

func TestOrdersRequireSignIn(t *testing.T) {
	f := newFixture(t)
	m := loaded(t, f)

	m = press(t, m, "o")
	if m.GetViewState() != ViewLogin {
		t.Fatalf("expected login view, got %v", m.GetViewState())
	}
	if m.afterLogin != ViewOrders {
		t.Errorf("expected login to continue to orders, got %v", m.afterLogin)
	}

	if err := f.deps.Session.GuestLogin(context.Background()); err != nil {
		t.Fatalf("guest login: %v", err)
	}
	updated, cmd := m.Update(authDoneMsg{})
	m = updated.(Model)
	if m.GetViewState() != ViewOrders || !m.loadingOrders {
		t.Fatalf("expected orders to load, got view %v", m.GetViewState())
	}
	if cmd == nil {
		t.Fatal("expected a load command")
	}

	updated, _ = m.Update(ordersLoadedMsg{})
	m = updated.(Model)
	if view := m.View(); !strings.Contains(view, "You have no orders yet") {
		t.Error("expected empty order history")
	}
}

func TestCancelNonPendingOrder(t *testing.T) {
	m := loaded(t, newFixture(t))
	m.viewState = ViewOrders
	m.orders = []api.Order{{ID: "65f000000000000000abcdef", Status: api.StatusPaid}}

	m = press(t, m, "c")
	if m.cancelling {
		t.Error("expected paid orders to be refused")
	}
	if m.err == nil || !strings.Contains(m.err.Error(), "#ABCDEF") {
		t.Errorf("expected refusal naming the order, got %v", m.err)
	}
}

func TestReviewBlocksIncompleteOrder(t *testing.T) {
	f := newFixture(t)
	m := loaded(t, f)
	f.deps.Cart.Add(cart.FromProduct(products(t, f)[0], ""), 1)
	m.syncDraft()

	m, _ = m.enter(ViewReview)
	if len(m.payBlockers()) == 0 {
		t.Fatal("expected blockers for a draft without customer details")
	}

	m = press(t, m, "enter")
	if m.paying {
		t.Error("expected pay to be refused while blockers remain")
	}

	m = press(t, m, "m")
	if got := m.paymentMethod(); got != paymentMethods[1] {
		t.Errorf("expected payment method to cycle, got %q", got)
	}
}

func TestPaymentCancel(t *testing.T) {
	m := loaded(t, newFixture(t))

	updated, cmd := m.Update(paymentStartedMsg{result: &checkout.Result{
		OrderID:    "65f000000000000000abcdef",
		PaymentURL: "https://pay.example/session",
		Amount:     "12.500",
	}})
	m = updated.(Model)
	if m.GetViewState() != ViewPayment || cmd == nil {
		t.Fatalf("expected payment view with an await command, got %v", m.GetViewState())
	}
	if view := m.View(); !strings.Contains(view, "https://pay.example/session") {
		t.Error("expected payment link to render")
	}

	awaitCtx := m.awaitCtx
	m = press(t, m, "c")
	if !m.cancelling {
		t.Fatal("expected cancel to start")
	}
	if awaitCtx.Err() == nil {
		t.Error("expected the payment wait to be stopped")
	}

	updated, _ = m.Update(orderCancelledMsg{id: "65f000000000000000abcdef"})
	m = updated.(Model)
	if m.GetViewState() != ViewCart || m.payment != nil {
		t.Errorf("expected return to cart, got %v", m.GetViewState())
	}
	if !strings.Contains(m.notice, "ABCDEF") {
		t.Errorf("unexpected notice %q", m.notice)
	}
}

func TestPaymentFailureMessages(t *testing.T) {
	m := loaded(t, newFixture(t))
	m.paying = true

	updated, _ := m.Update(paymentFailedMsg{err: &checkout.Error{
		Kind:    checkout.KindPayment,
		OrderID: "65f000000000000000abcdef",
	}})
	m = updated.(Model)
	if m.paying {
		t.Error("expected paying to reset")
	}
	if m.err == nil || !strings.Contains(m.err.Error(), "may still appear as pending") {
		t.Errorf("expected pending warning, got %v", m.err)
	}

	updated, _ = m.Update(paymentFailedMsg{err: &checkout.Error{Kind: checkout.KindPayment, OrderID: "x", RolledBack: true}})
	m = updated.(Model)
	if strings.Contains(m.err.Error(), "pending") {
		t.Errorf("rolled back failures should not mention pending, got %v", m.err)
	}
}

func TestPaymentConfirmed(t *testing.T) {
	m := loaded(t, newFixture(t))
	m.viewState = ViewPayment

	updated, _ := m.Update(paymentConfirmedMsg{order: &api.Order{ID: "65f000000000000000abcdef", Status: api.StatusPaid}})
	m = updated.(Model)
	if m.GetViewState() != ViewConfirmation {
		t.Fatalf("expected confirmation, got %v", m.GetViewState())
	}
	if view := m.View(); !strings.Contains(view, "Order #ABCDEF") {
		t.Error("expected order number in confirmation")
	}

	m = press(t, m, "enter")
	if m.GetViewState() != ViewProductList {
		t.Errorf("expected return to products, got %v", m.GetViewState())
	}
}
