package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/cart"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

type fakePromos struct {
	percent map[string]string
	err     error
	calls   int
}

func (f *fakePromos) ValidatePromo(ctx context.Context, code string) (*api.PromoResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	pct, ok := f.percent[code]
	if !ok {
		return &api.PromoResponse{Success: false, Message: "Promo not found"}, nil
	}
	return &api.PromoResponse{Success: true, Promo: &api.Promo{Code: code, DiscountPercent: decimal.RequireFromString(pct)}}, nil
}

type fakeCities struct {
	cities []api.City
	err    error
}

func (f fakeCities) ListCityAreas(ctx context.Context) ([]api.City, error) {
	return f.cities, f.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func kuwaitAreas() *AreaTable {
	off := false
	return NewAreaTableFrom([]api.City{
		{Key: "hawalli", Name: i18n.Text{En: "Hawalli", Ar: "حولي"}, Areas: []api.Area{
			{ID: "salmiya", Name: i18n.Text{En: "Salmiya", Ar: "السالمية"}, ShippingPrice: dec("2.5")},
			{ID: "jabriya", Name: i18n.Text{En: "Jabriya"}, ShippingPrice: dec("3"), IsActive: &off},
		}},
		{Key: "ahmadi", Name: i18n.Text{En: "Ahmadi"}, IsActive: &off},
	})
}

func newAggregator(t *testing.T, promos PromoValidator) (*Aggregator, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	return NewAggregator(store, kuwaitAreas(), promos, nil), store
}

func items(spec ...string) []cart.Item {
	var out []cart.Item
	for i := 0; i+2 < len(spec); i += 3 {
		var qty int
		fmt.Sscanf(spec[i+2], "%d", &qty)
		out = append(out, cart.Item{ID: spec[i], Price: dec(spec[i+1]), Quantity: qty})
	}
	return out
}

func TestTotalsWithDiscountAndShipping(t *testing.T) {
	a, _ := newAggregator(t, nil)
	a.SetItems(items("a", "10.000", "1"))
	a.SetFulfillment(Delivery)
	a.SetLocation("hawalli", "salmiya")
	a.update(func(d *Draft) { d.PromoCode, d.DiscountPercent = "X", dec("20") })

	tot := a.ComputeTotals()
	if got := tot.Grand.StringFixed(3); got != "10.500" {
		t.Errorf("expected grand 10.500, got %s", got)
	}
	if tot.ShippingStatus != ShippingResolved {
		t.Errorf("expected resolved shipping, got %s", tot.ShippingStatus)
	}
	if err := tot.Payable(); err != nil {
		t.Errorf("expected payable, got %v", err)
	}
}

func TestScenarioSave10(t *testing.T) {
	promos := &fakePromos{percent: map[string]string{"SAVE10": "10"}}
	a, _ := newAggregator(t, promos)

	a.SetItems(items("a", "5.000", "2"))
	a.SetFulfillment(Delivery)
	a.SetLocation("hawalli", "salmiya")

	res := a.ValidatePromo(context.Background(), " save10 ")
	if res.Status != PromoApplied {
		t.Fatalf("expected promo applied, got %+v", res)
	}

	tot := a.ComputeTotals()
	checks := map[string]decimal.Decimal{
		"10.000": tot.Subtotal,
		"1.000":  tot.Discount,
		"2.500":  tot.Shipping,
		"11.500": tot.Grand,
	}
	for want, got := range checks {
		if got.StringFixed(3) != want {
			t.Errorf("expected %s, got %s", want, got.StringFixed(3))
		}
	}
}

func TestPickupHasNoShipping(t *testing.T) {
	a, _ := newAggregator(t, nil)
	a.SetItems(items("a", "5", "1"))
	a.SetLocation("hawalli", "salmiya")
	a.SetFulfillment(Pickup)

	tot := a.ComputeTotals()
	if !tot.Shipping.IsZero() || tot.ShippingStatus != ShippingNotApplicable {
		t.Errorf("expected no shipping for pickup, got %s (%s)", tot.Shipping, tot.ShippingStatus)
	}
	if tot.Grand.StringFixed(3) != "5.000" {
		t.Errorf("expected 5.000, got %s", tot.Grand.StringFixed(3))
	}

	// Pickup needs no reference data at all.
	b := NewAggregator(storage.NewMemory(), NewAreaTable(), nil, nil)
	b.SetItems(items("a", "5", "1"))
	b.SetFulfillment(Pickup)
	if err := b.ComputeTotals().Payable(); err != nil {
		t.Errorf("expected pickup payable without areas, got %v", err)
	}
}

func TestShippingBlocksPayment(t *testing.T) {
	tests := []struct {
		name  string
		areas *AreaTable
		city  string
		area  string
		want  error
	}{
		{"not loaded", NewAreaTable(), "hawalli", "salmiya", ErrShippingPending},
		{"unknown area", kuwaitAreas(), "hawalli", "nowhere", ErrShippingUnknown},
		{"inactive area", kuwaitAreas(), "hawalli", "jabriya", ErrShippingUnknown},
		{"inactive city", kuwaitAreas(), "ahmadi", "any", ErrShippingUnknown},
		{"no selection", kuwaitAreas(), "", "", ErrShippingUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator(storage.NewMemory(), tt.areas, nil, nil)
			a.SetItems(items("a", "5", "1"))
			a.SetLocation(tt.city, tt.area)

			tot := a.ComputeTotals()
			if !tot.Shipping.IsZero() {
				t.Errorf("expected no guessed shipping, got %s", tot.Shipping)
			}
			if err := tot.Payable(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if _, err := a.BuildPayload(); !errors.Is(err, tt.want) {
				t.Errorf("expected BuildPayload to refuse with %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEmptyOrder(t *testing.T) {
	a, _ := newAggregator(t, nil)
	tot := a.ComputeTotals()
	if !tot.Grand.IsZero() || !tot.Subtotal.IsZero() {
		t.Errorf("expected zero totals, got %+v", tot)
	}
	if !errors.Is(tot.Payable(), ErrEmptyOrder) {
		t.Errorf("expected ErrEmptyOrder, got %v", tot.Payable())
	}
}

func TestLookupByName(t *testing.T) {
	areas := kuwaitAreas()
	if _, ok := areas.Lookup("Hawalli", "السالمية"); !ok {
		t.Error("expected lookup by localized names")
	}
	if len(areas.Cities()) != 1 {
		t.Errorf("expected inactive city dropped, got %d cities", len(areas.Cities()))
	}
	if len(areas.AreasFor("hawalli")) != 1 {
		t.Errorf("expected inactive area dropped")
	}
}

func TestAreaTableLoad(t *testing.T) {
	table := NewAreaTable()
	if table.Loaded() {
		t.Fatal("expected new table not loaded")
	}

	if err := table.Load(context.Background(), fakeCities{err: errors.New("down")}); err == nil {
		t.Error("expected load error")
	}
	if s, err := table.Status(); s != Failed || err == nil {
		t.Errorf("expected Failed status, got %s (%v)", s, err)
	}

	ok := fakeCities{cities: []api.City{{Key: "capital", Areas: []api.Area{{ID: "sharq", ShippingPrice: dec("1.5")}}}}}
	if err := table.Load(context.Background(), ok); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a, found := table.Lookup("capital", "sharq"); !found || a.ShippingPrice.StringFixed(3) != "1.500" {
		t.Errorf("unexpected lookup: %+v %v", a, found)
	}
}

func TestBuildPayloadPickupOmitsAddress(t *testing.T) {
	a, _ := newAggregator(t, nil)
	a.SetItems([]cart.Item{{ID: "p1", Price: dec("7.250"), Quantity: 2, Message: "For mum"}})
	a.SetFulfillment(Pickup)
	a.SetAddress(Address{City: "hawalli", Street: "Main"})
	a.SetSchedule(Slot{Date: "2024-05-01", Label: "10:00 AM - 02:00 PM", Start: "10:00", End: "14:00"})
	a.SetCustomerInfo("Noor", "+96512345678", "")

	req, err := a.BuildPayload()
	if err != nil {
		t.Fatalf("BuildPayload failed: %v", err)
	}
	if req.ShippingAddress != nil {
		t.Errorf("expected no shipping address for pickup, got %+v", req.ShippingAddress)
	}

	raw, _ := json.Marshal(req)
	var m map[string]any
	json.Unmarshal(raw, &m)
	if _, ok := m["shippingAddress"]; ok {
		t.Error("expected shippingAddress key absent from JSON")
	}
	if m["customerPhone"] != "96512345678" {
		t.Errorf("expected digits-only phone, got %v", m["customerPhone"])
	}
	if m["totalAmount"] != 14.5 || m["orderType"] != "pickup" {
		t.Errorf("unexpected totals or type: %v %v", m["totalAmount"], m["orderType"])
	}
	if req.Products[0].Message != "For mum" || req.Products[0].Product != "p1" {
		t.Errorf("unexpected line: %+v", req.Products[0])
	}
	if req.ScheduleTime == nil || req.ScheduleTime.TimeSlot != "10:00 AM - 02:00 PM" {
		t.Errorf("unexpected schedule: %+v", req.ScheduleTime)
	}
}

func TestBuildPayloadDeliveryIncludesAddress(t *testing.T) {
	a, _ := newAggregator(t, nil)
	a.SetItems(items("p1", "5", "1"))
	a.SetFulfillment(Delivery)
	a.SetLocation("hawalli", "salmiya")
	a.SetAddress(Address{Street: "Baghdad St", Block: "4", House: "12", Landmark: "Near the mosque"})

	req, err := a.BuildPayload()
	if err != nil {
		t.Fatalf("BuildPayload failed: %v", err)
	}
	want := api.ShippingAddress{City: "hawalli", Area: "salmiya", Street: "Baghdad St", Block: "4", House: "12", Landmark: "Near the mosque"}
	if req.ShippingAddress == nil || *req.ShippingAddress != want {
		t.Errorf("expected %+v, got %+v", want, req.ShippingAddress)
	}
	if req.ShippingCost != 2.5 || req.TotalAmount != 7.5 {
		t.Errorf("unexpected amounts: shipping=%v total=%v", req.ShippingCost, req.TotalAmount)
	}
	if req.ScheduleTime != nil {
		t.Error("expected nil schedule when no slot chosen")
	}
}

func TestSetAddressMerges(t *testing.T) {
	a, _ := newAggregator(t, nil)
	a.SetAddress(Address{Street: "First", Block: "1"})
	a.SetAddress(Address{House: "9"})

	got := a.Draft().Address
	if got.Street != "First" || got.Block != "1" || got.House != "9" {
		t.Errorf("expected merged address, got %+v", got)
	}

	a.SetLocation("hawalli", "salmiya")
	a.SetLocation("capital", "")
	if a.Draft().Address.Area != "" {
		t.Error("expected city change to clear the area")
	}
}

func TestPromoFailureClears(t *testing.T) {
	tests := []struct {
		name   string
		promos *fakePromos
		want   PromoStatus
	}{
		{"rejected", &fakePromos{percent: map[string]string{}}, PromoRejected},
		{"server error", &fakePromos{err: &api.Error{Status: http.StatusBadGateway}}, PromoUnavailable},
		{"bad request", &fakePromos{err: &api.Error{Status: http.StatusBadRequest, Message: "Expired"}}, PromoRejected},
		{"network", &fakePromos{err: fmt.Errorf("dial: %w", api.ErrUnavailable)}, PromoUnavailable},
		{"zero percent", &fakePromos{percent: map[string]string{"NOTHING": "0"}}, PromoRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, store := newAggregator(t, tt.promos)
			a.SetItems(items("a", "10", "1"))
			a.SetPromo("OLD", dec("15"))
			storage.Save(store, storage.KeyPromoScratch, map[string]string{"promoCode": "OLD"})

			res := a.ValidatePromo(context.Background(), "nothing")
			if res.Status != tt.want {
				t.Errorf("expected status %d, got %d (%s)", tt.want, res.Status, res.Message)
			}

			d := a.Draft()
			if d.PromoCode != "" || !d.DiscountPercent.IsZero() {
				t.Errorf("expected promo cleared, got %q %s", d.PromoCode, d.DiscountPercent)
			}
			if _, err := store.Get(storage.KeyPromoScratch); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("expected promo scratch removed, got %v", err)
			}
		})
	}
}

func TestEmptyPromoSkipsBackend(t *testing.T) {
	promos := &fakePromos{}
	a, _ := newAggregator(t, promos)
	a.SetPromo("OLD", dec("5"))

	res := a.ValidatePromo(context.Background(), "   ")
	if res.Status != PromoRejected || promos.calls != 0 {
		t.Errorf("expected local rejection without a call, got %+v calls=%d", res, promos.calls)
	}
	if a.Draft().PromoCode != "" {
		t.Error("expected promo cleared")
	}
}

func TestSetPromoClamps(t *testing.T) {
	a, _ := newAggregator(t, nil)
	a.SetPromo("BIG", dec("250"))
	if got := a.Draft().DiscountPercent; !got.Equal(hundred) {
		t.Errorf("expected clamp to 100, got %s", got)
	}
	a.SetPromo("NEG", dec("-5"))
	if a.Draft().PromoCode != "" {
		t.Error("expected negative percent to clear the promo")
	}
}

func TestDraftRestoredFromStorage(t *testing.T) {
	store := storage.NewMemory()
	a := NewAggregator(store, kuwaitAreas(), nil, nil)
	a.SetItems(items("a", "5", "2"))
	a.SetFulfillment(Pickup)
	a.SetCustomerInfo(" Noor ", "+96512345678", "noor@example.com")

	b := NewAggregator(store, kuwaitAreas(), nil, nil)
	d := b.Draft()
	if len(d.Items) != 1 || d.Fulfillment != Pickup || d.CustomerName != "Noor" {
		t.Errorf("unexpected restored draft: %+v", d)
	}

	b.Clear()
	if _, err := store.Get(storage.KeyOrder); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected stored draft removed, got %v", err)
	}
	if b.Draft().Fulfillment != Delivery || len(b.Draft().Items) != 0 {
		t.Errorf("expected empty draft after clear, got %+v", b.Draft())
	}
}

func TestCorruptDraftStartsFresh(t *testing.T) {
	store := storage.NewMemory()
	store.Put(storage.KeyOrder, []byte(`[1,2`))

	a := NewAggregator(store, nil, nil, nil)
	if len(a.Draft().Items) != 0 || a.Draft().Fulfillment != Delivery {
		t.Errorf("expected fresh draft, got %+v", a.Draft())
	}
}

func TestValidate(t *testing.T) {
	a, _ := newAggregator(t, nil)
	err := a.Validate()

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	for _, field := range []string{"Items", "Name", "Phone", "City", "Street", "SlotDate"} {
		if verrs.For(field) == "" {
			t.Errorf("expected error for %s, got %v", field, verrs)
		}
	}

	a.SetItems(items("a", "5", "1"))
	a.SetFulfillment(Pickup)
	a.SetCustomerInfo("Noor", NormalizePhone("+965", "1234"), "not-an-email")
	a.SetSchedule(Slot{Date: "2024-05-01", Label: "10:00 AM - 02:00 PM"})

	err = a.Validate()
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if verrs.For("Phone") == "" || verrs.For("Email") == "" {
		t.Errorf("expected phone and email errors, got %v", verrs)
	}
	if verrs.For("City") != "" {
		t.Errorf("pickup must not require an address, got %v", verrs)
	}

	a.SetCustomerInfo("Noor", NormalizePhone("+965", "12345"), "noor@example.com")
	if err := a.Validate(); err != nil {
		t.Errorf("expected valid pickup draft, got %v", err)
	}
}

func TestPhoneHelpers(t *testing.T) {
	if got := NormalizePhone("+965", "1234-5678 99"); got != "+96512345678" {
		t.Errorf("expected truncated normalized phone, got %q", got)
	}
	if NormalizePhone("+965", "  ") != "" {
		t.Error("expected empty phone for no digits")
	}

	valid := []struct {
		code, number string
		want         bool
	}{
		{"+965", "12345", true},
		{"+965", "1234", false},
		{"+20", "12345678", true},
		{"+20", "1234567", false},
		{"+1", "5551234", false},
	}
	for _, tt := range valid {
		if got := PhoneValid(tt.code, tt.number); got != tt.want {
			t.Errorf("PhoneValid(%s, %s) = %v, want %v", tt.code, tt.number, got, tt.want)
		}
	}

	code, number := SplitPhone("+97150123456")
	if code != "+971" || number != "50123456" {
		t.Errorf("unexpected split: %s %s", code, number)
	}
	code, _ = SplitPhone("+44123")
	if code != DefaultCountryCode {
		t.Errorf("expected default country for unknown prefix, got %s", code)
	}
}

func TestPhoneScratch(t *testing.T) {
	store := storage.NewMemory()

	if p := LoadPhoneScratch(store); p.CountryCode != DefaultCountryCode {
		t.Errorf("expected default country code, got %q", p.CountryCode)
	}

	SavePhoneScratch(store, PhoneScratch{CountryCode: DefaultCountryCode})
	if store.Writes() != 0 {
		t.Error("expected untouched default not to be written")
	}

	SavePhoneScratch(store, PhoneScratch{CountryCode: "+971", Number: "501"})
	if p := LoadPhoneScratch(store); p.CountryCode != "+971" || p.Number != "501" {
		t.Errorf("unexpected scratch: %+v", p)
	}
}
