package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/checkout"
	"github.com/thomas/lilyan-terminal-go/internal/order"
	"github.com/thomas/lilyan-terminal-go/internal/schedule"
)

// bookableDays is how many days ahead the schedule step offers.
const bookableDays = 7

// Payment methods offered on the review step.
var paymentMethods = []string{"card", "knet"}

// ============================================
// Fulfillment
// ============================================

type fulfillmentForm struct {
	Kind           string
	City           string
	Area           string
	Street         string
	Block          string
	House          string
	Landmark       string
	AdditionalInfo string
}

func required(label string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}
}

func (m *Model) initFulfillmentForm() tea.Cmd {
	d := m.deps.Orders.Draft()
	if m.fulfillment == nil {
		kind := d.Fulfillment
		if !kind.Valid() {
			kind = order.Delivery
		}
		m.fulfillment = &fulfillmentForm{
			Kind:           string(kind),
			City:           d.Address.City,
			Area:           d.Address.Area,
			Street:         d.Address.Street,
			Block:          d.Address.Block,
			House:          d.Address.House,
			Landmark:       d.Address.Landmark,
			AdditionalInfo: d.Address.AdditionalInfo,
		}
	}
	f := m.fulfillment
	areas := m.deps.Orders.Areas()
	lang := m.lang()

	cities := make([]huh.Option[string], 0)
	for _, c := range areas.Cities() {
		cities = append(cities, huh.NewOption(c.Name.PickOr(lang, c.Key), c.Key))
	}
	pickup := func() bool { return f.Kind != string(order.Delivery) }

	return m.setForm(huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How would you like to receive your order?").
				Options(
					huh.NewOption("Delivery", string(order.Delivery)),
					huh.NewOption("Pickup from the shop", string(order.Pickup)),
				).
				Value(&f.Kind),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("City").
				Options(cities...).
				Value(&f.City).
				Validate(func(s string) error {
					if !areas.Loaded() {
						return errors.New("delivery areas are not available yet, press ctrl+r to retry")
					}
					return required("City")(s)
				}),
			huh.NewSelect[string]().
				Title("Area").
				OptionsFunc(func() []huh.Option[string] {
					opts := make([]huh.Option[string], 0)
					for _, a := range areas.AreasFor(f.City) {
						label := fmt.Sprintf("%s (%s)", a.Name.PickOr(lang, a.Key), formatMoney(a.ShippingPrice))
						opts = append(opts, huh.NewOption(label, a.Key))
					}
					return opts
				}, &f.City).
				Value(&f.Area).
				Validate(required("Area")),
		).WithHideFunc(pickup),
		huh.NewGroup(
			huh.NewInput().Title("Street").Value(&f.Street).Validate(required("Street")),
			huh.NewInput().Title("Block").Value(&f.Block).Validate(required("Block")),
			huh.NewInput().Title("House / building").Value(&f.House).Validate(required("House")),
			huh.NewInput().Title("Landmark (optional)").Value(&f.Landmark),
			huh.NewInput().Title("Additional directions (optional)").Value(&f.AdditionalInfo),
		).WithHideFunc(pickup),
	))
}

func (m Model) submitFulfillment() (Model, tea.Cmd) {
	f := m.fulfillment
	kind := order.Fulfillment(f.Kind)
	m.deps.Orders.SetFulfillment(kind)
	if kind == order.Delivery {
		m.deps.Orders.SetLocation(f.City, f.Area)
		m.deps.Orders.SetAddress(order.Address{
			Street:         f.Street,
			Block:          f.Block,
			House:          f.House,
			Landmark:       f.Landmark,
			AdditionalInfo: f.AdditionalInfo,
		})
	}
	m.viewState = ViewSchedule
	cmd := m.initScheduleForm()
	return m, cmd
}

func (m Model) loadCities() tea.Cmd {
	return func() tea.Msg {
		err := m.deps.Orders.Areas().Load(m.ctx, m.deps.Cities)
		return citiesLoadedMsg{err: err}
	}
}

func (m Model) viewFulfillment() string {
	var sb strings.Builder
	sb.WriteString(m.header("Delivery", "Step 1 of 4"))
	sb.WriteString(m.status())

	switch status, err := m.deps.Orders.Areas().Status(); status {
	case order.Loading:
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Loading delivery areas...\n\n")
	case order.Failed:
		sb.WriteString(m.styles.Warning.Render(fmt.Sprintf("Delivery areas could not be loaded (%v). Pickup is still available; ctrl+r retries.", err)))
		sb.WriteString("\n\n")
	}

	if m.form != nil {
		sb.WriteString(m.form.View())
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("esc back • tab navigate • enter next"))
	return m.styles.Box.Render(sb.String())
}

// ============================================
// Schedule
// ============================================

type scheduleForm struct {
	Date string
	Slot string
}

func (m Model) dateLabel(date string) string {
	if date == m.deps.Schedule.Today() {
		return "Today"
	}
	loc := m.deps.Schedule.Location
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(schedule.DateLayout, date, loc)
	if err != nil {
		return date
	}
	return t.Format("Mon 02 Jan")
}

func (m *Model) initScheduleForm() tea.Cmd {
	r := m.deps.Schedule
	d := m.deps.Orders.Draft()

	dates := r.Dates(bookableDays)
	m.slot = &scheduleForm{}
	if d.Slot.Complete() && r.StillOpen(d.Slot) {
		m.slot.Date, m.slot.Slot = d.Slot.Date, d.Slot.Label
	} else if len(dates) > 0 {
		m.slot.Date = dates[0]
	}
	f := m.slot

	dateOpts := make([]huh.Option[string], 0, len(dates))
	for _, date := range dates {
		dateOpts = append(dateOpts, huh.NewOption(m.dateLabel(date), date))
	}

	return m.setForm(huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Day").
				Options(dateOpts...).
				Value(&f.Date),
			huh.NewSelect[string]().
				Title("Time").
				OptionsFunc(func() []huh.Option[string] {
					opts := make([]huh.Option[string], 0)
					for _, s := range r.Available(f.Date) {
						opts = append(opts, huh.NewOption(s.Label, s.Label))
					}
					return opts
				}, &f.Date).
				Value(&f.Slot).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("no time slots are left on this day")
					}
					return nil
				}),
		),
	))
}

func (m Model) submitSchedule() (Model, tea.Cmd) {
	slot, err := m.deps.Schedule.Select(m.slot.Date, m.slot.Slot)
	if err != nil {
		m.err = err
		cmd := m.initScheduleForm()
		return m, cmd
	}
	m.err = nil
	m.deps.Orders.SetSchedule(slot)
	m.viewState = ViewCustomer
	cmd := m.initCustomerForm()
	return m, cmd
}

func (m Model) viewSchedule() string {
	var sb strings.Builder
	sb.WriteString(m.header("Delivery Time", "Step 2 of 4"))
	sb.WriteString(m.status())

	if m.deps.Schedule.TodayClosed() {
		sb.WriteString(m.styles.Warning.Render("We are closed for new orders today. The earliest day is shown first."))
		sb.WriteString("\n\n")
	}
	if m.form != nil {
		sb.WriteString(m.form.View())
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("esc back • ↑/↓ choose • enter next"))
	return m.styles.Box.Render(sb.String())
}

// ============================================
// Customer
// ============================================

type customerForm struct {
	Name         string
	Code         string
	Number       string
	Email        string
	Instructions string
}

func (m *Model) initCustomerForm() tea.Cmd {
	d := m.deps.Orders.Draft()
	scratch := order.LoadPhoneScratch(m.deps.Store)

	f := &customerForm{
		Name:         d.CustomerName,
		Code:         scratch.CountryCode,
		Number:       scratch.Number,
		Email:        d.CustomerEmail,
		Instructions: d.Instructions,
	}
	if f.Number == "" && d.CustomerPhone != "" {
		f.Code, f.Number = order.SplitPhone(d.CustomerPhone)
	}
	if f.Code == "" {
		f.Code = order.Countries[0].Code
	}
	if u := m.deps.Session.User(); u != nil && !m.deps.Session.IsGuest() {
		if f.Name == "" {
			f.Name = u.Name
		}
		if f.Email == "" {
			f.Email = u.Email
		}
	}
	m.customer = f

	codes := make([]huh.Option[string], 0, len(order.Countries))
	for _, c := range order.Countries {
		codes = append(codes, huh.NewOption(c.Code, c.Code))
	}

	return m.setForm(huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Name").Value(&f.Name).Validate(required("Name")),
			huh.NewSelect[string]().Title("Country code").Options(codes...).Value(&f.Code),
			huh.NewInput().
				Title("Phone").
				Value(&f.Number).
				Validate(func(s string) error {
					if order.PhoneValid(f.Code, s) {
						return nil
					}
					if c, ok := order.CountryFor(f.Code); ok {
						return fmt.Errorf("phone must be %d to %d digits for %s", c.Digits-3, c.Digits, c.Code)
					}
					return errors.New("phone number is not valid")
				}),
			huh.NewInput().
				Title("Email (optional)").
				Value(&f.Email).
				Validate(func(s string) error {
					if s != "" && !strings.Contains(s, "@") {
						return errors.New("invalid email format")
					}
					return nil
				}),
			huh.NewText().
				Title("Notes for the florist (optional)").
				CharLimit(500).
				Value(&f.Instructions),
		),
	))
}

func (m Model) submitCustomer() (Model, tea.Cmd) {
	f := m.customer
	m.deps.Orders.SetCustomerInfo(f.Name, order.NormalizePhone(f.Code, f.Number), f.Email)
	m.deps.Orders.SetInstructions(f.Instructions)
	if err := order.SavePhoneScratch(m.deps.Store, order.PhoneScratch{CountryCode: f.Code, Number: order.Digits(f.Number)}); err != nil {
		m.logger.Warn("saving phone entry", "err", err)
	}
	return m.enter(ViewReview)
}

func (m Model) viewCustomer() string {
	var sb strings.Builder
	sb.WriteString(m.header("Your Details", "Step 3 of 4"))
	sb.WriteString(m.status())
	if m.form != nil {
		sb.WriteString(m.form.View())
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("esc back • tab navigate • enter review"))
	return m.styles.Box.Render(sb.String())
}

// ============================================
// Review
// ============================================

func (m Model) handleReviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.showPromo {
		switch key {
		case "enter":
			if m.checkingPromo {
				return m, nil
			}
			m.checkingPromo = true
			m.promoNotice = ""
			return m, m.validatePromo(m.promoInput.Value())
		case "esc":
			m.showPromo = false
			m.promoInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.promoInput, cmd = m.promoInput.Update(msg)
		return m, cmd
	}

	switch key {
	case "esc":
		if m.paying {
			return m, nil
		}
		return m.back()

	case "p":
		if !m.checkingPromo && !m.paying {
			m.showPromo = true
			m.promoInput.Focus()
			return m, textinput.Blink
		}

	case "x":
		if !m.paying {
			m.deps.Orders.ClearPromo()
			m.promoNotice = "Promo code removed"
		}

	case "m":
		if !m.paying {
			m.deps.Orders.SetPaymentMethod(m.nextPaymentMethod())
		}

	case "enter", "y":
		if m.paying || m.checkingPromo || len(m.payBlockers()) > 0 {
			return m, nil
		}
		m.paying = true
		m.err = nil
		return m, m.pay(m.paymentMethod())
	}

	return m, nil
}

func (m Model) paymentMethod() string {
	if pm := m.deps.Orders.Draft().PaymentMethod; pm != "" {
		return pm
	}
	return paymentMethods[0]
}

func (m Model) nextPaymentMethod() string {
	current := m.paymentMethod()
	for i, pm := range paymentMethods {
		if pm == current {
			return paymentMethods[(i+1)%len(paymentMethods)]
		}
	}
	return paymentMethods[0]
}

// payBlockers lists the reasons the order cannot be paid yet.
func (m Model) payBlockers() []string {
	var out []string

	if err := m.deps.Orders.Validate(); err != nil {
		var verrs order.ValidationErrors
		if errors.As(err, &verrs) {
			for _, v := range verrs {
				out = append(out, v.Message)
			}
		} else {
			out = append(out, err.Error())
		}
	}

	if err := m.deps.Orders.ComputeTotals().Payable(); err != nil && !errors.Is(err, order.ErrEmptyOrder) {
		out = append(out, err.Error())
	}

	if s := m.deps.Orders.Draft().Slot; s.Complete() && !m.deps.Schedule.StillOpen(s) {
		out = append(out, "The selected time slot is no longer available")
	}
	return out
}

func (m Model) validatePromo(code string) tea.Cmd {
	return func() tea.Msg {
		return promoCheckedMsg{result: m.deps.Orders.ValidatePromo(m.ctx, code)}
	}
}

func (m Model) pay(method string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.deps.Checkout.Pay(m.ctx, method)
		if err != nil {
			return paymentFailedMsg{err: err}
		}
		return paymentStartedMsg{result: res}
	}
}

// handlePaymentFailure turns a checkout error into the customer message.
func (m *Model) handlePaymentFailure(err error) {
	if errors.Is(err, checkout.ErrInFlight) {
		return
	}
	var ce *checkout.Error
	if !errors.As(err, &ce) {
		m.err = err
		return
	}

	m.logger.Warn("checkout failed", "kind", ce.Kind, "order", ce.OrderID, "err", ce.Err)
	switch ce.Kind {
	case checkout.KindValidation:
		m.err = ce.Err
	case checkout.KindPromoChanged:
		m.err = nil
		msg := "Your promo code is no longer valid"
		if ce.Promo != nil && ce.Promo.Status == order.PromoApplied {
			msg = fmt.Sprintf("Your promo code now gives %s%% off", ce.Promo.Percent.String())
		} else if ce.Promo != nil && ce.Promo.Message != "" {
			msg = ce.Promo.Message
		}
		m.promoNotice = msg + ". Please review the new total."
	case checkout.KindOrder:
		m.err = errors.New("we could not place your order, please try again")
	default:
		msg := "payment could not be started, please try again"
		if ce.OrderID != "" && !ce.RolledBack {
			msg = fmt.Sprintf("payment could not be started; order #%s may still appear as pending", (api.Order{ID: ce.OrderID}).ShortID())
		}
		m.err = errors.New(msg)
	}
}

func (m Model) viewReview() string {
	var sb strings.Builder
	d := m.deps.Orders.Draft()
	totals := m.deps.Orders.ComputeTotals()
	lang := m.lang()

	sb.WriteString(m.header("Review Order", "Step 4 of 4"))

	if m.paying {
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Preparing your payment...")
		return m.styles.Box.Render(sb.String())
	}
	sb.WriteString(m.status())

	sb.WriteString(m.styles.Section.Render("Items"))
	sb.WriteString("\n")
	for _, it := range d.Items {
		sb.WriteString(fmt.Sprintf("  • %s x%d = %s\n", it.Name.PickOr(lang, it.ID), it.Quantity, formatMoney(it.LineTotal())))
		if it.Message != "" {
			sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("    Gift note: %s", it.Message)))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")

	if d.Fulfillment == order.Pickup {
		sb.WriteString(m.styles.Section.Render("Pickup from the shop"))
		sb.WriteString("\n")
	} else {
		sb.WriteString(m.styles.Section.Render("Deliver to"))
		sb.WriteString("\n")
		areas := m.deps.Orders.Areas()
		area := d.Address.Area
		if a, ok := areas.Lookup(d.Address.City, d.Address.Area); ok {
			area = a.Name.PickOr(lang, a.Key)
		}
		sb.WriteString(fmt.Sprintf("  %s, %s\n", areas.CityName(d.Address.City, lang), area))
		sb.WriteString(fmt.Sprintf("  Block %s, %s, House %s\n", d.Address.Block, d.Address.Street, d.Address.House))
		if d.Address.Landmark != "" {
			sb.WriteString(fmt.Sprintf("  Near %s\n", d.Address.Landmark))
		}
	}
	if d.Slot.Complete() {
		sb.WriteString(fmt.Sprintf("  %s, %s\n", m.dateLabel(d.Slot.Date), d.Slot.Label))
	}
	sb.WriteString("\n")

	sb.WriteString(m.styles.Section.Render("Contact"))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  %s  %s\n", d.CustomerName, d.CustomerPhone))
	if d.CustomerEmail != "" {
		sb.WriteString(fmt.Sprintf("  %s\n", d.CustomerEmail))
	}
	sb.WriteString("\n")

	var summary strings.Builder
	summary.WriteString(fmt.Sprintf("Subtotal: %s\n", formatMoney(totals.Subtotal)))
	if d.PromoCode != "" {
		summary.WriteString(fmt.Sprintf("Discount (%s, %s%%): -%s\n", d.PromoCode, d.DiscountPercent.String(), formatMoney(totals.Discount)))
	}
	switch totals.ShippingStatus {
	case order.ShippingNotApplicable:
	case order.ShippingResolved:
		summary.WriteString(fmt.Sprintf("Delivery: %s\n", formatMoney(totals.Shipping)))
	default:
		summary.WriteString(m.styles.Warning.Render("Delivery: unavailable"))
		summary.WriteString("\n")
	}
	summary.WriteString(m.styles.Total.Render(fmt.Sprintf("Total: %s", formatMoney(totals.Grand))))
	sb.WriteString(m.styles.Summary.Render(summary.String()))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Payment method: %s\n", strings.ToUpper(m.paymentMethod())))

	if m.showPromo {
		sb.WriteString("\nPromo code: ")
		sb.WriteString(m.promoInput.View())
		if m.checkingPromo {
			sb.WriteString(" ")
			sb.WriteString(m.spinner.View())
		}
		sb.WriteString("\n")
	}
	if m.promoNotice != "" {
		sb.WriteString(m.styles.Highlight.Render(m.promoNotice))
		sb.WriteString("\n")
	}

	blockers := m.payBlockers()
	if len(blockers) > 0 {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Warning.Render("Before you can pay:"))
		sb.WriteString("\n")
		for _, b := range blockers {
			sb.WriteString(m.styles.Warning.Render("  • " + b))
			sb.WriteString("\n")
		}
	}

	help := "p promo • x remove promo • m payment method • esc back"
	if len(blockers) == 0 {
		help = "enter/y pay • " + help
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render(help))
	return m.styles.Box.Render(sb.String())
}

// ============================================
// Payment & confirmation
// ============================================

func (m Model) handlePaymentKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "c":
		if m.payment == nil || m.cancelling {
			return m, nil
		}
		if m.stopAwait != nil {
			m.stopAwait()
			m.awaitCtx, m.stopAwait = nil, nil
		}
		m.cancelling = true
		return m, m.cancelOrder(m.payment.OrderID, m.deps.Orders.Draft().PromoCode)
	}
	return m, nil
}

func (m Model) awaitPayment(ctx context.Context, orderID string) tea.Cmd {
	return func() tea.Msg {
		o, err := m.deps.Checkout.AwaitPayment(ctx, orderID, m.deps.PaymentPollEvery)
		if err != nil {
			return paymentWaitEndedMsg{err: err}
		}
		return paymentConfirmedMsg{order: o}
	}
}

func (m Model) cancelOrder(orderID, promoCode string) tea.Cmd {
	return func() tea.Msg {
		err := m.deps.Checkout.Cancel(m.ctx, orderID, promoCode)
		return orderCancelledMsg{id: orderID, err: err}
	}
}

func (m Model) viewPayment() string {
	var sb strings.Builder
	sb.WriteString(m.header("Payment", ""))
	sb.WriteString(m.status())

	if m.payment == nil {
		sb.WriteString(m.styles.Subtle.Render("No payment in progress"))
		return m.styles.Box.Render(sb.String())
	}

	sb.WriteString(fmt.Sprintf("Order #%s", (api.Order{ID: m.payment.OrderID}).ShortID()))
	if m.payment.Amount != "" {
		sb.WriteString(fmt.Sprintf("  KWD %s", m.payment.Amount))
	}
	sb.WriteString("\n\n")

	if m.payment.PaymentURL != "" {
		sb.WriteString("Open this link to pay securely:\n")
		sb.WriteString(m.styles.Link.Render(m.payment.PaymentURL))
		sb.WriteString("\n\n")
	}

	if m.cancelling {
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Cancelling order...")
	} else {
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Waiting for payment confirmation...")
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("c cancel order • ctrl+c quit (you can reconnect to resume)"))
	return m.styles.Box.Render(sb.String())
}

func (m Model) handleConfirmationKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc", "q":
		m.confirmed = nil
		m.fulfillment, m.slot, m.customer = nil, nil, nil
		m.notice = ""
		return m.back()
	}
	return m, nil
}

func (m Model) viewConfirmation() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Success.Render("✓ Payment received, thank you!"))
	sb.WriteString("\n\n")

	if o := m.confirmed; o != nil {
		sb.WriteString(fmt.Sprintf("Order #%s\n", o.ShortID()))
		sb.WriteString(fmt.Sprintf("Status: %s\n", o.EffectiveStatus()))
		if o.TotalAmount.IsPositive() {
			sb.WriteString(fmt.Sprintf("Total: %s\n", formatMoney(o.TotalAmount)))
		}
		if s := o.ScheduleTime; s != nil && s.Date != "" {
			sb.WriteString(fmt.Sprintf("Scheduled: %s, %s\n", s.Date, s.TimeSlot))
		}
	}

	sb.WriteString("\n\n")
	sb.WriteString(m.styles.HelpBar.Render("Press Enter to continue shopping"))
	return m.styles.Box.Render(sb.String())
}
