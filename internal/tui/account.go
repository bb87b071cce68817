package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
)

const (
	modeLogin    = "login"
	modeRegister = "register"
	modeGuest    = "guest"
)

type loginForm struct {
	Mode     string
	Name     string
	Email    string
	Password string
}

func (m *Model) initLoginForm() tea.Cmd {
	if m.login == nil {
		m.login = &loginForm{Mode: modeLogin}
	}
	f := m.login
	m.login.Password = ""

	return m.setForm(huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Account").
				Options(
					huh.NewOption("Sign in", modeLogin),
					huh.NewOption("Create an account", modeRegister),
					huh.NewOption("Continue as guest", modeGuest),
				).
				Value(&f.Mode),
		),
		huh.NewGroup(
			huh.NewInput().Title("Name").Value(&f.Name).Validate(required("Name")),
		).WithHideFunc(func() bool { return f.Mode != modeRegister }),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&f.Email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return errors.New("invalid email format")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&f.Password).
				Validate(required("Password")),
		).WithHideFunc(func() bool { return f.Mode == modeGuest }),
	))
}

func (m Model) submitLogin() (Model, tea.Cmd) {
	f := *m.login
	s := m.deps.Session
	return m, func() tea.Msg {
		var err error
		switch f.Mode {
		case modeRegister:
			err = s.Register(m.ctx, api.Registration{Name: f.Name, Email: f.Email, Password: f.Password})
		case modeGuest:
			err = s.GuestLogin(m.ctx)
		default:
			err = s.Login(m.ctx, f.Email, f.Password)
		}
		return authDoneMsg{err: err}
	}
}

func (m Model) viewLogin() string {
	var sb strings.Builder
	sb.WriteString(m.header("Account", ""))
	sb.WriteString(m.status())

	if u := m.deps.Session.User(); u != nil {
		who := u.Email
		if m.deps.Session.IsGuest() {
			who = "a guest"
		}
		sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("Currently signed in as %s", who)))
		sb.WriteString("\n\n")
	}

	if m.form != nil {
		sb.WriteString(m.form.View())
	} else {
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Signing in...")
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("esc back • tab navigate • enter continue"))
	return m.styles.Box.Render(sb.String())
}

// ============================================
// Order history
// ============================================

func (m Model) loadOrders() tea.Cmd {
	return func() tea.Msg {
		orders, err := m.deps.API.ListOrders(m.ctx)
		if err != nil {
			return errMsg{err: fmt.Errorf("loading orders: %w", err)}
		}
		return ordersLoadedMsg{orders: orders}
	}
}

func (m Model) selectedOrder() (api.Order, bool) {
	if m.ordersIdx < 0 || m.ordersIdx >= len(m.orders) {
		return api.Order{}, false
	}
	return m.orders[m.ordersIdx], true
}

func (m Model) handleOrdersKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		return m.back()

	case "up", "k":
		if m.ordersIdx > 0 {
			m.ordersIdx--
		}

	case "down", "j":
		if m.ordersIdx < len(m.orders)-1 {
			m.ordersIdx++
		}

	case "enter":
		if _, ok := m.selectedOrder(); ok {
			m.viewState = ViewOrderDetails
		}

	case "r":
		if !m.loadingOrders {
			m.loadingOrders = true
			m.err = nil
			return m, m.loadOrders()
		}

	case "c":
		return m.cancelSelected()

	case "L":
		s := m.deps.Session
		return m, func() tea.Msg {
			return loggedOutMsg{err: s.Logout(m.ctx)}
		}
	}
	return m, nil
}

func (m Model) handleOrderDetailsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		return m.back()
	case "c":
		return m.cancelSelected()
	}
	return m, nil
}

func (m Model) cancelSelected() (tea.Model, tea.Cmd) {
	o, ok := m.selectedOrder()
	if !ok || m.cancelling {
		return m, nil
	}
	if !o.Cancellable() {
		m.err = fmt.Errorf("order #%s is %s and can no longer be cancelled", o.ShortID(), o.EffectiveStatus())
		return m, nil
	}
	m.cancelling = true
	m.err = nil
	return m, m.cancelOrder(o.ID, o.PromoCode)
}

func (m Model) viewOrders() string {
	var sb strings.Builder
	sb.WriteString(m.header("My Orders", ""))
	sb.WriteString(m.status())

	switch {
	case m.loadingOrders:
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Loading orders...")
	case len(m.orders) == 0:
		sb.WriteString(m.styles.Subtle.Render("You have no orders yet"))
	default:
		for i, o := range m.orders {
			prefix := "  "
			if i == m.ordersIdx {
				prefix = "▸ "
			}
			line := fmt.Sprintf("%s#%s  %s  %d items  %s  %s", prefix, o.ShortID(),
				o.CreatedAt.Format("02 Jan 2006"), o.ItemCount(), formatMoney(o.TotalAmount), o.EffectiveStatus())
			if i == m.ordersIdx {
				sb.WriteString(m.styles.Highlight.Render(line))
			} else {
				sb.WriteString(line)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("↑/↓ select • enter details • c cancel pending order • r refresh • L sign out • esc back"))
	return m.styles.Box.Render(sb.String())
}

func (m Model) viewOrderDetails() string {
	o, ok := m.selectedOrder()
	if !ok {
		return "No order selected"
	}
	lang := m.lang()

	var sb strings.Builder
	sb.WriteString(m.header(fmt.Sprintf("Order #%s", o.ShortID()), o.EffectiveStatus()))
	sb.WriteString(m.status())

	sb.WriteString(m.styles.Section.Render("Items"))
	sb.WriteString("\n")
	for _, l := range o.Products {
		name := l.Product.Name.PickOr(lang, l.Product.ID)
		sb.WriteString(fmt.Sprintf("  • %s x%d = %s\n", name, l.Quantity, formatMoney(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))))
		if l.Message != "" {
			sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("    Gift note: %s", l.Message)))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")

	if o.OrderType == "pickup" {
		sb.WriteString("Pickup from the shop\n")
	} else if a := o.ShippingAddress; a != nil {
		sb.WriteString(fmt.Sprintf("Deliver to %s, %s, Block %s, %s, House %s\n", a.City, a.Area, a.Block, a.Street, a.House))
	}
	if s := o.ScheduleTime; s != nil && s.Date != "" {
		sb.WriteString(fmt.Sprintf("Scheduled: %s, %s\n", s.Date, s.TimeSlot))
	}
	sb.WriteString("\n")

	var summary strings.Builder
	summary.WriteString(fmt.Sprintf("Subtotal: %s\n", formatMoney(o.Subtotal)))
	if o.DiscountAmount.IsPositive() {
		summary.WriteString(fmt.Sprintf("Discount (%s): -%s\n", o.PromoCode, formatMoney(o.DiscountAmount)))
	}
	if o.ShippingCost.IsPositive() {
		summary.WriteString(fmt.Sprintf("Delivery: %s\n", formatMoney(o.ShippingCost)))
	}
	summary.WriteString(m.styles.Total.Render(fmt.Sprintf("Total: %s", formatMoney(o.TotalAmount))))
	sb.WriteString(m.styles.Summary.Render(summary.String()))
	sb.WriteString("\n")

	help := "esc back"
	if o.Cancellable() {
		help = "c cancel order • " + help
	}
	sb.WriteString(m.styles.HelpBar.Render(help))
	return m.styles.Box.Render(sb.String())
}
