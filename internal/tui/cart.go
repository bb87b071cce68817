package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) handleCartKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	items := m.deps.Cart.Items()
	m.notice = ""

	selected := ""
	if m.cartIdx >= 0 && m.cartIdx < len(items) {
		selected = items[m.cartIdx].ID
	}

	switch key {
	case "esc", "backspace", "s":
		return m.back()

	case "up", "k":
		if m.cartIdx > 0 {
			m.cartIdx--
		}
		return m, nil

	case "down", "j":
		if m.cartIdx < len(items)-1 {
			m.cartIdx++
		}
		return m, nil

	case "+", "=":
		if selected != "" {
			m.deps.Cart.Increase(selected)
			m.syncDraft()
		}
		return m, nil

	case "-":
		if selected != "" {
			m.deps.Cart.Decrease(selected)
			m.syncDraft()
			m.clampCartIdx()
		}
		return m, nil

	case "d", "delete":
		if selected != "" {
			m.deps.Cart.Remove(selected)
			m.syncDraft()
			m.clampCartIdx()
		}
		return m, nil

	case "X":
		m.deps.Cart.Clear()
		m.syncDraft()
		m.cartIdx = 0
		return m, nil

	case "o", "enter":
		if !m.deps.Cart.IsEmpty() {
			return m.enter(ViewFulfillment)
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) clampCartIdx() {
	if n := m.deps.Cart.Len(); m.cartIdx >= n {
		m.cartIdx = n - 1
	}
	if m.cartIdx < 0 {
		m.cartIdx = 0
	}
}

func (m Model) viewCart() string {
	var sb strings.Builder
	lang := m.lang()

	sb.WriteString(m.header("Your Cart", ""))
	sb.WriteString(m.status())

	items := m.deps.Cart.Items()
	if len(items) == 0 {
		sb.WriteString(m.styles.Subtle.Render("Your cart is empty"))
		sb.WriteString("\n\n")
		sb.WriteString(m.styles.HelpBar.Render("esc back to flowers"))
		return m.styles.Box.Render(sb.String())
	}

	for i, item := range items {
		prefix := "  "
		if i == m.cartIdx {
			prefix = "▸ "
		}

		line := fmt.Sprintf("%s%s  %s  x%d  = %s", prefix, item.Name.PickOr(lang, item.ID),
			formatMoney(item.Price), item.Quantity, formatMoney(item.LineTotal()))
		if i == m.cartIdx {
			sb.WriteString(m.styles.Highlight.Render(line))
		} else {
			sb.WriteString(line)
		}
		sb.WriteString("\n")
		if item.Message != "" {
			sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("    Gift note: %s", item.Message)))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(m.styles.Total.Render(fmt.Sprintf("Subtotal: %s", formatMoney(m.deps.Cart.Total()))))
	sb.WriteString(fmt.Sprintf(" (%d items)", m.deps.Cart.Count()))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Subtle.Render("(Delivery and promo codes are applied at checkout)"))
	sb.WriteString("\n")

	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("↑/↓ select • +/- quantity • d delete • X empty cart • o checkout • s continue shopping • esc back"))

	return m.styles.Box.Render(sb.String())
}
