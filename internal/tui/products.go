package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/cart"
	"github.com/thomas/lilyan-terminal-go/internal/catalog"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
)

// Browse orderings, cycled with "s". The zero Sort keeps backend order.
var sortCycle = []catalog.Sort{
	{},
	{Type: catalog.SortPrice, Value: catalog.Asc},
	{Type: catalog.SortPrice, Value: catalog.Desc},
	{Type: catalog.SortName, Value: catalog.Asc},
	{Type: catalog.SortName, Value: catalog.Desc},
	{Type: catalog.SortDate, Value: catalog.Newest},
	{Type: catalog.SortDate, Value: catalog.Oldest},
}

// Price ceilings, cycled with "p".
var ceilingCycle = []int{catalog.NoPriceCeiling, 100, 75, 50, 25}

func sortLabel(s catalog.Sort) string {
	if s.Type == "" {
		return "featured"
	}
	return s.Type + " " + s.Value
}

// productItem implements list.Item for products.
type productItem struct {
	product api.Product
	lang    i18n.Lang
}

func (i productItem) Title() string {
	return i.product.Name.PickOr(i.lang, i.product.ID)
}

func (i productItem) Description() string {
	desc := formatMoney(i.product.EffectivePrice())
	if cat := i.product.Category.Pick(i.lang); cat != "" {
		desc += " • " + cat
	}
	return desc
}

func (i productItem) FilterValue() string {
	return i.product.Name.Pick(i.lang)
}

// addToCartForm is bound to the product details form.
type addToCartForm struct {
	Quantity int
	Message  string
}

func (m Model) handleProductListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.showSearch {
		switch key {
		case "enter":
			m.showSearch = false
			m.searchInput.Blur()
			m.filter.Query = m.searchInput.Value()
			m.refreshProductList()
			return m, nil
		case "esc":
			m.showSearch = false
			m.searchInput.Blur()
			m.searchInput.SetValue("")
			m.filter.Query = ""
			m.refreshProductList()
			return m, nil
		}
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	m.notice = ""
	switch key {
	case "/":
		m.showSearch = true
		m.searchInput.Focus()
		return m, textinput.Blink

	case "tab", "shift+tab":
		cats := catalog.Categories(m.products)
		if key == "tab" {
			m.categoryIdx = (m.categoryIdx + 1) % len(cats)
		} else {
			m.categoryIdx = (m.categoryIdx + len(cats) - 1) % len(cats)
		}
		m.filter.Category = cats[m.categoryIdx].Key
		m.refreshProductList()
		return m, nil

	case "s":
		m.sortIdx = (m.sortIdx + 1) % len(sortCycle)
		m.filter.Sort = sortCycle[m.sortIdx]
		m.refreshProductList()
		return m, nil

	case "p":
		m.ceilingIdx = (m.ceilingIdx + 1) % len(ceilingCycle)
		m.filter.PriceCeiling = ceilingCycle[m.ceilingIdx]
		m.refreshProductList()
		return m, nil

	case "x":
		m.filter = catalog.DefaultFilter()
		m.categoryIdx, m.sortIdx, m.ceilingIdx = 0, 0, 0
		m.searchInput.SetValue("")
		m.refreshProductList()
		return m, nil

	case "l":
		m.deps.Lang.Toggle()
		m.refreshProductList()
		return m, nil

	case "r":
		return m, m.loadProducts(true)

	case "c":
		m.viewState = ViewCart
		m.cartIdx = 0
		return m, nil

	case "o":
		return m.enter(ViewOrders)

	case "a":
		return m.enter(ViewLogin)

	case "enter":
		if item, ok := m.productList.SelectedItem().(productItem); ok {
			p := item.product
			m.selectedProduct = &p
			m.viewState = ViewProductDetails
			m.form, m.addForm = nil, nil
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.productList, cmd = m.productList.Update(msg)
	return m, cmd
}

func (m Model) handleProductDetailsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "esc" {
		return m.back()
	}
	if m.form != nil {
		return m.updateForm(msg)
	}

	switch key {
	case "backspace":
		return m.back()
	case "a", "enter":
		if m.selectedProduct != nil {
			cmd := m.initAddToCartForm()
			return m, cmd
		}
	}
	return m, nil
}

func (m *Model) initAddToCartForm() tea.Cmd {
	m.addForm = &addToCartForm{Quantity: 1}

	qty := make([]huh.Option[int], 0, 10)
	for i := 1; i <= 10; i++ {
		qty = append(qty, huh.NewOption(fmt.Sprintf("%d", i), i))
	}

	return m.setForm(huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Quantity").
				Options(qty...).
				Value(&m.addForm.Quantity),
			huh.NewText().
				Title("Gift message (optional)").
				CharLimit(200).
				Value(&m.addForm.Message),
		),
	))
}

func (m Model) submitAddToCart() (Model, tea.Cmd) {
	if m.selectedProduct == nil || m.addForm == nil {
		return m, nil
	}
	item := cart.FromProduct(*m.selectedProduct, m.addForm.Message)
	m.deps.Cart.Add(item, m.addForm.Quantity)
	m.syncDraft()

	m.notice = fmt.Sprintf("Added %s to your cart", item.Name.Pick(m.lang()))
	m.addForm = nil
	m.viewState = ViewCart
	m.cartIdx = m.deps.Cart.Len() - 1
	return m, nil
}

// refreshProductList re-applies the filter to the loaded products.
func (m *Model) refreshProductList() {
	lang := m.lang()
	visible := m.filter.Apply(m.products, lang)
	items := make([]list.Item, len(visible))
	for i, p := range visible {
		items[i] = productItem{product: p, lang: lang}
	}
	m.productList.SetItems(items)
}

func (m Model) loadProducts(refresh bool) tea.Cmd {
	return func() tea.Msg {
		load := m.deps.Catalog.Load
		if refresh {
			load = m.deps.Catalog.Refresh
		}
		products, err := load(m.ctx)
		if err != nil {
			return errMsg{err: fmt.Errorf("loading products: %w", err)}
		}
		return productsLoadedMsg{products: products}
	}
}

func (m Model) viewProductList() string {
	var sb strings.Builder
	lang := m.lang()

	header := m.styles.HeaderTitle.Render("Lilyan Flowers")
	header += m.styles.Subtle.Render(fmt.Sprintf("  [%s]", lang))
	if u := m.deps.Session.User(); u != nil {
		name := u.Name
		if m.deps.Session.IsGuest() || name == "" {
			name = "guest"
		}
		header += m.styles.Subtle.Render("  " + name)
	}
	sb.WriteString(m.styles.Header.Render(header))
	sb.WriteString("\n")

	if m.filter.Active() {
		cat := "all"
		if cats := catalog.Categories(m.products); m.categoryIdx < len(cats) {
			cat = cats[m.categoryIdx].Label.PickOr(lang, cats[m.categoryIdx].Key)
		}
		ceiling := "any price"
		if m.filter.PriceCeiling < catalog.NoPriceCeiling {
			ceiling = fmt.Sprintf("≤ %d", m.filter.PriceCeiling)
		}
		line := fmt.Sprintf("Category: %s • Sort: %s • Price: %s", cat, sortLabel(m.filter.Sort), ceiling)
		if q := strings.TrimSpace(m.filter.Query); q != "" {
			line += fmt.Sprintf(" • Search: %q", q)
		}
		sb.WriteString(m.styles.Highlight.Render(line))
		sb.WriteString("\n\n")
	}

	if m.showSearch {
		sb.WriteString("Search: ")
		sb.WriteString(m.searchInput.View())
		sb.WriteString("\n\n")
	}

	sb.WriteString(m.status())

	switch {
	case m.loadingProducts:
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Loading flowers...")
	case len(m.productList.Items()) == 0 && len(m.products) > 0:
		sb.WriteString(m.styles.Subtle.Render("No flowers match these filters (x to reset)"))
	default:
		sb.WriteString(m.productList.View())
	}

	cartInfo := ""
	if n := m.deps.Cart.Count(); n > 0 {
		cartInfo = fmt.Sprintf(" • cart: %d (%s)", n, formatMoney(m.deps.Cart.Total()))
	}
	help := "/ search • tab category • s sort • p price • x reset • l language • enter select • c cart • o orders • a account • q quit" + cartInfo
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render(help))

	return sb.String()
}

func (m Model) viewProductDetails() string {
	if m.selectedProduct == nil {
		return "No product selected"
	}

	var sb strings.Builder
	p := m.selectedProduct
	lang := m.lang()

	sb.WriteString(m.styles.ProductName.Render(p.Name.PickOr(lang, p.ID)))
	sb.WriteString("\n\n")

	if p.ActualPrice.IsPositive() && !p.ActualPrice.Equal(p.Price) {
		sb.WriteString(m.styles.ProductSalePrice.Render(formatMoney(p.ActualPrice)))
		sb.WriteString(" ")
		sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("(was %s)", formatMoney(p.Price))))
	} else {
		sb.WriteString(m.styles.ProductPrice.Render(formatMoney(p.Price)))
	}
	sb.WriteString("\n")

	if cat := p.Category.Pick(lang); cat != "" {
		sb.WriteString(m.styles.ProductCategory.Render(cat))
		sb.WriteString("\n")
	}

	if desc := catalog.PlainText(p.Description.Pick(lang)); desc != "" {
		sb.WriteString("\n")
		sb.WriteString(m.styles.ProductDescription.Render(desc))
		sb.WriteString("\n")
	}

	if img := p.Image(); img != "" {
		sb.WriteString(m.styles.Link.Render(img))
		sb.WriteString("\n")
	}

	if m.form != nil {
		sb.WriteString("\n")
		sb.WriteString(m.form.View())
		sb.WriteString("\n")
		sb.WriteString(m.styles.HelpBar.Render("esc cancel • tab navigate • enter confirm"))
		return m.styles.Box.Render(sb.String())
	}

	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("esc/backspace back • a/enter add to cart"))

	return m.styles.Box.Render(sb.String())
}
