package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/cart"
	"github.com/thomas/lilyan-terminal-go/internal/catalog"
	"github.com/thomas/lilyan-terminal-go/internal/checkout"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
	"github.com/thomas/lilyan-terminal-go/internal/order"
	"github.com/thomas/lilyan-terminal-go/internal/schedule"
	"github.com/thomas/lilyan-terminal-go/internal/session"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

// ViewState represents the current view in the application.
type ViewState int

const (
	ViewProductList ViewState = iota
	ViewProductDetails
	ViewCart
	ViewFulfillment
	ViewSchedule
	ViewCustomer
	ViewReview
	ViewPayment
	ViewConfirmation
	ViewLogin
	ViewOrders
	ViewOrderDetails
)

// Deps are the per-session components driven by the model.
type Deps struct {
	Context  context.Context
	API      *api.Client
	Catalog  *catalog.Catalog
	Cities   order.CityFetcher
	Cart     *cart.Cart
	Orders   *order.Aggregator
	Schedule *schedule.Resolver
	Session  *session.Session
	Checkout *checkout.Handoff
	Lang     *i18n.State
	Store    storage.Store
	Logger   *log.Logger

	// PaymentPollEvery is how often a pending payment is checked.
	PaymentPollEvery time.Duration
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	deps   Deps
	ctx    context.Context
	logger *log.Logger

	// View state
	viewState ViewState
	width     int
	height    int
	styles    Styles
	spinner   spinner.Model

	// Product list view
	productList     list.Model
	products        []api.Product
	filter          catalog.Filter
	categoryIdx     int
	sortIdx         int
	ceilingIdx      int
	searchInput     textinput.Model
	showSearch      bool
	loadingProducts bool

	// Product details view
	selectedProduct *api.Product
	addForm         *addToCartForm

	// Cart view
	cartIdx int

	// Checkout steps share one active form.
	form          *huh.Form
	fulfillment   *fulfillmentForm
	slot          *scheduleForm
	customer      *customerForm
	loadingCities bool

	// Review
	promoInput    textinput.Model
	showPromo     bool
	checkingPromo bool
	promoNotice   string
	paying        bool

	// Payment
	payment    *checkout.Result
	awaitCtx   context.Context
	stopAwait  context.CancelFunc
	confirmed  *api.Order
	cancelling bool

	// Account
	login         *loginForm
	afterLogin    ViewState
	orders        []api.Order
	ordersIdx     int
	loadingOrders bool

	notice string
	err    error
}

// Messages
type (
	productsLoadedMsg struct {
		products []api.Product
	}
	citiesLoadedMsg struct {
		err error
	}
	promoCheckedMsg struct {
		result order.PromoResult
	}
	paymentStartedMsg struct {
		result *checkout.Result
	}
	paymentFailedMsg struct {
		err error
	}
	paymentConfirmedMsg struct {
		order *api.Order
	}
	paymentWaitEndedMsg struct {
		err error
	}
	orderCancelledMsg struct {
		id  string
		err error
	}
	ordersLoadedMsg struct {
		orders []api.Order
	}
	authDoneMsg struct {
		err error
	}
	loggedOutMsg struct {
		err error
	}
	errMsg struct {
		err error
	}
)

// NewModel creates a model for one session. A payment left pending by an
// earlier connection is resumed.
func NewModel(deps Deps) Model {
	styles := DefaultStyles()

	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorRose)

	search := textinput.New()
	search.Placeholder = "Search flowers..."
	search.CharLimit = 50
	search.Width = 30

	promo := textinput.New()
	promo.Placeholder = "PROMO CODE"
	promo.CharLimit = 32
	promo.Width = 20

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(colorHighlight).
		BorderLeftForeground(colorHighlight)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(colorBlush).
		BorderLeftForeground(colorHighlight)

	productList := list.New([]list.Item{}, delegate, 0, 0)
	productList.Title = "Lilyan Flowers"
	productList.SetShowHelp(false)
	productList.SetFilteringEnabled(false)
	productList.Styles.Title = styles.ListTitle

	m := Model{
		deps:        deps,
		ctx:         ctx,
		logger:      logger.WithPrefix("tui"),
		viewState:   ViewProductList,
		styles:      styles,
		spinner:     sp,
		productList: productList,
		filter:      catalog.DefaultFilter(),
		searchInput: search,
		promoInput:  promo,

		loadingProducts: true,
		loadingCities:   true,
	}

	if id := deps.Checkout.PendingOrder(); id != "" {
		m.viewState = ViewPayment
		m.payment = &checkout.Result{OrderID: id}
		m.awaitCtx, m.stopAwait = context.WithCancel(ctx)
	}
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.loadProducts(false), m.loadCities()}
	if m.awaitCtx != nil && m.payment != nil {
		cmds = append(cmds, m.awaitPayment(m.awaitCtx, m.payment.OrderID))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.productList.SetSize(msg.Width-4, msg.Height-8)
		if m.form != nil {
			m.form = m.form.WithWidth(m.formWidth())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case productsLoadedMsg:
		m.loadingProducts = false
		m.products = msg.products
		m.refreshProductList()

	case citiesLoadedMsg:
		m.loadingCities = false
		if msg.err != nil {
			m.logger.Warn("loading delivery areas", "err", msg.err)
		}
		if m.viewState == ViewFulfillment && m.fulfillment != nil {
			// Rebuild so the city options reflect the table.
			cmds = append(cmds, m.initFulfillmentForm())
		}

	case promoCheckedMsg:
		m.checkingPromo = false
		m.promoNotice = msg.result.Message
		if msg.result.Status == order.PromoApplied {
			m.promoNotice = fmt.Sprintf("%s applied: %s%% off", msg.result.Code, msg.result.Percent.String())
			m.showPromo = false
			m.promoInput.Blur()
			m.promoInput.SetValue("")
		}

	case paymentStartedMsg:
		m.paying = false
		m.payment = msg.result
		m.viewState = ViewPayment
		m.awaitCtx, m.stopAwait = context.WithCancel(m.ctx)
		cmds = append(cmds, m.awaitPayment(m.awaitCtx, msg.result.OrderID))

	case paymentFailedMsg:
		m.paying = false
		m.handlePaymentFailure(msg.err)

	case paymentConfirmedMsg:
		m.awaitCtx, m.stopAwait = nil, nil
		m.confirmed = msg.order
		m.payment = nil
		m.cartIdx = 0
		m.viewState = ViewConfirmation

	case paymentWaitEndedMsg:
		if !errors.Is(msg.err, context.Canceled) {
			m.err = msg.err
		}

	case orderCancelledMsg:
		m.cancelling = false
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.notice = fmt.Sprintf("Order #%s cancelled", (api.Order{ID: msg.id}).ShortID())
		switch m.viewState {
		case ViewPayment:
			m.payment = nil
			m.viewState = ViewCart
		case ViewOrders, ViewOrderDetails:
			m.viewState = ViewOrders
			m.loadingOrders = true
			cmds = append(cmds, m.loadOrders())
		}

	case ordersLoadedMsg:
		m.loadingOrders = false
		m.orders = msg.orders
		if m.ordersIdx >= len(m.orders) {
			m.ordersIdx = 0
		}

	case authDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			cmds = append(cmds, m.initLoginForm())
			break
		}
		m.err = nil
		m.form, m.login = nil, nil
		model, cmd := m.enter(m.afterLogin)
		return model, tea.Batch(append(cmds, cmd)...)

	case loggedOutMsg:
		if msg.err != nil {
			m.logger.Warn("logout", "err", msg.err)
		}
		m.orders = nil
		m.notice = "Signed out"
		m.viewState = ViewProductList

	case errMsg:
		m.err = msg.err
		m.loadingProducts = false
		m.loadingOrders = false
		m.checkingPromo = false
		m.paying = false
		m.cancelling = false
	}

	if m.form != nil {
		var cmd tea.Cmd
		m, cmd = m.updateForm(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	switch key {
	case "ctrl+c":
		if m.stopAwait != nil {
			m.stopAwait()
		}
		return m, tea.Quit
	case "q":
		if m.viewState == ViewProductList && !m.showSearch {
			return m, tea.Quit
		}
	}

	switch m.viewState {
	case ViewProductList:
		return m.handleProductListKeys(msg)
	case ViewProductDetails:
		return m.handleProductDetailsKeys(msg)
	case ViewCart:
		return m.handleCartKeys(msg)
	case ViewFulfillment, ViewSchedule, ViewCustomer, ViewLogin:
		return m.handleFormKeys(msg)
	case ViewReview:
		return m.handleReviewKeys(msg)
	case ViewPayment:
		return m.handlePaymentKeys(msg)
	case ViewConfirmation:
		return m.handleConfirmationKeys(msg)
	case ViewOrders:
		return m.handleOrdersKeys(msg)
	case ViewOrderDetails:
		return m.handleOrderDetailsKeys(msg)
	}

	return m, nil
}

// handleFormKeys routes keys for the form-driven steps.
func (m Model) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.back()
	case "ctrl+r":
		if m.viewState == ViewFulfillment && !m.loadingCities {
			m.loadingCities = true
			return m, m.loadCities()
		}
	}
	if m.form == nil {
		return m, nil
	}
	return m.updateForm(msg)
}

// updateForm advances the active form and runs its submit step once it
// completes.
func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.form = nil
		next, submitCmd := m.submitForm()
		return next, tea.Batch(cmd, submitCmd)
	case huh.StateAborted:
		m.form = nil
		model, backCmd := m.back()
		return model.(Model), tea.Batch(cmd, backCmd)
	}
	return m, cmd
}

func (m Model) submitForm() (Model, tea.Cmd) {
	switch m.viewState {
	case ViewProductDetails:
		return m.submitAddToCart()
	case ViewFulfillment:
		return m.submitFulfillment()
	case ViewSchedule:
		return m.submitSchedule()
	case ViewCustomer:
		return m.submitCustomer()
	case ViewLogin:
		return m.submitLogin()
	}
	return m, nil
}

// back returns to the previous step.
func (m Model) back() (tea.Model, tea.Cmd) {
	m.err = nil
	switch m.viewState {
	case ViewProductDetails:
		if m.form != nil {
			m.form, m.addForm = nil, nil
			return m, nil
		}
		m.selectedProduct = nil
		m.viewState = ViewProductList
	case ViewCart, ViewConfirmation, ViewLogin, ViewOrders:
		m.form = nil
		m.viewState = ViewProductList
	case ViewFulfillment:
		m.form = nil
		m.viewState = ViewCart
	case ViewSchedule:
		m.viewState = ViewFulfillment
		cmd := m.initFulfillmentForm()
		return m, cmd
	case ViewCustomer:
		m.viewState = ViewSchedule
		cmd := m.initScheduleForm()
		return m, cmd
	case ViewReview:
		m.viewState = ViewCustomer
		cmd := m.initCustomerForm()
		return m, cmd
	case ViewOrderDetails:
		m.viewState = ViewOrders
	}
	return m, nil
}

// enter switches to view, preparing whatever it needs.
func (m Model) enter(view ViewState) (Model, tea.Cmd) {
	m.err = nil
	switch view {
	case ViewOrders:
		if err := m.deps.Session.RequireIdentity(); err != nil {
			m.afterLogin = ViewOrders
			m.viewState = ViewLogin
			cmd := m.initLoginForm()
			return m, cmd
		}
		m.viewState = ViewOrders
		m.loadingOrders = true
		return m, m.loadOrders()
	case ViewLogin:
		m.afterLogin = ViewProductList
		m.viewState = ViewLogin
		cmd := m.initLoginForm()
		return m, cmd
	case ViewFulfillment:
		m.deps.Orders.SetItems(m.deps.Cart.Items())
		m.viewState = ViewFulfillment
		cmd := m.initFulfillmentForm()
		return m, cmd
	case ViewReview:
		m.viewState = ViewReview
		m.promoNotice = ""
		return m, nil
	}
	m.viewState = view
	return m, nil
}

// setForm installs f as the active form and returns its init command.
func (m *Model) setForm(f *huh.Form) tea.Cmd {
	m.form = f.WithShowHelp(true).WithShowErrors(true).WithWidth(m.formWidth())
	return m.form.Init()
}

func (m Model) formWidth() int {
	w := m.width - 10
	if w <= 0 || w > 72 {
		w = 72
	}
	return w
}

func (m Model) lang() i18n.Lang {
	if m.deps.Lang == nil {
		return i18n.English
	}
	return m.deps.Lang.Lang()
}

// syncDraft copies the cart lines into the order draft.
func (m Model) syncDraft() {
	m.deps.Orders.SetItems(m.deps.Cart.Items())
}

// View renders the current view.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var content string

	switch m.viewState {
	case ViewProductList:
		content = m.viewProductList()
	case ViewProductDetails:
		content = m.viewProductDetails()
	case ViewCart:
		content = m.viewCart()
	case ViewFulfillment:
		content = m.viewFulfillment()
	case ViewSchedule:
		content = m.viewSchedule()
	case ViewCustomer:
		content = m.viewCustomer()
	case ViewReview:
		content = m.viewReview()
	case ViewPayment:
		content = m.viewPayment()
	case ViewConfirmation:
		content = m.viewConfirmation()
	case ViewLogin:
		content = m.viewLogin()
	case ViewOrders:
		content = m.viewOrders()
	case ViewOrderDetails:
		content = m.viewOrderDetails()
	}

	return m.styles.App.Render(content)
}

// header renders a view title with an optional step marker.
func (m Model) header(title, step string) string {
	var sb strings.Builder
	sb.WriteString(m.styles.HeaderTitle.Render(title))
	if step != "" {
		sb.WriteString("  ")
		sb.WriteString(m.styles.Step.Render(step))
	}
	sb.WriteString("\n\n")
	return sb.String()
}

// status renders the pending error and notice lines.
func (m Model) status() string {
	var sb strings.Builder
	if m.err != nil {
		sb.WriteString(m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err)))
		sb.WriteString("\n\n")
	}
	if m.notice != "" {
		sb.WriteString(m.styles.Success.Render(m.notice))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func formatMoney(d decimal.Decimal) string {
	return "KWD " + d.StringFixed(order.Places)
}

// GetSelectedProduct returns the currently selected product (for testing).
func (m Model) GetSelectedProduct() *api.Product {
	return m.selectedProduct
}

// GetViewState returns the current view state (for testing).
func (m Model) GetViewState() ViewState {
	return m.viewState
}
