// Package main implements a mock Lilyan storefront API for local development.
package main

import (
	"embed"
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
)

// sessionCookie carries guest sessions, which get no bearer token.
const sessionCookie = "jwt"

//go:embed testdata/*
var testdataFS embed.FS

// store is the mock backend state.
type store struct {
	mu       sync.Mutex
	orders   map[string]*api.Order
	owners   map[string]string // order id -> user id
	tokens   map[string]*api.User
	users    map[string]*api.User // by email
	promos   map[string]int       // remaining uses
	percents map[string]float64
	closed   bool
}

func main() {
	addr := getEnv("MOCKAPI_ADDR", ":18080")
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "mockapi"})

	products, err := testdataFS.ReadFile("testdata/products.json")
	if err != nil {
		logger.Fatal("Failed to load products.json", "err", err)
	}
	cities, err := testdataFS.ReadFile("testdata/city-areas.json")
	if err != nil {
		logger.Fatal("Failed to load city-areas.json", "err", err)
	}

	s := newStore(os.Getenv("MOCKAPI_CLOSED") == "1")

	logger.Info("Mock Lilyan API listening", "addr", addr)
	if err := http.ListenAndServe(addr, requestLogger(logger, s.routes(products, cities))); err != nil {
		logger.Fatal("Server error", "err", err)
	}
}

func newStore(closed bool) *store {
	return &store{
		orders:   make(map[string]*api.Order),
		owners:   make(map[string]string),
		tokens:   make(map[string]*api.User),
		users:    make(map[string]*api.User),
		promos:   map[string]int{"SPRING10": 100, "LILY20": 1},
		percents: map[string]float64{"SPRING10": 10, "LILY20": 20},
		closed:   closed,
	}
}

func (s *store) routes(products, cities []byte) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", raw(products))
	mux.HandleFunc("GET /api/city-areas", raw(cities))
	mux.HandleFunc("POST /api/promos/validate", s.handleValidatePromo)
	mux.HandleFunc("POST /api/promos/{code}/restore", s.handleRestorePromo)
	mux.HandleFunc("POST /api/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/orders/{id}", s.handleGetOrder)
	mux.HandleFunc("GET /api/orders/by-payment/{id}", s.handleGetOrder)
	mux.HandleFunc("GET /api/orders/by-invoice/{id}", s.handleGetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", s.handleDeleteOrder)
	mux.HandleFunc("GET /api/admin/is-today-closed", s.handleClosed)
	mux.HandleFunc("POST /api/payment/{provider}", s.handlePayment)
	mux.HandleFunc("GET /pay/{id}", s.handlePay)
	mux.HandleFunc("POST /api/users/login", s.handleLogin)
	mux.HandleFunc("POST /api/users/guest-login", s.handleGuestLogin)
	mux.HandleFunc("POST /api/users/register", s.handleRegister)
	mux.HandleFunc("POST /api/users/logout", s.handleLogout)
	return mux
}

func requestLogger(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func raw(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

// bearer returns the user behind the Authorization header or the session
// cookie, or nil.
func (s *store) bearer(r *http.Request) *api.User {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			return nil
		}
		token = c.Value
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[token]
}

// ============================================
// Promos
// ============================================

func (s *store) handleValidatePromo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(body.Code))

	s.mu.Lock()
	defer s.mu.Unlock()
	left, ok := s.promos[code]
	switch {
	case !ok:
		writeError(w, http.StatusNotFound, "Promo code not found")
	case left <= 0:
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Promo code usage limit reached"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"promo":   map[string]any{"code": code, "discountPercent": s.percents[code]},
		})
	}
}

func (s *store) handleRestorePromo(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.PathValue("code"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.promos[code]; !ok {
		writeError(w, http.StatusNotFound, "Promo code not found")
		return
	}
	s.promos[code]++
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ============================================
// Orders
// ============================================

func newObjectID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// orderFromRequest stores a submitted order as the history endpoints return it.
func orderFromRequest(req *api.OrderRequest) *api.Order {
	o := &api.Order{
		Status:          api.StatusPending,
		Subtotal:        decimal.NewFromFloat(req.Subtotal),
		DiscountAmount:  decimal.NewFromFloat(req.DiscountAmount),
		ShippingCost:    decimal.NewFromFloat(req.ShippingCost),
		TotalAmount:     decimal.NewFromFloat(req.TotalAmount),
		PromoCode:       req.PromoCode,
		OrderType:       req.OrderType,
		ScheduleTime:    req.ScheduleTime,
		UserInfo:        req.UserInfo,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       time.Now().UTC(),
	}
	for _, l := range req.Products {
		o.Products = append(o.Products, api.OrderLine{
			Product:  api.ProductRef{ID: l.Product},
			Quantity: l.Quantity,
			Price:    decimal.NewFromFloat(l.Price),
			Message:  l.Message,
		})
	}
	return o
}

func (s *store) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req api.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order")
		return
	}
	if len(req.Products) == 0 {
		writeError(w, http.StatusBadRequest, "order has no products")
		return
	}
	user := s.bearer(r)

	o := orderFromRequest(&req)
	o.ID = newObjectID()

	s.mu.Lock()
	defer s.mu.Unlock()
	if code := strings.ToUpper(req.PromoCode); code != "" {
		if s.promos[code] <= 0 {
			writeError(w, http.StatusBadRequest, "Promo code usage limit reached")
			return
		}
		s.promos[code]--
	}
	s.orders[o.ID] = o
	if user != nil {
		s.owners[o.ID] = user.ID
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]string{"_id": o.ID}})
}

func (s *store) handleListOrders(w http.ResponseWriter, r *http.Request) {
	user := s.bearer(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []api.Order{}
	for id, o := range s.orders {
		if s.owners[id] == user.ID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *store) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": o})
}

func (s *store) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	delete(s.orders, id)
	delete(s.owners, id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ============================================
// Schedule & Payment
// ============================================

func (s *store) handleClosed(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, api.ClosedStatus{IsClosed: s.closed, ManuallyClosed: s.closed})
}

func (s *store) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req api.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment request")
		return
	}
	s.mu.Lock()
	_, ok := s.orders[req.OrderID]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, api.PaymentResponse{Message: "unknown order"})
		return
	}
	writeJSON(w, http.StatusOK, api.PaymentResponse{
		IsSuccess:  true,
		PaymentURL: "http://" + r.Host + "/pay/" + req.OrderID,
	})
}

// handlePay stands in for the provider page: visiting it settles the order.
func (s *store) handlePay(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[r.PathValue("id")]
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}
	o.Status, o.IsPaid = api.StatusPaid, true
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Payment received. You can return to your terminal.\n"))
}

// ============================================
// Users
// ============================================

func (s *store) authenticated(w http.ResponseWriter, user *api.User) {
	token := uuid.NewString()
	s.tokens[token] = user
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/", HttpOnly: true})
	resp := api.AuthResponse{Status: "success"}
	resp.Data.User = user
	resp.Data.Token = token
	writeJSON(w, http.StatusOK, resp)
}

func (s *store) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[strings.ToLower(creds.Email)]
	if !ok || creds.Password == "" {
		writeJSON(w, http.StatusUnauthorized, api.AuthResponse{Status: "fail", Message: "Incorrect email or password"})
		return
	}
	s.authenticated(w, user)
}

func (s *store) handleGuestLogin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated(w, &api.User{ID: newObjectID(), Name: "Guest Customer", IsGuest: true})
}

func (s *store) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg api.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		writeJSON(w, http.StatusConflict, api.AuthResponse{Status: "fail", Message: "Email already registered"})
		return
	}
	user := &api.User{ID: newObjectID(), Name: reg.Name, Email: email, Phone: reg.Phone}
	s.users[email] = user
	s.authenticated(w, user)
}

func (s *store) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if c, err := r.Cookie(sessionCookie); err == nil {
		token = c.Value
	}
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
