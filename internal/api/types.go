package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/i18n"
)

// ============================================
// Catalog Types
// ============================================

// Product is a catalog entry as returned by GET /api/products.
type Product struct {
	ID          string          `json:"_id"`
	Name        i18n.Text       `json:"name"`
	Description i18n.Text       `json:"description"`
	Category    i18n.Text       `json:"category"`
	CategoryKey string          `json:"categoryKey,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ActualPrice decimal.Decimal `json:"actualPrice"`
	Images      []string        `json:"images,omitempty"`
	Available   *bool           `json:"isAvailable,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// EffectivePrice returns the sale price when set, else the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.ActualPrice.IsPositive() {
		return p.ActualPrice
	}
	return p.Price
}

// IsAvailable treats a missing flag as available.
func (p Product) IsAvailable() bool {
	return p.Available == nil || *p.Available
}

// Image returns the first image or "".
func (p Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type productList struct {
	Data []Product `json:"data"`
}

// ============================================
// Reference Data Types
// ============================================

// City is a delivery city with its areas.
type City struct {
	ID       string    `json:"_id,omitempty"`
	Key      string    `json:"key"`
	Name     i18n.Text `json:"name"`
	IsActive *bool     `json:"isActive,omitempty"`
	Areas    []Area    `json:"areas"`
}

// Area is a delivery area. Areas are keyed by their backend ID.
type Area struct {
	ID            string          `json:"_id"`
	Name          i18n.Text       `json:"name"`
	ShippingPrice decimal.Decimal `json:"shippingPrice"`
	IsActive      *bool           `json:"isActive,omitempty"`
}

// Active reports whether the city is enabled; a missing flag means enabled.
func (c City) Active() bool { return c.IsActive == nil || *c.IsActive }

// Active reports whether the area is enabled; a missing flag means enabled.
func (a Area) Active() bool { return a.IsActive == nil || *a.IsActive }

type cityAreasResponse struct {
	Success bool   `json:"success"`
	Cities  []City `json:"cities"`
	Message string `json:"message,omitempty"`
}

// ============================================
// Promo Types
// ============================================

// Promo is a validated promo code.
type Promo struct {
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// PromoResponse is the body of POST /api/promos/validate.
type PromoResponse struct {
	Success bool   `json:"success"`
	Promo   *Promo `json:"promo,omitempty"`
	Message string `json:"message,omitempty"`
}

// ============================================
// Order Types
// ============================================

// LineItem is one product line of an order payload.
type LineItem struct {
	Product  string  `json:"product"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Message  string  `json:"message,omitempty"`
}

// ScheduleTime is the wire shape of a delivery slot.
type ScheduleTime struct {
	Date      string `json:"date"`
	TimeSlot  string `json:"timeSlot"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// UserInfo is the customer contact block.
type UserInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// ShippingAddress is sent only for delivery orders.
type ShippingAddress struct {
	City           string `json:"city"`
	Area           string `json:"area"`
	Street         string `json:"street"`
	Block          string `json:"block"`
	House          string `json:"house"`
	Landmark       string `json:"landmark,omitempty"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// OrderRequest is the body of POST /api/orders.
type OrderRequest struct {
	Products            []LineItem       `json:"products"`
	Subtotal            float64          `json:"subtotal"`
	DiscountAmount      float64          `json:"discountAmount"`
	ShippingCost        float64          `json:"shippingCost"`
	TotalAmount         float64          `json:"totalAmount"`
	PromoCode           string           `json:"promoCode,omitempty"`
	PromoDiscount       float64          `json:"promoDiscount"`
	OrderType           string           `json:"orderType"`
	ScheduleTime        *ScheduleTime    `json:"scheduleTime"`
	UserInfo            UserInfo         `json:"userInfo"`
	ShippingAddress     *ShippingAddress `json:"shippingAddress,omitempty"`
	SpecialInstructions string           `json:"specialInstructions,omitempty"`
	CustomerPhone       string           `json:"customerPhone"`
	CustomerEmail       string           `json:"customerEmail,omitempty"`
	PaymentMethod       string           `json:"paymentMethod,omitempty"`
}

// CreateOrderResponse carries the new order's identifier under one of
// several field names depending on backend version.
type CreateOrderResponse struct {
	OrderID string `json:"orderId,omitempty"`
	RawID   string `json:"_id,omitempty"`
	Data    *struct {
		OrderID string `json:"orderId,omitempty"`
		ID      string `json:"_id,omitempty"`
	} `json:"data,omitempty"`
}

// ID returns the first non-empty identifier.
func (r CreateOrderResponse) ID() string {
	switch {
	case r.OrderID != "":
		return r.OrderID
	case r.RawID != "":
		return r.RawID
	case r.Data != nil && r.Data.OrderID != "":
		return r.Data.OrderID
	case r.Data != nil:
		return r.Data.ID
	}
	return ""
}

// ProductRef is an order line's product, which the backend sends either as
// a bare ID or as a populated object.
type ProductRef struct {
	ID   string
	Name i18n.Text
}

// UnmarshalJSON accepts a string ID or a product object.
func (r *ProductRef) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		r.ID = id
		return nil
	}
	var obj struct {
		ID   string    `json:"_id"`
		Name i18n.Text `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.ID, r.Name = obj.ID, obj.Name
	return nil
}

// MarshalJSON writes the populated object form.
func (r ProductRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID   string    `json:"_id"`
		Name i18n.Text `json:"name"`
	}{r.ID, r.Name})
}

// OrderLine is a product line on a stored order.
type OrderLine struct {
	Product  ProductRef      `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Message  string          `json:"message,omitempty"`
}

// Order is a stored order as returned by the history endpoints.
type Order struct {
	ID              string           `json:"_id"`
	Status          string           `json:"status"`
	IsPaid          bool             `json:"isPaid"`
	Products        []OrderLine      `json:"products"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	DiscountAmount  decimal.Decimal  `json:"discountAmount"`
	ShippingCost    decimal.Decimal  `json:"shippingCost"`
	TotalAmount     decimal.Decimal  `json:"totalAmount"`
	PromoCode       string           `json:"promoCode,omitempty"`
	OrderType       string           `json:"orderType"`
	ScheduleTime    *ScheduleTime    `json:"scheduleTime,omitempty"`
	UserInfo        UserInfo         `json:"userInfo"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Order statuses the client acts on.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// EffectiveStatus returns the status, defaulting to paid.
func (o Order) EffectiveStatus() string {
	if o.Status == "" {
		return StatusPaid
	}
	return o.Status
}

// Cancellable reports whether the customer may still cancel the order.
func (o Order) Cancellable() bool {
	return o.EffectiveStatus() == StatusPending
}

// ShortID is the human-facing order number: last six characters, upper-case.
func (o Order) ShortID() string {
	id := o.ID
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return strings.ToUpper(id)
}

// ItemCount sums quantities over all lines.
func (o Order) ItemCount() int {
	n := 0
	for _, l := range o.Products {
		n += l.Quantity
	}
	return n
}

// ============================================
// Schedule & Payment Types
// ============================================

// ClosedStatus is the body of GET /api/admin/is-today-closed.
type ClosedStatus struct {
	IsClosed       bool `json:"isClosed"`
	ManuallyClosed bool `json:"manuallyClosed"`
}

// PaymentRequest is the body of POST /api/payment/<provider>.
type PaymentRequest struct {
	Amount        string        `json:"amount"`
	CustomerName  string        `json:"customerName"`
	CustomerEmail string        `json:"customerEmail"`
	Phone         string        `json:"phone"`
	PaymentMethod string        `json:"paymentMethod"`
	UserID        string        `json:"userId"`
	PromoCode     string        `json:"promoCode,omitempty"`
	PromoDiscount float64       `json:"promoDiscount"`
	OrderID       string        `json:"orderId"`
	OrderData     *OrderRequest `json:"orderData,omitempty"`
}

// PaymentResponse carries the provider redirect URL.
type PaymentResponse struct {
	IsSuccess  bool   `json:"isSuccess"`
	PaymentURL string `json:"paymentUrl"`
	Message    string `json:"message,omitempty"`
}

// ============================================
// User Types
// ============================================

// User is an authenticated or guest identity.
type User struct {
	ID      string `json:"_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	IsGuest bool   `json:"isGuest,omitempty"`
}

// Credentials is the login body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register body. MergeCart upgrades a guest account.
type Registration struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Password  string `json:"password"`
	MergeCart bool   `json:"mergeCart,omitempty"`
}

// AuthResponse is the envelope shared by the user endpoints.
type AuthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    struct {
		User  *User  `json:"user,omitempty"`
		Token string `json:"token,omitempty"`
	} `json:"data"`
}
