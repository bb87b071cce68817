// Package cart holds the pre-checkout item selection for one session.
//
// The cart is the authoritative record of what the customer intends to buy
// until checkout copies it into an order draft. Every mutation persists a
// snapshot so the selection survives reconnects.
package cart

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

// Item is one cart line. Identity is by ID.
type Item struct {
	ID       string          `json:"_id"`
	Name     i18n.Text       `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Message  string          `json:"message,omitempty"`
	Image    string          `json:"image,omitempty"`
}

// LineTotal returns price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// FromProduct builds a cart line for p at its effective price.
func FromProduct(p api.Product, message string) Item {
	return Item{
		ID:      p.ID,
		Name:    p.Name,
		Price:   p.EffectivePrice(),
		Message: strings.TrimSpace(message),
		Image:   p.Image(),
	}
}

// Cart is a persisted, mutex-guarded list of items.
type Cart struct {
	mu     sync.RWMutex
	items  []Item
	store  storage.Store
	logger *log.Logger
}

// New hydrates a cart from store. Missing or corrupt data yields an empty cart.
func New(store storage.Store, logger *log.Logger) *Cart {
	if logger == nil {
		logger = log.Default()
	}
	c := &Cart{store: store, logger: logger.WithPrefix("cart")}

	raw, err := store.Get(storage.KeyCart)
	if err != nil {
		return c
	}
	items, err := decodeSnapshot(raw)
	if err != nil {
		c.logger.Warn("discarding unreadable cart", "err", err)
		return c
	}
	c.items = items
	return c
}

// ============================================
// Mutations
// ============================================

// Add appends item, or increases the quantity of an existing line with the
// same ID. Non-positive quantities count as 1.
func (c *Cart) Add(item Item, qty int) {
	if qty <= 0 {
		qty = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(item.ID); i >= 0 {
		c.items[i].Quantity += qty
		if item.Message != "" {
			c.items[i].Message = item.Message
		}
	} else {
		item.Quantity = qty
		c.items = append(c.items, item)
	}
	c.persist()
}

// Remove deletes the line with id. Missing ids are ignored.
func (c *Cart) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(id); i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
		c.persist()
	}
}

// Increase adds one to the line's quantity.
func (c *Cart) Increase(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(id); i >= 0 {
		c.items[i].Quantity++
		c.persist()
	}
}

// Decrease subtracts one; a line reaching zero is removed.
func (c *Cart) Decrease(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(id)
	if i < 0 {
		return
	}
	c.items[i].Quantity--
	if c.items[i].Quantity <= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
	c.persist()
}

// SetMessage replaces the gift note of a line.
func (c *Cart) SetMessage(id, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(id); i >= 0 {
		c.items[i].Message = strings.TrimSpace(msg)
		c.persist()
	}
}

// Clear empties the cart and removes the stored snapshot.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	if err := c.store.Delete(storage.KeyCart); err != nil {
		c.logger.Warn("clearing stored cart", "err", err)
	}
}

// ============================================
// Queries
// ============================================

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Item(nil), c.items...)
}

// Get returns the line with id.
func (c *Cart) Get(id string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	return Item{}, false
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Count returns the total quantity across lines.
func (c *Cart) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c.Len() == 0
}

// Total sums price times quantity. It is recomputed on every call.
func (c *Cart) Total() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// ============================================
// Persistence
// ============================================

// index must be called with mu held.
func (c *Cart) index(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (c *Cart) persist() {
	if err := storage.Save(c.store, storage.KeyCart, c.items); err != nil {
		c.logger.Warn("persisting cart", "err", err)
	}
}

// storedItem decodes price and quantity leniently: snapshots written by
// older clients may hold strings or garbage there.
type storedItem struct {
	ID       string          `json:"_id"`
	LegacyID string          `json:"id"`
	Name     json.RawMessage `json:"name"`
	Price    json.RawMessage `json:"price"`
	Quantity json.RawMessage `json:"quantity"`
	Message  string          `json:"message"`
	Image    string          `json:"image"`
}

// maxStoredQuantity bounds snapshot quantities so the int conversion cannot
// wrap on any platform.
var maxStoredQuantity = decimal.NewFromInt(math.MaxInt32)

func decodeSnapshot(raw []byte) ([]Item, error) {
	var stored []storedItem
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(stored))
	for _, s := range stored {
		id := s.ID
		if id == "" {
			id = s.LegacyID
		}
		n := lenientNumber(s.Quantity)
		if id == "" || n.GreaterThan(maxStoredQuantity) {
			continue
		}
		qty := int(n.IntPart())
		if qty <= 0 {
			continue
		}
		items = append(items, Item{
			ID:       id,
			Name:     lenientText(s.Name),
			Price:    lenientNumber(s.Price),
			Quantity: qty,
			Message:  s.Message,
			Image:    s.Image,
		})
	}
	return items, nil
}

func lenientNumber(raw json.RawMessage) decimal.Decimal {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return decimal.Zero
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func lenientText(raw json.RawMessage) i18n.Text {
	var t i18n.Text
	if json.Unmarshal(raw, &t) == nil {
		return t
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return i18n.Text{En: s}
	}
	return i18n.Text{}
}
