package order

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/cache"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
)

// CityFetcher loads delivery cities with their areas.
type CityFetcher interface {
	ListCityAreas(ctx context.Context) ([]api.City, error)
}

// cachedCities shares one city list between sessions.
type cachedCities struct {
	next  CityFetcher
	cache *cache.Cache[string, []api.City]
}

// CachedCities wraps f so loads go through c.
func CachedCities(f CityFetcher, c *cache.Cache[string, []api.City]) CityFetcher {
	return cachedCities{next: f, cache: c}
}

func (c cachedCities) ListCityAreas(ctx context.Context) ([]api.City, error) {
	return c.cache.Fetch("city-areas", func() ([]api.City, error) {
		return c.next.ListCityAreas(ctx)
	})
}

// LoadStatus is the state of the reference table.
type LoadStatus int

const (
	NotLoaded LoadStatus = iota
	Loading
	Ready
	Failed
)

func (s LoadStatus) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "not loaded"
}

// AreaEntry is an active delivery area.
type AreaEntry struct {
	Key           string
	Name          i18n.Text
	ShippingPrice decimal.Decimal
}

// CityEntry is an active delivery city.
type CityEntry struct {
	Key   string
	Name  i18n.Text
	Areas []AreaEntry
}

// AreaTable is the city and area reference data used to price delivery.
// Only active cities and areas are kept.
type AreaTable struct {
	mu     sync.RWMutex
	status LoadStatus
	err    error
	cities []CityEntry
}

// NewAreaTable returns an empty table.
func NewAreaTable() *AreaTable {
	return &AreaTable{}
}

// NewAreaTableFrom builds a ready table from cities.
func NewAreaTableFrom(cities []api.City) *AreaTable {
	t := &AreaTable{}
	t.set(cities)
	return t
}

// Load fetches the reference data. On failure the table is marked Failed
// and previously loaded entries are dropped.
func (t *AreaTable) Load(ctx context.Context, f CityFetcher) error {
	t.mu.Lock()
	t.status = Loading
	t.err = nil
	t.mu.Unlock()

	cities, err := f.ListCityAreas(ctx)
	if err != nil {
		t.mu.Lock()
		t.status = Failed
		t.err = err
		t.cities = nil
		t.mu.Unlock()
		return fmt.Errorf("loading delivery areas: %w", err)
	}
	t.set(cities)
	return nil
}

func (t *AreaTable) set(cities []api.City) {
	entries := make([]CityEntry, 0, len(cities))
	for _, c := range cities {
		if !c.Active() {
			continue
		}
		ce := CityEntry{Key: c.Key, Name: c.Name}
		for _, a := range c.Areas {
			if !a.Active() {
				continue
			}
			price := a.ShippingPrice
			if price.IsNegative() {
				price = decimal.Zero
			}
			ce.Areas = append(ce.Areas, AreaEntry{Key: a.ID, Name: a.Name, ShippingPrice: price})
		}
		entries = append(entries, ce)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cities = entries
	t.status = Ready
	t.err = nil
}

// Status returns the load state and the last load error.
func (t *AreaTable) Status() (LoadStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status, t.err
}

// Loaded reports whether lookups can be trusted.
func (t *AreaTable) Loaded() bool {
	s, _ := t.Status()
	return s == Ready
}

// Cities returns the active cities.
func (t *AreaTable) Cities() []CityEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]CityEntry(nil), t.cities...)
}

// AreasFor returns the active areas of city, or nil.
func (t *AreaTable) AreasFor(city string) []AreaEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c := t.city(city); c != nil {
		return append([]AreaEntry(nil), c.Areas...)
	}
	return nil
}

// Lookup resolves a city and area. Either may be given as key or as a
// localized name.
func (t *AreaTable) Lookup(city, area string) (AreaEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c := t.city(city)
	if c == nil {
		return AreaEntry{}, false
	}
	for _, a := range c.Areas {
		if a.Key == area || a.Name.Matches(area) {
			return a, true
		}
	}
	return AreaEntry{}, false
}

// CityName returns the localized name of city, or the key itself.
func (t *AreaTable) CityName(city string, lang i18n.Lang) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c := t.city(city); c != nil {
		return c.Name.PickOr(lang, c.Key)
	}
	return city
}

// city must be called with mu held.
func (t *AreaTable) city(key string) *CityEntry {
	if key == "" {
		return nil
	}
	for i := range t.cities {
		if t.cities[i].Key == key || t.cities[i].Name.Matches(key) {
			return &t.cities[i]
		}
	}
	return nil
}
