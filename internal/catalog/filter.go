package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
)

// NoPriceCeiling is the slider maximum; at or above it no price filter applies.
const NoPriceCeiling = 150

// Sort kinds and directions.
const (
	SortPrice = "price"
	SortName  = "name"
	SortDate  = "date"

	Asc    = "asc"
	Desc   = "desc"
	Newest = "newest"
	Oldest = "oldest"
)

// Sort selects an ordering. A zero Sort keeps backend order.
type Sort struct {
	Type  string
	Value string
}

// Filter is the transient browse selection.
type Filter struct {
	Sort         Sort
	Category     string
	PriceCeiling int
	Query        string
}

// DefaultFilter returns the cleared filter.
func DefaultFilter() Filter {
	return Filter{PriceCeiling: NoPriceCeiling}
}

// Active reports whether any criterion differs from the default.
func (f Filter) Active() bool {
	return f.Sort.Type != "" || (f.Category != "" && f.Category != AllCategories) ||
		f.hasCeiling() || strings.TrimSpace(f.Query) != ""
}

func (f Filter) hasCeiling() bool {
	return f.PriceCeiling > 0 && f.PriceCeiling < NoPriceCeiling
}

// ToggleCategory selects key, or clears the category when key is already selected.
func (f *Filter) ToggleCategory(key string) {
	if f.Category == key {
		f.Category = ""
		return
	}
	f.Category = key
}

// Apply returns the available products matching f, sorted. The input is not modified.
func (f Filter) Apply(products []api.Product, lang i18n.Lang) []api.Product {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	ceiling := decimal.NewFromInt(int64(f.PriceCeiling))

	result := make([]api.Product, 0, len(products))
	for _, p := range products {
		if !p.IsAvailable() {
			continue
		}
		if f.Category != "" && f.Category != AllCategories && CategoryKey(p) != f.Category {
			continue
		}
		if f.hasCeiling() && p.EffectivePrice().GreaterThan(ceiling) {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		result = append(result, p)
	}

	if less := f.less(lang); less != nil {
		sort.SliceStable(result, func(i, j int) bool { return less(result[i], result[j]) })
	}
	return result
}

func (f Filter) less(lang i18n.Lang) func(a, b api.Product) bool {
	switch f.Sort.Type {
	case SortPrice:
		if f.Sort.Value == Desc {
			return func(a, b api.Product) bool { return a.EffectivePrice().GreaterThan(b.EffectivePrice()) }
		}
		return func(a, b api.Product) bool { return a.EffectivePrice().LessThan(b.EffectivePrice()) }
	case SortName:
		coll := i18n.Collator(lang)
		desc := f.Sort.Value == Desc
		return func(a, b api.Product) bool {
			c := coll.CompareString(a.Name.Pick(lang), b.Name.Pick(lang))
			if desc {
				return c > 0
			}
			return c < 0
		}
	case SortDate:
		if f.Sort.Value == Oldest {
			return func(a, b api.Product) bool { return a.CreatedAt.Before(b.CreatedAt) }
		}
		return func(a, b api.Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	return nil
}

func matchesQuery(p api.Product, q string) bool {
	for _, s := range []string{p.Name.En, p.Name.Ar, p.Category.En, p.Category.Ar} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}
