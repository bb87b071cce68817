// Package catalog loads the product list and derives the browse view from it.
package catalog

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/cache"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
)

const productsKey = "products"

// Fetcher loads products from the backend.
type Fetcher interface {
	ListProducts(ctx context.Context) ([]api.Product, error)
}

// Catalog is a read-only view of the backend product list, shared through
// a TTL cache so concurrent sessions do not each hit the backend.
type Catalog struct {
	fetcher Fetcher
	cache   *cache.Cache[string, []api.Product]
	logger  *log.Logger
}

// New creates a catalog. A nil cache disables sharing.
func New(fetcher Fetcher, c *cache.Cache[string, []api.Product], logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.Default()
	}
	if c == nil {
		c = cache.New[string, []api.Product](0)
	}
	return &Catalog{fetcher: fetcher, cache: c, logger: logger.WithPrefix("catalog")}
}

// Load returns all products, unavailable ones included.
func (c *Catalog) Load(ctx context.Context) ([]api.Product, error) {
	return c.cache.Fetch(productsKey, func() ([]api.Product, error) {
		products, err := c.fetcher.ListProducts(ctx)
		if err != nil {
			c.logger.Error("loading products", "err", err)
			return nil, err
		}
		c.logger.Debug("loaded products", "count", len(products))
		return products, nil
	})
}

// Refresh drops the cached list and loads it again.
func (c *Catalog) Refresh(ctx context.Context) ([]api.Product, error) {
	c.cache.Invalidate(productsKey)
	return c.Load(ctx)
}

// Find returns the product with id.
func Find(products []api.Product, id string) (api.Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return api.Product{}, false
}

// ============================================
// Categories
// ============================================

// AllCategories is the key of the catch-all category.
const AllCategories = "all"

// Category is a browse category derived from product data.
type Category struct {
	Key   string
	Label i18n.Text
}

var (
	spaces   = regexp.MustCompile(`\s+`)
	nonSlug  = regexp.MustCompile(`[^a-z0-9-]`)
	uncatKey = "uncategorized"
)

// Slug turns a category name into its key.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = spaces.ReplaceAllString(s, "-")
	return nonSlug.ReplaceAllString(s, "")
}

// CategoryKey returns the explicit key of p, or the slug of its English category.
func CategoryKey(p api.Product) string {
	if p.CategoryKey != "" {
		return p.CategoryKey
	}
	return Slug(p.Category.En)
}

// Categories returns "all" followed by one entry per category, ordered by
// the creation date of the oldest product in each.
func Categories(products []api.Product) []Category {
	type group struct {
		cat   Category
		first api.Product
	}
	groups := map[string]*group{}

	for _, p := range products {
		key := CategoryKey(p)
		if key == "" || key == uncatKey {
			continue
		}
		g, ok := groups[key]
		if !ok {
			groups[key] = &group{cat: Category{Key: key, Label: p.Category}, first: p}
			continue
		}
		if p.CreatedAt.Before(g.first.CreatedAt) {
			g.first = p
			g.cat.Label = p.Category
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		if g.cat.Label.IsZero() {
			g.cat.Label = i18n.Text{En: strings.ReplaceAll(g.cat.Key, "-", " ")}
		}
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i].first.CreatedAt, ordered[j].first.CreatedAt
		if a.Equal(b) {
			return ordered[i].cat.Key < ordered[j].cat.Key
		}
		return a.Before(b)
	})

	cats := []Category{{Key: AllCategories, Label: i18n.Text{En: "All", Ar: "الكل"}}}
	for _, g := range ordered {
		cats = append(cats, g.cat)
	}
	return cats
}
