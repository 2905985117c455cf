package usecase

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// expiresInDaysRegex matches the "<N> days" expiration text
var expiresInDaysRegex = regexp.MustCompile(`(?i)(\d+)\s*days?\b`)

// SearchConfig holds configuration for the search service
type SearchConfig struct {
	// Language drives the locale-aware name comparison of smart sort
	Language language.Tag
}

// SearchService filters and ranks the merged product view
type SearchService struct {
	lang language.Tag
}

// NewSearchService creates a new search service
func NewSearchService(config SearchConfig) *SearchService {
	lang := config.Language
	if lang == language.Und {
		lang = language.English
	}
	return &SearchService{lang: lang}
}

// DefaultFilters returns the filters of a fresh dashboard: everything,
// smart-sorted.
func DefaultFilters() domain.SearchFilters {
	return domain.SearchFilters{
		Query:      "",
		Status:     domain.StatusAll,
		Vendor:     "",
		PriceRange: domain.PriceRange{Min: 0, Max: math.Inf(1)},
		SortBy:     domain.SortSmart,
		SortOrder:  domain.SortDesc,
	}
}

// FilterProducts applies, in order: free-text, status, vendor and price
// range filters, then sorts. The input slice is not modified.
func (s *SearchService) FilterProducts(products []domain.ProductView, filters domain.SearchFilters) []domain.ProductView {
	filtered := make([]domain.ProductView, 0, len(products))

	query := strings.ToLower(strings.TrimSpace(filters.Query))
	vendor := strings.ToLower(filters.Vendor)
	status := filters.Status
	if status == "" {
		status = domain.StatusAll
	}
	priceRange := filters.PriceRange
	upper := priceRange.UpperBound()

	for _, p := range products {
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		if status != domain.StatusAll && string(p.Status) != status {
			continue
		}
		if vendor != "" && !strings.Contains(strings.ToLower(p.Vendor), vendor) {
			continue
		}
		if !priceRange.Unbounded() && (p.CurrentPrice < priceRange.Min || p.CurrentPrice > upper) {
			continue
		}
		filtered = append(filtered, p)
	}

	s.sortProducts(filtered, filters.SortBy, filters.SortOrder)
	return filtered
}

// matchesQuery is an OR across name, vendor, brand, color and capacity
func matchesQuery(p domain.ProductView, query string) bool {
	for _, field := range []string{p.Title, p.Vendor, p.Brand, p.Color, p.Capacity} {
		if field != "" && strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func (s *SearchService) sortProducts(products []domain.ProductView, sortBy domain.SortBy, order domain.SortOrder) {
	switch sortBy {
	case domain.SortName:
		sortByKey(products, order, func(p domain.ProductView) string { return strings.ToLower(p.Title) })
	case domain.SortVendor:
		sortByKey(products, order, func(p domain.ProductView) string { return strings.ToLower(p.Vendor) })
	case domain.SortPrice:
		sortByKey(products, order, func(p domain.ProductView) float64 { return p.CurrentPrice })
	case domain.SortSmart, "":
		s.smartSort(products)
	}
}

func sortByKey[K string | float64](products []domain.ProductView, order domain.SortOrder, key func(domain.ProductView) K) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := key(products[i]), key(products[j])
		if order == domain.SortAsc {
			return a < b
		}
		return a > b
	})
}

// smartSort ranks by deal status, then days until expiration (unknown last),
// then name. Sort order is ignored.
func (s *SearchService) smartSort(products []domain.ProductView) {
	collator := collate.New(s.lang, collate.IgnoreCase)

	type ranked struct {
		view domain.ProductView
		deal bool
		days float64
	}
	items := make([]ranked, len(products))
	for i, p := range products {
		items[i] = ranked{view: p, deal: IsDeal(p.CurrentPrice, targetOf(p)), days: DaysUntilExpiration(p.ExpiresIn)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.deal != b.deal {
			return a.deal
		}
		if a.days != b.days {
			return a.days < b.days
		}
		return collator.CompareString(a.view.Title, b.view.Title) < 0
	})

	for i := range items {
		products[i] = items[i].view
	}
}

// targetOf prefers the reconciled target and falls back to the product's own
func targetOf(p domain.ProductView) float64 {
	if p.EffectiveTargetPrice > 0 {
		return p.EffectiveTargetPrice
	}
	return p.TargetPrice
}

// DaysUntilExpiration parses "<N> days" expiration text. Missing or
// unparseable text is +Inf so it ranks last.
func DaysUntilExpiration(expiresIn string) float64 {
	m := expiresInDaysRegex.FindStringSubmatch(expiresIn)
	if m == nil {
		return math.Inf(1)
	}
	days, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.Inf(1)
	}
	return days
}

// UniqueVendors returns the sorted set of non-empty vendors
func UniqueVendors(products []domain.ProductView) []string {
	seen := make(map[string]struct{})
	vendors := make([]string, 0)
	for _, p := range products {
		if p.Vendor == "" {
			continue
		}
		if _, ok := seen[p.Vendor]; ok {
			continue
		}
		seen[p.Vendor] = struct{}{}
		vendors = append(vendors, p.Vendor)
	}
	sort.Strings(vendors)
	return vendors
}

// PriceRangeOf returns the floor/ceil price bounds of products, or {0, 1000}
// when there is nothing to measure.
func PriceRangeOf(products []domain.ProductView) domain.PriceRange {
	if len(products) == 0 {
		return domain.PriceRange{Min: 0, Max: 1000}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range products {
		lo = math.Min(lo, p.CurrentPrice)
		hi = math.Max(hi, p.CurrentPrice)
	}
	return domain.PriceRange{Min: math.Floor(lo), Max: math.Ceil(hi)}
}

// FilterDebouncer coalesces rapid filter edits and hands only the settled
// filter set to onSettle.
type FilterDebouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	current  domain.SearchFilters
	timer    *time.Timer
	gen      uint64
	onSettle func(domain.SearchFilters)
}

// NewFilterDebouncer creates a debouncer starting from initial. A zero delay
// defaults to 300ms.
func NewFilterDebouncer(initial domain.SearchFilters, delay time.Duration, onSettle func(domain.SearchFilters)) *FilterDebouncer {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &FilterDebouncer{delay: delay, current: initial, onSettle: onSettle}
}

// Update applies edit to the pending filters and restarts the delay
func (d *FilterDebouncer) Update(edit func(*domain.SearchFilters)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	edit(&d.current)
	d.gen++
	gen := d.gen
	snapshot := d.current
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		stale := gen != d.gen
		d.mu.Unlock()
		if !stale {
			d.onSettle(snapshot)
		}
	})
}

// Reset replaces the filters and settles immediately
func (d *FilterDebouncer) Reset(filters domain.SearchFilters) {
	d.mu.Lock()
	d.current = filters
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.onSettle(filters)
}

// Current returns the latest, possibly unsettled, filters
func (d *FilterDebouncer) Current() domain.SearchFilters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Stop cancels any pending settle
func (d *FilterDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
}
