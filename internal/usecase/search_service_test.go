package usecase

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func view(id int64, title string, current, target float64, expiresIn string) domain.ProductView {
	return domain.ProductView{
		Product: domain.Product{
			ID:           domain.ProductID(id),
			Title:        title,
			CurrentPrice: current,
			TargetPrice:  target,
			ExpiresIn:    expiresIn,
			Status:       domain.ProductStatusTracking,
		},
	}
}

func titles(views []domain.ProductView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Title
	}
	return out
}

func sampleViews() []domain.ProductView {
	a := view(1, "MacBook Pro", 1999, 1799, "30 days")
	a.Vendor, a.Brand, a.Color, a.Capacity = "Apple Store", "Apple", "Space Gray", "512GB"
	b := view(2, "WH-1000XM5 Headphones", 349.99, 299.99, "15 days")
	b.Vendor, b.Brand, b.Color = "Amazon", "Sony", "Black"
	c := view(3, "Mini 4 Pro Drone", 759, 699, "45 days")
	c.Vendor, c.Brand = "Best Buy", "DJI"
	c.Status = domain.ProductStatusPaused
	return []domain.ProductView{a, b, c}
}

func TestFilterProducts_SmartSort(t *testing.T) {
	svc := NewSearchService(SearchConfig{})
	products := []domain.ProductView{
		view(1, "deal5", 90, 100, "5 days"),
		view(2, "nonDeal1", 120, 100, "1 day"),
		view(3, "deal2", 80, 100, "2 days"),
		view(4, "dealNull", 70, 100, ""),
	}

	got := svc.FilterProducts(products, DefaultFilters())

	assert.Equal(t, []string{"deal2", "deal5", "dealNull", "nonDeal1"}, titles(got))
	assert.Equal(t, "deal5", products[0].Title, "input must not be reordered")
}

func TestFilterProducts_SmartSortUsesEffectiveTarget(t *testing.T) {
	svc := NewSearchService(SearchConfig{})
	withAlert := view(1, "Alerted", 90, 80, "9 days")
	withAlert.EffectiveTargetPrice = 95
	plain := view(2, "Plain", 90, 80, "1 days")

	got := svc.FilterProducts([]domain.ProductView{plain, withAlert}, DefaultFilters())
	assert.Equal(t, []string{"Alerted", "Plain"}, titles(got))
}

func TestFilterProducts_SmartSortNameTieBreak(t *testing.T) {
	svc := NewSearchService(SearchConfig{Language: language.English})
	products := []domain.ProductView{
		view(1, "banana", 10, 0, "3 days"),
		view(2, "Apple", 10, 0, "3 days"),
		view(3, "cherry", 10, 0, "3 days"),
	}

	got := svc.FilterProducts(products, DefaultFilters())
	assert.Equal(t, []string{"Apple", "banana", "cherry"}, titles(got))
}

func TestFilterProducts_Stages(t *testing.T) {
	svc := NewSearchService(SearchConfig{})
	products := sampleViews()

	tests := []struct {
		name string
		edit func(*domain.SearchFilters)
		want []string
	}{
		{
			name: "query matches brand",
			edit: func(f *domain.SearchFilters) { f.Query = "sony" },
			want: []string{"WH-1000XM5 Headphones"},
		},
		{
			name: "query matches capacity",
			edit: func(f *domain.SearchFilters) { f.Query = "512" },
			want: []string{"MacBook Pro"},
		},
		{
			name: "status filter",
			edit: func(f *domain.SearchFilters) { f.Status = "paused" },
			want: []string{"Mini 4 Pro Drone"},
		},
		{
			name: "vendor substring",
			edit: func(f *domain.SearchFilters) { f.Vendor = "best" },
			want: []string{"Mini 4 Pro Drone"},
		},
		{
			name: "price range inclusive",
			edit: func(f *domain.SearchFilters) { f.PriceRange = domain.PriceRange{Min: 349.99, Max: 759} },
			want: []string{"WH-1000XM5 Headphones", "Mini 4 Pro Drone"},
		},
		{
			name: "no match",
			edit: func(f *domain.SearchFilters) { f.Query = "toaster" },
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters := DefaultFilters()
			tt.edit(&filters)
			filters.SortBy = domain.SortPrice
			filters.SortOrder = domain.SortAsc
			assert.Equal(t, tt.want, titles(svc.FilterProducts(products, filters)))
		})
	}
}

func TestFilterProducts_FieldSorts(t *testing.T) {
	svc := NewSearchService(SearchConfig{})
	products := sampleViews()

	filters := DefaultFilters()
	filters.SortBy = domain.SortName
	filters.SortOrder = domain.SortAsc
	assert.Equal(t, []string{"MacBook Pro", "Mini 4 Pro Drone", "WH-1000XM5 Headphones"}, titles(svc.FilterProducts(products, filters)))

	filters.SortBy = domain.SortPrice
	filters.SortOrder = domain.SortDesc
	assert.Equal(t, []string{"MacBook Pro", "Mini 4 Pro Drone", "WH-1000XM5 Headphones"}, titles(svc.FilterProducts(products, filters)))

	filters.SortBy = domain.SortVendor
	filters.SortOrder = domain.SortAsc
	assert.Equal(t, []string{"WH-1000XM5 Headphones", "MacBook Pro", "Mini 4 Pro Drone"}, titles(svc.FilterProducts(products, filters)))
}

func TestFilterProducts_ZeroMaxIsUnbounded(t *testing.T) {
	svc := NewSearchService(SearchConfig{})
	filters := DefaultFilters()
	filters.PriceRange = domain.PriceRange{}
	assert.Len(t, svc.FilterProducts(sampleViews(), filters), 3)
}

func TestFilterProducts_ZeroMaxKeepsMinimum(t *testing.T) {
	svc := NewSearchService(SearchConfig{})
	filters := DefaultFilters()
	filters.SortBy = domain.SortPrice
	filters.SortOrder = domain.SortAsc
	filters.PriceRange = domain.PriceRange{Min: 500, Max: 0}

	assert.Equal(t, []string{"Mini 4 Pro Drone", "MacBook Pro"}, titles(svc.FilterProducts(sampleViews(), filters)))
	assert.True(t, math.IsInf(filters.PriceRange.UpperBound(), 1))
	assert.Equal(t, 800.0, domain.PriceRange{Min: 500, Max: 800}.UpperBound())
}

func TestDaysUntilExpiration(t *testing.T) {
	assert.Equal(t, 5.0, DaysUntilExpiration("5 days"))
	assert.Equal(t, 1.0, DaysUntilExpiration("1 day"))
	assert.Equal(t, 12.0, DaysUntilExpiration("Expires in 12 Days"))
	assert.True(t, math.IsInf(DaysUntilExpiration(""), 1))
	assert.True(t, math.IsInf(DaysUntilExpiration("soon"), 1))
}

func TestUniqueVendorsAndPriceRange(t *testing.T) {
	products := sampleViews()
	products = append(products, view(9, "No vendor", 10.5, 0, ""))

	assert.Equal(t, []string{"Amazon", "Apple Store", "Best Buy"}, UniqueVendors(products))
	assert.Equal(t, domain.PriceRange{Min: 10, Max: 1999}, PriceRangeOf(products))
	assert.Equal(t, domain.PriceRange{Min: 0, Max: 1000}, PriceRangeOf(nil))
}

func TestFilterDebouncer_EmitsSettledFilters(t *testing.T) {
	var (
		mu      sync.Mutex
		settled []domain.SearchFilters
	)
	done := make(chan struct{}, 4)
	d := NewFilterDebouncer(DefaultFilters(), 100*time.Millisecond, func(f domain.SearchFilters) {
		mu.Lock()
		settled = append(settled, f)
		mu.Unlock()
		done <- struct{}{}
	})
	defer d.Stop()

	d.Update(func(f *domain.SearchFilters) { f.Query = "m" })
	d.Update(func(f *domain.SearchFilters) { f.Query = "ma" })
	d.Update(func(f *domain.SearchFilters) { f.Query = "mac" })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never settled")
	}
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, settled, 1)
	assert.Equal(t, "mac", settled[0].Query)
	assert.Equal(t, "mac", d.Current().Query)
}

func TestFilterDebouncer_ResetSettlesImmediately(t *testing.T) {
	var got domain.SearchFilters
	d := NewFilterDebouncer(DefaultFilters(), time.Hour, func(f domain.SearchFilters) { got = f })

	d.Update(func(f *domain.SearchFilters) { f.Query = "pending" })
	reset := DefaultFilters()
	reset.Vendor = "Amazon"
	d.Reset(reset)

	assert.Equal(t, "Amazon", got.Vendor)
	assert.Empty(t, got.Query)
	d.Stop()
}
