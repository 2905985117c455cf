package domain

import "math"

// SortBy selects the ordering of the product view
type SortBy string

const (
	SortSmart  SortBy = "smart"
	SortName   SortBy = "name"
	SortPrice  SortBy = "price"
	SortVendor SortBy = "vendor"
)

// SortOrder is ascending or descending; ignored by smart sort
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// StatusAll disables the status filter
const StatusAll = "all"

// PriceRange is an inclusive price window. JSON cannot carry +Inf, so a Max
// of zero or less means "no upper limit", also when Min is set: {50, 0}
// keeps every price from 50 up, it is not an empty window.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// UpperBound returns Max, or +Inf when no upper limit is set
func (r PriceRange) UpperBound() float64 {
	if r.Max <= 0 {
		return math.Inf(1)
	}
	return r.Max
}

// Unbounded reports whether the range filters nothing
func (r PriceRange) Unbounded() bool {
	return r.Min <= 0 && math.IsInf(r.UpperBound(), 1)
}

// SearchFilters are the user's criteria for the product view
type SearchFilters struct {
	Query      string     `json:"query"`
	Status     string     `json:"status"`
	Vendor     string     `json:"vendor"`
	PriceRange PriceRange `json:"priceRange"`
	SortBy     SortBy     `json:"sortBy"`
	SortOrder  SortOrder  `json:"sortOrder"`
}

// ProductView is a product merged with its active alert
type ProductView struct {
	Product
	Alert                *Alert  `json:"alert,omitempty"`
	HasAlert             bool    `json:"hasAlert"`
	EffectiveTargetPrice float64 `json:"effectiveTargetPrice"`
	IsDeal               bool    `json:"isDeal"`
	Savings              float64 `json:"savings"`
	SavingsPercentage    float64 `json:"savingsPercentage"`
	// PriceDropped is set when the product's price fell from the alert's
	// recorded price by at least one of the alert thresholds
	PriceDropped bool `json:"priceDropped"`
}
