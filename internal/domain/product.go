package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ProductID is the canonical product identifier. Sources disagree on whether
// ids are strings or numbers, so every boundary converts through ParseProductID.
type ProductID int64

// String returns the decimal form of the id
func (id ProductID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseProductID converts a raw identifier from any source into a ProductID.
// Accepts integer kinds, integral floats, json.Number and numeric strings
// (surrounding whitespace allowed). Anything else yields ErrInvalidProductID.
func ParseProductID(raw any) (ProductID, error) {
	switch v := raw.(type) {
	case ProductID:
		return v, nil
	case int:
		return ProductID(v), nil
	case int32:
		return ProductID(v), nil
	case int64:
		return ProductID(v), nil
	case uint:
		return ProductID(v), nil
	case uint32:
		return ProductID(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows", ErrInvalidProductID, v)
		}
		return ProductID(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidProductID, v)
		}
		return ProductID(v), nil
	case json.Number:
		return ParseProductID(v.String())
	case string:
		s := strings.TrimSpace(v)
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidProductID, v)
		}
		return ProductID(n), nil
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrInvalidProductID)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidProductID, raw)
	}
}

// ProductStatus is the tracking state of a product
type ProductStatus string

const (
	ProductStatusTracking  ProductStatus = "tracking"
	ProductStatusPaused    ProductStatus = "paused"
	ProductStatusCompleted ProductStatus = "completed"
)

// Valid reports whether s is a known product status
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusTracking, ProductStatusPaused, ProductStatusCompleted:
		return true
	}
	return false
}

// ProductSource records where a product record came from
type ProductSource string

const (
	SourceBackend   ProductSource = "backend"
	SourceExtension ProductSource = "extension"
)

// Product is a tracked product in canonical form
type Product struct {
	ID           ProductID     `json:"id"`
	Title        string        `json:"title"`
	Vendor       string        `json:"vendor,omitempty"`
	Brand        string        `json:"brand,omitempty"`
	Color        string        `json:"color,omitempty"`
	Capacity     string        `json:"capacity,omitempty"`
	CurrentPrice float64       `json:"currentPrice"`
	TargetPrice  float64       `json:"targetPrice,omitempty"` // 0 means unset
	ExpiresIn    string        `json:"expiresIn,omitempty"`   // free text, e.g. "5 days"
	Status       ProductStatus `json:"status"`
	URL          string        `json:"url"`
	ImageURL     string        `json:"imageUrl,omitempty"`
	ExtractedAt  time.Time     `json:"extractedAt"`
	Source       ProductSource `json:"source"`
}

// ProductInput carries the fields needed to start tracking a product
type ProductInput struct {
	Title        string        `json:"title" binding:"required"`
	Vendor       string        `json:"vendor,omitempty"`
	Brand        string        `json:"brand,omitempty"`
	Color        string        `json:"color,omitempty"`
	Capacity     string        `json:"capacity,omitempty"`
	CurrentPrice float64       `json:"currentPrice"`
	TargetPrice  float64       `json:"targetPrice,omitempty"`
	ExpiresIn    string        `json:"expiresIn,omitempty"`
	Status       ProductStatus `json:"status,omitempty"`
	URL          string        `json:"url" binding:"required"`
	ImageURL     string        `json:"imageUrl,omitempty"`
}

// ProductPatch is a partial product mutation. Alert status and target price
// edits are applied through this type because alerts project those fields
// from their product.
type ProductPatch struct {
	Status       *ProductStatus `json:"status,omitempty"`
	TargetPrice  *float64       `json:"targetPrice,omitempty"`
	CurrentPrice *float64       `json:"currentPrice,omitempty"`
	AlertStatus  *AlertStatus   `json:"alertStatus,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p ProductPatch) Empty() bool {
	return p.Status == nil && p.TargetPrice == nil && p.CurrentPrice == nil && p.AlertStatus == nil
}

// ProductQuery narrows a product listing at the backend
type ProductQuery struct {
	Status ProductStatus
	Vendor string
	Search string
}

// CapturedProduct is a product record as written by the browser extension
type CapturedProduct struct {
	ID          string            `json:"id"`
	ProductName string            `json:"product_name"`
	Price       string            `json:"price"`
	Color       string            `json:"color,omitempty"`
	Brand       string            `json:"brand"`
	Capacity    string            `json:"capacity,omitempty"`
	Vendor      string            `json:"vendor,omitempty"`
	URL         string            `json:"url"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	ExtractedAt string            `json:"extractedAt"`
	TargetPrice string            `json:"targetPrice,omitempty"`
	ExpiresIn   string            `json:"expiresIn,omitempty"`
	Status      ProductStatus     `json:"status"`
	Variants    map[string]string `json:"variants,omitempty"`
}
