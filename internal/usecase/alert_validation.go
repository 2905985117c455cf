package usecase

import (
	"math"
	"net/url"
	"strings"

	"github.com/dealpop/dashboard/internal/domain"
)

// Validation error codes
const (
	CodeInvalidTargetPrice = "INVALID_TARGET_PRICE"
	CodeTargetPriceTooHigh = "TARGET_PRICE_TOO_HIGH"
	CodeMissingProductName = "MISSING_PRODUCT_NAME"
	CodeMissingProductURL  = "MISSING_PRODUCT_URL"
	CodeInvalidProductURL  = "INVALID_PRODUCT_URL"
)

// ValidateTargetPrice checks a target is a positive number below the current price
func ValidateTargetPrice(targetPrice, currentPrice float64) []domain.FieldError {
	var errs []domain.FieldError
	if math.IsNaN(targetPrice) || targetPrice <= 0 {
		errs = append(errs, domain.FieldError{
			Field:   "targetPrice",
			Message: "Target price must be a valid positive number",
			Code:    CodeInvalidTargetPrice,
		})
	}
	if targetPrice >= currentPrice {
		errs = append(errs, domain.FieldError{
			Field:   "targetPrice",
			Message: "Target price must be less than the current price",
			Code:    CodeTargetPriceTooHigh,
		})
	}
	return errs
}

// ValidateAlert checks an alert submission. It returns nil or a
// *domain.ValidationError listing every failure.
func ValidateAlert(input domain.AlertInput) error {
	errs := ValidateTargetPrice(input.TargetPrice, input.CurrentPrice)

	if strings.TrimSpace(input.ProductName) == "" {
		errs = append(errs, domain.FieldError{
			Field:   "productName",
			Message: "Product name is required",
			Code:    CodeMissingProductName,
		})
	}

	if strings.TrimSpace(input.ProductURL) == "" {
		errs = append(errs, domain.FieldError{
			Field:   "productUrl",
			Message: "Product URL is required",
			Code:    CodeMissingProductURL,
		})
	} else if u, err := url.Parse(input.ProductURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, domain.FieldError{
			Field:   "productUrl",
			Message: "Product URL must be a valid URL",
			Code:    CodeInvalidProductURL,
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return &domain.ValidationError{Errors: errs}
}
