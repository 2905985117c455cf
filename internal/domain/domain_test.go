package domain

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProductID(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    ProductID
		wantErr bool
	}{
		{"int", 42, 42, false},
		{"int64", int64(7), 7, false},
		{"product id", ProductID(3), 3, false},
		{"integral float", float64(1234), 1234, false},
		{"fractional float", 12.5, 0, true},
		{"nan", math.NaN(), 0, true},
		{"numeric string", "99", 99, false},
		{"padded string", "  15 ", 15, false},
		{"json number", json.Number("8"), 8, false},
		{"word", "abc", 0, true},
		{"empty string", "", 0, true},
		{"overflowing uint64", uint64(math.MaxUint64), 0, true},
		{"nil", nil, 0, true},
		{"bool", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProductID(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProductID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProductID_String(t *testing.T) {
	assert.Equal(t, "1234", ProductID(1234).String())
}

func TestAlertStatus_ProductStatus(t *testing.T) {
	tests := []struct {
		status AlertStatus
		want   ProductStatus
	}{
		{AlertStatusActive, ProductStatusTracking},
		{AlertStatusDismissed, ProductStatusPaused},
		{AlertStatusTriggered, ProductStatusCompleted},
		{AlertStatusExpired, ProductStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.ProductStatus())
		})
	}
}

func TestAlertUpdate_ProductPatch(t *testing.T) {
	assert.True(t, AlertUpdate{}.ProductPatch().Empty())

	dismissed := AlertStatusDismissed
	target := 79.5
	patch := AlertUpdate{Status: &dismissed, TargetPrice: &target}.ProductPatch()

	require.NotNil(t, patch.Status)
	require.NotNil(t, patch.AlertStatus)
	require.NotNil(t, patch.TargetPrice)
	assert.Equal(t, ProductStatusPaused, *patch.Status)
	assert.Equal(t, AlertStatusDismissed, *patch.AlertStatus)
	assert.Equal(t, 79.5, *patch.TargetPrice)
	assert.Nil(t, patch.CurrentPrice)
	assert.False(t, patch.Empty())

	// the patch does not alias the update
	target = 1
	assert.Equal(t, 79.5, *patch.TargetPrice)
}

func TestValidationError(t *testing.T) {
	err := error(&ValidationError{Errors: []FieldError{
		{Field: "targetPrice", Message: "must be positive", Code: "invalid"},
		{Field: "productName", Message: "is required", Code: "required"},
	}})

	assert.Equal(t, "validation failed: targetPrice: must be positive; productName: is required", err.Error())
	assert.ErrorIs(t, err, ErrInvalidRequest)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 2)
}

func TestAPIError_Unwrap(t *testing.T) {
	err := &APIError{StatusCode: 503, Message: "maintenance", Err: ErrBackendUnavailable}
	assert.Equal(t, "api error [503]: maintenance", err.Error())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestUserContext(t *testing.T) {
	assert.Nil(t, UserFromContext(context.Background()))

	user := &User{ID: "u1", Email: "a@example.com"}
	ctx := ContextWithUser(context.Background(), user)
	assert.Same(t, user, UserFromContext(ctx))
}

func TestPriceRange_Unbounded(t *testing.T) {
	assert.True(t, PriceRange{Max: math.Inf(1)}.Unbounded())
	assert.False(t, PriceRange{Min: 10, Max: math.Inf(1)}.Unbounded())
	assert.False(t, PriceRange{Max: 500}.Unbounded())
}
