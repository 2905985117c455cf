package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/usecase"
)

// productDTO is a product as the live backend sends it. ids and prices may
// arrive as strings or numbers.
type productDTO struct {
	ID              any    `json:"id"`
	ProductName     string `json:"product_name"`
	CurrentPrice    any    `json:"current_price"`
	TargetPrice     any    `json:"target_price"`
	Vendor          string `json:"vendor"`
	ProductURL      string `json:"product_url"`
	Status          string `json:"status"`
	ExtractedAt     string `json:"extracted_at"`
	ProductImageURL string `json:"product_image_url"`
	Brand           string `json:"brand"`
	Color           string `json:"color"`
	Capacity        string `json:"capacity"`
	ExpiresIn       string `json:"expires_in"`
}

type productWriteDTO struct {
	ProductName     string  `json:"product_name"`
	ProductURL      string  `json:"product_url"`
	CurrentPrice    float64 `json:"current_price"`
	TargetPrice     float64 `json:"target_price,omitempty"`
	Vendor          string  `json:"vendor,omitempty"`
	Brand           string  `json:"brand,omitempty"`
	Color           string  `json:"color,omitempty"`
	Capacity        string  `json:"capacity,omitempty"`
	ExpiresIn       string  `json:"expires_in,omitempty"`
	Status          string  `json:"status,omitempty"`
	ProductImageURL string  `json:"product_image_url,omitempty"`
}

type productPatchDTO struct {
	Status       *string  `json:"status,omitempty"`
	TargetPrice  *float64 `json:"target_price,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
	AlertStatus  *string  `json:"alert_status,omitempty"`
}

type notificationDTO struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

type thresholdsDTO struct {
	PriceDropPercentage any `json:"price_drop_percentage"`
	AbsolutePriceDrop   any `json:"absolute_price_drop"`
}

// alertDTO is an alert as the live backend sends it
type alertDTO struct {
	ID                      any             `json:"id"`
	UserID                  string          `json:"user_id"`
	ProductID               any             `json:"product_id"`
	ProductName             string          `json:"product_name"`
	ProductURL              string          `json:"product_url"`
	ProductImageURL         string          `json:"product_image_url"`
	CurrentPrice            any             `json:"current_price"`
	TargetPrice             any             `json:"target_price"`
	AlertType               string          `json:"alert_type"`
	Status                  string          `json:"status"`
	NotificationPreferences notificationDTO `json:"notification_preferences"`
	Thresholds              thresholdsDTO   `json:"thresholds"`
	ExpiresAt               string          `json:"expires_at"`
	TriggeredAt             string          `json:"triggered_at"`
	CreatedAt               string          `json:"created_at"`
	UpdatedAt               string          `json:"updated_at"`
	LastCheckedAt           string          `json:"last_checked_at"`
}

type alertWriteDTO struct {
	ProductID               string          `json:"product_id"`
	ProductName             string          `json:"product_name"`
	ProductURL              string          `json:"product_url"`
	ProductImageURL         string          `json:"product_image_url,omitempty"`
	CurrentPrice            float64         `json:"current_price"`
	TargetPrice             float64         `json:"target_price"`
	AlertType               string          `json:"alert_type"`
	NotificationPreferences notificationDTO `json:"notification_preferences"`
	Thresholds              struct {
		PriceDropPercentage float64 `json:"price_drop_percentage"`
		AbsolutePriceDrop   float64 `json:"absolute_price_drop"`
	} `json:"thresholds"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ackDTO is a creation acknowledgement; backends name the id differently
type ackDTO struct {
	ID        any `json:"id"`
	AlertID   any `json:"alertId"`
	ProductID any `json:"productId"`
	Product   *struct {
		ID any `json:"id"`
	} `json:"product"`
}

type statsDTO struct {
	TotalProducts     int `json:"total_products"`
	TrackingProducts  int `json:"tracking_products"`
	CompletedProducts int `json:"completed_products"`
	ActiveAlerts      int `json:"active_alerts"`
	TriggeredAlerts   int `json:"triggered_alerts"`
	TotalSavings      any `json:"total_savings"`
}

type userDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
}

type sessionDTO struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

type credentialsDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// unwrap returns the value under key when body is an object carrying it,
// and body itself otherwise. It accepts both {"products":[...]} and [...].
func unwrap(body []byte, key string) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return trimmed
	}
	if inner, ok := envelope[key]; ok {
		return inner
	}
	return trimmed
}

// decode unmarshals with json.Number so large ids survive
func decode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func productFromDTO(dto productDTO) (domain.Product, error) {
	id, err := domain.ParseProductID(dto.ID)
	if err != nil {
		return domain.Product{}, err
	}
	status := domain.ProductStatus(strings.ToLower(dto.Status))
	if !status.Valid() {
		status = domain.ProductStatusTracking
	}
	return domain.Product{
		ID:           id,
		Title:        dto.ProductName,
		Vendor:       dto.Vendor,
		Brand:        dto.Brand,
		Color:        dto.Color,
		Capacity:     dto.Capacity,
		CurrentPrice: usecase.ExtractPrice(dto.CurrentPrice),
		TargetPrice:  usecase.ExtractPrice(dto.TargetPrice),
		ExpiresIn:    dto.ExpiresIn,
		Status:       status,
		URL:          dto.ProductURL,
		ImageURL:     dto.ProductImageURL,
		ExtractedAt:  parseTime(dto.ExtractedAt),
		Source:       domain.SourceBackend,
	}, nil
}

func productInputToDTO(input domain.ProductInput) productWriteDTO {
	return productWriteDTO{
		ProductName:     input.Title,
		ProductURL:      input.URL,
		CurrentPrice:    input.CurrentPrice,
		TargetPrice:     input.TargetPrice,
		Vendor:          input.Vendor,
		Brand:           input.Brand,
		Color:           input.Color,
		Capacity:        input.Capacity,
		ExpiresIn:       input.ExpiresIn,
		Status:          string(input.Status),
		ProductImageURL: input.ImageURL,
	}
}

func productPatchToDTO(patch domain.ProductPatch) productPatchDTO {
	var dto productPatchDTO
	if patch.Status != nil {
		s := string(*patch.Status)
		dto.Status = &s
	}
	if patch.AlertStatus != nil {
		s := string(*patch.AlertStatus)
		dto.AlertStatus = &s
	}
	dto.TargetPrice = patch.TargetPrice
	dto.CurrentPrice = patch.CurrentPrice
	return dto
}

func alertFromDTO(dto alertDTO) (domain.Alert, error) {
	productID, err := domain.ParseProductID(dto.ProductID)
	if err != nil {
		return domain.Alert{}, err
	}
	alertType := domain.AlertType(dto.AlertType)
	if !alertType.Valid() {
		alertType = domain.AlertTypePriceDrop
	}
	status := domain.AlertStatus(dto.Status)
	if !status.Valid() {
		status = domain.AlertStatusActive
	}
	return domain.Alert{
		ID:              idString(dto.ID),
		UserID:          dto.UserID,
		ProductID:       productID,
		ProductName:     dto.ProductName,
		ProductURL:      dto.ProductURL,
		ProductImageURL: dto.ProductImageURL,
		CurrentPrice:    usecase.ExtractPrice(dto.CurrentPrice),
		TargetPrice:     usecase.ExtractPrice(dto.TargetPrice),
		AlertType:       alertType,
		Status:          status,
		NotificationPreferences: domain.NotificationPreferences{
			Email: dto.NotificationPreferences.Email,
			Push:  dto.NotificationPreferences.Push,
			SMS:   dto.NotificationPreferences.SMS,
		},
		Thresholds: domain.Thresholds{
			PriceDropPercentage: usecase.ExtractPrice(dto.Thresholds.PriceDropPercentage),
			AbsolutePriceDrop:   usecase.ExtractPrice(dto.Thresholds.AbsolutePriceDrop),
		},
		CreatedAt:     parseTime(dto.CreatedAt),
		UpdatedAt:     parseTime(dto.UpdatedAt),
		LastCheckedAt: parseTime(dto.LastCheckedAt),
		TriggeredAt:   parseOptionalTime(dto.TriggeredAt),
		ExpiresAt:     parseOptionalTime(dto.ExpiresAt),
	}, nil
}

func alertInputToDTO(input domain.AlertInput) alertWriteDTO {
	dto := alertWriteDTO{
		ProductID:       input.ProductID.String(),
		ProductName:     input.ProductName,
		ProductURL:      input.ProductURL,
		ProductImageURL: input.ProductImageURL,
		CurrentPrice:    input.CurrentPrice,
		TargetPrice:     input.TargetPrice,
		AlertType:       string(input.AlertType),
		NotificationPreferences: notificationDTO{
			Email: input.NotificationPreferences.Email,
			Push:  input.NotificationPreferences.Push,
			SMS:   input.NotificationPreferences.SMS,
		},
		ExpiresAt: input.ExpiresAt,
	}
	dto.Thresholds.PriceDropPercentage = input.Thresholds.PriceDropPercentage
	dto.Thresholds.AbsolutePriceDrop = input.Thresholds.AbsolutePriceDrop
	return dto
}

func statsFromDTO(dto statsDTO) domain.DashboardStats {
	return domain.DashboardStats{
		TotalProducts:     dto.TotalProducts,
		TrackingProducts:  dto.TrackingProducts,
		CompletedProducts: dto.CompletedProducts,
		ActiveAlerts:      dto.ActiveAlerts,
		TriggeredAlerts:   dto.TriggeredAlerts,
		TotalSavings:      usecase.ExtractPrice(dto.TotalSavings),
	}
}

func userFromDTO(dto userDTO, token string) *domain.User {
	return &domain.User{
		ID:          dto.ID,
		Email:       dto.Email,
		DisplayName: dto.DisplayName,
		PhotoURL:    dto.PhotoURL,
		Provider:    "live",
		Token:       token,
	}
}

// ackID returns the id carried by a creation acknowledgement
func ackID(dto ackDTO) string {
	for _, v := range []any{dto.ID, dto.AlertID, dto.ProductID} {
		if s := idString(v); s != "" {
			return s
		}
	}
	if dto.Product != nil {
		return idString(dto.Product.ID)
	}
	return ""
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseOptionalTime(s string) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}
