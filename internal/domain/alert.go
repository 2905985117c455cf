package domain

import "time"

// AlertType is the condition an alert watches for
type AlertType string

const (
	AlertTypePriceDrop     AlertType = "price_drop"
	AlertTypePriceIncrease AlertType = "price_increase"
	AlertTypeStock         AlertType = "stock_alert"
	AlertTypeExpiry        AlertType = "expiry_alert"
)

// Valid reports whether t is a known alert type
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypePriceDrop, AlertTypePriceIncrease, AlertTypeStock, AlertTypeExpiry:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusTriggered AlertStatus = "triggered"
	AlertStatusDismissed AlertStatus = "dismissed"
	AlertStatusExpired   AlertStatus = "expired"
)

// Valid reports whether s is a known alert status
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusActive, AlertStatusTriggered, AlertStatusDismissed, AlertStatusExpired:
		return true
	}
	return false
}

// ProductStatus maps an alert status onto the status of the product that
// backs it.
func (s AlertStatus) ProductStatus() ProductStatus {
	switch s {
	case AlertStatusDismissed:
		return ProductStatusPaused
	case AlertStatusTriggered, AlertStatusExpired:
		return ProductStatusCompleted
	default:
		return ProductStatusTracking
	}
}

// NotificationPreferences selects the delivery channels of an alert
type NotificationPreferences struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

// Thresholds configure when a price drop alert fires
type Thresholds struct {
	PriceDropPercentage float64 `json:"priceDropPercentage"`
	AbsolutePriceDrop   float64 `json:"absolutePriceDrop"`
}

// Alert is a price alert in canonical form. Status and TargetPrice are
// projections of the backing product's state.
type Alert struct {
	ID                      string                  `json:"id"`
	UserID                  string                  `json:"userId"`
	ProductID               ProductID               `json:"productId"`
	ProductName             string                  `json:"productName"`
	ProductURL              string                  `json:"productUrl"`
	ProductImageURL         string                  `json:"productImageUrl,omitempty"`
	CurrentPrice            float64                 `json:"currentPrice"`
	TargetPrice             float64                 `json:"targetPrice"`
	AlertType               AlertType               `json:"alertType"`
	Status                  AlertStatus             `json:"status"`
	NotificationPreferences NotificationPreferences `json:"notificationPreferences"`
	Thresholds              Thresholds              `json:"thresholds"`
	CreatedAt               time.Time               `json:"createdAt"`
	UpdatedAt               time.Time               `json:"updatedAt"`
	LastCheckedAt           time.Time               `json:"lastCheckedAt"`
	TriggeredAt             *time.Time              `json:"triggeredAt,omitempty"`
	ExpiresAt               *time.Time              `json:"expiresAt,omitempty"`
}

// AlertInput is what the user submits to create an alert
type AlertInput struct {
	ProductID               ProductID               `json:"productId"`
	ProductName             string                  `json:"productName"`
	ProductURL              string                  `json:"productUrl"`
	ProductImageURL         string                  `json:"productImageUrl,omitempty"`
	CurrentPrice            float64                 `json:"currentPrice"`
	TargetPrice             float64                 `json:"targetPrice"`
	AlertType               AlertType               `json:"alertType,omitempty"`
	NotificationPreferences NotificationPreferences `json:"notificationPreferences"`
	Thresholds              Thresholds              `json:"thresholds"`
	ExpiresAt               *time.Time              `json:"expiresAt,omitempty"`
}

// AlertUpdate is a user edit of an alert. Only the projected fields can change.
type AlertUpdate struct {
	Status      *AlertStatus `json:"status,omitempty"`
	TargetPrice *float64     `json:"targetPrice,omitempty"`
}

// ProductPatch translates the update into a mutation of the backing product
func (u AlertUpdate) ProductPatch() ProductPatch {
	var patch ProductPatch
	if u.Status != nil {
		alertStatus := *u.Status
		productStatus := alertStatus.ProductStatus()
		patch.AlertStatus = &alertStatus
		patch.Status = &productStatus
	}
	if u.TargetPrice != nil {
		target := *u.TargetPrice
		patch.TargetPrice = &target
	}
	return patch
}

// AlertQuery narrows an alert listing at the backend
type AlertQuery struct {
	Status    AlertStatus
	ProductID *ProductID
}

// AlertStats are counts of alerts by status
type AlertStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Triggered int `json:"triggered"`
	Dismissed int `json:"dismissed"`
	Expired   int `json:"expired"`
}

// AlertEventType classifies an alert history entry
type AlertEventType string

const (
	AlertEventCreated   AlertEventType = "created"
	AlertEventTriggered AlertEventType = "triggered"
	AlertEventDismissed AlertEventType = "dismissed"
	AlertEventUpdated   AlertEventType = "updated"
	AlertEventExpired   AlertEventType = "expired"
)

// AlertHistory is one event in the life of an alert
type AlertHistory struct {
	ID                    string         `json:"id"`
	AlertID               string         `json:"alertId"`
	EventType             AlertEventType `json:"eventType"`
	OldPrice              *float64       `json:"oldPrice,omitempty"`
	NewPrice              *float64       `json:"newPrice,omitempty"`
	PriceChange           *float64       `json:"priceChange,omitempty"`
	PriceChangePercentage *float64       `json:"priceChangePercentage,omitempty"`
	Timestamp             time.Time      `json:"timestamp"`
	Message               string         `json:"message"`
}

// DashboardStats summarise the tracked products and alerts of a user
type DashboardStats struct {
	TotalProducts     int     `json:"totalProducts"`
	TrackingProducts  int     `json:"trackingProducts"`
	CompletedProducts int     `json:"completedProducts"`
	ActiveAlerts      int     `json:"activeAlerts"`
	TriggeredAlerts   int     `json:"triggeredAlerts"`
	TotalSavings      float64 `json:"totalSavings"`
}
