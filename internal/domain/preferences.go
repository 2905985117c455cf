package domain

// CheckFrequency is how often the backend re-checks prices
type CheckFrequency string

const (
	CheckHourly CheckFrequency = "hourly"
	CheckDaily  CheckFrequency = "daily"
	CheckWeekly CheckFrequency = "weekly"
)

// QuietHours suppress notifications between Start and End (HH:mm)
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Preferences are the alert defaults and notification settings of a user
type Preferences struct {
	UserID                     string         `json:"userId,omitempty"`
	EmailNotifications         bool           `json:"emailNotifications"`
	PushNotifications          bool           `json:"pushNotifications"`
	SMSNotifications           bool           `json:"smsNotifications"`
	DefaultPriceDropPercentage float64        `json:"defaultPriceDropPercentage"`
	DefaultAbsolutePriceDrop   float64        `json:"defaultAbsolutePriceDrop"`
	CheckFrequency             CheckFrequency `json:"checkFrequency"`
	QuietHours                 QuietHours     `json:"quietHours"`
	Timezone                   string         `json:"timezone"`
}

// DefaultPreferences returns the settings used until a user saves their own
func DefaultPreferences() Preferences {
	return Preferences{
		EmailNotifications:         true,
		PushNotifications:          true,
		DefaultPriceDropPercentage: 10,
		DefaultAbsolutePriceDrop:   0,
		CheckFrequency:             CheckDaily,
		QuietHours:                 QuietHours{Start: "22:00", End: "08:00"},
		Timezone:                   "UTC",
	}
}
