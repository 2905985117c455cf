package usecase

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"

	"github.com/dealpop/dashboard/internal/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Package-level compiled regex patterns for price parsing
var (
	nonPriceCharsRegex = regexp.MustCompile(`[^0-9.]`)
	leadingNumberRegex = regexp.MustCompile(`^[0-9]*\.?[0-9]*`)
)

// stableTrendThreshold is the percentage change below which a trend is noise
const stableTrendThreshold = 0.1

// TrendDirection is the direction of a price movement
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// PriceData is the input of a price comparison. Zero means "not set" for
// Target, Previous and Original.
type PriceData struct {
	Current  float64
	Target   float64
	Previous float64
	Original float64
}

// PriceComparison summarises a price against its target and previous value
type PriceComparison struct {
	Savings               float64 `json:"savings"`
	SavingsPercentage     float64 `json:"savingsPercentage"`
	PriceChange           float64 `json:"priceChange"`
	PriceChangePercentage float64 `json:"priceChangePercentage"`
	IsDeal                bool    `json:"isDeal"`
	IsPriceDropping       bool    `json:"isPriceDropping"`
	IsPriceRising         bool    `json:"isPriceRising"`
}

// PriceTrend describes the movement between two prices. Change and
// Percentage are magnitudes; Direction carries the sign.
type PriceTrend struct {
	Direction  TrendDirection `json:"direction"`
	Change     float64        `json:"change"`
	Percentage float64        `json:"percentage"`
}

// ExtractPrice converts a raw price into a number. Numbers pass through;
// strings keep only digits and dots and are parsed by their longest numeric
// prefix ("$1,299.99" -> 1299.99). Unparseable input yields 0.
func ExtractPrice(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return ExtractPrice(v.String())
	case string:
		return parsePriceString(v)
	default:
		return 0
	}
}

func parsePriceString(s string) float64 {
	cleaned := nonPriceCharsRegex.ReplaceAllString(s, "")
	prefix := leadingNumberRegex.FindString(cleaned)
	if prefix == "" || prefix == "." {
		return 0
	}
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// IsDeal reports whether current is at or below a set target
func IsDeal(current, target float64) bool {
	return target > 0 && current <= target
}

// CalculatePriceComparison compares a price against its target and previous value
func CalculatePriceComparison(data PriceData) PriceComparison {
	current := data.Current
	target := data.Target
	previous := data.Previous
	if previous == 0 {
		previous = current
	}

	var savings, savingsPercentage float64
	if target > 0 {
		savings = target - current
		savingsPercentage = (target - current) / target * 100
	}

	priceChange := current - previous
	var priceChangePercentage float64
	if previous > 0 {
		priceChangePercentage = priceChange / previous * 100
	}

	return PriceComparison{
		Savings:               math.Max(0, savings),
		SavingsPercentage:     math.Max(0, savingsPercentage),
		PriceChange:           priceChange,
		PriceChangePercentage: priceChangePercentage,
		IsDeal:                IsDeal(current, target),
		IsPriceDropping:       priceChange < 0,
		IsPriceRising:         priceChange > 0,
	}
}

// GetPriceTrend classifies the move from previous to current. Moves under
// 0.1% are stable.
func GetPriceTrend(current, previous float64) PriceTrend {
	change := current - previous
	var percentage float64
	if previous > 0 {
		percentage = change / previous * 100
	}

	var direction TrendDirection
	switch {
	case math.Abs(percentage) < stableTrendThreshold:
		direction = TrendStable
	case change > 0:
		direction = TrendUp
	default:
		direction = TrendDown
	}

	return PriceTrend{
		Direction:  direction,
		Change:     math.Abs(change),
		Percentage: math.Abs(percentage),
	}
}

// CheckPriceDropThreshold reports whether the drop from the alert's recorded
// price to currentPrice meets either of its thresholds.
func CheckPriceDropThreshold(alert domain.Alert, currentPrice float64) bool {
	drop := alert.CurrentPrice - currentPrice
	if drop >= alert.Thresholds.AbsolutePriceDrop && alert.Thresholds.AbsolutePriceDrop > 0 {
		return true
	}
	if alert.CurrentPrice <= 0 {
		return false
	}
	dropPercentage := drop / alert.CurrentPrice * 100
	return alert.Thresholds.PriceDropPercentage > 0 && dropPercentage >= alert.Thresholds.PriceDropPercentage
}

var usdPrinter = message.NewPrinter(language.English)

// FormatPrice formats an amount as US dollars, e.g. "$1,299.99"
func FormatPrice(price float64) string {
	if price < 0 {
		return "-" + usdPrinter.Sprintf("$%.2f", -price)
	}
	return usdPrinter.Sprintf("$%.2f", price)
}

// FormatSavingsMessage renders savings for display
func FormatSavingsMessage(savings, percentage float64) string {
	if savings <= 0 {
		return "No savings"
	}
	return "Save " + FormatPrice(savings) + " (" + strconv.FormatFloat(percentage, 'f', 1, 64) + "%)"
}

// FormatPriceChangeMessage renders a price change with an arrow
func FormatPriceChangeMessage(change, percentage float64) string {
	text := FormatPrice(math.Abs(change)) + " (" + strconv.FormatFloat(percentage, 'f', 1, 64) + "%)"
	switch {
	case change < 0:
		return "↓ " + text
	case change > 0:
		return "↑ " + text
	}
	return "No change"
}
