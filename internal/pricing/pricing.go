// Package pricing computes marketplace sale prices for sourced products.
package pricing

import (
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultDelivery is the flat delivery cost folded into every sale price, in KRW.
const DefaultDelivery = 3000

// Granularity is the marketplace price denomination.
const Granularity = 10

// Result is a stored optimized price together with the rates it was computed from.
type Result struct {
	Price   float64 `json:"price"`
	FeeRate float64 `json:"feeRate"`
	Margin  float64 `json:"margin"`
}

// OptimizePrice returns the sale price that covers the platform fee, the target
// margin, and delivery, rounded up to the next multiple of Granularity.
// Rate combinations that leave nothing to sell at (fee+margin >= 100 or a
// non-positive divisor) return source unchanged.
func OptimizePrice(source, feeRatePct, marginRatePct, delivery float64) float64 {
	if feeRatePct+marginRatePct >= 100 {
		return source
	}
	divisor := (1 - feeRatePct/100) * (1 - marginRatePct/100)
	if divisor <= 0 {
		return source
	}
	raw := (source+delivery)/divisor - delivery
	return math.Ceil(raw/Granularity) * Granularity
}

// Optimize parses a raw product price and returns the optimized Result.
func Optimize(rawPrice any, feeRatePct, marginRatePct float64) Result {
	return Result{
		Price:   OptimizePrice(ParsePrice(rawPrice), feeRatePct, marginRatePct, DefaultDelivery),
		FeeRate: feeRatePct,
		Margin:  marginRatePct,
	}
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// ParsePrice converts a locale-formatted price to a number. Strings keep only
// digits, '.' and '-'; anything unparseable yields 0.
func ParsePrice(raw any) float64 {
	switch v := raw.(type) {
	case string:
		f, err := strconv.ParseFloat(nonNumeric.ReplaceAllString(v, ""), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	case nil:
		return 0
	}
	if f, ok := toFloat(raw); ok && !math.IsNaN(f) {
		return f
	}
	return 0
}

func toFloat(raw any) (float64, bool) {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

var krw = message.NewPrinter(language.Korean)

// FormatKRW renders a value as won with Korean digit grouping. Non-numeric
// strings are returned as given.
func FormatKRW(value any) string {
	var f float64
	switch v := value.(type) {
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if cleaned == "" {
			f = 0
			break
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(parsed) {
			return v
		}
		f = parsed
	default:
		parsed, ok := toFloat(value)
		if !ok || math.IsNaN(parsed) {
			return krw.Sprint(value)
		}
		f = parsed
	}
	return "₩" + krw.Sprint(number.Decimal(f, number.MaxFractionDigits(3)))
}
