package payment

import (
	"math"
	"strconv"
	"strings"
)

// zeroDecimal lists the currencies Stripe charges in whole units.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

// IsZeroDecimal reports whether currency has no minor unit.
func IsZeroDecimal(currency string) bool {
	return zeroDecimal[strings.ToUpper(currency)]
}

// ToMinorUnits converts 120.99 EUR to 12099, and 500 JPY to 500.
func ToMinorUnits(amount float64, currency string) int64 {
	if IsZeroDecimal(currency) {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(units int64, currency string) float64 {
	if IsZeroDecimal(currency) {
		return float64(units)
	}
	return float64(units) / 100
}

// FormatDecimal renders an amount the way Mollie expects it: a string with
// exactly the currency's number of decimals ("199.00", "500").
func FormatDecimal(amount float64, currency string) string {
	if IsZeroDecimal(currency) {
		return strconv.FormatFloat(math.Round(amount), 'f', 0, 64)
	}
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

// ParseDecimal reads a Mollie amount value.
func ParseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
