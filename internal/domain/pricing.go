package domain

import (
	"strconv"
	"strings"
	"time"
)

// ParsePrice converts a locale-formatted price ("120,99€", "1 299,00 €",
// "1.299,00", "1.299") into a number. The comma is the fractional separator.
// A dot groups thousands when the string also holds a comma, when it appears
// more than once, or when exactly three digits follow it; otherwise it is a
// decimal point. Signs are ignored since prices are never negative. Strings
// without any digits yield 0.
func ParsePrice(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.':
			b.WriteRune(r)
		}
	}
	clean := b.String()
	switch {
	case strings.Contains(clean, ","):
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	case strings.Count(clean, ".") == 1:
		if i := strings.IndexByte(clean, '.'); i > 0 && len(clean)-i-1 == 3 {
			clean = strings.ReplaceAll(clean, ".", "")
		}
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return v
}

// Period lengths in days.
const (
	DaysMonthly  = 30
	DaysYearly   = 365
	DaysBiennial = 730
)

// PeriodDays classifies a free-text period by substring. Anything that is not
// recognised as yearly or two-yearly counts as monthly.
func PeriodDays(period string) int {
	p := strings.ToLower(period)
	switch {
	case strings.Contains(p, "12"), strings.Contains(p, "année"), strings.Contains(p, "an"):
		return DaysYearly
	case strings.Contains(p, "24"):
		return DaysBiennial
	default:
		return DaysMonthly
	}
}

// ComputeEndDate returns start shifted by the length of period.
func ComputeEndDate(from time.Time, period string) time.Time {
	return from.AddDate(0, 0, PeriodDays(period))
}

// DaysRemaining is the number of started days between now and end, or a
// non-positive number when end has passed.
func DaysRemaining(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return int(d / (24 * time.Hour))
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
