// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"
)

// Round rounds a value to the given number of decimal places.
func Round(val float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(val*scale) / scale
}

// Clamp limits value to [min, max]. NaN is returned unchanged.
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// IsFinite reports whether val is neither NaN nor infinite.
func IsFinite(val float64) bool {
	return !math.IsNaN(val) && !math.IsInf(val, 0)
}

// Finite replaces NaN with fallback and leaves every other value untouched.
func Finite(val, fallback float64) float64 {
	if math.IsNaN(val) {
		return fallback
	}
	return val
}

// Lerp interpolates linearly between (x0, y0) and (x1, y1) at x.
func Lerp(x0, y0, x1, y1, x float64) float64 {
	if x1 == x0 {
		return y1
	}
	frac := (x - x0) / (x1 - x0)
	return y0 + frac*(y1-y0)
}

// Less is a total order on float64 in which NaN sorts after every number.
func Less(a, b float64) bool {
	switch {
	case math.IsNaN(a):
		return false
	case math.IsNaN(b):
		return true
	default:
		return a < b
	}
}

// CalculatePercentage calculates what percentage value is of total
func CalculatePercentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * 100
}

// ApplyPercentage applies a percentage to a value
func ApplyPercentage(value, percentage float64) float64 {
	return value * (percentage / 100)
}
