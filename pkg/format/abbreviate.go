// Package format renders metric values for display.
package format

import (
	"math"
	"strconv"
	"strings"
)

// Abbreviate renders large values as "<n>.<d>M" or "<n>.<d>K", truncating to one decimal.
// Zero is rendered as absent (nil). Smaller values are printed unchanged in their shortest form.
func Abbreviate(v float64) *string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	var s string
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000:
		s = oneDecimal(v/1_000_000) + "M"
	case abs >= 1_000:
		s = oneDecimal(v/1_000) + "K"
	default:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return &s
}

// AbbreviatePtr is Abbreviate with absent input passed through.
func AbbreviatePtr(v *float64) *string {
	if v == nil {
		return nil
	}
	return Abbreviate(*v)
}

// Position renders a rank as a whole number and never abbreviates it. Zero, absent and
// non-finite values are nil.
func Position(v *float64) *string {
	if v == nil || *v == 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	s := strconv.FormatInt(int64(*v), 10)
	return &s
}

// oneDecimal cuts the shortest decimal form after one digit, so 2.3 stays 2.3 and 1.99999 is 1.9.
func oneDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return s + ".0"
	}
	return s[:i+2]
}
