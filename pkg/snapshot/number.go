package snapshot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var suffixes = map[byte]float64{
	'K': 1e3,
	'M': 1e6,
	'B': 1e9,
}

// ParseNumber reads a scraped cell such as "1,234", "35.4K", "1.2M", "2.5%" or "#7".
// Empty and placeholder cells ("-", "N/A") are absent and return nil without error.
func ParseNumber(cell string) (*float64, error) {
	s := strings.TrimSpace(cell)
	s = strings.TrimPrefix(s, "#")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	switch strings.ToUpper(s) {
	case "", "-", "N/A", "NA", "NONE", "NULL":
		return nil, nil
	}

	s = strings.TrimSuffix(s, "%")
	mult := 1.0
	if n := len(s); n > 0 {
		if m, ok := suffixes[strings.ToUpper(s[n-1:])[0]]; ok {
			mult = m
			s = s[:n-1]
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	// ParseFloat accepts "NaN" and "Inf", which are not readings
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("not a number: %q", cell)
	}
	v *= mult
	return &v, nil
}
