package domain

import (
	"math"
	"strconv"
	"strings"
)

// ParseNumber parses a numeric cell. Missing, non-numeric, NaN and infinite
// values are nil.
func ParseNumber(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
