package numeric

import (
	"math"
	"strconv"
	"strings"
)

// SafeFloat converts a raw feed field to a float64 without ever failing.
// Quote feeds hand back empty strings, bare dashes and comma-joined
// composites; the first comma-separated field is taken and anything that
// still does not parse yields def.
func SafeFloat(raw string, def float64) float64 {
	if raw == "" {
		return def
	}
	val := strings.TrimSpace(strings.SplitN(raw, ",", 2)[0])
	if val == "" || val == "-" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return f
}

// Round rounds v to prec decimal places.
func Round(v float64, prec int) float64 {
	p := math.Pow10(prec)
	return math.Round(v*p) / p
}
