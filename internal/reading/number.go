package reading

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// aqiKeywords is checked in order. "very" must precede "unhealthy" so that
// "Very Unhealthy" is not swallowed by the plainer band.
var aqiKeywords = []struct {
	words []string
	value float64
}{
	{[]string{"good"}, 25},
	{[]string{"moderate"}, 75},
	{[]string{"sensitive"}, 125},
	{[]string{"very", "hazardous"}, 250},
	{[]string{"unhealthy"}, 175},
}

var leadingNumberRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// ToNumber coerces v to a finite float64, returning fallback for nil,
// unparseable or non-finite input.
func ToNumber(v any, fallback float64) float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return fallback
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		return parseStrict(n.String(), fallback)
	case string:
		return parseStrict(n, fallback)
	default:
		return parseStrict(fmt.Sprint(n), fallback)
	}
	if !finite(f) {
		return fallback
	}
	return f
}

// MapAQIStringToNumber turns an AQI label into a representative index
// value. Numeric strings are taken as-is; descriptive labels map to the
// middle of their band; anything else is 0.
func MapAQIStringToNumber(s string) float64 {
	if v, ok := strictFloat(s); ok {
		return v
	}

	lower := strings.ToLower(s)
	for _, kw := range aqiKeywords {
		for _, w := range kw.words {
			if strings.Contains(lower, w) {
				return kw.value
			}
		}
	}

	if m := leadingNumberRe.FindString(strings.TrimSpace(s)); m != "" {
		if v, ok := strictFloat(m); ok {
			return v
		}
	}
	return 0
}

func normalizeAQI(v any) (float64, string) {
	switch a := v.(type) {
	case nil:
		return 0, UnknownAQIText
	case string:
		return MapAQIStringToNumber(a), a
	case json.Number:
		if f, ok := strictFloat(a.String()); ok {
			return f, formatNumber(f)
		}
		return 0, a.String()
	default:
		f := ToNumber(a, math.NaN())
		if math.IsNaN(f) {
			return 0, fmt.Sprint(a)
		}
		return f, formatNumber(f)
	}
}

func parseStrict(s string, fallback float64) float64 {
	if v, ok := strictFloat(s); ok {
		return v
	}
	return fallback
}

func strictFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
