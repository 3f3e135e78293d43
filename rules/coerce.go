package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CanonicalString renders a decoded JSON value the way form answers are
// compared: numbers without trailing zeros, booleans as true/false and
// lists joined by commas.
func CanonicalString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return formatFloat(typed)
	case float32:
		return formatFloat(float64(typed))
	case int:
		return strconv.Itoa(typed)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case uint:
		return strconv.FormatUint(uint64(typed), 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case json.Number:
		if f, err := typed.Float64(); err == nil {
			return formatFloat(f)
		}
		return typed.String()
	case []any:
		parts := make([]string, len(typed))
		for i, item := range typed {
			parts[i] = CanonicalString(item)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(typed, ",")
	case map[string]any:
		return "[object Object]"
	default:
		return fmt.Sprint(typed)
	}
}

// CanonicalNumber converts a decoded JSON value to a number. Values that
// cannot be read as a number yield NaN, which fails every comparison.
func CanonicalNumber(value any) float64 {
	switch typed := value.(type) {
	case nil:
		return 0
	case bool:
		if typed {
			return 1
		}
		return 0
	case float64:
		return typed
	case float32:
		return float64(typed)
	case int:
		return float64(typed)
	case int32:
		return float64(typed)
	case int64:
		return float64(typed)
	case uint:
		return float64(typed)
	case uint64:
		return float64(typed)
	case json.Number:
		return parseNumber(typed.String())
	case string:
		return parseNumber(typed)
	case []any:
		switch len(typed) {
		case 0:
			return 0
		case 1:
			return CanonicalNumber(CanonicalString(typed[0]))
		}
		return math.NaN()
	default:
		return math.NaN()
	}
}

func parseNumber(raw string) float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	switch trimmed {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	lower := strings.ToLower(trimmed)
	if len(lower) > 2 && lower[0] == '0' {
		if base, ok := radixPrefixes[lower[1]]; ok {
			n, err := strconv.ParseUint(lower[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	if strings.ContainsAny(lower, "_pxn") || strings.Contains(lower, "inf") {
		return math.NaN()
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

// Unsigned integer literals accepted by JavaScript's Number().
var radixPrefixes = map[byte]int{'x': 16, 'o': 8, 'b': 2}

// formatFloat follows Number.prototype.toString: plain decimals for
// magnitudes in [1e-6, 1e21), exponent notation outside it.
func formatFloat(value float64) string {
	switch {
	case math.IsNaN(value):
		return "NaN"
	case math.IsInf(value, 1):
		return "Infinity"
	case math.IsInf(value, -1):
		return "-Infinity"
	case value == 0:
		return "0"
	}
	abs := math.Abs(value)
	if abs >= 1e21 || abs < 1e-6 {
		mantissa, exponent, _ := strings.Cut(strconv.FormatFloat(value, 'e', -1, 64), "e")
		sign := exponent[:1]
		digits := strings.TrimLeft(exponent[1:], "0")
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
