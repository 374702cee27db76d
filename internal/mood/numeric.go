package mood

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Decimal-like types from third-party libraries expose one of these.
type (
	float64Checked interface{ Float64() (float64, error) }
	float64Exact   interface{ Float64() (float64, big.Accuracy) }
	float64Inexact interface{ InexactFloat64() float64 }
)

// ToFloat64 normalizes any numeric-like value to float64 before arithmetic.
// Relationship records arrive from storage as fixed-point decimals, JSON
// numbers or plain ints depending on the driver.
func ToFloat64(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: nil", ErrNotNumeric)
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n.String())
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		f = x
	case *big.Rat:
		if n == nil {
			return 0, fmt.Errorf("%w: nil *big.Rat", ErrNotNumeric)
		}
		f, _ = n.Float64()
	case *big.Int:
		if n == nil {
			return 0, fmt.Errorf("%w: nil *big.Int", ErrNotNumeric)
		}
		f, _ = new(big.Float).SetInt(n).Float64()
	case *big.Float:
		if n == nil {
			return 0, fmt.Errorf("%w: nil *big.Float", ErrNotNumeric)
		}
		f, _ = n.Float64()
	case float64Inexact:
		f = n.InexactFloat64()
	case float64Checked:
		x, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNotNumeric, err)
		}
		f = x
	case float64Exact:
		f, _ = n.Float64()
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, f)
	}
	return f, nil
}

// ToChapter normalizes a relationship chapter to an int in 1..5.
// Fractional chapters round to the nearest whole chapter.
func ToChapter(v any) (int, error) {
	f, err := ToFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("chapter: %w", err)
	}
	// clamp before converting; huge floats overflow int.
	return int(math.Round(math.Max(1, math.Min(5, f)))), nil
}

// ToUnit normalizes v and clamps it into [0,1].
func ToUnit(v any) (float64, error) {
	f, err := ToFloat64(v)
	if err != nil {
		return 0, err
	}
	return Clamp01(f), nil
}
