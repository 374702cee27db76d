package mood

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedPoint mimics decimal types that expose InexactFloat64.
type fixedPoint struct {
	units int64
	scale int
}

func (f fixedPoint) InexactFloat64() float64 {
	return float64(f.units) / math.Pow10(f.scale)
}

// checkedNumber mimics driver types whose conversion can fail.
type checkedNumber struct {
	v   float64
	err error
}

func (c checkedNumber) Float64() (float64, error) { return c.v, c.err }

func TestToFloat64(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
	}{
		{"float64", 0.75, 0.75},
		{"float32", float32(0.5), 0.5},
		{"int", 3, 3},
		{"int64", int64(-2), -2},
		{"uint8", uint8(4), 4},
		{"string", " 0.65 ", 0.65},
		{"json number", json.Number("0.8"), 0.8},
		{"big rat", big.NewRat(3, 4), 0.75},
		{"big float", big.NewFloat(0.25), 0.25},
		{"big int", big.NewInt(5), 5},
		{"fixed point", fixedPoint{units: 725, scale: 3}, 0.725},
		{"checked", checkedNumber{v: 0.4}, 0.4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToFloat64(tc.in)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestToFloat64Rejects(t *testing.T) {
	cases := map[string]any{
		"nil":          nil,
		"word":         "high",
		"bool":         true,
		"nan":          math.NaN(),
		"inf":          math.Inf(1),
		"bad json":     json.Number("x"),
		"checked fail": checkedNumber{err: errors.New("overflow")},
		"struct":       struct{}{},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ToFloat64(in)
			require.ErrorIs(t, err, ErrNotNumeric)
		})
	}
}

func TestToChapter(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{1, 1},
		{"3", 3},
		{2.6, 3},
		{fixedPoint{units: 40, scale: 1}, 4},
		{0, 1},
		{9, 5},
		{1e19, 5},
		{1e300, 5},
		{-1e300, 1},
		{"1e300", 5},
	}
	for _, tc := range cases {
		got, err := ToChapter(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "input %v", tc.in)
	}

	_, err := ToChapter("five")
	assert.ErrorIs(t, err, ErrNotNumeric)
}

func TestToUnitClamps(t *testing.T) {
	v, err := ToUnit(big.NewRat(3, 2))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}
