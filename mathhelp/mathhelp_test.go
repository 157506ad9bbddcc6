package mathhelp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBetweenInc(t *testing.T) {
	tests := []struct {
		name    string
		f, p, q float64
		want    bool
	}{
		{name: "inside", f: 1.5, p: 1, q: 2, want: true},
		{name: "lower edge", f: 1, p: 1, q: 2, want: true},
		{name: "upper edge", f: 2, p: 1, q: 2, want: true},
		{name: "swapped", f: 1.5, p: 2, q: 1, want: true},
		{name: "outside", f: 2.0001, p: 1, q: 2, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BetweenInc(tt.f, tt.p, tt.q))
		})
	}
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 3, CeilDiv(10, 4))
	assert.Equal(t, 2, CeilDiv(8, 4))
	assert.Equal(t, 1, CeilDiv(1, 400))
	assert.Equal(t, 0, CeilDiv(0, 4))
}

func TestRound(t *testing.T) {
	tests := []struct {
		in       float64
		decimals int
		want     float64
	}{
		{in: 0.33333, decimals: 4, want: 0.3333},
		{in: 0.66666, decimals: 4, want: 0.6667},
		{in: 2.5, decimals: 0, want: 3},
		{in: -1.2345, decimals: 2, want: -1.23},
		{in: -0.0001, decimals: 2, want: 0},
		{in: 12.3456, decimals: 3, want: 12.346},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Round(tt.in, tt.decimals), 1e-12, "Round(%v, %v)", tt.in, tt.decimals)
	}
	assert.True(t, math.IsNaN(Round(math.NaN(), 2)))
	assert.False(t, math.Signbit(Round(-0.0001, 2)))
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "single", values: []float64{4}, want: 4},
		{name: "odd", values: []float64{9, 1, 5}, want: 5},
		{name: "even", values: []float64{4, 1, 3, 2}, want: 2.5},
		{name: "duplicates", values: []float64{2, 2, 7, 2}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]float64(nil), tt.values...)
			assert.Equal(t, tt.want, Median(in))
			assert.Equal(t, tt.values, in)
		})
	}
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestIsIntegral(t *testing.T) {
	assert.True(t, IsIntegral(3))
	assert.True(t, IsIntegral(-2))
	assert.False(t, IsIntegral(2.5))
	assert.False(t, IsIntegral(math.NaN()))
	assert.False(t, IsIntegral(math.Inf(1)))
}

func TestPow2(t *testing.T) {
	assert.Equal(t, uint(1), Pow2(0))
	assert.Equal(t, uint(1024), Pow2(10))
}
