package tilestats

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/landuse"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/raster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLookup(t *testing.T) landuse.Lookup {
	lookup, err := landuse.NewLookup([]int{1, 2, 3}, []string{"clouds/shadows", "urban", "bare_soil"})
	require.NoError(t, err)
	return lookup
}

// tile returns a 2x2 raster with the land-use band last
func tile(t *testing.T, nodata *float64, bands ...[]float64) *raster.Memory {
	m, err := raster.FromBands(raster.Meta{
		Width:     2,
		Height:    2,
		Transform: raster.Transform{0, 10, 0, 20, 0, -10},
		NoData:    nodata,
	}, bands...)
	require.NoError(t, err)
	return m
}

func TestEngine_Compute(t *testing.T) {
	nan := math.NaN()
	nodata := -9999.0

	tests := []struct {
		name       string
		nodata     *float64
		bands      [][]float64
		want       Record
		wantReason Reason
		wantErr    error
	}{
		{
			name: "valid tile",
			bands: [][]float64{
				{1, 2, 3, 4},
				{2, 2, 3, 3},
			},
			want: Record{
				"clouds/shadows":                    0,
				"urban":                             0.5,
				"bare_soil":                         0.5,
				"band 1 - mean":                     2.5,
				"band 1 - minimum":                  1,
				"band 1 - maximum":                  4,
				"band 1 - range":                    3,
				"band 1 - median":                   2.5,
				"band 1 - coefficient_of_variation": 51.640,
			},
		},
		{
			name:   "negatives and no-data excluded from statistics",
			nodata: &nodata,
			bands: [][]float64{
				{-5, 6, -9999, 2},
				{2, 2, 2, 2},
			},
			want: Record{
				"clouds/shadows":                    0,
				"urban":                             1,
				"bare_soil":                         0,
				"band 1 - mean":                     4,
				"band 1 - minimum":                  2,
				"band 1 - maximum":                  6,
				"band 1 - range":                    4,
				"band 1 - median":                   4,
				"band 1 - coefficient_of_variation": 70.711,
			},
		},
		{
			name: "band without valid values left blank",
			bands: [][]float64{
				{-1, -2, -3, -4},
				{3, 3, 3, 3},
			},
			want: Record{
				"clouds/shadows": 0,
				"urban":          0,
				"bare_soil":      1,
			},
		},
		{
			name: "zero mean has no coefficient of variation",
			bands: [][]float64{
				{0, 0, 0, 0},
				{3, 3, 3, 3},
			},
			want: Record{
				"clouds/shadows":   0,
				"urban":            0,
				"bare_soil":        1,
				"band 1 - mean":    0,
				"band 1 - minimum": 0,
				"band 1 - maximum": 0,
				"band 1 - range":   0,
				"band 1 - median":  0,
			},
		},
		{
			name: "all NaN",
			bands: [][]float64{
				{nan, nan, nan, nan},
				{2, 2, 3, 3},
			},
			wantReason: AllNoData,
		},
		{
			name:   "all no-data value",
			nodata: &nodata,
			bands: [][]float64{
				{1, 2, 3, 4},
				{-9999, -9999, -9999, -9999},
			},
			wantReason: AllNoData,
		},
		{
			name: "sentinel values",
			bands: [][]float64{
				{-3.4e38, -3.4e38, -3.4e38, -3.4e38},
				{2, 2, 3, 3},
			},
			wantReason: SentinelNoData,
		},
		{
			name: "all cloud",
			bands: [][]float64{
				{1, 2, 3, 4},
				{1, 1, 1, 0},
			},
			wantReason: AllCloud,
		},
		{
			name: "nothing classified",
			bands: [][]float64{
				{1, 2, 3, 4},
				{0, 0, 7, 8},
			},
			wantReason: Unclassified,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(2, testLookup(t))
			ds := tile(t, tt.nodata, tt.bands...)
			got, err := engine.Compute(ds, ds.Meta().Full())
			if tt.wantReason != "" {
				reason, invalid := IsInvalid(err)
				require.Truef(t, invalid, "expected invalid tile, got %v", err)
				assert.Equal(t, tt.wantReason, reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_Compute_stopsAtFirstInvalidBand(t *testing.T) {
	engine := NewEngine(3, testLookup(t))
	nan := math.NaN()
	ds := tile(t, nil,
		[]float64{1, 2, 3, 4},
		[]float64{nan, nan, nan, nan},
		[]float64{1, 1, 1, 1},
	)
	_, err := engine.Compute(ds, ds.Meta().Full())
	var invalid *InvalidTileError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, 2, invalid.Band)
	assert.Equal(t, AllNoData, invalid.Reason)
}

func TestEngine_Compute_manyClasses(t *testing.T) {
	codes := make([]int, 22)
	names := make([]string, 22)
	for i := range codes {
		codes[i] = i + 1
		names[i] = fmt.Sprintf("class_%d", i+1)
	}
	lookup, err := landuse.NewLookup(codes, names)
	require.NoError(t, err)

	landUse := make([]float64, 160)
	for i := range landUse {
		landUse[i] = 22
	}
	for code := 1; code <= 21; code++ {
		landUse[code-1] = float64(code)
	}
	ds, err := raster.FromBands(raster.Meta{
		Width:     16,
		Height:    10,
		Transform: raster.Transform{0, 10, 0, 100, 0, -10},
	}, landUse)
	require.NoError(t, err)

	got, err := NewEngine(1, lookup).Compute(ds, ds.Meta().Full())
	require.NoError(t, err)
	assert.Len(t, got, 22)
	assert.Equal(t, 0.0063, got["class_1"])
	assert.Equal(t, 0.8688, got["class_22"])
}

func TestEngine_Compute_readError(t *testing.T) {
	engine := NewEngine(2, testLookup(t))
	ds := tile(t, nil, []float64{1, 2, 3, 4}, []float64{2, 2, 2, 2})
	_, err := engine.Compute(ds, raster.Window{ColOff: 5, RowOff: 5, Width: 1, Height: 1})
	assert.ErrorIs(t, err, raster.ErrWindowOutOfRange)
	_, invalid := IsInvalid(err)
	assert.False(t, invalid)
}

func TestEngine_Validate(t *testing.T) {
	meta := raster.Meta{Width: 1, Height: 1, Bands: 4}
	assert.NoError(t, NewEngine(4, testLookup(t)).Validate(meta))
	assert.ErrorIs(t, NewEngine(5, testLookup(t)).Validate(meta), raster.ErrBandOutOfRange)
	assert.ErrorIs(t, NewEngine(1, landuse.Lookup{}).Validate(meta), landuse.ErrSchemaMismatch)
}

func TestEngine_Columns(t *testing.T) {
	engine := NewEngine(2, testLookup(t))
	engine.Statistics = []Statistic{Mean, Median}
	assert.Equal(t, []string{
		"clouds/shadows", "urban", "bare_soil",
		"band 1 - mean", "band 1 - median",
		"band 3 - mean", "band 3 - median",
	}, engine.Columns(3))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   map[Statistic]float64
	}{
		{
			name:   "odd count",
			values: []float64{5, 1, 3},
			want: map[Statistic]float64{
				Mean: 3, Minimum: 1, Maximum: 5, Range: 4, Median: 3, CoefficientOfVariation: 66.667,
			},
		},
		{
			name:   "single value",
			values: []float64{7},
			want: map[Statistic]float64{
				Mean: 7, Minimum: 7, Maximum: 7, Range: 0, Median: 7,
			},
		},
		{
			name:   "empty",
			values: nil,
			want:   map[Statistic]float64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.values, AllStatistics))
		})
	}
}

func TestParseStatistic(t *testing.T) {
	s, err := ParseStatistic("median")
	require.NoError(t, err)
	assert.Equal(t, Median, s)
	_, err = ParseStatistic("mode")
	assert.Error(t, err)
}
