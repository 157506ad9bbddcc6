// Package tilestats summarises the bands of one raster tile: land-use shares
// for the classification band and descriptive statistics for all others.
package tilestats

import (
	"errors"
	"fmt"
	"math"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/landuse"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/mathhelp"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/raster"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultCloudClass is the land-use class of pixels without a ground observation.
	DefaultCloudClass = "clouds/shadows"
	// DefaultSentinel is the value below which a pixel is treated as a no-data marker.
	DefaultSentinel = -10_000_000
	// Decimals of a rounded statistic
	Decimals = 3
)

// Statistic is a descriptive statistic of the valid values of a band.
type Statistic string

const (
	Mean                   Statistic = "mean"
	Minimum                Statistic = "minimum"
	Maximum                Statistic = "maximum"
	Range                  Statistic = "range"
	Median                 Statistic = "median"
	CoefficientOfVariation Statistic = "coefficient_of_variation"
)

// AllStatistics in output order.
var AllStatistics = []Statistic{Mean, Minimum, Maximum, Range, Median, CoefficientOfVariation}

// Key is the output column of a statistic of a band.
func Key(band int, s Statistic) string {
	return fmt.Sprintf("band %d - %s", band, s)
}

// Reason tells why a tile is left out of the output.
type Reason string

const (
	AllNoData      Reason = "all_nodata"
	SentinelNoData Reason = "sentinel_nodata"
	AllCloud       Reason = "all_cloud"
	Unclassified   Reason = "unclassified"
)

// InvalidTileError is returned for tiles that must be skipped.
type InvalidTileError struct {
	Reason Reason
	Band   int
}

func (e *InvalidTileError) Error() string {
	return fmt.Sprintf("invalid tile: band %d: %s", e.Band, e.Reason)
}

// IsInvalid returns the reason when err is an InvalidTileError.
func IsInvalid(err error) (Reason, bool) {
	var invalid *InvalidTileError
	if errors.As(err, &invalid) {
		return invalid.Reason, true
	}
	return "", false
}

// Record maps output columns to values of one tile.
type Record map[string]float64

// Engine computes the record of a tile.
type Engine struct {
	// 1-indexed band holding land-use class codes
	LandUseBand int
	Lookup      landuse.Lookup
	// Tiles entirely of this class are skipped
	CloudClass string
	// Bands entirely below this value are treated as no-data
	Sentinel   float64
	Statistics []Statistic
	Read       raster.ReadOptions
	// Allowed deviation of the sum of land-use shares from 1
	Tolerance float64
}

// NewEngine returns an engine with the default cloud class, sentinel, tolerance
// and all statistics.
func NewEngine(landUseBand int, lookup landuse.Lookup) *Engine {
	return &Engine{
		LandUseBand: landUseBand,
		Lookup:      lookup,
		CloudClass:  DefaultCloudClass,
		Sentinel:    DefaultSentinel,
		Statistics:  AllStatistics,
		Tolerance:   landuse.Tolerance,
	}
}

// Validate checks the engine against the raster it will read.
func (e *Engine) Validate(meta raster.Meta) error {
	if e.LandUseBand < 1 || e.LandUseBand > meta.Bands {
		return fmt.Errorf("land-use %w: band %d of %d", raster.ErrBandOutOfRange, e.LandUseBand, meta.Bands)
	}
	if e.Lookup.Len() == 0 {
		return fmt.Errorf("%w: no classes", landuse.ErrSchemaMismatch)
	}
	return nil
}

// Columns returns the output columns of the engine, in order: land-use
// classes, then the statistics of every other band.
func (e *Engine) Columns(bands int) []string {
	columns := e.Lookup.Names()
	for band := 1; band <= bands; band++ {
		if band == e.LandUseBand {
			continue
		}
		for _, s := range e.Statistics {
			columns = append(columns, Key(band, s))
		}
	}
	return columns
}

// Compute reads every band of window w and returns the tile's record. An
// *InvalidTileError is returned as soon as one band disqualifies the tile.
func (e *Engine) Compute(ds raster.Dataset, w raster.Window) (Record, error) {
	meta := ds.Meta()
	record := make(Record)
	for band := 1; band <= meta.Bands; band++ {
		values, err := ds.ReadWindow(band, w, e.Read)
		if err != nil {
			return nil, fmt.Errorf("reading band %d of %v: %w", band, w, err)
		}
		if reason, invalid := e.checkNoData(meta, values); invalid {
			return nil, &InvalidTileError{Reason: reason, Band: band}
		}
		if band == e.LandUseBand {
			if err = e.addProportions(record, band, values); err != nil {
				return nil, err
			}
			continue
		}
		e.addStatistics(record, band, meta, values)
	}
	return record, nil
}

func (e *Engine) checkNoData(meta raster.Meta, values []float64) (Reason, bool) {
	allNoData, allSentinel := true, true
	for _, v := range values {
		if meta.IsNoData(v) {
			continue
		}
		allNoData = false
		if v >= e.Sentinel {
			allSentinel = false
			break
		}
	}
	switch {
	case allNoData:
		return AllNoData, true
	case allSentinel:
		return SentinelNoData, true
	}
	return "", false
}

func (e *Engine) addProportions(record Record, band int, values []float64) error {
	props, err := e.Lookup.Proportions(values)
	if errors.Is(err, landuse.ErrNoClassifiedPixels) {
		return &InvalidTileError{Reason: Unclassified, Band: band}
	}
	if err != nil {
		return err
	}
	if err = props.Check(e.Tolerance); err != nil {
		return err
	}
	if share, ok := props.Get(e.CloudClass); ok && share == 1 {
		return &InvalidTileError{Reason: AllCloud, Band: band}
	}
	for name, share := range props.Map() {
		record[name] = share
	}
	return nil
}

func (e *Engine) addStatistics(record Record, band int, meta raster.Meta, values []float64) {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if meta.IsNoData(v) || v < 0 {
			continue
		}
		valid = append(valid, v)
	}
	if len(valid) == 0 {
		return
	}
	for s, v := range Describe(valid, e.Statistics) {
		record[Key(band, s)] = v
	}
}

// Describe computes the requested statistics of values, rounded to Decimals.
// The coefficient of variation uses the sample standard deviation and is left
// out when the mean is zero or fewer than two values are given.
func Describe(values []float64, statistics []Statistic) map[Statistic]float64 {
	out := make(map[Statistic]float64, len(statistics))
	if len(values) == 0 {
		return out
	}
	mean, std := stat.MeanStdDev(values, nil)
	lo, hi := floats.Min(values), floats.Max(values)
	for _, s := range statistics {
		switch s {
		case Mean:
			out[s] = mathhelp.Round(mean, Decimals)
		case Minimum:
			out[s] = mathhelp.Round(lo, Decimals)
		case Maximum:
			out[s] = mathhelp.Round(hi, Decimals)
		case Range:
			out[s] = mathhelp.Round(hi-lo, Decimals)
		case Median:
			out[s] = mathhelp.Round(mathhelp.Median(values), Decimals)
		case CoefficientOfVariation:
			if mean == 0 || len(values) < 2 || math.IsNaN(std) {
				continue
			}
			out[s] = mathhelp.Round(std/mean*100, Decimals)
		}
	}
	return out
}

// ParseStatistic returns the statistic with the given name.
func ParseStatistic(name string) (Statistic, error) {
	for _, s := range AllStatistics {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown statistic %q", name)
}
