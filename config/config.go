// Package config holds the settings of an aggregation run. Settings come from
// defaults, an optional TOML file and command line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/landuse"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/pipeline"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/points"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/raster"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/tilestats"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var ErrUnknownKey = errors.New("unknown configuration key")

type Config struct {
	// GeoTIFF with the land-use band and the bands to describe
	Raster string `toml:"raster" validate:"required"`
	// Ground sizes of a tile edge, one output table per dimension
	Dimensions []float64 `toml:"dimensions" default:"[1000]" validate:"min=1,dive,gt=0"`
	// Directory of the output tables
	Output string `toml:"output" default:"data/output" validate:"required"`
	// 1-indexed band holding land-use class codes
	LandUseBand int `toml:"land_use_band" default:"16" validate:"min=1"`
	// Text file with one code=name line per land-use class
	LookupTable string `toml:"lookup_table" validate:"required"`
	CloudClass  string `toml:"cloud_class" default:"clouds/shadows"`

	Points Points `toml:"points" default:"{}"`
	// Reductions applied to the point attributes of a tile
	Reductions []string `toml:"reductions" default:"[\"mean\"]" validate:"min=1,dive,oneof=mean median min max range"`
	// Statistics of the non land-use bands
	BandStatistics []string `toml:"band_statistics" validate:"dive,oneof=mean minimum maximum range median coefficient_of_variation"`
	// When positive, a run fails unless exactly this many points are matched
	ExpectedPoints int `toml:"expected_points" validate:"min=0"`

	Precision int  `toml:"precision" default:"2" validate:"min=0,max=12"`
	Boundless bool `toml:"boundless"`

	MetricsFile string `toml:"metrics_file"`
	// GeoPackage or shapefile receiving the tile footprints of each table
	Footprints string `toml:"footprints" validate:"omitempty,endswith=.gpkg|endswith=.shp"`
	SRID       int    `toml:"srid" default:"32626" validate:"min=1"`

	Log Log `toml:"log" default:"{}"`
}

// Points describes the point observation file.
type Points struct {
	Path string `toml:"path" validate:"required"`
	X    string `toml:"x" default:"UTM E" validate:"required"`
	Y    string `toml:"y" default:"UTM N" validate:"required"`
	// Attribute columns by name; when empty the last TrailingColumns are used
	Columns         []string `toml:"columns"`
	TrailingColumns int      `toml:"trailing_columns" default:"29" validate:"min=0"`
}

type Log struct {
	Level   string `toml:"level" default:"info" validate:"oneof=debug info warn error"`
	Console bool   `toml:"console"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var c Config
	// only fails on malformed tags
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}
	return c
}

// Load reads a TOML file on top of the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, fmt.Errorf("config file does not exist: %s", path)
		}
		return c, fmt.Errorf("on file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return c, fmt.Errorf("%w: on file %q: %s", ErrUnknownKey, path, strings.Join(keys, ", "))
	}
	return c, nil
}

// Validate checks the values and the existence of every input file, so a run
// fails before any tile is read.
func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return err
	}
	inputs := []struct {
		path    string
		missing error
	}{
		{c.Raster, raster.ErrMissingFile},
		{c.LookupTable, landuse.ErrMissingFile},
		{c.Points.Path, points.ErrMissingFile},
	}
	for _, in := range inputs {
		if _, err := os.Stat(in.path); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", in.missing, in.path)
		} else if err != nil {
			return err
		}
	}
	return nil
}

// PointSchema selects the columns of the point file.
func (c Config) PointSchema() points.Schema {
	return points.Schema{
		X:               c.Points.X,
		Y:               c.Points.Y,
		Columns:         c.Points.Columns,
		TrailingColumns: c.Points.TrailingColumns,
	}
}

// Pipeline returns the run settings shared by every dimension.
func (c Config) Pipeline(runID string) (pipeline.Config, error) {
	reductions, err := points.ParseReductions(c.Reductions)
	if err != nil {
		return pipeline.Config{}, err
	}
	var statistics []tilestats.Statistic
	for _, name := range c.BandStatistics {
		s, err := tilestats.ParseStatistic(name)
		if err != nil {
			return pipeline.Config{}, err
		}
		statistics = append(statistics, s)
	}
	return pipeline.Config{
		LandUseBand:    c.LandUseBand,
		Reductions:     reductions,
		Statistics:     statistics,
		CloudClass:     c.CloudClass,
		Read:           raster.ReadOptions{Boundless: c.Boundless},
		ExpectedPoints: c.ExpectedPoints,
		RunID:          runID,
	}, nil
}
