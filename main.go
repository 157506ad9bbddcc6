package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/config"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/footprint"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/gdalraster"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/grid"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/landuse"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/logger"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/metrics"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/pipeline"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/points"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/preprocess"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const RASTER string = `raster`
const DIMENSION string = `dimension`
const OUTPUT string = `output`
const LANDUSEBAND string = `land-use-band`
const LOOKUPTABLE string = `lookup-table`
const POINTS string = `points`
const STATISTIC string = `statistic`
const BANDSTATISTIC string = `band-statistic`
const EXPECTEDPOINTS string = `expected-points`
const PRECISION string = `precision`
const BOUNDLESS string = `boundless`
const CONFIG string = `config`
const METRICSFILE string = `metrics-file`
const FOOTPRINTS string = `footprints`
const SRID string = `srid`
const VERBOSE string = `verbose`
const CONSOLE string = `console`
const SYMMETRIC string = `symmetric`
const PRUNE string = `prune`
const DATA string = `data`
const INDEX string = `index`

func envVars(name string) []string {
	return []string{"GBA_" + strcase.ToScreamingSnake(name)}
}

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "gba"
	app.Usage = "Aggregates a multi-band land-use raster and biodiversity points into per-tile tables"
	app.Version = versioninfo.Short()

	verbose := &cli.BoolFlag{
		Name:    VERBOSE,
		Aliases: []string{"v"},
		Usage:   "Log every tile",
		EnvVars: envVars(VERBOSE),
	}
	console := &cli.BoolFlag{
		Name:    CONSOLE,
		Usage:   "Human readable log lines instead of JSON",
		EnvVars: envVars(CONSOLE),
	}
	rasterFlag := &cli.StringFlag{
		Name:     RASTER,
		Aliases:  []string{"r"},
		Usage:    "Raster file (GeoTIFF)",
		Required: true,
		EnvVars:  envVars(RASTER),
	}

	app.Commands = []*cli.Command{
		{
			Name:  "aggregate",
			Usage: "Compute land-use proportions, band statistics and point reductions per tile",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    CONFIG,
					Aliases: []string{"c"},
					Usage:   "TOML file with settings; flags take precedence",
					EnvVars: envVars(CONFIG),
				},
				&cli.StringFlag{
					Name:    RASTER,
					Aliases: []string{"r"},
					Usage:   "Raster file (GeoTIFF)",
					EnvVars: envVars(RASTER),
				},
				&cli.Float64SliceFlag{
					Name:    DIMENSION,
					Aliases: []string{"d"},
					Usage:   "Ground size of a tile edge in raster units. Repeat for several tables. E.g.: -d 1000 -d 2500",
					EnvVars: envVars(DIMENSION),
				},
				&cli.StringFlag{
					Name:    OUTPUT,
					Aliases: []string{"o"},
					Usage:   "Directory of the output tables",
					EnvVars: envVars(OUTPUT),
				},
				&cli.IntFlag{
					Name:    LANDUSEBAND,
					Aliases: []string{"b"},
					Usage:   "Band (1-indexed) holding the land-use classes",
					EnvVars: envVars(LANDUSEBAND),
				},
				&cli.StringFlag{
					Name:    LOOKUPTABLE,
					Aliases: []string{"l"},
					Usage:   "Land-use lookup table with code=name lines",
					EnvVars: envVars(LOOKUPTABLE),
				},
				&cli.StringFlag{
					Name:    POINTS,
					Aliases: []string{"p"},
					Usage:   "CSV file with point observations",
					EnvVars: envVars(POINTS),
				},
				&cli.StringSliceFlag{
					Name:    STATISTIC,
					Aliases: []string{"s"},
					Usage:   "Reduction of the point attributes: mean, median, min, max or range. Repeatable",
					EnvVars: envVars(STATISTIC),
				},
				&cli.StringSliceFlag{
					Name:    BANDSTATISTIC,
					Usage:   "Statistic of the other bands. Repeatable, all when absent",
					EnvVars: envVars(BANDSTATISTIC),
				},
				&cli.IntFlag{
					Name:    EXPECTEDPOINTS,
					Usage:   "Fail unless exactly this many points are matched to retained tiles",
					EnvVars: envVars(EXPECTEDPOINTS),
				},
				&cli.IntFlag{
					Name:    PRECISION,
					Usage:   "Decimals in the output tables",
					EnvVars: envVars(PRECISION),
				},
				&cli.BoolFlag{
					Name:    BOUNDLESS,
					Usage:   "Read edge tiles at full size, filling cells outside the raster",
					EnvVars: envVars(BOUNDLESS),
				},
				&cli.StringFlag{
					Name:    METRICSFILE,
					Usage:   "Write Prometheus metrics of the run to this textfile",
					EnvVars: envVars(METRICSFILE),
				},
				&cli.StringFlag{
					Name:    FOOTPRINTS,
					Usage:   "GeoPackage or shapefile (prefix) receiving the tile footprints. One file per dimension, e.g. tiles_1000.gpkg",
					EnvVars: envVars(FOOTPRINTS),
				},
				&cli.IntFlag{
					Name:    SRID,
					Usage:   "EPSG code of the footprint coordinates",
					EnvVars: envVars(SRID),
				},
				verbose,
				console,
			},
			Action: aggregate,
		},
		{
			Name:  "plan",
			Usage: "Print the tile grid of a raster as JSON",
			Flags: []cli.Flag{
				rasterFlag,
				&cli.Float64Flag{
					Name:     DIMENSION,
					Aliases:  []string{"d"},
					Usage:    "Ground size of a tile edge in raster units",
					Required: true,
					EnvVars:  envVars(DIMENSION),
				},
			},
			Action: func(c *cli.Context) error {
				ds, err := gdalraster.Store{}.Open(c.String(RASTER))
				if err != nil {
					return err
				}
				defer ds.Close()
				plan, err := grid.PlanGrid(ds.Meta(), c.Float64(DIMENSION))
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(&plan, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(c.App.Writer, string(out))
				return err
			},
		},
		{
			Name:  "pad",
			Usage: "Pad a raster with zeros so it divides into whole tiles",
			Flags: []cli.Flag{
				rasterFlag,
				&cli.StringFlag{
					Name:     OUTPUT,
					Aliases:  []string{"o"},
					Usage:    "Padded raster",
					Required: true,
					EnvVars:  envVars(OUTPUT),
				},
				&cli.Float64Flag{
					Name:     DIMENSION,
					Aliases:  []string{"d"},
					Usage:    "Ground size of a tile edge in raster units",
					Required: true,
					EnvVars:  envVars(DIMENSION),
				},
				&cli.BoolFlag{
					Name:    SYMMETRIC,
					Usage:   "Pad on all sides instead of bottom and right only",
					EnvVars: envVars(SYMMETRIC),
				},
				console,
			},
			Action: func(c *cli.Context) error {
				mode := preprocess.Trailing
				if c.Bool(SYMMETRIC) {
					mode = preprocess.Symmetric
				}
				meta, err := preprocess.PadRaster(gdalraster.Store{}, c.String(RASTER), c.String(OUTPUT), c.Float64(DIMENSION), mode)
				if err != nil {
					return err
				}
				l := newLogger(c, "pad")
				l.Info().Str("output", c.String(OUTPUT)).Int("width", meta.Width).Int("height", meta.Height).Msg("raster padded")
				return nil
			},
		},
		{
			Name:  "tile",
			Usage: "Write every tile of a raster to its own GeoTIFF",
			Flags: []cli.Flag{
				rasterFlag,
				&cli.StringFlag{
					Name:     OUTPUT,
					Aliases:  []string{"o"},
					Usage:    "Directory of the tiles",
					Required: true,
					EnvVars:  envVars(OUTPUT),
				},
				&cli.Float64Flag{
					Name:     DIMENSION,
					Aliases:  []string{"d"},
					Usage:    "Ground size of a tile edge in raster units",
					Required: true,
					EnvVars:  envVars(DIMENSION),
				},
				&cli.BoolFlag{
					Name:    PRUNE,
					Usage:   "Remove tiles whose first band holds a single value",
					EnvVars: envVars(PRUNE),
				},
				console,
			},
			Action: tile,
		},
		{
			Name:  "footprints",
			Usage: "Export the tile boxes of an output table as polygons",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     DATA,
					Usage:    "Output table of an aggregation run",
					Required: true,
					EnvVars:  envVars(DATA),
				},
				&cli.IntFlag{
					Name:    INDEX,
					Usage:   "Export only this row (0-indexed)",
					Value:   -1,
					EnvVars: envVars(INDEX),
				},
				&cli.StringFlag{
					Name:     OUTPUT,
					Aliases:  []string{"o"},
					Usage:    "GeoPackage (.gpkg) or shapefile (.shp)",
					Required: true,
					EnvVars:  envVars(OUTPUT),
				},
				&cli.IntFlag{
					Name:    SRID,
					Usage:   "EPSG code of the coordinates",
					Value:   config.Default().SRID,
					EnvVars: envVars(SRID),
				},
				verbose,
				console,
			},
			Action: func(c *cli.Context) error {
				l := newLogger(c, "footprints")
				n, err := footprint.Export(c.String(DATA), c.String(OUTPUT), c.Int(SRID), c.Int(INDEX), l)
				if err != nil {
					return err
				}
				l.Info().Int("footprints", n).Str("output", c.String(OUTPUT)).Msg("footprints written")
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context, component string) zerolog.Logger {
	level := "info"
	if c.Bool(VERBOSE) {
		level = "debug"
	}
	return logger.Build(logger.Config{Level: level, Console: c.Bool(CONSOLE), Component: component}, c.App.ErrWriter)
}

// loadConfig applies the flags that were set on top of the configuration file.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if c.IsSet(CONFIG) {
		var err error
		if cfg, err = config.Load(c.String(CONFIG)); err != nil {
			return cfg, err
		}
	}
	if c.IsSet(RASTER) {
		cfg.Raster = c.String(RASTER)
	}
	if c.IsSet(DIMENSION) {
		cfg.Dimensions = c.Float64Slice(DIMENSION)
	}
	if c.IsSet(OUTPUT) {
		cfg.Output = c.String(OUTPUT)
	}
	if c.IsSet(LANDUSEBAND) {
		cfg.LandUseBand = c.Int(LANDUSEBAND)
	}
	if c.IsSet(LOOKUPTABLE) {
		cfg.LookupTable = c.String(LOOKUPTABLE)
	}
	if c.IsSet(POINTS) {
		cfg.Points.Path = c.String(POINTS)
	}
	if c.IsSet(STATISTIC) {
		cfg.Reductions = c.StringSlice(STATISTIC)
	}
	if c.IsSet(BANDSTATISTIC) {
		cfg.BandStatistics = c.StringSlice(BANDSTATISTIC)
	}
	if c.IsSet(EXPECTEDPOINTS) {
		cfg.ExpectedPoints = c.Int(EXPECTEDPOINTS)
	}
	if c.IsSet(PRECISION) {
		cfg.Precision = c.Int(PRECISION)
	}
	if c.IsSet(BOUNDLESS) {
		cfg.Boundless = c.Bool(BOUNDLESS)
	}
	if c.IsSet(METRICSFILE) {
		cfg.MetricsFile = c.String(METRICSFILE)
	}
	if c.IsSet(FOOTPRINTS) {
		cfg.Footprints = c.String(FOOTPRINTS)
	}
	if c.IsSet(SRID) {
		cfg.SRID = c.Int(SRID)
	}
	if c.Bool(VERBOSE) {
		cfg.Log.Level = "debug"
	}
	if c.IsSet(CONSOLE) {
		cfg.Log.Console = c.Bool(CONSOLE)
	}
	return cfg, cfg.Validate()
}

//nolint:funlen
func aggregate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runID := logger.NewRunID()
	ctx = logger.WithRunID(ctx, runID)
	base := logger.Build(logger.Config{Level: cfg.Log.Level, Console: cfg.Log.Console, Component: "aggregate"}, c.App.ErrWriter)
	l := logger.FromContext(ctx, &base)

	provider := metrics.Init(metrics.BuildInfo{Version: versioninfo.Short(), Revision: versioninfo.Revision})

	ds, err := gdalraster.Store{}.Open(cfg.Raster)
	if err != nil {
		return err
	}
	defer ds.Close()
	lookup, err := landuse.LoadLookup(cfg.LookupTable)
	if err != nil {
		return err
	}
	pts, err := points.Load(cfg.Points.Path, cfg.PointSchema())
	if err != nil {
		return err
	}
	l.Info().Str("raster", cfg.Raster).Int("bands", ds.Meta().Bands).Int("classes", lookup.Len()).
		Int("points", pts.Len()).Msg("inputs loaded")

	pcfg, err := cfg.Pipeline(runID)
	if err != nil {
		return err
	}
	pcfg.Logger = l
	pcfg.Metrics = provider
	pcfg.Progress = pipeline.ProgressFunc(func(e pipeline.TileEvent) {
		l.Debug().Int("tile", e.Index+1).Int("of", e.Total).Str("tile_id", e.Tile.ID()).
			Str("outcome", e.Outcome).Int("points", e.Points).Msg("tile done")
	})

	summaries, runErr := pipeline.RunDimensions(ctx, pcfg, cfg.Dimensions, cfg.Precision, cfg.Output, ds, lookup, pts)
	if cfg.MetricsFile != "" {
		if err = provider.WriteTextfile(cfg.MetricsFile); err != nil {
			l.Error().Err(err).Str("path", cfg.MetricsFile).Msg("could not write metrics")
		}
	}
	if runErr != nil {
		return runErr
	}

	if cfg.Footprints != "" {
		footprintPathFmt := injectSuffixIntoPath(cfg.Footprints)
		for _, s := range summaries {
			out := fmt.Sprintf(footprintPathFmt, strconv.FormatFloat(s.Dimension, 'f', -1, 64))
			n, err := footprint.Export(filepath.Join(cfg.Output, pipeline.OutputName(s.Dimension)), out, cfg.SRID, -1, *l)
			if err != nil {
				return err
			}
			l.Info().Float64("dimension", s.Dimension).Int("footprints", n).Str("output", out).Msg("footprints written")
		}
	}
	return nil
}

func tile(c *cli.Context) error {
	l := newLogger(c, "tile")
	store := gdalraster.Store{}
	in, outDir := c.String(RASTER), c.String(OUTPUT)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	tilePixels, err := preprocess.TilePixels(store, in, c.Float64(DIMENSION))
	if err != nil {
		return err
	}
	paths, err := preprocess.PhysicallyTile(store, in, outDir, tilePixels)
	if err != nil {
		return err
	}
	l.Info().Int("tiles", len(paths)).Int("tile_pixels", tilePixels).Str("output", outDir).Msg("raster tiled")
	if !c.Bool(PRUNE) {
		return nil
	}
	removed, err := preprocess.RemoveDegenerateTiles(store, paths)
	if err != nil {
		return err
	}
	l.Info().Int("removed", len(removed)).Msg("single value tiles removed")
	return nil
}

func injectSuffixIntoPath(p string) string {
	dir, file := path.Split(p)
	ext := path.Ext(file)
	name := file[:len(file)-len(ext)]
	return path.Join(dir, name+"_%v"+ext)
}
