// Package pipeline takes care of the logistics of one aggregation run: it walks
// the tile grid of a raster, asks tilestats and points for the tile's values
// and hands retained rows to a table.Target. Not the statistics themselves.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/grid"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/landuse"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/mapslicehelp"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/metrics"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/points"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/raster"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/table"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/tilestats"

	"github.com/rs/zerolog"
	"github.com/umpc/go-sortedmap"
)

var ErrPointTotalMismatch = errors.New("number of matched points differs from the expected total")

// Retained is the outcome of a tile that became a row.
const Retained = "retained"

// NoPoints is the skip reason of a tile without matched points.
const NoPoints tilestats.Reason = "no_points"

// Config is everything a run needs besides its inputs.
type Config struct {
	// Ground size of a tile edge, in raster units
	Dimension   float64
	LandUseBand int
	Reductions  []points.Reduction
	Statistics  []tilestats.Statistic
	CloudClass  string
	Read        raster.ReadOptions
	// When positive, the run fails unless exactly this many points are matched.
	// Only points of retained tiles count, and a point on an edge shared by
	// two tile boxes counts once for each of them.
	ExpectedPoints int
	RunID          string

	Logger   *zerolog.Logger
	Progress Progress
	Metrics  *metrics.Provider
}

// TileEvent describes one visited tile.
type TileEvent struct {
	Index   int
	Total   int
	Tile    grid.Tile
	Outcome string
	Points  int
}

// Progress is told about every tile, in scan order.
type Progress interface {
	Tile(TileEvent)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(TileEvent)

func (f ProgressFunc) Tile(e TileEvent) { f(e) }

// Summary counts what happened to the tiles of a run.
type Summary struct {
	Dimension     float64
	Tiles         int
	Retained      int
	Skipped       map[tilestats.Reason]int
	PointsMatched int
}

type skipCount struct {
	reason tilestats.Reason
	count  int
}

// SkippedByCount returns the skip reasons, most frequent first; ties in
// alphabetical order.
func (s Summary) SkippedByCount() []tilestats.Reason {
	sm := sortedmap.New(len(s.Skipped), func(i, j interface{}) bool {
		a, b := i.(skipCount), j.(skipCount)
		if a.count != b.count {
			return a.count > b.count
		}
		return a.reason < b.reason
	})
	for _, reason := range mapslicehelp.SortedKeys(s.Skipped) {
		sm.Insert(reason, skipCount{reason: reason, count: s.Skipped[reason]})
	}
	out := make([]tilestats.Reason, 0, len(s.Skipped))
	for _, key := range sm.Keys() {
		out = append(out, key.(tilestats.Reason))
	}
	return out
}

// Columns returns the output schema of a run over ds.
func Columns(engine *tilestats.Engine, bands int, pts *points.Dataset, reductions []points.Reduction) (table.Schema, error) {
	return table.NewSchema(engine.Columns(bands), pts.Keys(reductions))
}

func (cfg Config) engine(lookup landuse.Lookup) *tilestats.Engine {
	engine := tilestats.NewEngine(cfg.LandUseBand, lookup)
	if cfg.CloudClass != "" {
		engine.CloudClass = cfg.CloudClass
	}
	if len(cfg.Statistics) > 0 {
		engine.Statistics = cfg.Statistics
	}
	engine.Read = cfg.Read
	return engine
}

func (cfg Config) reductions() []points.Reduction {
	if len(cfg.Reductions) == 0 {
		return []points.Reduction{points.Mean}
	}
	return cfg.Reductions
}

func (cfg Config) logger() *zerolog.Logger {
	if cfg.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return cfg.Logger
}

// Plan returns the grid of a run over meta.
func (cfg Config) Plan(meta raster.Meta) (grid.Plan, error) {
	plan, err := grid.PlanGrid(meta, cfg.Dimension)
	if err != nil {
		return plan, err
	}
	plan.Boundless = cfg.Read.Boundless
	plan.RunID = cfg.RunID
	return plan, nil
}

// Run aggregates ds tile by tile into target, which is closed on return.
// Invalid tiles and tiles without points are skipped. Rows written before an
// error or a cancelled ctx stay in target.
func Run(ctx context.Context, cfg Config, ds raster.Dataset, lookup landuse.Lookup, pts *points.Dataset, target table.Target) (summary Summary, err error) {
	defer func() {
		if cerr := target.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing target: %w", cerr)
		}
	}()
	log := cfg.logger().With().Float64("dimension", cfg.Dimension).Logger()
	summary = Summary{Dimension: cfg.Dimension, Skipped: make(map[tilestats.Reason]int)}

	// init
	meta := ds.Meta()
	plan, err := cfg.Plan(meta)
	if err != nil {
		return summary, err
	}
	engine := cfg.engine(lookup)
	if err = engine.Validate(meta); err != nil {
		return summary, err
	}
	reductions := cfg.reductions()
	_, err = Columns(engine, meta.Bands, pts, reductions)
	if err != nil {
		return summary, err
	}
	log.Info().
		Int("tile_width", plan.TileWidth).Int("tile_height", plan.TileHeight).
		Int("tiles_x", plan.MatrixWidth).Int("tiles_y", plan.MatrixHeight).
		Msgf("you will have %d x %d = %d tiles in total", plan.MatrixWidth, plan.MatrixHeight, plan.Len())

	// per tile
	tiles := plan.Tiles()
	for i, tile := range tiles {
		if err = ctx.Err(); err != nil {
			return summary, err
		}
		summary.Tiles++
		event := TileEvent{Index: i, Total: len(tiles), Tile: tile}

		var record tilestats.Record
		record, err = engine.Compute(ds, tile.Window)
		if reason, invalid := tilestats.IsInvalid(err); invalid {
			cfg.skip(&summary, event, reason, log)
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("tile %s: %w", tile.ID(), err)
		}

		bounds := plan.Bounds(tile.X, tile.Y)
		pointRecord, count := pts.Aggregate(bounds, reductions)
		if count == 0 {
			cfg.skip(&summary, event, NoPoints, log)
			continue
		}

		row := table.Row{
			TileID:     tile.ID(),
			ColOff:     tile.Window.ColOff,
			RowOff:     tile.Window.RowOff,
			Bounds:     bounds,
			PointCount: count,
			Values:     make(map[string]float64, len(record)+len(pointRecord)),
		}
		for k, v := range record {
			row.Values[k] = v
		}
		for k, v := range pointRecord {
			row.Values[k] = v
		}
		if err = target.Write(row); err != nil {
			return summary, fmt.Errorf("writing tile %s: %w", tile.ID(), err)
		}
		summary.Retained++
		summary.PointsMatched += count
		cfg.Metrics.ObserveTile(cfg.Dimension, Retained)
		cfg.Metrics.AddPointsMatched(cfg.Dimension, count)
		event.Outcome, event.Points = Retained, count
		if cfg.Progress != nil {
			cfg.Progress.Tile(event)
		}
	}

	// finalize
	ev := log.Info().Int("tiles", summary.Tiles).Int("retained", summary.Retained).Int("points_matched", summary.PointsMatched)
	for _, reason := range summary.SkippedByCount() {
		ev = ev.Int("skipped_"+string(reason), summary.Skipped[reason])
	}
	ev.Msg("aggregation finished")

	if cfg.ExpectedPoints > 0 && summary.PointsMatched != cfg.ExpectedPoints {
		return summary, fmt.Errorf("%w: only %d points out of %d", ErrPointTotalMismatch, summary.PointsMatched, cfg.ExpectedPoints)
	}
	return summary, nil
}

func (cfg Config) skip(summary *Summary, event TileEvent, reason tilestats.Reason, log zerolog.Logger) {
	summary.Skipped[reason]++
	cfg.Metrics.ObserveTile(cfg.Dimension, string(reason))
	log.Debug().
		Int("col_off", event.Tile.Window.ColOff).
		Int("row_off", event.Tile.Window.RowOff).
		Str("reason", string(reason)).
		Msg("skipping tile")
	event.Outcome = string(reason)
	if cfg.Progress != nil {
		cfg.Progress.Tile(event)
	}
}

// OutputName is the table file name of a dimension.
func OutputName(dimension float64) string {
	return "dimension_" + strconv.FormatFloat(dimension, 'f', -1, 64) + ".csv"
}

// PlanName is the grid manifest file name of a dimension.
func PlanName(dimension float64) string {
	return "dimension_" + strconv.FormatFloat(dimension, 'f', -1, 64) + ".grid.json"
}

// RunDimensions runs one pass per dimension, writing a table and a grid
// manifest for each into outDir. cfg.Dimension is ignored.
func RunDimensions(ctx context.Context, cfg Config, dimensions []float64, precision int, outDir string,
	ds raster.Dataset, lookup landuse.Lookup, pts *points.Dataset) ([]Summary, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(dimensions))
	for _, dimension := range dimensions {
		cfg.Dimension = dimension
		plan, err := cfg.Plan(ds.Meta())
		if err != nil {
			return summaries, fmt.Errorf("dimension %v: %w", dimension, err)
		}
		if err = grid.WritePlan(filepath.Join(outDir, PlanName(dimension)), plan); err != nil {
			return summaries, err
		}
		schema, err := Columns(cfg.engine(lookup), ds.Meta().Bands, pts, cfg.reductions())
		if err != nil {
			return summaries, err
		}
		target, err := table.Create(filepath.Join(outDir, OutputName(dimension)), schema, precision)
		if err != nil {
			return summaries, err
		}
		summary, err := Run(ctx, cfg, ds, lookup, pts, target)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, fmt.Errorf("dimension %v: %w", dimension, err)
		}
	}
	return summaries, nil
}
