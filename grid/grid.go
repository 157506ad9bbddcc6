// Package grid plans the division of a raster into square ground tiles of a
// given dimension, in the raster's units.
//
// A plan is a tile matrix: tile pixel sizes follow from the dimension and the
// cell size, the matrix counts from the raster size. Edge tiles are smaller
// than the others when the raster is not a multiple of the tile size, unless
// the plan is boundless.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/mathhelp"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/raster"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
	"github.com/perimeterx/marshmallow"
)

var (
	ErrInvalidDimension = errors.New("tile dimension must be positive")
	ErrTileTooSmall     = errors.New("tile dimension is smaller than one cell")
)

// ScanOrder is the order in which tiles are visited.
type ScanOrder string

// ColumnMajor visits all tiles of the first column top to bottom, then the next column.
const ColumnMajor ScanOrder = "columnMajor"

// Plan is the tile matrix for one raster and one dimension.
type Plan struct {
	// Ground size of a tile edge, in raster units
	Dimension float64 `validate:"required,gt=0" json:"dimension"`
	// Raster width in pixels
	Width int `validate:"required,min=1" json:"width"`
	// Raster height in pixels
	Height int `validate:"required,min=1" json:"height"`
	// Cell size along x and y, in raster units
	CellSize TwoDPoint `validate:"required" json:"cellSize"`
	// Width of each tile in pixels
	TileWidth int `validate:"required,min=1" json:"tileWidth"`
	// Height of each tile in pixels
	TileHeight int `validate:"required,min=1" json:"tileHeight"`
	// Number of tiles in width
	MatrixWidth int `validate:"required,min=1" json:"matrixWidth"`
	// Number of tiles in height
	MatrixHeight int `validate:"required,min=1" json:"matrixHeight"`
	// Ground extent of the raster
	BoundingBox BoundingBox `json:"boundingBox"`
	CRS         string      `json:"crs,omitempty"`
	// Edge tiles are read at full size with filled cells outside the raster
	Boundless bool      `json:"boundless"`
	Order     ScanOrder `default:"columnMajor" validate:"oneof=columnMajor" json:"order"`
	// Identifies the run that wrote this plan
	RunID string `json:"runId,omitempty"`
}

// TwoDPoint is an x, y pair.
type TwoDPoint [2]float64

// BoundingBox is the minimum bounding rectangle of a raster.
type BoundingBox struct {
	LowerLeft  TwoDPoint `json:"lowerLeft"`
	UpperRight TwoDPoint `json:"upperRight"`
}

func (bb BoundingBox) Extent() geom.Extent {
	return geom.Extent{bb.LowerLeft[0], bb.LowerLeft[1], bb.UpperRight[0], bb.UpperRight[1]}
}

// Tile is one cell of the plan.
type Tile struct {
	// Column and row in the tile matrix, rows counted from the top
	X, Y int
	// Pixel window to read; clipped to the raster unless the plan is boundless
	Window raster.Window
}

// ID names the tile by its pixel offset.
func (t Tile) ID() string {
	return fmt.Sprintf("%d-%d", t.Window.ColOff, t.Window.RowOff)
}

// PlanGrid computes the tile matrix of meta for tiles of dimension ground units.
func PlanGrid(meta raster.Meta, dimension float64) (Plan, error) {
	if err := meta.Validate(); err != nil {
		return Plan{}, err
	}
	if !(dimension > 0) || math.IsInf(dimension, 0) {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidDimension, dimension)
	}
	cellX, cellY := meta.Transform.Resolution()
	if cellX == 0 || cellY == 0 {
		return Plan{}, fmt.Errorf("%w: cell size %vx%v", raster.ErrInvalidDimensions, cellX, cellY)
	}
	tileWidth := int(math.Floor(dimension / cellX))
	tileHeight := int(math.Floor(dimension / cellY))
	if tileWidth < 1 || tileHeight < 1 {
		return Plan{}, fmt.Errorf("%w: %v with cells of %vx%v", ErrTileTooSmall, dimension, cellX, cellY)
	}
	plan, err := PlanPixels(meta, tileWidth, tileHeight)
	plan.Dimension = dimension
	return plan, err
}

// PlanPixels computes the tile matrix of meta for tiles of a fixed pixel size.
// The dimension of the plan is the ground width of a tile.
func PlanPixels(meta raster.Meta, tileWidth, tileHeight int) (Plan, error) {
	if err := meta.Validate(); err != nil {
		return Plan{}, err
	}
	if tileWidth < 1 || tileHeight < 1 {
		return Plan{}, fmt.Errorf("%w: %dx%d pixels", ErrTileTooSmall, tileWidth, tileHeight)
	}
	cellX, cellY := meta.Transform.Resolution()
	bounds := meta.Bounds()
	return Plan{
		Dimension:    float64(tileWidth) * cellX,
		Width:        meta.Width,
		Height:       meta.Height,
		CellSize:     TwoDPoint{cellX, cellY},
		TileWidth:    tileWidth,
		TileHeight:   tileHeight,
		MatrixWidth:  mathhelp.CeilDiv(meta.Width, tileWidth),
		MatrixHeight: mathhelp.CeilDiv(meta.Height, tileHeight),
		BoundingBox: BoundingBox{
			LowerLeft:  TwoDPoint{bounds.MinX(), bounds.MinY()},
			UpperRight: TwoDPoint{bounds.MaxX(), bounds.MaxY()},
		},
		CRS:   meta.CRS,
		Order: ColumnMajor,
	}, nil
}

// Len is the number of tiles.
func (p *Plan) Len() int {
	return p.MatrixWidth * p.MatrixHeight
}

// Tile returns the tile at matrix position (x, y).
func (p *Plan) Tile(x, y int) (Tile, bool) {
	if x < 0 || y < 0 || x >= p.MatrixWidth || y >= p.MatrixHeight {
		return Tile{}, false
	}
	w := raster.Window{
		ColOff: x * p.TileWidth,
		RowOff: y * p.TileHeight,
		Width:  p.TileWidth,
		Height: p.TileHeight,
	}
	if !p.Boundless {
		w = w.Intersect(raster.Window{Width: p.Width, Height: p.Height})
	}
	return Tile{X: x, Y: y, Window: w}, true
}

// Tiles returns all tiles in scan order.
func (p *Plan) Tiles() []Tile {
	tiles := make([]Tile, 0, p.Len())
	for x := 0; x < p.MatrixWidth; x++ {
		for y := 0; y < p.MatrixHeight; y++ {
			t, _ := p.Tile(x, y)
			tiles = append(tiles, t)
		}
	}
	return tiles
}

// Windows returns the pixel windows of all tiles in scan order.
func (p *Plan) Windows() []raster.Window {
	tiles := p.Tiles()
	windows := make([]raster.Window, len(tiles))
	for i, t := range tiles {
		windows[i] = t.Window
	}
	return windows
}

// Bounds returns the ground box of tile (x, y) used to select points. The
// raster extent is divided evenly by the tile counts, so boxes of edge tiles
// have the same size as the others and need not match their pixel windows.
func (p *Plan) Bounds(x, y int) geom.Extent {
	ext := p.BoundingBox.Extent()
	boxWidth := (ext.MaxX() - ext.MinX()) / float64(p.MatrixWidth)
	boxHeight := (ext.MaxY() - ext.MinY()) / float64(p.MatrixHeight)
	left := ext.MinX() + float64(x)*boxWidth
	top := ext.MaxY() - float64(y)*boxHeight
	return geom.Extent{left, top - boxHeight, left + boxWidth, top}
}

func (p *Plan) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(p)
}

func (p *Plan) MarshalJSON() ([]byte, error) {
	type plain Plan // no methods, so no recursion into MarshalJSON
	return json.Marshal(struct {
		plain
		Tiles int `json:"tiles"`
	}{
		plain: plain(*p),
		Tiles: p.Len(),
	})
}

func (p *Plan) UnmarshalJSON(data []byte) error {
	err := defaults.Set(p)
	if err != nil {
		return err
	}
	specials, err := marshmallow.Unmarshal(data, p, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}
	if rawTiles, ok := specials["tiles"]; ok {
		tiles, ok := rawTiles.(float64)
		if !ok {
			return fmt.Errorf(`"tiles" should be a number but is a %T`, rawTiles)
		}
		if int(tiles) != p.MatrixWidth*p.MatrixHeight {
			return fmt.Errorf(`"tiles" is %v, but the matrix has %d`, tiles, p.MatrixWidth*p.MatrixHeight)
		}
	}
	return p.Validate()
}

// LoadPlan reads a plan written by WritePlan.
func LoadPlan(path string) (Plan, error) {
	var p Plan
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(data, &p)
	return p, err
}

// WritePlan writes p as indented JSON.
func WritePlan(path string, p Plan) error {
	data, err := json.MarshalIndent(&p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
