// Package raster describes multi-band georeferenced grids and the narrow interface the
// tiling code needs from them: the grid's metadata and reading or writing a
// rectangular window of one band as float64 values.
//
// Bands are 1-indexed, values are returned row-major (row by row, top to bottom).
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-spatial/geom"
)

var (
	ErrMissingFile       = errors.New("raster file does not exist")
	ErrBandOutOfRange    = errors.New("band out of range")
	ErrWindowOutOfRange  = errors.New("window out of range")
	ErrShapeMismatch     = errors.New("number of values does not match window size")
	ErrInvalidDimensions = errors.New("raster dimensions must be positive")
)

// Transform is an affine transform from pixel to ground coordinates, in GDAL
// geotransform order:
//
//	x = t[0] + col*t[1] + row*t[2]
//	y = t[3] + col*t[4] + row*t[5]
//
// For a north-up raster t[5] is negative.
type Transform [6]float64

// Apply returns the ground coordinate of the top-left corner of pixel (col, row).
func (t Transform) Apply(col, row float64) (x, y float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// Origin is the ground coordinate of the top-left corner of pixel (0, 0).
func (t Transform) Origin() (x, y float64) {
	return t[0], t[3]
}

// Resolution returns the cell size along both axes, as positive ground units.
func (t Transform) Resolution() (cellX, cellY float64) {
	return math.Hypot(t[1], t[4]), math.Hypot(t[2], t[5])
}

// Shift moves the origin by a number of whole pixels; negative values move it up/left.
func (t Transform) Shift(cols, rows int) Transform {
	x, y := t.Apply(float64(cols), float64(rows))
	shifted := t
	shifted[0], shifted[3] = x, y
	return shifted
}

// Window is a rectangular region in pixel space.
type Window struct {
	ColOff int
	RowOff int
	Width  int
	Height int
}

func (w Window) Empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

// Size is the number of pixels in the window.
func (w Window) Size() int {
	if w.Empty() {
		return 0
	}
	return w.Width * w.Height
}

// Intersect returns the overlap of two windows, which may be empty.
func (w Window) Intersect(o Window) Window {
	minCol := max(w.ColOff, o.ColOff)
	minRow := max(w.RowOff, o.RowOff)
	maxCol := min(w.ColOff+w.Width, o.ColOff+o.Width)
	maxRow := min(w.RowOff+w.Height, o.RowOff+o.Height)
	if maxCol <= minCol || maxRow <= minRow {
		return Window{ColOff: minCol, RowOff: minRow}
	}
	return Window{ColOff: minCol, RowOff: minRow, Width: maxCol - minCol, Height: maxRow - minRow}
}

func (w Window) String() string {
	return fmt.Sprintf("Window(col_off=%d, row_off=%d, width=%d, height=%d)", w.ColOff, w.RowOff, w.Width, w.Height)
}

// Meta holds everything about a raster except its pixel values.
type Meta struct {
	Width     int
	Height    int
	Bands     int
	Transform Transform
	// CRS as WKT or an authority string such as EPSG:32626
	CRS    string
	NoData *float64
}

func (m Meta) Validate() error {
	if m.Width <= 0 || m.Height <= 0 || m.Bands <= 0 {
		return fmt.Errorf("%w: %dx%d with %d band(s)", ErrInvalidDimensions, m.Width, m.Height, m.Bands)
	}
	return nil
}

// Full is the window covering the whole raster.
func (m Meta) Full() Window {
	return Window{Width: m.Width, Height: m.Height}
}

// Bounds returns the ground extent as {left, bottom, right, top}.
func (m Meta) Bounds() geom.Extent {
	x0, y0 := m.Transform.Apply(0, 0)
	x1, y1 := m.Transform.Apply(float64(m.Width), float64(m.Height))
	return geom.Extent{min(x0, x1), min(y0, y1), max(x0, x1), max(y0, y1)}
}

// WindowTransform returns the transform of a raster holding only window w.
func (m Meta) WindowTransform(w Window) Transform {
	return m.Transform.Shift(w.ColOff, w.RowOff)
}

// IsNoData reports whether v is NaN or the raster's no-data value.
func (m Meta) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return m.NoData != nil && v == *m.NoData
}

// ReadOptions controls reads of windows that extend beyond the raster.
type ReadOptions struct {
	// Boundless returns the full window, cells outside the raster set to Fill.
	// Otherwise the window is clipped to the raster before reading.
	Boundless bool
	Fill      float64
}

// Dataset is an opened raster. Implementations are not safe for concurrent use.
type Dataset interface {
	Meta() Meta
	// ReadWindow reads the values of one band inside w.
	ReadWindow(band int, w Window, opts ReadOptions) ([]float64, error)
	Close() error
}

// Writable is a raster that accepts pixel values.
type Writable interface {
	Dataset
	WriteWindow(band int, w Window, values []float64) error
}

// Store opens, creates and removes file-backed rasters.
type Store interface {
	Open(path string) (Dataset, error)
	Create(path string, meta Meta) (Writable, error)
	Remove(path string) error
}

// ReadClipped is a helper for Dataset implementations: it resolves the window
// according to opts and calls read for the part that lies inside the raster.
// The result always has the size of the resolved window.
func ReadClipped(meta Meta, band int, w Window, opts ReadOptions, read func(inside Window) ([]float64, error)) ([]float64, Window, error) {
	if band < 1 || band > meta.Bands {
		return nil, w, fmt.Errorf("%w: band %d of %d", ErrBandOutOfRange, band, meta.Bands)
	}
	inside := w.Intersect(meta.Full())
	if !opts.Boundless {
		if inside.Empty() {
			return nil, w, fmt.Errorf("%w: %v", ErrWindowOutOfRange, w)
		}
		values, err := read(inside)
		return values, inside, err
	}
	if w.Empty() {
		return nil, w, fmt.Errorf("%w: %v", ErrWindowOutOfRange, w)
	}
	out := make([]float64, w.Size())
	for i := range out {
		out[i] = opts.Fill
	}
	if inside.Empty() {
		return out, w, nil
	}
	values, err := read(inside)
	if err != nil {
		return nil, w, err
	}
	for r := 0; r < inside.Height; r++ {
		dst := (inside.RowOff-w.RowOff+r)*w.Width + (inside.ColOff - w.ColOff)
		copy(out[dst:dst+inside.Width], values[r*inside.Width:(r+1)*inside.Width])
	}
	return out, w, nil
}

// Copy writes every band of src into dst, which must have the same dimensions.
func Copy(dst Writable, src Dataset) error {
	sm, dm := src.Meta(), dst.Meta()
	if sm.Width != dm.Width || sm.Height != dm.Height || sm.Bands != dm.Bands {
		return fmt.Errorf("%w: cannot copy %dx%dx%d into %dx%dx%d", ErrShapeMismatch,
			sm.Width, sm.Height, sm.Bands, dm.Width, dm.Height, dm.Bands)
	}
	for band := 1; band <= sm.Bands; band++ {
		values, err := src.ReadWindow(band, sm.Full(), ReadOptions{})
		if err != nil {
			return fmt.Errorf("reading band %d: %w", band, err)
		}
		if err = dst.WriteWindow(band, dm.Full(), values); err != nil {
			return fmt.Errorf("writing band %d: %w", band, err)
		}
	}
	return nil
}
