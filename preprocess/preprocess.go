// Package preprocess prepares rasters for tiling: padding to whole tiles,
// writing tiles as separate files and removing tiles without information.
package preprocess

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/grid"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/raster"
)

// PadMode decides on which sides padding is added.
type PadMode string

const (
	// Trailing pads the bottom and right edges only, keeping the origin.
	Trailing PadMode = "trailing"
	// Symmetric splits the padding over both sides, the odd pixel going after.
	Symmetric PadMode = "symmetric"
)

// PadFill is the value of padded cells.
const PadFill = 0.

// PadWidthFor returns the smallest padding that makes both raster dimensions a
// multiple of the tile size in pixels.
func PadWidthFor(meta raster.Meta, tileWidth, tileHeight int, mode PadMode) raster.PadWidth {
	extraX := remainder(meta.Width, tileWidth)
	extraY := remainder(meta.Height, tileHeight)
	if mode == Symmetric {
		return raster.PadWidth{
			Top:    extraY / 2,
			Bottom: extraY - extraY/2,
			Left:   extraX / 2,
			Right:  extraX - extraX/2,
		}
	}
	return raster.PadWidth{Bottom: extraY, Right: extraX}
}

func remainder(size, tile int) int {
	if tile < 1 || size%tile == 0 {
		return 0
	}
	return tile - size%tile
}

// PadRaster pads every band of the raster at in with PadFill so it divides
// into whole tiles of dimension ground units, and writes it to out.
func PadRaster(store raster.Store, in, out string, dimension float64, mode PadMode) (meta raster.Meta, err error) {
	src, err := store.Open(in)
	if err != nil {
		return raster.Meta{}, err
	}
	defer src.Close()

	plan, err := grid.PlanGrid(src.Meta(), dimension)
	if err != nil {
		return raster.Meta{}, err
	}
	padded, err := raster.Pad(src, PadWidthFor(src.Meta(), plan.TileWidth, plan.TileHeight, mode), PadFill)
	if err != nil {
		return raster.Meta{}, fmt.Errorf("padding %s: %w", in, err)
	}
	if err = write(store, out, padded); err != nil {
		return raster.Meta{}, err
	}
	return padded.Meta(), nil
}

// TileName is the file name of the tile at the given pixel offset.
func TileName(t grid.Tile) string {
	return fmt.Sprintf("tile_%s.tif", t.ID())
}

// PhysicallyTile writes every tile of tilePixels x tilePixels of the raster at
// in to its own file in outDir, each with the transform of its window. Tiles on
// the right and bottom edges keep their real size.
func PhysicallyTile(store raster.Store, in, outDir string, tilePixels int) ([]string, error) {
	src, err := store.Open(in)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	plan, err := grid.PlanPixels(src.Meta(), tilePixels, tilePixels)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, plan.Len())
	for _, t := range plan.Tiles() {
		tile, err := raster.Crop(src, t.Window)
		if err != nil {
			return paths, fmt.Errorf("cropping tile %s: %w", t.ID(), err)
		}
		path := filepath.Join(outDir, TileName(t))
		if err = write(store, path, tile); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// TilePixels converts a tile dimension in ground units to pixels for the raster at in.
func TilePixels(store raster.Store, in string, dimension float64) (int, error) {
	src, err := store.Open(in)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	plan, err := grid.PlanGrid(src.Meta(), dimension)
	if err != nil {
		return 0, err
	}
	return plan.TileWidth, nil
}

// RemoveDegenerateTiles removes the tiles whose first band holds a single value
// (NaN counting as one value) and returns the removed paths.
func RemoveDegenerateTiles(store raster.Store, paths []string) ([]string, error) {
	var removed []string
	for _, path := range paths {
		degenerate, err := isDegenerate(store, path)
		if err != nil {
			return removed, err
		}
		if !degenerate {
			continue
		}
		if err = store.Remove(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}

func isDegenerate(store raster.Store, path string) (bool, error) {
	ds, err := store.Open(path)
	if err != nil {
		return false, err
	}
	defer ds.Close()
	values, err := ds.ReadWindow(1, ds.Meta().Full(), raster.ReadOptions{})
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	first := values[0]
	for _, v := range values[1:] {
		if v != first && !(math.IsNaN(v) && math.IsNaN(first)) {
			return false, nil
		}
	}
	return true, nil
}

func write(store raster.Store, path string, src raster.Dataset) (err error) {
	dst, err := store.Create(path, src.Meta())
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, dst.Close())
	}()
	if err = raster.Copy(dst, src); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
