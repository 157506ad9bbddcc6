// Package footprint exports the ground boxes of tiles as polygons, so the
// tiles of an aggregation run can be inspected in a GIS.
package footprint

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/geomhelp"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/table"
	"github.com/go-spatial/geom"
	"github.com/rs/zerolog"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported footprint format")
	ErrDegenerate        = errors.New("degenerate footprint")
	ErrIndexOutOfRange   = errors.New("row index out of range")
)

// Footprint is the box of one tile.
type Footprint struct {
	TileID     string
	Extent     geom.Extent
	PointCount int
}

// Polygon is the footprint as a counter-clockwise polygon.
func (f Footprint) Polygon() geom.Polygon {
	return geomhelp.ExtentPolygon(f.Extent)
}

func (f Footprint) validate() error {
	if geomhelp.Shoelace(f.Polygon()[0]) == 0 {
		return fmt.Errorf("%w: tile %s has extent %v", ErrDegenerate, f.TileID, f.Extent)
	}
	return nil
}

// Writer stores footprints in a vector file.
type Writer interface {
	Write(Footprint) error
	Close() error
}

// Open creates a writer for path, choosing the format by its extension.
// srsID is the EPSG code of the coordinates.
func Open(path string, srsID int) (Writer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpkg":
		g, err := CreateGeoPackage(path, srsID)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ".shp":
		s, err := CreateShapefile(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// FromBounds converts table rows to footprints.
func FromBounds(bounds []table.Bounds) []Footprint {
	fps := make([]Footprint, len(bounds))
	for i, b := range bounds {
		fps[i] = Footprint{TileID: b.TileID, Extent: b.Extent, PointCount: b.PointCount}
	}
	return fps
}

// Export reads the tile boxes of the output table at data and writes them to
// out. A non-negative index exports that row only. It returns the number of
// footprints written.
func Export(data, out string, srsID, index int, log zerolog.Logger) (n int, err error) {
	bounds, err := table.ReadBounds(data)
	if err != nil {
		return 0, err
	}
	fps := FromBounds(bounds)
	if index >= 0 {
		if index >= len(fps) {
			return 0, fmt.Errorf("%w: %d of %d rows in %s", ErrIndexOutOfRange, index, len(fps), data)
		}
		fps = fps[index : index+1]
	}

	w, err := Open(out, srsID)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, w.Close())
	}()
	for _, fp := range fps {
		if err = w.Write(fp); err != nil {
			return n, fmt.Errorf("writing tile %s: %w", fp.TileID, err)
		}
		log.Debug().Str("tile_id", fp.TileID).Str("wkt", geomhelp.WktMustEncode(fp.Polygon(), 80)).Msg("footprint")
		n++
	}
	return n, nil
}
