package footprint

import (
	"fmt"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/geomhelp"
	"github.com/jonas-p/go-shp"
)

const (
	fieldID     = "ID"
	fieldPoints = "POINTS"
	idLength    = 32
)

// Shapefile writes footprints as shapefile polygons with the fields ID and POINTS.
type Shapefile struct {
	w   *shp.Writer
	row int
}

func CreateShapefile(path string) (*Shapefile, error) {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return nil, fmt.Errorf("creating shapefile %s: %w", path, err)
	}
	err = w.SetFields([]shp.Field{
		shp.StringField(fieldID, idLength),
		shp.NumberField(fieldPoints, 10),
	})
	if err != nil {
		w.Close()
		return nil, err
	}
	return &Shapefile{w: w}, nil
}

func (s *Shapefile) Write(fp Footprint) error {
	if err := fp.validate(); err != nil {
		return err
	}
	// shapefile exterior rings run clockwise
	ring := geomhelp.Reversed(fp.Polygon()[0])
	points := make([]shp.Point, len(ring))
	for i, p := range ring {
		points[i] = shp.Point{X: p[0], Y: p[1]}
	}
	polygon := shp.Polygon(*shp.NewPolyLine([][]shp.Point{points}))
	row := int(s.w.Write(&polygon))
	if err := s.w.WriteAttribute(row, 0, fp.TileID); err != nil {
		return err
	}
	if err := s.w.WriteAttribute(row, 1, fp.PointCount); err != nil {
		return err
	}
	s.row = row + 1
	return nil
}

// Len is the number of footprints written.
func (s *Shapefile) Len() int {
	return s.row
}

func (s *Shapefile) Close() error {
	s.w.Close()
	return nil
}
