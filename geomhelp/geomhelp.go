package geomhelp

import (
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
)

// ExtentPolygon returns the closed exterior ring of ext, counter-clockwise
// starting at the lower left corner.
func ExtentPolygon(ext geom.Extent) geom.Polygon {
	return geom.Polygon{{
		{ext.MinX(), ext.MinY()},
		{ext.MaxX(), ext.MinY()},
		{ext.MaxX(), ext.MaxY()},
		{ext.MinX(), ext.MaxY()},
		{ext.MinX(), ext.MinY()},
	}}
}

// https://en.wikipedia.org/wiki/Shoelace_formula
func Shoelace(pts [][2]float64) float64 {
	return math.Abs(SignedArea(pts))
}

// SignedArea is positive for counter-clockwise rings.
func SignedArea(pts [][2]float64) float64 {
	sum := 0.
	if len(pts) == 0 {
		return 0.
	}

	p0 := pts[len(pts)-1]
	for _, p1 := range pts {
		sum += p0[0]*p1[1] - p1[0]*p0[1]
		p0 = p1
	}
	return sum / 2
}

// Reversed returns a copy of ring in the opposite direction.
func Reversed(ring [][2]float64) [][2]float64 {
	out := make([][2]float64, len(ring))
	for i := range ring {
		out[len(ring)-1-i] = ring[i]
	}
	return out
}

// WktMustEncode encodes g as WKT, cut to maxLen characters (0 for no limit).
func WktMustEncode(g geom.Geometry, maxLen uint) string {
	if maxLen == 0 {
		return wkt.MustEncode(g)
	}
	return truncate.StringWithTail(wkt.MustEncode(g), maxLen, "...")
}
