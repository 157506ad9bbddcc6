package pointindex

import (
	"math"
	"slices"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/mathhelp"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/morton"

	"github.com/go-spatial/geom"
)

const (
	// DefaultBucketSize is the average number of points per bucket aimed for.
	DefaultBucketSize = 8
	maxLevel          = 16
)

// PointIndex is a regular grid of buckets over the extent of a set of points.
// Buckets are keyed by the morton code of their column and row:
//
//	|-------------------|
//	| 10 | 11 | 14 | 15 |
//	|-------------------|
//	|  8 |  9 | 12 | 13 |
//	|-------------------|
//	|  2 |  3 |  6 |  7 |
//	|-------------------|
//	|  0 |  1 |  4 |  5 |
//	|-------------------|
//
// Points on a bucket edge belong to the bucket above or right of it, except on
// the outer edges of the extent. Queries test every candidate point against
// the query box itself, so bucket membership never decides a match.
type PointIndex struct {
	extent geom.Extent
	// Number of buckets in one direction (= 2 ^ level)
	size    uint32
	cellW   float64
	cellH   float64
	points  []geom.Point
	buckets map[morton.Z][]int
}

// New indexes points. Points with a NaN or infinite coordinate are kept for
// numbering but never returned by a query.
func New(points []geom.Point, bucketSize int) *PointIndex {
	if bucketSize < 1 {
		bucketSize = DefaultBucketSize
	}
	ix := PointIndex{
		points:  points,
		buckets: make(map[morton.Z][]int),
	}
	first := true
	for _, pt := range points {
		if !finite(pt) {
			continue
		}
		if first {
			ix.extent = geom.Extent{pt.X(), pt.Y(), pt.X(), pt.Y()}
			first = false
			continue
		}
		ix.extent = geom.Extent{
			math.Min(ix.extent.MinX(), pt.X()), math.Min(ix.extent.MinY(), pt.Y()),
			math.Max(ix.extent.MaxX(), pt.X()), math.Max(ix.extent.MaxY(), pt.Y()),
		}
	}
	if first {
		return &ix
	}

	var level uint
	for level < maxLevel && len(points) > bucketSize*int(mathhelp.Pow2(2*level)) {
		level++
	}
	ix.size = uint32(mathhelp.Pow2(level))
	ix.cellW = span(ix.extent.MinX(), ix.extent.MaxX()) / float64(ix.size)
	ix.cellH = span(ix.extent.MinY(), ix.extent.MaxY()) / float64(ix.size)

	for i, pt := range points {
		if !finite(pt) {
			continue
		}
		z := morton.Encode(ix.bucketX(pt.X()), ix.bucketY(pt.Y()))
		ix.buckets[z] = append(ix.buckets[z], i)
	}
	return &ix
}

// Len is the number of points, including the ones that cannot be matched.
func (ix *PointIndex) Len() int {
	return len(ix.points)
}

// Extent of the indexable points.
func (ix *PointIndex) Extent() geom.Extent {
	return ix.extent
}

// Query returns the indices of the points inside ext, in ascending order.
// Both the lower and upper bounds are inclusive.
func (ix *PointIndex) Query(ext geom.Extent) []int {
	if ix.size == 0 || !overlaps(ix.extent, ext) {
		return nil
	}
	x0, x1 := ix.bucketX(ext.MinX()), ix.bucketX(ext.MaxX())
	y0, y1 := ix.bucketY(ext.MinY()), ix.bucketY(ext.MaxY())
	var hits []int
	for bx := x0; bx <= x1; bx++ {
		for by := y0; by <= y1; by++ {
			for _, i := range ix.buckets[morton.Encode(bx, by)] {
				pt := ix.points[i]
				if mathhelp.BetweenInc(pt.X(), ext.MinX(), ext.MaxX()) && mathhelp.BetweenInc(pt.Y(), ext.MinY(), ext.MaxY()) {
					hits = append(hits, i)
				}
			}
		}
	}
	slices.Sort(hits)
	return hits
}

func (ix *PointIndex) bucketX(x float64) uint32 {
	return clampBucket((x-ix.extent.MinX())/ix.cellW, ix.size)
}

func (ix *PointIndex) bucketY(y float64) uint32 {
	return clampBucket((y-ix.extent.MinY())/ix.cellH, ix.size)
}

func clampBucket(f float64, size uint32) uint32 {
	if f <= 0 || math.IsNaN(f) {
		return 0
	}
	if f >= float64(size) {
		return size - 1
	}
	return uint32(f)
}

// span is never zero, so that all points of a flat extent land in bucket 0
func span(lo, hi float64) float64 {
	if hi > lo {
		return hi - lo
	}
	return 1
}

func finite(pt geom.Point) bool {
	for _, c := range pt {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func overlaps(a, b geom.Extent) bool {
	return a.MinX() <= b.MaxX() && b.MinX() <= a.MaxX() && a.MinY() <= b.MaxY() && b.MinY() <= a.MaxY()
}
