package pointindex

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointIndex_Query(t *testing.T) {
	points := []geom.Point{
		{0, 0},
		{10, 10},
		{5, 5},
		{2.5, 7.5},
		{2.5, 2.5},
		{math.NaN(), 5},
		{7.5, 0},
	}
	tests := []struct {
		name string
		ext  geom.Extent
		want []int
	}{
		{
			name: "everything",
			ext:  geom.Extent{0, 0, 10, 10},
			want: []int{0, 1, 2, 3, 4, 6},
		},
		{
			name: "inclusive lower and upper edges",
			ext:  geom.Extent{2.5, 2.5, 5, 7.5},
			want: []int{2, 3, 4},
		},
		{
			name: "corner point",
			ext:  geom.Extent{10, 10, 20, 20},
			want: []int{1},
		},
		{
			name: "bottom edge",
			ext:  geom.Extent{0, 0, 10, 0},
			want: []int{0, 6},
		},
		{
			name: "empty box inside",
			ext:  geom.Extent{6, 6, 9, 9},
			want: nil,
		},
		{
			name: "outside",
			ext:  geom.Extent{11, 11, 12, 12},
			want: nil,
		},
	}
	for _, bucketSize := range []int{1, 2, DefaultBucketSize} {
		ix := New(points, bucketSize)
		assert.Equal(t, len(points), ix.Len())
		assert.Equal(t, geom.Extent{0, 0, 10, 10}, ix.Extent())
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.want, ix.Query(tt.ext))
			})
		}
	}
}

func TestPointIndex_matchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	points := make([]geom.Point, 500)
	for i := range points {
		// whole numbers so that many points fall on box edges
		points[i] = geom.Point{float64(r.Intn(100)), float64(r.Intn(100))}
	}
	ix := New(points, 4)
	for q := 0; q < 50; q++ {
		x, y := float64(r.Intn(100)), float64(r.Intn(100))
		ext := geom.Extent{x, y, x + float64(r.Intn(30)), y + float64(r.Intn(30))}
		var want []int
		for i, pt := range points {
			if pt.X() >= ext.MinX() && pt.X() <= ext.MaxX() && pt.Y() >= ext.MinY() && pt.Y() <= ext.MaxY() {
				want = append(want, i)
			}
		}
		require.Equalf(t, want, ix.Query(ext), "query %v", ext)
	}
}

func TestPointIndex_degenerate(t *testing.T) {
	tests := []struct {
		name   string
		points []geom.Point
		ext    geom.Extent
		want   []int
	}{
		{
			name: "no points",
			ext:  geom.Extent{0, 0, 1, 1},
		},
		{
			name:   "only invalid points",
			points: []geom.Point{{math.NaN(), 1}, {math.Inf(1), 0}},
			ext:    geom.Extent{0, 0, 1, 1},
		},
		{
			name:   "all points on one spot",
			points: []geom.Point{{3, 3}, {3, 3}, {3, 3}},
			ext:    geom.Extent{3, 3, 3, 3},
			want:   []int{0, 1, 2},
		},
		{
			name:   "points on a vertical line",
			points: []geom.Point{{1, 0}, {1, 1}, {1, 2}, {1, 3}},
			ext:    geom.Extent{0, 1, 1, 2},
			want:   []int{1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.points, 1).Query(tt.ext))
		})
	}
}
