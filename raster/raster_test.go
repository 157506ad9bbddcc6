package raster

import (
	"math"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func northUp(x0, y0, cell float64) Transform {
	return Transform{x0, cell, 0, y0, 0, -cell}
}

// seq returns n values 0..n-1
func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestTransform(t *testing.T) {
	tf := northUp(100, 200, 10)
	x, y := tf.Apply(2, 3)
	assert.Equal(t, 120.0, x)
	assert.Equal(t, 170.0, y)

	cx, cy := tf.Resolution()
	assert.Equal(t, 10.0, cx)
	assert.Equal(t, 10.0, cy)

	shifted := tf.Shift(-1, -2)
	x, y = shifted.Origin()
	assert.Equal(t, 90.0, x)
	assert.Equal(t, 220.0, y)
	assert.Equal(t, tf[1], shifted[1])
	assert.Equal(t, tf[5], shifted[5])
}

func TestWindow_Intersect(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Window
		want  Window
		empty bool
	}{
		{
			name: "inside",
			a:    Window{ColOff: 2, RowOff: 2, Width: 3, Height: 3},
			b:    Window{Width: 10, Height: 10},
			want: Window{ColOff: 2, RowOff: 2, Width: 3, Height: 3},
		},
		{
			name: "overhanging edge",
			a:    Window{ColOff: 8, RowOff: 6, Width: 4, Height: 4},
			b:    Window{Width: 10, Height: 10},
			want: Window{ColOff: 8, RowOff: 6, Width: 2, Height: 4},
		},
		{
			name:  "disjoint",
			a:     Window{ColOff: 10, RowOff: 0, Width: 4, Height: 4},
			b:     Window{Width: 10, Height: 10},
			empty: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Intersect(tt.b)
			if tt.empty {
				assert.True(t, got.Empty())
				assert.Equal(t, 0, got.Size())
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeta_Bounds(t *testing.T) {
	meta := Meta{Width: 10, Height: 5, Bands: 1, Transform: northUp(0, 50, 2)}
	assert.Equal(t, geom.Extent{0, 40, 20, 50}, meta.Bounds())
}

func TestMeta_IsNoData(t *testing.T) {
	nodata := -9999.0
	meta := Meta{NoData: &nodata}
	assert.True(t, meta.IsNoData(math.NaN()))
	assert.True(t, meta.IsNoData(-9999))
	assert.False(t, meta.IsNoData(0))
	assert.False(t, Meta{}.IsNoData(-9999))
}

func TestMemory_ReadWindow(t *testing.T) {
	meta := Meta{Width: 4, Height: 3, Transform: northUp(0, 3, 1)}
	m, err := FromBands(meta, seq(12))
	require.NoError(t, err)

	tests := []struct {
		name    string
		band    int
		w       Window
		opts    ReadOptions
		want    []float64
		wantErr error
	}{
		{
			name: "inner window",
			band: 1,
			w:    Window{ColOff: 1, RowOff: 1, Width: 2, Height: 2},
			want: []float64{5, 6, 9, 10},
		},
		{
			name: "clipped at the edge",
			band: 1,
			w:    Window{ColOff: 3, RowOff: 1, Width: 2, Height: 3},
			want: []float64{7, 11},
		},
		{
			name: "boundless at the edge",
			band: 1,
			w:    Window{ColOff: 3, RowOff: 1, Width: 2, Height: 3},
			opts: ReadOptions{Boundless: true, Fill: -1},
			want: []float64{7, -1, 11, -1, -1, -1},
		},
		{
			name: "boundless fully outside",
			band: 1,
			w:    Window{ColOff: 10, RowOff: 10, Width: 2, Height: 1},
			opts: ReadOptions{Boundless: true},
			want: []float64{0, 0},
		},
		{
			name:    "clipped fully outside",
			band:    1,
			w:       Window{ColOff: 10, RowOff: 10, Width: 2, Height: 1},
			wantErr: ErrWindowOutOfRange,
		},
		{
			name:    "band zero",
			band:    0,
			w:       meta.Full(),
			wantErr: ErrBandOutOfRange,
		},
		{
			name:    "band past the end",
			band:    2,
			w:       meta.Full(),
			wantErr: ErrBandOutOfRange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ReadWindow(tt.band, tt.w, tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemory_WriteWindow(t *testing.T) {
	m, err := NewMemory(Meta{Width: 3, Height: 3, Bands: 2, Transform: northUp(0, 3, 1)})
	require.NoError(t, err)

	require.NoError(t, m.WriteWindow(2, Window{ColOff: 1, RowOff: 1, Width: 2, Height: 1}, []float64{7, 8}))
	got, err := m.ReadWindow(2, m.Meta().Full(), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 7, 8, 0, 0, 0}, got)

	assert.ErrorIs(t, m.WriteWindow(1, Window{ColOff: 2, Width: 2, Height: 1}, []float64{1, 2}), ErrWindowOutOfRange)
	assert.ErrorIs(t, m.WriteWindow(1, Window{Width: 2, Height: 1}, []float64{1}), ErrShapeMismatch)
	assert.ErrorIs(t, m.WriteWindow(3, Window{Width: 1, Height: 1}, []float64{1}), ErrBandOutOfRange)
}

func TestFromBands_shapeMismatch(t *testing.T) {
	_, err := FromBands(Meta{Width: 2, Height: 2}, seq(4), seq(3))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = FromBands(Meta{Width: 0, Height: 2}, nil)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Open("missing.tif")
	assert.ErrorIs(t, err, ErrMissingFile)

	w, err := store.Create("b.tif", Meta{Width: 1, Height: 1, Bands: 1})
	require.NoError(t, err)
	require.NoError(t, w.WriteWindow(1, Window{Width: 1, Height: 1}, []float64{42}))
	_, err = store.Create("a.tif", Meta{Width: 1, Height: 1, Bands: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.tif", "b.tif"}, store.Paths())

	ds, err := store.Open("b.tif")
	require.NoError(t, err)
	got, err := ds.ReadWindow(1, ds.Meta().Full(), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{42}, got)

	require.NoError(t, store.Remove("b.tif"))
	assert.ErrorIs(t, store.Remove("b.tif"), ErrMissingFile)
	assert.Equal(t, []string{"a.tif"}, store.Paths())
}

func TestCopy(t *testing.T) {
	meta := Meta{Width: 2, Height: 2, Transform: northUp(0, 2, 1)}
	src, err := FromBands(meta, []float64{1, 2, 3, 4}, []float64{5, 6, 7, 8})
	require.NoError(t, err)
	dst, err := NewMemory(src.Meta())
	require.NoError(t, err)
	require.NoError(t, Copy(dst, src))
	assert.Equal(t, src.bands, dst.bands)

	small, err := NewMemory(Meta{Width: 1, Height: 1, Bands: 2})
	require.NoError(t, err)
	assert.ErrorIs(t, Copy(small, src), ErrShapeMismatch)
}
