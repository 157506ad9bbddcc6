package gdalraster

import (
	"path/filepath"
	"testing"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_roundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.tif")
	nodata := -9999.0
	meta := raster.Meta{
		Width:     3,
		Height:    2,
		Bands:     2,
		Transform: raster.Transform{500000, 10, 0, 4200000, 0, -10},
		NoData:    &nodata,
	}
	store := Store{}

	w, err := store.Create(path, meta)
	require.NoError(t, err)
	require.NoError(t, w.WriteWindow(1, meta.Full(), []float64{1, 2, 3, 4, 5, 6}))
	require.NoError(t, w.WriteWindow(2, raster.Window{ColOff: 1, RowOff: 1, Width: 2, Height: 1}, []float64{7.5, -9999}))
	require.NoError(t, w.Close())

	ds, err := store.Open(path)
	require.NoError(t, err)
	defer ds.Close()

	got := ds.Meta()
	assert.Equal(t, 3, got.Width)
	assert.Equal(t, 2, got.Height)
	assert.Equal(t, 2, got.Bands)
	assert.Equal(t, meta.Transform, got.Transform)
	require.NotNil(t, got.NoData)
	assert.Equal(t, nodata, *got.NoData)

	band1, err := ds.ReadWindow(1, got.Full(), raster.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, band1)

	band2, err := ds.ReadWindow(2, raster.Window{ColOff: 1, RowOff: 1, Width: 3, Height: 1}, raster.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{7.5, -9999}, band2)

	boundless, err := ds.ReadWindow(1, raster.Window{ColOff: 2, RowOff: 1, Width: 2, Height: 2}, raster.ReadOptions{Boundless: true})
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 0, 0, 0}, boundless)

	_, err = ds.ReadWindow(3, got.Full(), raster.ReadOptions{})
	assert.ErrorIs(t, err, raster.ErrBandOutOfRange)
}

func TestStore_missing(t *testing.T) {
	dir := t.TempDir()
	store := Store{}
	_, err := store.Open(filepath.Join(dir, "nope.tif"))
	assert.ErrorIs(t, err, raster.ErrMissingFile)
	assert.ErrorIs(t, store.Remove(filepath.Join(dir, "nope.tif")), raster.ErrMissingFile)
}

func TestStore_padAndCopy(t *testing.T) {
	src, err := raster.FromBands(raster.Meta{
		Width: 2, Height: 2, Transform: raster.Transform{0, 1, 0, 2, 0, -1},
	}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	padded, err := raster.Pad(src, raster.PadWidth{Right: 1, Bottom: 1}, 0)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "padded.tif")
	store := Store{CreateOptions: []string{"COMPRESS=DEFLATE"}}
	w, err := store.Create(path, padded.Meta())
	require.NoError(t, err)
	require.NoError(t, raster.Copy(w, padded))
	require.NoError(t, w.Close())

	ds, err := store.Open(path)
	require.NoError(t, err)
	defer ds.Close()
	got, err := ds.ReadWindow(1, ds.Meta().Full(), raster.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 0, 3, 4, 0, 0, 0, 0}, got)
	require.NoError(t, store.Remove(path))
}
