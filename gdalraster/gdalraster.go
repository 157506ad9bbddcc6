// Package gdalraster reads and writes GeoTIFF rasters through GDAL.
package gdalraster

import (
	"errors"
	"fmt"
	"os"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/raster"
	"github.com/lukeroth/gdal"
)

const driverName = "GTiff"

// Store is a raster.Store for files GDAL can open. New rasters are GeoTIFFs
// with float64 bands.
type Store struct {
	// CreateOptions are passed to the GTiff driver, e.g. COMPRESS=DEFLATE
	CreateOptions []string
}

func (s Store) Open(path string) (raster.Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", raster.ErrMissingFile, path)
		}
		return nil, err
	}
	ds, err := gdal.Open(path, gdal.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return newDataset(ds), nil
}

func (s Store) Create(path string, meta raster.Meta) (raster.Writable, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	driver, err := gdal.GetDriverByName(driverName)
	if err != nil {
		return nil, fmt.Errorf("gdal driver %s: %w", driverName, err)
	}
	ds := driver.Create(path, meta.Width, meta.Height, meta.Bands, gdal.Float64, s.CreateOptions)
	if err = ds.SetGeoTransform(meta.Transform); err != nil {
		ds.Close()
		return nil, fmt.Errorf("setting geotransform of %s: %w", path, err)
	}
	if meta.CRS != "" {
		if err = ds.SetProjection(meta.CRS); err != nil {
			ds.Close()
			return nil, fmt.Errorf("setting projection of %s: %w", path, err)
		}
	}
	if meta.NoData != nil {
		for band := 1; band <= meta.Bands; band++ {
			if err = ds.RasterBand(band).SetNoDataValue(*meta.NoData); err != nil {
				ds.Close()
				return nil, fmt.Errorf("setting no-data of %s band %d: %w", path, band, err)
			}
		}
	}
	return &dataset{ds: ds, meta: meta}, nil
}

func (s Store) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", raster.ErrMissingFile, path)
		}
		return err
	}
	return nil
}

type dataset struct {
	ds   gdal.Dataset
	meta raster.Meta
}

func newDataset(ds gdal.Dataset) *dataset {
	meta := raster.Meta{
		Width:     ds.RasterXSize(),
		Height:    ds.RasterYSize(),
		Bands:     ds.RasterCount(),
		Transform: ds.GeoTransform(),
		CRS:       ds.Projection(),
	}
	// the no-data value of band 1 applies to the whole raster
	if meta.Bands > 0 {
		if nodata, ok := ds.RasterBand(1).NoDataValue(); ok {
			meta.NoData = &nodata
		}
	}
	return &dataset{ds: ds, meta: meta}
}

func (d *dataset) Meta() raster.Meta {
	return d.meta
}

func (d *dataset) ReadWindow(band int, w raster.Window, opts raster.ReadOptions) ([]float64, error) {
	values, _, err := raster.ReadClipped(d.meta, band, w, opts, func(inside raster.Window) ([]float64, error) {
		buf := make([]float64, inside.Size())
		err := d.ds.RasterBand(band).IO(gdal.Read, inside.ColOff, inside.RowOff, inside.Width, inside.Height,
			buf, inside.Width, inside.Height, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("reading band %d %v: %w", band, inside, err)
		}
		return buf, nil
	})
	return values, err
}

func (d *dataset) WriteWindow(band int, w raster.Window, values []float64) error {
	if band < 1 || band > d.meta.Bands {
		return fmt.Errorf("%w: band %d of %d", raster.ErrBandOutOfRange, band, d.meta.Bands)
	}
	if w.Empty() || w.Intersect(d.meta.Full()) != w {
		return fmt.Errorf("%w: %v", raster.ErrWindowOutOfRange, w)
	}
	if len(values) != w.Size() {
		return fmt.Errorf("%w: %d values for %v", raster.ErrShapeMismatch, len(values), w)
	}
	return d.ds.RasterBand(band).IO(gdal.Write, w.ColOff, w.RowOff, w.Width, w.Height,
		values, w.Width, w.Height, 0, 0)
}

// Close flushes pending writes and releases the GDAL handle.
func (d *dataset) Close() error {
	d.ds.FlushCache()
	d.ds.Close()
	return nil
}
