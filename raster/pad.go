package raster

import "fmt"

// PadWidth is the number of pixels added on each side of a raster.
type PadWidth struct {
	Top    int
	Bottom int
	Left   int
	Right  int
}

// Pad returns a copy of ds surrounded by cells set to fill. The transform origin
// moves by Left pixels to the left and Top pixels up, so the source cells keep
// their ground coordinates.
func Pad(ds Dataset, pw PadWidth, fill float64) (*Memory, error) {
	if pw.Top < 0 || pw.Bottom < 0 || pw.Left < 0 || pw.Right < 0 {
		return nil, fmt.Errorf("negative padding: %+v", pw)
	}
	meta := ds.Meta()
	padded := meta
	padded.Width = meta.Width + pw.Left + pw.Right
	padded.Height = meta.Height + pw.Top + pw.Bottom
	padded.Transform = meta.Transform.Shift(-pw.Left, -pw.Top)

	out, err := NewMemory(padded)
	if err != nil {
		return nil, err
	}
	inner := Window{ColOff: pw.Left, RowOff: pw.Top, Width: meta.Width, Height: meta.Height}
	for band := 1; band <= meta.Bands; band++ {
		if fill != 0 {
			for i := range out.bands[band-1] {
				out.bands[band-1][i] = fill
			}
		}
		values, err := ds.ReadWindow(band, meta.Full(), ReadOptions{})
		if err != nil {
			return nil, fmt.Errorf("reading band %d: %w", band, err)
		}
		if err = out.WriteWindow(band, inner, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Crop returns the part of ds inside w, with the transform of that window.
func Crop(ds Dataset, w Window) (*Memory, error) {
	meta := ds.Meta()
	if w.Empty() || w.Intersect(meta.Full()) != w {
		return nil, fmt.Errorf("%w: %v", ErrWindowOutOfRange, w)
	}
	cropped := meta
	cropped.Width, cropped.Height = w.Width, w.Height
	cropped.Transform = meta.WindowTransform(w)

	bands := make([][]float64, meta.Bands)
	for band := 1; band <= meta.Bands; band++ {
		values, err := ds.ReadWindow(band, w, ReadOptions{})
		if err != nil {
			return nil, fmt.Errorf("reading band %d: %w", band, err)
		}
		bands[band-1] = values
	}
	return FromBands(cropped, bands...)
}
