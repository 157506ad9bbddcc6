package raster

import (
	"fmt"
	"sort"
	"sync"
)

// Memory is a raster held entirely in memory.
type Memory struct {
	meta  Meta
	bands [][]float64
}

// NewMemory returns a raster with all cells set to zero.
func NewMemory(meta Meta) (*Memory, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	bands := make([][]float64, meta.Bands)
	for i := range bands {
		bands[i] = make([]float64, meta.Width*meta.Height)
	}
	return &Memory{meta: meta, bands: bands}, nil
}

// FromBands builds a raster from row-major band values; meta.Bands is set from len(bands).
func FromBands(meta Meta, bands ...[]float64) (*Memory, error) {
	meta.Bands = len(bands)
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{meta: meta, bands: make([][]float64, len(bands))}
	for i, values := range bands {
		if len(values) != meta.Width*meta.Height {
			return nil, fmt.Errorf("%w: band %d has %d values, want %d", ErrShapeMismatch, i+1, len(values), meta.Width*meta.Height)
		}
		m.bands[i] = append([]float64(nil), values...)
	}
	return m, nil
}

func (m *Memory) Meta() Meta {
	return m.meta
}

func (m *Memory) ReadWindow(band int, w Window, opts ReadOptions) ([]float64, error) {
	values, _, err := ReadClipped(m.meta, band, w, opts, func(inside Window) ([]float64, error) {
		src := m.bands[band-1]
		out := make([]float64, 0, inside.Size())
		for r := inside.RowOff; r < inside.RowOff+inside.Height; r++ {
			start := r*m.meta.Width + inside.ColOff
			out = append(out, src[start:start+inside.Width]...)
		}
		return out, nil
	})
	return values, err
}

func (m *Memory) WriteWindow(band int, w Window, values []float64) error {
	if band < 1 || band > m.meta.Bands {
		return fmt.Errorf("%w: band %d of %d", ErrBandOutOfRange, band, m.meta.Bands)
	}
	if w.Empty() || w.Intersect(m.meta.Full()) != w {
		return fmt.Errorf("%w: %v", ErrWindowOutOfRange, w)
	}
	if len(values) != w.Size() {
		return fmt.Errorf("%w: %d values for %v", ErrShapeMismatch, len(values), w)
	}
	dst := m.bands[band-1]
	for r := 0; r < w.Height; r++ {
		start := (w.RowOff+r)*m.meta.Width + w.ColOff
		copy(dst[start:start+w.Width], values[r*w.Width:(r+1)*w.Width])
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// MemoryStore is a Store keeping rasters in a map by path.
type MemoryStore struct {
	mu      sync.Mutex
	rasters map[string]*Memory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rasters: make(map[string]*Memory)}
}

// Put registers an existing raster under path.
func (s *MemoryStore) Put(path string, m *Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rasters[path] = m
}

func (s *MemoryStore) Open(path string) (Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rasters[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
	}
	return m, nil
}

func (s *MemoryStore) Create(path string, meta Meta) (Writable, error) {
	m, err := NewMemory(meta)
	if err != nil {
		return nil, err
	}
	s.Put(path, m)
	return m, nil
}

func (s *MemoryStore) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rasters[path]; !ok {
		return fmt.Errorf("%w: %s", ErrMissingFile, path)
	}
	delete(s.rasters, path)
	return nil
}

// Paths lists the stored paths in lexical order.
func (s *MemoryStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.rasters))
	for p := range s.rasters {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
