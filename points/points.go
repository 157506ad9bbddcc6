// Package points reads point observations with numeric attributes and reduces
// the attributes of the points inside a bounding box.
package points

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/mapslicehelp"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/mathhelp"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/pointindex"

	"github.com/go-spatial/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrMissingFile      = errors.New("point file does not exist")
	ErrSchemaMismatch   = errors.New("point file does not match schema")
	ErrUnknownReduction = errors.New("unknown reduction")
)

const (
	DefaultX               = "UTM E"
	DefaultY               = "UTM N"
	DefaultTrailingColumns = 29
	// Decimals of a rounded reduction
	Decimals = 2
)

// Schema selects the coordinate and attribute columns of a point file.
type Schema struct {
	X string
	Y string
	// Attribute columns by name; when empty the last TrailingColumns columns are used
	Columns         []string
	TrailingColumns int
}

// DefaultSchema reads UTM coordinates and the last 29 columns.
func DefaultSchema() Schema {
	return Schema{X: DefaultX, Y: DefaultY, TrailingColumns: DefaultTrailingColumns}
}

// Reduction summarises the values of one attribute over the selected points.
type Reduction string

const (
	Mean   Reduction = "mean"
	Median Reduction = "median"
	Min    Reduction = "min"
	Max    Reduction = "max"
	Range  Reduction = "range"
)

var reductions = []Reduction{Mean, Median, Min, Max, Range}

// ParseReduction returns the reduction with the given name.
func ParseReduction(name string) (Reduction, error) {
	for _, r := range reductions {
		if string(r) == strings.ToLower(strings.TrimSpace(name)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReduction, name)
}

// ParseReductions parses names and rejects duplicates.
func ParseReductions(names []string) ([]Reduction, error) {
	out := make([]Reduction, 0, len(names))
	for _, name := range names {
		r, err := ParseReduction(name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if dup, found := mapslicehelp.FirstDuplicate(out); found {
		return nil, fmt.Errorf("reduction %q given twice", dup)
	}
	return out, nil
}

// Key is the output column of a reduction of an attribute.
func Key(r Reduction, column string) string {
	return string(r) + "_" + column
}

func (r Reduction) apply(values []float64) float64 {
	switch r {
	case Mean:
		return stat.Mean(values, nil)
	case Median:
		return mathhelp.Median(values)
	case Min:
		return floats.Min(values)
	case Max:
		return floats.Max(values)
	case Range:
		return floats.Max(values) - floats.Min(values)
	}
	return math.NaN()
}

// Record maps output columns to reduced values.
type Record map[string]float64

// Dataset holds the points of a file. Missing attribute values are NaN.
type Dataset struct {
	columns []string
	coords  []geom.Point
	values  [][]float64
	index   *pointindex.PointIndex
}

// Load reads a CSV point file with a header row.
func Load(path string, schema Schema) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return nil, err
	}
	defer f.Close()

	ds, err := Read(f, schema)
	if err != nil {
		return nil, fmt.Errorf("on file %q: %w", path, err)
	}
	return ds, nil
}

// Read reads CSV point data from r.
func Read(r io.Reader, schema Schema) (*Dataset, error) {
	if schema.X == "" {
		schema.X = DefaultX
	}
	if schema.Y == "" {
		schema.Y = DefaultY
	}
	if len(schema.Columns) == 0 && schema.TrailingColumns <= 0 {
		schema.TrailingColumns = DefaultTrailingColumns
	}

	tab := csv.NewReader(r)
	head, err := tab.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrSchemaMismatch, err)
	}
	fields := make(map[string]int, len(head))
	for i, h := range head {
		fields[strings.TrimSpace(h)] = i
	}
	xIdx, ok := fields[schema.X]
	if !ok {
		return nil, fmt.Errorf("%w: expecting field %q", ErrSchemaMismatch, schema.X)
	}
	yIdx, ok := fields[schema.Y]
	if !ok {
		return nil, fmt.Errorf("%w: expecting field %q", ErrSchemaMismatch, schema.Y)
	}

	var columns []string
	var colIdx []int
	if len(schema.Columns) > 0 {
		for _, c := range schema.Columns {
			i, ok := fields[c]
			if !ok {
				return nil, fmt.Errorf("%w: expecting field %q", ErrSchemaMismatch, c)
			}
			columns = append(columns, c)
			colIdx = append(colIdx, i)
		}
	} else {
		if len(head) < schema.TrailingColumns {
			return nil, fmt.Errorf("%w: expecting at least %d fields, got %d", ErrSchemaMismatch, schema.TrailingColumns, len(head))
		}
		for i := len(head) - schema.TrailingColumns; i < len(head); i++ {
			columns = append(columns, strings.TrimSpace(head[i]))
			colIdx = append(colIdx, i)
		}
	}
	if dup, found := mapslicehelp.FirstDuplicate(columns); found {
		return nil, fmt.Errorf("%w: field %q selected twice", ErrSchemaMismatch, dup)
	}

	ds := &Dataset{columns: columns}
	for {
		row, err := tab.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		ln, _ := tab.FieldPos(0)
		x, err := parseCell(row[xIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: on row %d, field %q: %v", ErrSchemaMismatch, ln, schema.X, err)
		}
		y, err := parseCell(row[yIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: on row %d, field %q: %v", ErrSchemaMismatch, ln, schema.Y, err)
		}
		values := make([]float64, len(colIdx))
		for j, i := range colIdx {
			values[j], err = parseCell(row[i])
			if err != nil {
				return nil, fmt.Errorf("%w: on row %d, field %q: %v", ErrSchemaMismatch, ln, columns[j], err)
			}
		}
		ds.coords = append(ds.coords, geom.Point{x, y})
		ds.values = append(ds.values, values)
	}
	ds.index = pointindex.New(ds.coords, pointindex.DefaultBucketSize)
	return ds, nil
}

// parseCell returns NaN for missing values
func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// Columns returns the attribute columns in file or schema order.
func (ds *Dataset) Columns() []string {
	return ds.columns
}

// Len is the number of points.
func (ds *Dataset) Len() int {
	return len(ds.coords)
}

// Keys returns the output columns of the given reductions, reduction by reduction.
func (ds *Dataset) Keys(reductions []Reduction) []string {
	keys := make([]string, 0, len(reductions)*len(ds.columns))
	for _, r := range reductions {
		for _, c := range ds.columns {
			keys = append(keys, Key(r, c))
		}
	}
	return keys
}

// Within returns the indices of the points inside bbox, bounds inclusive.
func (ds *Dataset) Within(bbox geom.Extent) []int {
	return ds.index.Query(bbox)
}

// Aggregate reduces every attribute over the points inside bbox and returns
// the record and the number of points. Missing values are skipped; an
// attribute without values leaves its keys out of the record.
func (ds *Dataset) Aggregate(bbox geom.Extent, reductions []Reduction) (Record, int) {
	record := make(Record)
	hits := ds.Within(bbox)
	if len(hits) == 0 {
		return record, 0
	}
	values := make([]float64, 0, len(hits))
	for j, column := range ds.columns {
		values = values[:0]
		for _, i := range hits {
			if v := ds.values[i][j]; !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		for _, r := range reductions {
			record[Key(r, column)] = mathhelp.Round(r.apply(values), Decimals)
		}
	}
	return record, len(hits)
}
