// Package table defines the fixed column layout of the aggregated output and
// writes it as CSV, one flushed row at a time.
package table

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

	"github.com/go-spatial/geom"
)

var (
	ErrMissingFile     = errors.New("table file does not exist")
	ErrSchemaMismatch  = errors.New("table does not match schema")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrUnknownColumn   = errors.New("unknown column")
)

// DefaultPrecision is the number of decimals written for float cells.
const DefaultPrecision = 2

// Fixed columns, in output order. x1/x2 are the left and right edge of the
// tile's point box, y1/y2 the bottom and top edge.
const (
	TileID     = "tile_id"
	ColOff     = "col_off"
	RowOff     = "row_off"
	X1         = "x1"
	X2         = "x2"
	Y1         = "y1"
	Y2         = "y2"
	PointCount = "point_count"
)

var fixed = []string{TileID, ColOff, RowOff, X1, X2, Y1, Y2, PointCount}

// Schema is the ordered column list of an output table.
type Schema struct {
	columns []string
	values  map[string]struct{}
}

// NewSchema returns the fixed columns followed by the given value columns.
func NewSchema(groups ...[]string) (Schema, error) {
	columns := append([]string(nil), fixed...)
	for _, g := range groups {
		columns = append(columns, g...)
	}
	if dup, found := mapslicehelp.FirstDuplicate(columns); found {
		return Schema{}, fmt.Errorf("%w: %q", ErrDuplicateColumn, dup)
	}
	values := make(map[string]struct{}, len(columns)-len(fixed))
	for _, c := range columns[len(fixed):] {
		values[c] = struct{}{}
	}
	return Schema{columns: columns, values: values}, nil
}

// Columns returns all columns in output order.
func (s Schema) Columns() []string {
	return s.columns
}

// Row is one retained tile.
type Row struct {
	TileID     string
	ColOff     int
	RowOff     int
	Bounds     geom.Extent
	PointCount int
	// Cells by column; absent columns are written empty
	Values map[string]float64
}

// Record formats row as CSV cells. A value whose column is not in the
// schema is an error, so that no data is silently dropped.
func (s Schema) Record(row Row, precision int) ([]string, error) {
	for k := range row.Values {
		if _, ok := s.values[k]; !ok {
			return nil, fmt.Errorf("%w: %q in tile %s", ErrUnknownColumn, k, row.TileID)
		}
	}
	f := func(v float64) string {
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', precision, 64)
	}
	record := make([]string, len(s.columns))
	record[0] = row.TileID
	record[1] = strconv.Itoa(row.ColOff)
	record[2] = strconv.Itoa(row.RowOff)
	record[3] = f(row.Bounds.MinX())
	record[4] = f(row.Bounds.MaxX())
	record[5] = f(row.Bounds.MinY())
	record[6] = f(row.Bounds.MaxY())
	record[7] = strconv.Itoa(row.PointCount)
	for i, c := range s.columns[len(fixed):] {
		if v, ok := row.Values[c]; ok {
			record[len(fixed)+i] = f(v)
		}
	}
	return record, nil
}

// Target receives the rows of a run.
type Target interface {
	Write(Row) error
	Close() error
}

// CSVWriter writes rows to a CSV file and flushes after every row, so an
// interrupted run keeps all completed tiles.
type CSVWriter struct {
	f         *os.File
	w         *csv.Writer
	schema    Schema
	precision int
	rows      int
}

// Create truncates path and writes the header.
func Create(path string, schema Schema, precision int) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &CSVWriter{f: f, w: csv.NewWriter(f), schema: schema, precision: precision}
	if err = w.writeRecord(schema.Columns()); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header of %s: %w", path, err)
	}
	return w, nil
}

func (w *CSVWriter) writeRecord(record []string) error {
	if err := w.w.Write(record); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *CSVWriter) Write(row Row) error {
	record, err := w.schema.Record(row, w.precision)
	if err != nil {
		return err
	}
	if err = w.writeRecord(record); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows is the number of rows written.
func (w *CSVWriter) Rows() int {
	return w.rows
}

func (w *CSVWriter) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Collector is a Target keeping rows in memory.
type Collector struct {
	Rows   []Row
	Closed bool
}

func (c *Collector) Write(row Row) error {
	c.Rows = append(c.Rows, row)
	return nil
}

func (c *Collector) Close() error {
	c.Closed = true
	return nil
}

// Bounds is the point box of one tile as read back from an output table.
type Bounds struct {
	TileID     string
	Extent     geom.Extent
	PointCount int
}

// ReadBounds reads the tile boxes of an output table. The tile_id and
// point_count columns are optional.
func ReadBounds(path string) ([]Bounds, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return nil, err
	}
	defer f.Close()

	tab := csv.NewReader(f)
	head, err := tab.Read()
	if err != nil {
		return nil, fmt.Errorf("on file %q: header: %w", path, err)
	}
	fields := make(map[string]int, len(head))
	for i, h := range head {
		fields[strings.TrimSpace(h)] = i
	}
	for _, h := range []string{X1, X2, Y1, Y2} {
		if _, ok := fields[h]; !ok {
			return nil, fmt.Errorf("%w: on file %q: expecting field %q", ErrSchemaMismatch, path, h)
		}
	}

	var out []Bounds
	for {
		row, err := tab.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("on file %q: %w", path, err)
		}
		ln, _ := tab.FieldPos(0)

		var coords [4]float64
		for i, h := range []string{X1, Y1, X2, Y2} {
			coords[i], err = strconv.ParseFloat(strings.TrimSpace(row[fields[h]]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: on file %q: on row %d, field %q: %v", ErrSchemaMismatch, path, ln, h, err)
			}
		}
		b := Bounds{Extent: geom.Extent(coords), TileID: strconv.Itoa(len(out))}
		if i, ok := fields[TileID]; ok {
			b.TileID = row[i]
		}
		if i, ok := fields[PointCount]; ok {
			b.PointCount, err = strconv.Atoi(strings.TrimSpace(row[i]))
			if err != nil {
				return nil, fmt.Errorf("%w: on file %q: on row %d, field %q: %v", ErrSchemaMismatch, path, ln, PointCount, err)
			}
		}
		out = append(out, b)
	}
	return out, nil
}
