// Package landuse reads land-use classification tables and computes the share
// of each class in a band of class codes.
package landuse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/SytzeSimonse/GBA-biodiversity-analysis/mapslicehelp"
	"github.com/SytzeSimonse/GBA-biodiversity-analysis/mathhelp"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	ErrMissingFile         = errors.New("lookup table does not exist")
	ErrSchemaMismatch      = errors.New("invalid lookup table")
	ErrNoClassifiedPixels  = errors.New("no pixel has a known land-use class")
	ErrProportionIntegrity = errors.New("land-use proportions do not sum to 1")
)

const (
	// Decimals of a rounded proportion
	Decimals = 4
	// Tolerance is the allowed deviation of the sum of proportions from 1
	Tolerance = 0.001
)

// Lookup maps class codes to class names, in the order of the table.
type Lookup struct {
	classes *orderedmap.OrderedMap[int, string]
}

// NewLookup builds a lookup from code and name pairs. Names must be unique.
func NewLookup(codes []int, names []string) (Lookup, error) {
	if len(codes) != len(names) {
		return Lookup{}, fmt.Errorf("%w: %d codes for %d names", ErrSchemaMismatch, len(codes), len(names))
	}
	if dup, found := mapslicehelp.FirstDuplicate(names); found {
		return Lookup{}, fmt.Errorf("%w: duplicate class name %q", ErrSchemaMismatch, dup)
	}
	classes := orderedmap.New[int, string](len(codes))
	for i, code := range codes {
		if code < 0 {
			return Lookup{}, fmt.Errorf("%w: negative class code %d", ErrSchemaMismatch, code)
		}
		if _, present := classes.Set(code, names[i]); present {
			return Lookup{}, fmt.Errorf("%w: duplicate class code %d", ErrSchemaMismatch, code)
		}
	}
	return Lookup{classes: classes}, nil
}

// LoadLookup reads a table with one code=name pair per line. Blank lines and
// lines starting with # are ignored.
func LoadLookup(path string) (Lookup, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Lookup{}, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return Lookup{}, err
	}
	defer f.Close()

	lookup, err := ReadLookup(f)
	if err != nil {
		return Lookup{}, fmt.Errorf("%s: %w", path, err)
	}
	return lookup, nil
}

// ReadLookup reads a lookup table from r.
func ReadLookup(r io.Reader) (Lookup, error) {
	var codes []int
	var names []string
	scanner := bufio.NewScanner(r)
	for ln := 1; scanner.Scan(); ln++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rawCode, name, ok := strings.Cut(line, "=")
		if !ok {
			return Lookup{}, fmt.Errorf("%w: on line %d: expecting code=name, got %q", ErrSchemaMismatch, ln, line)
		}
		code, err := strconv.Atoi(strings.TrimSpace(rawCode))
		if err != nil {
			return Lookup{}, fmt.Errorf("%w: on line %d: class code %q is not an integer", ErrSchemaMismatch, ln, rawCode)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return Lookup{}, fmt.Errorf("%w: on line %d: empty class name", ErrSchemaMismatch, ln)
		}
		codes = append(codes, code)
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return Lookup{}, err
	}
	if len(codes) == 0 {
		return Lookup{}, fmt.Errorf("%w: no classes", ErrSchemaMismatch)
	}
	return NewLookup(codes, names)
}

func (l Lookup) Len() int {
	if l.classes == nil {
		return 0
	}
	return l.classes.Len()
}

// Names returns the class names in table order.
func (l Lookup) Names() []string {
	if l.classes == nil {
		return nil
	}
	return mapslicehelp.OrderedMapValues(l.classes)
}

// Codes returns the class codes in table order.
func (l Lookup) Codes() []int {
	if l.classes == nil {
		return nil
	}
	return mapslicehelp.OrderedMapKeys(l.classes)
}

// Name returns the class name of code.
func (l Lookup) Name(code int) (string, bool) {
	if l.classes == nil {
		return "", false
	}
	return l.classes.Get(code)
}

// Proportions counts the pixels of each class in values. Only non-negative
// integral values whose code is in the table are counted; the share of a class
// is its count divided by the number of counted pixels, rounded to Decimals.
// The sum of the shares is taken before rounding.
func (l Lookup) Proportions(values []float64) (Proportions, error) {
	counts := make(map[int]int, l.Len())
	total := 0
	for _, v := range values {
		if math.IsNaN(v) || v < 0 || !mathhelp.IsIntegral(v) || v > math.MaxInt32 {
			continue
		}
		code := int(v)
		if _, ok := l.Name(code); !ok {
			continue
		}
		counts[code]++
		total++
	}
	if total == 0 {
		return Proportions{}, ErrNoClassifiedPixels
	}
	shares := orderedmap.New[string, float64](l.Len())
	var sum float64
	for pair := l.classes.Oldest(); pair != nil; pair = pair.Next() {
		share := float64(counts[pair.Key]) / float64(total)
		sum += share
		shares.Set(pair.Value, mathhelp.Round(share, Decimals))
	}
	return Proportions{shares: shares, counted: total, sum: sum}, nil
}

// Proportions holds the share of each land-use class in a tile, in table order.
type Proportions struct {
	shares  *orderedmap.OrderedMap[string, float64]
	counted int
	sum     float64
}

// Get returns the share of the named class.
func (p Proportions) Get(name string) (float64, bool) {
	if p.shares == nil {
		return 0, false
	}
	return p.shares.Get(name)
}

// Counted is the number of pixels with a known class.
func (p Proportions) Counted() int {
	return p.counted
}

// Names returns the class names in table order.
func (p Proportions) Names() []string {
	if p.shares == nil {
		return nil
	}
	return mapslicehelp.OrderedMapKeys(p.shares)
}

// Sum is the total of the unrounded shares.
func (p Proportions) Sum() float64 {
	return p.sum
}

// Check returns ErrProportionIntegrity when the unrounded shares do not sum
// to 1 within tolerance. Rounding of the reported shares is not checked.
func (p Proportions) Check(tolerance float64) error {
	if p.shares == nil {
		return fmt.Errorf("%w: no proportions", ErrProportionIntegrity)
	}
	if sum := p.Sum(); math.Abs(sum-1) > tolerance {
		return fmt.Errorf("%w: sum is %v", ErrProportionIntegrity, sum)
	}
	return nil
}

// Map returns the shares keyed by class name.
func (p Proportions) Map() map[string]float64 {
	m := make(map[string]float64, len(p.Names()))
	if p.shares == nil {
		return m
	}
	for pair := p.shares.Oldest(); pair != nil; pair = pair.Next() {
		m[pair.Key] = pair.Value
	}
	return m
}
