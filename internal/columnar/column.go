// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package columnar

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/instrument"
	"github.com/cardinalhq/anitareader/internal/labeled"
)

// ColumnSpec is a parsed column declaration.
type ColumnSpec struct {
	// Raw is the declaration as written, e.g. "data[16][3][2][260]".
	Raw string
	// Name is the declaration without its shape suffix.
	Name string
	// Shape is the per-event shape; nil for one value per event.
	Shape []int
}

// ParseColumn parses "name" or "name[d1][d2]...".
func ParseColumn(decl string) (ColumnSpec, error) {
	decl = strings.TrimSpace(decl)
	open := strings.IndexByte(decl, '[')
	if open < 0 {
		if decl == "" {
			return ColumnSpec{}, dataerr.Configf("empty column declaration")
		}
		return ColumnSpec{Raw: decl, Name: decl}, nil
	}
	if open == 0 {
		return ColumnSpec{}, dataerr.Configf("column %q has no name", decl)
	}
	spec := ColumnSpec{Raw: decl, Name: decl[:open]}
	rest := decl[open:]
	for rest != "" {
		if rest[0] != '[' {
			return ColumnSpec{}, dataerr.Configf("column %q: unexpected %q in shape", decl, rest)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return ColumnSpec{}, dataerr.Configf("column %q: unterminated dimension", decl)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil || n <= 0 {
			return ColumnSpec{}, dataerr.Configf("column %q: bad dimension %q", decl, rest[1:end])
		}
		spec.Shape = append(spec.Shape, n)
		rest = rest[end+1:]
	}
	return spec, nil
}

// ParseColumns parses a list of declarations, rejecting duplicate names.
func ParseColumns(decls []string) ([]ColumnSpec, error) {
	out := make([]ColumnSpec, 0, len(decls))
	seen := make(map[string]struct{}, len(decls))
	for _, d := range decls {
		spec, err := ParseColumn(d)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, dataerr.Configf("column %q declared twice", spec.Name)
		}
		seen[spec.Name] = struct{}{}
		out = append(out, spec)
	}
	return out, nil
}

// Elements is the number of values per event.
func (c ColumnSpec) Elements() int {
	n := 1
	for _, d := range c.Shape {
		n *= d
	}
	return n
}

// IsScalar reports whether the column holds one value per event.
func (c ColumnSpec) IsScalar() bool { return len(c.Shape) == 0 }

func (c ColumnSpec) String() string { return c.Raw }

// Column is the data of one column for one batch, flat and row-major:
// Elements() values per event, events in file order.
type Column struct {
	Spec     ColumnSpec
	DType    labeled.DType
	Int64s   []int64
	Float32s []float32
	Float64s []float64
}

func newColumn(spec ColumnSpec, dtype labeled.DType, rows int) *Column {
	c := &Column{Spec: spec, DType: dtype}
	n := rows * spec.Elements()
	switch dtype {
	case labeled.Int64:
		c.Int64s = make([]int64, 0, n)
	case labeled.Float32:
		c.Float32s = make([]float32, 0, n)
	default:
		c.Float64s = make([]float64, 0, n)
	}
	return c
}

// Len is the number of values held.
func (c *Column) Len() int {
	switch c.DType {
	case labeled.Int64:
		return len(c.Int64s)
	case labeled.Float32:
		return len(c.Float32s)
	default:
		return len(c.Float64s)
	}
}

// Rows is the number of events held.
func (c *Column) Rows() int { return c.Len() / c.Spec.Elements() }

// EventIDs returns the values of an integer scalar column.
func (c *Column) EventIDs() ([]int64, error) {
	if !c.Spec.IsScalar() {
		return nil, dataerr.Configf("column %q is not a scalar column", c.Spec.Raw)
	}
	switch c.DType {
	case labeled.Int64:
		return c.Int64s, nil
	case labeled.Float32:
		out := make([]int64, len(c.Float32s))
		for i, v := range c.Float32s {
			out[i] = int64(v)
		}
		return out, nil
	default:
		out := make([]int64, len(c.Float64s))
		for i, v := range c.Float64s {
			out[i] = int64(v)
		}
		return out, nil
	}
}

func (c *Column) appendInt(v int64) {
	switch c.DType {
	case labeled.Int64:
		c.Int64s = append(c.Int64s, v)
	case labeled.Float32:
		c.Float32s = append(c.Float32s, float32(v))
	default:
		c.Float64s = append(c.Float64s, float64(v))
	}
}

func (c *Column) appendFloat(v float64) {
	switch c.DType {
	case labeled.Int64:
		c.Int64s = append(c.Int64s, int64(v))
	case labeled.Float32:
		c.Float32s = append(c.Float32s, float32(v))
	default:
		c.Float64s = append(c.Float64s, v)
	}
}

// RecordBatch is one read of up to BatchSize events from a single file.
type RecordBatch struct {
	Rows    int
	Columns []*Column
	// Path is the file the batch was read from.
	Path string
}

// Column returns a column by bare name or raw declaration.
func (b *RecordBatch) Column(name string) (*Column, bool) {
	for _, c := range b.Columns {
		if c.Spec.Name == name || c.Spec.Raw == name {
			return c, true
		}
	}
	return nil, false
}

func (b *RecordBatch) validate() error {
	for _, c := range b.Columns {
		if c.Len() != b.Rows*c.Spec.Elements() {
			return dataerr.Consistencyf("%s: column %q holds %d values for %d events, want %d per event",
				b.Path, c.Spec.Raw, c.Len(), b.Rows, c.Spec.Elements())
		}
	}
	return nil
}

// checkNull rejects a null in the event identifier column; nulls in other
// scalar columns read as zero.
func checkNull(path string, spec ColumnSpec, row int) error {
	if spec.Name == instrument.DimEvent {
		return dataerr.Consistencyf("%s: row %d has a null %q", path, row, spec.Name)
	}
	return nil
}

func checkElements(path string, spec ColumnSpec, row, got int) error {
	if got != spec.Elements() {
		return dataerr.Consistencyf("%s: row %d of column %q has %d values, want %d",
			path, row, spec.Raw, got, spec.Elements())
	}
	return nil
}

func describeColumns(specs []ColumnSpec) string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Raw
	}
	return fmt.Sprintf("%v", names)
}
