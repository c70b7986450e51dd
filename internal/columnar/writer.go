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
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/cardinalhq/anitareader/internal/labeled"
)

// WriteParquet writes a batch as a parquet file whose schema root is group.
// Scalar columns become required leaves and fixed-shape columns repeated
// leaves holding Elements() values per event.
func WriteParquet(w io.Writer, group string, batch *RecordBatch) error {
	if err := batch.validate(); err != nil {
		return err
	}
	fields := make(parquet.Group, len(batch.Columns))
	for _, c := range batch.Columns {
		var node parquet.Node
		switch c.DType {
		case labeled.Int64:
			node = parquet.Int(64)
		case labeled.Float32:
			node = parquet.Leaf(parquet.FloatType)
		case labeled.Float64:
			node = parquet.Leaf(parquet.DoubleType)
		default:
			return fmt.Errorf("column %q: unsupported type %s", c.Spec.Name, c.DType)
		}
		if !c.Spec.IsScalar() {
			node = parquet.Repeated(node)
		}
		fields[c.Spec.Name] = node
	}
	schema := parquet.NewSchema(group, fields)

	type placed struct {
		col  *Column
		leaf int
	}
	order := make([]placed, 0, len(batch.Columns))
	for _, c := range batch.Columns {
		leaf, ok := schema.Lookup(c.Spec.Name)
		if !ok {
			return fmt.Errorf("column %q missing from schema", c.Spec.Name)
		}
		order = append(order, placed{col: c, leaf: leaf.ColumnIndex})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].leaf < order[j].leaf })

	pw := parquet.NewWriter(w, schema)
	rows := make([]parquet.Row, batch.Rows)
	for r := range rows {
		var row parquet.Row
		for _, p := range order {
			per := p.col.Spec.Elements()
			repeated := !p.col.Spec.IsScalar()
			for k := 0; k < per; k++ {
				v := columnValue(p.col, r*per+k)
				switch {
				case !repeated:
					v = v.Level(0, 0, p.leaf)
				case k == 0:
					v = v.Level(0, 1, p.leaf)
				default:
					v = v.Level(1, 1, p.leaf)
				}
				row = append(row, v)
			}
		}
		rows[r] = row
	}
	if _, err := pw.WriteRows(rows); err != nil {
		_ = pw.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	return pw.Close()
}

func columnValue(c *Column, i int) parquet.Value {
	switch c.DType {
	case labeled.Int64:
		return parquet.Int64Value(c.Int64s[i])
	case labeled.Float32:
		return parquet.FloatValue(c.Float32s[i])
	default:
		return parquet.DoubleValue(c.Float64s[i])
	}
}

// WriteParquetFile writes a batch to path, creating parent directories.
func WriteParquetFile(path, group string, batch *RecordBatch) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteParquet(f, group, batch); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// NewInt64Column builds a column from int64 values.
func NewInt64Column(decl string, values []int64) (*Column, error) {
	spec, err := ParseColumn(decl)
	if err != nil {
		return nil, err
	}
	return &Column{Spec: spec, DType: labeled.Int64, Int64s: values}, nil
}

// NewFloat32Column builds a column from float32 values.
func NewFloat32Column(decl string, values []float32) (*Column, error) {
	spec, err := ParseColumn(decl)
	if err != nil {
		return nil, err
	}
	return &Column{Spec: spec, DType: labeled.Float32, Float32s: values}, nil
}

// NewFloat64Column builds a column from float64 values.
func NewFloat64Column(decl string, values []float64) (*Column, error) {
	spec, err := ParseColumn(decl)
	if err != nil {
		return nil, err
	}
	return &Column{Spec: spec, DType: labeled.Float64, Float64s: values}, nil
}
