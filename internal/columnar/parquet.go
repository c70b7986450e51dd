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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/parquet-go/parquet-go"

	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/labeled"
)

// ParquetOpener reads files with parquet-go/parquet-go.
type ParquetOpener struct{}

var _ Opener = ParquetOpener{}

// Open returns a Reader over req.Paths.
func (ParquetOpener) Open(ctx context.Context, req OpenRequest) (Reader, error) {
	return newMultiFileReader(ctx, req, func(ctx context.Context, path string) (fileReader, error) {
		return openParquetFile(path, req)
	})
}

// Header reads the footer of one file.
func (ParquetOpener) Header(_ context.Context, path string, cache *BlockCache) (Header, error) {
	f, err := openForRead(path, cache)
	if err != nil {
		return Header{}, err
	}
	defer func() { _ = f.Close() }()

	pf, err := parquet.OpenFile(f, f.Size())
	if err != nil {
		return Header{}, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	schema := pf.Schema()
	cols := make([]string, 0, len(schema.Fields()))
	for _, field := range schema.Fields() {
		cols = append(cols, field.Name())
	}
	return Header{
		Path:    path,
		Group:   schema.Name(),
		NumRows: pf.NumRows(),
		Columns: cols,
	}, nil
}

func openForRead(path string, cache *BlockCache) (*CachedFile, error) {
	f, err := OpenCached(path, cache)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &dataerr.NotFoundError{Path: path, Err: err}
		}
		return nil, err
	}
	return f, nil
}

type parquetSlot struct {
	spec     ColumnSpec
	dtype    labeled.DType
	repeated bool
}

// parquetFileReader reads the requested columns of one parquet file.
type parquetFileReader struct {
	path      string
	f         *CachedFile
	pfr       *parquet.GenericReader[map[string]any]
	slots     []parquetSlot
	byLeaf    map[int]int
	rows      []parquet.Row
	rowCount  int64
	exhausted bool
}

func openParquetFile(path string, req OpenRequest) (*parquetFileReader, error) {
	f, err := openForRead(path, req.Cache)
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, f.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}

	schema := pf.Schema()
	if schema.Name() != req.Group {
		_ = f.Close()
		return nil, dataerr.Configf("%s: record group is %q, want %q", path, schema.Name(), req.Group)
	}

	r := &parquetFileReader{
		path:   path,
		f:      f,
		byLeaf: make(map[int]int, len(req.Columns)),
	}
	for i, spec := range req.Columns {
		leaf, ok := lookupParquetLeaf(schema, spec.Name)
		if !ok {
			_ = f.Close()
			return nil, dataerr.Configf("%s: column %q not found in group %q", path, spec.Name, req.Group)
		}
		dtype, err := parquetDType(leaf.Node.Type().Kind())
		if err != nil {
			_ = f.Close()
			return nil, dataerr.Configf("%s: column %q: %v", path, spec.Name, err)
		}
		repeated := leaf.MaxRepetitionLevel > 0
		if repeated == spec.IsScalar() {
			_ = f.Close()
			return nil, dataerr.Configf("%s: column %q is declared %v but stored repeated=%t",
				path, spec.Name, spec.Shape, repeated)
		}
		r.slots = append(r.slots, parquetSlot{spec: spec, dtype: dtype, repeated: repeated})
		r.byLeaf[leaf.ColumnIndex] = i
	}

	r.rows = make([]parquet.Row, batchSizeFor(req, pf.NumRows()))
	r.pfr = parquet.NewGenericReader[map[string]any](pf, schema)
	return r, nil
}

func lookupParquetLeaf(schema *parquet.Schema, name string) (parquet.LeafColumn, bool) {
	if leaf, ok := schema.Lookup(name); ok {
		return leaf, true
	}
	return schema.Lookup(name, "list", "element")
}

func parquetDType(kind parquet.Kind) (labeled.DType, error) {
	switch kind {
	case parquet.Boolean, parquet.Int32, parquet.Int64:
		return labeled.Int64, nil
	case parquet.Float:
		return labeled.Float32, nil
	case parquet.Double:
		return labeled.Float64, nil
	default:
		return 0, fmt.Errorf("unsupported physical type %s", kind)
	}
}

func (r *parquetFileReader) next(_ context.Context) (*RecordBatch, error) {
	if r.exhausted {
		return nil, io.EOF
	}

	n := 0
	for n < len(r.rows) {
		m, err := r.pfr.ReadRows(r.rows[n:])
		n += m
		if errors.Is(err, io.EOF) {
			r.exhausted = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parquet reader error: %w", err)
		}
		if m == 0 {
			break
		}
	}
	if n == 0 {
		r.exhausted = true
		return nil, io.EOF
	}

	batch := &RecordBatch{Rows: n, Path: r.path, Columns: make([]*Column, len(r.slots))}
	for i, s := range r.slots {
		batch.Columns[i] = newColumn(s.spec, s.dtype, n)
	}
	counts := make([]int, len(r.slots))
	for ri := 0; ri < n; ri++ {
		clear(counts)
		for _, v := range r.rows[ri] {
			si, ok := r.byLeaf[v.Column()]
			if !ok {
				continue
			}
			col := batch.Columns[si]
			if v.IsNull() {
				if !r.slots[si].repeated {
					if err := checkNull(r.path, r.slots[si].spec, int(r.rowCount)+ri); err != nil {
						return nil, err
					}
					col.appendInt(0)
					counts[si]++
				}
				continue
			}
			switch v.Kind() {
			case parquet.Boolean:
				if v.Boolean() {
					col.appendInt(1)
				} else {
					col.appendInt(0)
				}
			case parquet.Int32:
				col.appendInt(int64(v.Int32()))
			case parquet.Int64:
				col.appendInt(v.Int64())
			case parquet.Float:
				col.appendFloat(float64(v.Float()))
			case parquet.Double:
				col.appendFloat(v.Double())
			}
			counts[si]++
		}
		for si, s := range r.slots {
			if err := checkElements(r.path, s.spec, int(r.rowCount)+ri, counts[si]); err != nil {
				return nil, err
			}
		}
	}
	r.rowCount += int64(n)
	return batch, nil
}

func (r *parquetFileReader) close() error {
	var errs []error
	if r.pfr != nil {
		if err := r.pfr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close parquet reader: %w", err))
		}
		r.pfr = nil
	}
	if r.f != nil {
		if err := r.f.Close(); err != nil {
			errs = append(errs, err)
		}
		r.f = nil
	}
	return errors.Join(errs...)
}
