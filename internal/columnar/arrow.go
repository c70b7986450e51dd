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

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/labeled"
)

// ArrowOpener reads files with apache/arrow-go pqarrow record readers.
type ArrowOpener struct{}

var _ Opener = ArrowOpener{}

// Open returns a Reader over req.Paths.
func (ArrowOpener) Open(ctx context.Context, req OpenRequest) (Reader, error) {
	return newMultiFileReader(ctx, req, func(ctx context.Context, path string) (fileReader, error) {
		return openArrowFile(ctx, path, req)
	})
}

// Header reads the footer of one file.
func (ArrowOpener) Header(_ context.Context, path string, cache *BlockCache) (Header, error) {
	f, err := openForRead(path, cache)
	if err != nil {
		return Header{}, err
	}
	pf, err := file.NewParquetReader(f)
	if err != nil {
		_ = f.Close()
		return Header{}, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	// closing the parquet reader closes f
	defer func() { _ = pf.Close() }()

	root := pf.MetaData().Schema.Root()
	cols := make([]string, 0, root.NumFields())
	for i := 0; i < root.NumFields(); i++ {
		cols = append(cols, root.Field(i).Name())
	}
	return Header{
		Path:    path,
		Group:   root.Name(),
		NumRows: pf.NumRows(),
		Columns: cols,
	}, nil
}

type arrowFileReader struct {
	path      string
	pr        *file.Reader
	rr        pqarrow.RecordReader
	specs     []ColumnSpec
	rowCount  int64
	exhausted bool
}

func openArrowFile(ctx context.Context, path string, req OpenRequest) (*arrowFileReader, error) {
	f, err := openForRead(path, req.Cache)
	if err != nil {
		return nil, err
	}
	pr, err := file.NewParquetReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	fail := func(err error) (*arrowFileReader, error) {
		_ = pr.Close()
		return nil, err
	}

	schema := pr.MetaData().Schema
	if group := schema.Root().Name(); group != req.Group {
		return fail(dataerr.Configf("%s: record group is %q, want %q", path, group, req.Group))
	}

	indices := make([]int, 0, len(req.Columns))
	for _, spec := range req.Columns {
		idx := schema.ColumnIndexByName(spec.Name)
		if idx < 0 {
			idx = schema.ColumnIndexByName(spec.Name + ".list.element")
		}
		if idx < 0 {
			return fail(dataerr.Configf("%s: column %q not found in group %q", path, spec.Name, req.Group))
		}
		indices = append(indices, idx)
	}

	props := pqarrow.ArrowReadProperties{BatchSize: int64(batchSizeFor(req, pr.NumRows()))}
	fr, err := pqarrow.NewFileReader(pr, props, memory.DefaultAllocator)
	if err != nil {
		return fail(fmt.Errorf("failed to create arrow file reader: %w", err))
	}
	rr, err := fr.GetRecordReader(ctx, indices, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create record reader: %w", err))
	}

	return &arrowFileReader{
		path:  path,
		pr:    pr,
		rr:    rr,
		specs: req.Columns,
	}, nil
}

func (r *arrowFileReader) next(_ context.Context) (*RecordBatch, error) {
	if r.exhausted {
		return nil, io.EOF
	}
	rec, err := r.rr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.exhausted = true
			return nil, io.EOF
		}
		return nil, fmt.Errorf("arrow read error: %w", err)
	}
	if rec == nil || rec.NumRows() == 0 {
		r.exhausted = true
		return nil, io.EOF
	}

	n := int(rec.NumRows())
	batch := &RecordBatch{Rows: n, Path: r.path, Columns: make([]*Column, 0, len(r.specs))}
	for _, spec := range r.specs {
		idx := rec.Schema().FieldIndices(spec.Name)
		if len(idx) == 0 {
			return nil, dataerr.Configf("%s: column %q missing from record", r.path, spec.Name)
		}
		col, err := r.convert(spec, rec.Column(idx[0]), n)
		if err != nil {
			return nil, err
		}
		batch.Columns = append(batch.Columns, col)
	}
	r.rowCount += int64(n)
	return batch, nil
}

func (r *arrowFileReader) convert(spec ColumnSpec, arr arrow.Array, n int) (*Column, error) {
	values := arr
	list, isList := arr.(array.ListLike)
	if isList {
		values = list.ListValues()
	}
	if isList == spec.IsScalar() {
		return nil, dataerr.Configf("%s: column %q is declared %v but stored list=%t", r.path, spec.Name, spec.Shape, isList)
	}
	dtype, err := arrowDType(values.DataType())
	if err != nil {
		return nil, dataerr.Configf("%s: column %q: %v", r.path, spec.Name, err)
	}
	col := newColumn(spec, dtype, n)

	for i := 0; i < n; i++ {
		start, end := int64(i), int64(i+1)
		if isList {
			start, end = list.ValueOffsets(i)
			if err := checkElements(r.path, spec, int(r.rowCount)+i, int(end-start)); err != nil {
				return nil, err
			}
		} else if values.IsNull(i) {
			if err := checkNull(r.path, spec, int(r.rowCount)+i); err != nil {
				return nil, err
			}
		}
		for j := start; j < end; j++ {
			appendArrowValue(col, values, int(j))
		}
	}
	return col, nil
}

func arrowDType(dt arrow.DataType) (labeled.DType, error) {
	switch dt.ID() {
	case arrow.BOOL, arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return labeled.Int64, nil
	case arrow.FLOAT32:
		return labeled.Float32, nil
	case arrow.FLOAT64:
		return labeled.Float64, nil
	default:
		return 0, fmt.Errorf("unsupported arrow type %s", dt)
	}
}

func appendArrowValue(col *Column, arr arrow.Array, i int) {
	if arr.IsNull(i) {
		col.appendInt(0)
		return
	}
	switch c := arr.(type) {
	case *array.Boolean:
		if c.Value(i) {
			col.appendInt(1)
		} else {
			col.appendInt(0)
		}
	case *array.Int8:
		col.appendInt(int64(c.Value(i)))
	case *array.Int16:
		col.appendInt(int64(c.Value(i)))
	case *array.Int32:
		col.appendInt(int64(c.Value(i)))
	case *array.Int64:
		col.appendInt(c.Value(i))
	case *array.Uint8:
		col.appendInt(int64(c.Value(i)))
	case *array.Uint16:
		col.appendInt(int64(c.Value(i)))
	case *array.Uint32:
		col.appendInt(int64(c.Value(i)))
	case *array.Float32:
		col.appendFloat(float64(c.Value(i)))
	case *array.Float64:
		col.appendFloat(c.Value(i))
	}
}

func (r *arrowFileReader) close() error {
	if r.rr != nil {
		r.rr.Release()
		r.rr = nil
	}
	if r.pr == nil {
		return nil
	}
	// closes the underlying CachedFile as well
	err := r.pr.Close()
	r.pr = nil
	return err
}
