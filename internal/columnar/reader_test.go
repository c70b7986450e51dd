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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/anitareader/internal/dataerr"
)

var backends = []string{BackendParquet, BackendArrow}

// writeEventFile writes n events starting at first with an integer event
// id, a float64 scalar and a float32 [2][3] block whose values encode the
// event id and element index.
func writeEventFile(t *testing.T, path string, first int64, n int) {
	t.Helper()
	ids := make([]int64, n)
	times := make([]float64, n)
	data := make([]float32, 0, n*6)
	for i := range n {
		ids[i] = first + int64(i)
		times[i] = float64(ids[i]) * 0.5
		for k := range 6 {
			data = append(data, float32(ids[i])*10+float32(k))
		}
	}
	ev, err := NewInt64Column("eventNumber", ids)
	require.NoError(t, err)
	rt, err := NewFloat64Column("realTime", times)
	require.NoError(t, err)
	dc, err := NewFloat32Column("data[2][3]", data)
	require.NoError(t, err)
	batch := &RecordBatch{Rows: n, Columns: []*Column{ev, rt, dc}}
	require.NoError(t, WriteParquetFile(path, "calEvent", batch))
}

func request(t *testing.T, paths []string, batchSize int, decls ...string) OpenRequest {
	t.Helper()
	specs, err := ParseColumns(decls)
	require.NoError(t, err)
	return OpenRequest{
		Paths:     paths,
		FileType:  "calEvent",
		Group:     "calEvent",
		Columns:   specs,
		BatchSize: batchSize,
	}
}

func readAll(t *testing.T, r Reader) []*RecordBatch {
	t.Helper()
	var out []*RecordBatch
	for {
		b, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, b)
	}
}

func TestNewOpener(t *testing.T) {
	o, err := NewOpener("")
	require.NoError(t, err)
	assert.IsType(t, ParquetOpener{}, o)

	o, err = NewOpener(BackendArrow)
	require.NoError(t, err)
	assert.IsType(t, ArrowOpener{}, o)

	_, err = NewOpener("hdf5")
	assert.ErrorIs(t, err, dataerr.ErrConfig)
}

func TestReader_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run1", "calEventFile1.parquet")
	writeEventFile(t, path, 100, 10)

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			o, err := NewOpener(backend)
			require.NoError(t, err)
			r, err := o.Open(context.Background(), request(t, []string{path}, 4, "eventNumber", "realTime", "data[2][3]"))
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			batches := readAll(t, r)
			require.Len(t, batches, 3)
			assert.Equal(t, 4, batches[0].Rows)
			assert.Equal(t, 4, batches[1].Rows)
			assert.Equal(t, 2, batches[2].Rows)

			var ids []int64
			for _, b := range batches {
				ev, ok := b.Column("eventNumber")
				require.True(t, ok)
				got, err := ev.EventIDs()
				require.NoError(t, err)
				ids = append(ids, got...)
				assert.Equal(t, path, b.Path)
			}
			assert.Equal(t, []int64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}, ids)

			second := batches[1]
			data, ok := second.Column("data")
			require.True(t, ok)
			require.Len(t, data.Float32s, 4*6)
			// event 104, element [1][2]
			assert.Equal(t, float32(1045), data.Float32s[5])
			rt, ok := second.Column("realTime")
			require.True(t, ok)
			assert.Equal(t, []float64{52, 52.5, 53, 53.5}, rt.Float64s)
		})
	}
}

func TestReader_UnboundedAndMultiFile(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "run1", "calEventFile1.parquet")
	p2 := filepath.Join(dir, "run2", "calEventFile2.parquet")
	writeEventFile(t, p1, 0, 3)
	writeEventFile(t, p2, 3, 5)

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			o, err := NewOpener(backend)
			require.NoError(t, err)

			r, err := o.Open(context.Background(), request(t, []string{p1, p2}, Unbounded, "eventNumber"))
			require.NoError(t, err)
			batches := readAll(t, r)
			require.NoError(t, r.Close())
			require.Len(t, batches, 2)
			assert.Equal(t, 3, batches[0].Rows)
			assert.Equal(t, 5, batches[1].Rows)

			r, err = o.Open(context.Background(), request(t, []string{p1, p2}, 4, "eventNumber"))
			require.NoError(t, err)
			batches = readAll(t, r)
			require.NoError(t, r.Close())
			rows := make([]int, len(batches))
			for i, b := range batches {
				rows[i] = b.Rows
			}
			assert.Equal(t, []int{3, 4, 1}, rows)
		})
	}
}

func TestReader_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "run41", "headFile41.parquet")
	writeEventFile(t, present, 0, 2)
	missing := filepath.Join(dir, "run42", "headFile42.parquet")

	req := request(t, []string{present, missing}, 0, "eventNumber")
	req.Runs = []int{41, 42}
	req.FileType = "head"

	_, err := ParquetOpener{}.Open(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, dataerr.ErrNotFound)

	var nf *dataerr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []int{42}, nf.Runs)
	assert.Equal(t, "head", nf.FileType)
	assert.Contains(t, err.Error(), "[42]")
}

func TestReader_OpenValidation(t *testing.T) {
	_, err := ParquetOpener{}.Open(context.Background(), OpenRequest{FileType: "head"})
	assert.ErrorIs(t, err, dataerr.ErrConfig)

	_, err = ParquetOpener{}.Open(context.Background(), OpenRequest{FileType: "head", Paths: []string{"x"}})
	assert.ErrorIs(t, err, dataerr.ErrConfig)
}

func TestReader_SchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run1", "calEventFile1.parquet")
	writeEventFile(t, path, 0, 4)

	tests := []struct {
		name  string
		group string
		decls []string
		want  error
	}{
		{"wrong group", "head", []string{"eventNumber"}, dataerr.ErrConfig},
		{"unknown column", "calEvent", []string{"eventNumber", "rms"}, dataerr.ErrConfig},
		{"scalar declared as array", "calEvent", []string{"eventNumber[2]"}, dataerr.ErrConfig},
		{"array declared as scalar", "calEvent", []string{"data"}, dataerr.ErrConfig},
		{"wrong element count", "calEvent", []string{"data[2][2]"}, dataerr.ErrConsistency},
	}
	for _, backend := range backends {
		for _, tt := range tests {
			t.Run(backend+"/"+tt.name, func(t *testing.T) {
				o, err := NewOpener(backend)
				require.NoError(t, err)
				req := request(t, []string{path}, 0, tt.decls...)
				req.Group = tt.group
				r, err := o.Open(context.Background(), req)
				require.NoError(t, err)
				defer func() { _ = r.Close() }()

				_, err = r.Next(context.Background())
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.want)
			})
		}
	}
}

func TestReader_SharedCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run1", "calEventFile1.parquet")
	writeEventFile(t, path, 0, 50)
	cache := NewBlockCache(8 << 20)

	for _, backend := range backends {
		o, err := NewOpener(backend)
		require.NoError(t, err)
		req := request(t, []string{path}, 0, "eventNumber", "data[2][3]")
		req.Cache = cache
		r, err := o.Open(context.Background(), req)
		require.NoError(t, err)
		batches := readAll(t, r)
		require.NoError(t, r.Close())
		require.Len(t, batches, 1)
		assert.Equal(t, 50, batches[0].Rows)
	}
	assert.Positive(t, cache.Stats().Hits)
}

func TestReader_NextAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.parquet")
	writeEventFile(t, path, 0, 1)
	r, err := ParquetOpener{}.Open(context.Background(), request(t, []string{path}, 0, "eventNumber"))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.Next(context.Background())
	assert.Error(t, err)
}

func TestHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run7", "calEventFile7.parquet")
	writeEventFile(t, path, 0, 6)

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			o, err := NewOpener(backend)
			require.NoError(t, err)
			h, err := o.Header(context.Background(), path, nil)
			require.NoError(t, err)
			assert.Equal(t, "calEvent", h.Group)
			assert.Equal(t, int64(6), h.NumRows)
			assert.ElementsMatch(t, []string{"eventNumber", "realTime", "data"}, h.Columns)

			_, err = o.Header(context.Background(), path+".missing", nil)
			assert.ErrorIs(t, err, dataerr.ErrNotFound)
		})
	}
}

// writeOptionalFile writes optional eventNumber and realTime leaves; a nil
// entry is stored as a null.
func writeOptionalFile(t *testing.T, path string, ids []*int64, times []*float64) {
	t.Helper()
	schema := parquet.NewSchema("calEvent", parquet.Group{
		"eventNumber": parquet.Optional(parquet.Int(64)),
		"realTime":    parquet.Optional(parquet.Leaf(parquet.DoubleType)),
	})
	evLeaf, ok := schema.Lookup("eventNumber")
	require.True(t, ok)
	rtLeaf, ok := schema.Lookup("realTime")
	require.True(t, ok)

	rows := make([]parquet.Row, len(ids))
	for i := range ids {
		ev := parquet.NullValue().Level(0, 0, evLeaf.ColumnIndex)
		if ids[i] != nil {
			ev = parquet.Int64Value(*ids[i]).Level(0, 1, evLeaf.ColumnIndex)
		}
		rt := parquet.NullValue().Level(0, 0, rtLeaf.ColumnIndex)
		if times[i] != nil {
			rt = parquet.DoubleValue(*times[i]).Level(0, 1, rtLeaf.ColumnIndex)
		}
		row := parquet.Row{ev, rt}
		if rtLeaf.ColumnIndex < evLeaf.ColumnIndex {
			row = parquet.Row{rt, ev}
		}
		rows[i] = row
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	pw := parquet.NewWriter(f, schema)
	_, err = pw.WriteRows(rows)
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, f.Close())
}

func ptr[T any](v T) *T { return &v }

func TestReader_NullEventNumber(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run1", "calEventFile1.parquet")
	writeOptionalFile(t, path,
		[]*int64{ptr(int64(10)), nil, ptr(int64(14))},
		[]*float64{ptr(1.0), ptr(2.0), ptr(3.0)})

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			o, err := NewOpener(backend)
			require.NoError(t, err)
			r, err := o.Open(context.Background(), request(t, []string{path}, Unbounded, "eventNumber", "realTime"))
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			_, err = r.Next(context.Background())
			require.ErrorIs(t, err, dataerr.ErrConsistency)
			assert.Contains(t, err.Error(), "row 1")
		})
	}
}

func TestReader_NullScalarReadsZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run1", "calEventFile1.parquet")
	writeOptionalFile(t, path,
		[]*int64{ptr(int64(10)), ptr(int64(12))},
		[]*float64{nil, ptr(2.5)})

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			o, err := NewOpener(backend)
			require.NoError(t, err)
			r, err := o.Open(context.Background(), request(t, []string{path}, Unbounded, "eventNumber", "realTime"))
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			batches := readAll(t, r)
			require.Len(t, batches, 1)
			ev, ok := batches[0].Column("eventNumber")
			require.True(t, ok)
			assert.Equal(t, []int64{10, 12}, ev.Int64s)
			rt, ok := batches[0].Column("realTime")
			require.True(t, ok)
			assert.Equal(t, []float64{0, 2.5}, rt.Float64s)
		})
	}
}

func TestReader_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run1", "calEventFile1.parquet")
	writeEventFile(t, path, 100, 10)

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			o, err := NewOpener(backend)
			require.NoError(t, err)
			r, err := o.Open(context.Background(), request(t, []string{path}, 4, "eventNumber"))
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			ctx, cancel := context.WithCancel(context.Background())
			_, err = r.Next(ctx)
			require.NoError(t, err)
			cancel()
			_, err = r.Next(ctx)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}
