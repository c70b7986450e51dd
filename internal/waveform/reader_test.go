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

package waveform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/anitareader/internal/columnar"
	"github.com/cardinalhq/anitareader/internal/datadir"
	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/instrument"
)

func smallGen() *instrument.Generation {
	return &instrument.Generation{
		Flight:         4,
		Sectors:        2,
		Rings:          []string{"T", "M", "B"},
		Pols:           []string{"H", "V"},
		SampleRate:     2.6,
		WaveformLength: 4,
	}
}

// fakeSource emits the events of produces in order, each filled with its
// event identifier. override replaces the reported last identifier.
type fakeSource struct {
	produces []int64
	cursor   int
	closed   bool
	override func(last int64) int64
}

func (f *fakeSource) FillNext(_ context.Context, buf *Buffer) (int64, error) {
	if f.cursor >= len(f.produces) {
		return 0, io.EOF
	}
	var last int64
	for i := 0; i < buf.Cap() && f.cursor < len(f.produces); i++ {
		last = f.produces[f.cursor]
		for j := range buf.Event(i) {
			buf.Event(i)[j] = float32(last)
		}
		f.cursor++
	}
	if f.override != nil {
		return f.override(last), nil
	}
	return last, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeRuns struct {
	ids     map[int][]int64
	sources map[int]*fakeSource
	opened  []int
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{ids: map[int][]int64{}, sources: map[int]*fakeSource{}}
}

func (f *fakeRuns) add(run int, ids []int64, src *fakeSource) {
	f.ids[run] = ids
	f.sources[run] = src
}

func (f *fakeRuns) options(run int) Options {
	return Options{
		Generation: smallGen(),
		Run:        run,
		OpenSource: func(_ context.Context, run int) (Source, error) {
			src, ok := f.sources[run]
			if !ok {
				return nil, &dataerr.NotFoundError{Runs: []int{run}}
			}
			f.opened = append(f.opened, run)
			src.cursor = 0
			return src, nil
		},
		LoadEventIDs: func(_ context.Context, run int) ([]int64, error) {
			ids, ok := f.ids[run]
			if !ok {
				return nil, &dataerr.NotFoundError{Runs: []int{run}}
			}
			return ids, nil
		},
	}
}

func seq(first int64, n int, step int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = first + int64(i)*step
	}
	return out
}

func TestReader_Batches(t *testing.T) {
	ids := seq(100, 25, 3)
	runs := newFakeRuns()
	runs.add(1, ids, &fakeSource{produces: ids})

	ctx := context.Background()
	r, err := New(ctx, runs.options(1))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var sizes []int
	var got []int64
	for {
		arr, err := r.Next(ctx, 10)
		if errors.Is(err, ErrRunExhausted) {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, arr.Len())
		got = append(got, arr.EventIDs()...)
		assert.Equal(t, []string{instrument.DimEvent, instrument.DimSector, instrument.DimRing, instrument.DimPol, instrument.DimTime}, arr.Dims())
		assert.Equal(t, []int{arr.Len(), 2, 3, 2, 4}, arr.Shape())
		assert.Equal(t, float64(arr.EventIDs()[0]), arr.At(0, 1, 2, 1, 3))
	}
	assert.Equal(t, []int{10, 10, 5}, sizes)
	assert.Equal(t, ids, got)
	assert.Equal(t, 0, r.Remaining())

	_, err = r.Next(ctx, 10)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_BatchLargerThanRemaining(t *testing.T) {
	ids := seq(0, 7, 1)
	runs := newFakeRuns()
	runs.add(2, ids, &fakeSource{produces: ids})

	ctx := context.Background()
	r, err := New(ctx, runs.options(2))
	require.NoError(t, err)

	arr, err := r.Next(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, arr.Len())
	assert.Equal(t, 2, r.Remaining())

	arr, err = r.Next(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, arr.Len())
	assert.Equal(t, []int64{5, 6}, arr.EventIDs())

	_, err = r.Next(ctx, 50)
	assert.ErrorIs(t, err, ErrRunExhausted)
}

func TestReader_TimeCoordinate(t *testing.T) {
	ids := seq(1, 3, 1)
	runs := newFakeRuns()
	runs.add(1, ids, &fakeSource{produces: ids})
	r, err := New(context.Background(), runs.options(1))
	require.NoError(t, err)

	arr, err := r.Next(context.Background(), 3)
	require.NoError(t, err)
	times, ok := arr.Coord(instrument.DimTime)
	require.True(t, ok)
	assert.Equal(t, 0.0, times.Floats[0])
	assert.InDelta(t, 1/2.6, times.Floats[1], 1e-12)
}

func TestReader_Desync(t *testing.T) {
	tests := []struct {
		name string
		src  func(ids []int64) *fakeSource
	}{
		{"source ahead", func(ids []int64) *fakeSource { return &fakeSource{produces: ids[12:]} }},
		{"unknown event", func(ids []int64) *fakeSource {
			return &fakeSource{produces: ids, override: func(int64) int64 { return -5 }}
		}},
		{"source ended early", func(ids []int64) *fakeSource { return &fakeSource{produces: nil} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := seq(10, 30, 1)
			runs := newFakeRuns()
			runs.add(1, ids, tt.src(ids))

			ctx := context.Background()
			r, err := New(ctx, runs.options(1))
			require.NoError(t, err)

			arr, err := r.Next(ctx, 10)
			require.Error(t, err)
			assert.Nil(t, arr)
			assert.ErrorIs(t, err, dataerr.ErrConsistency)
			assert.Equal(t, 0, r.Position())
		})
	}
}

func TestReader_SetRun(t *testing.T) {
	a := seq(1, 5, 1)
	b := seq(1000, 8, 2)
	runs := newFakeRuns()
	srcA := &fakeSource{produces: a}
	runs.add(1, a, srcA)
	runs.add(2, b, &fakeSource{produces: b})

	ctx := context.Background()
	r, err := New(ctx, runs.options(1))
	require.NoError(t, err)
	_, err = r.Next(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, r.SetRun(ctx, 2))
	assert.True(t, srcA.closed)
	assert.Equal(t, 2, r.Run())
	assert.Equal(t, 0, r.Position())
	assert.Equal(t, b, r.EventIDs())

	arr, err := r.Next(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 1002, 1004}, arr.EventIDs())

	require.NoError(t, r.SetRun(ctx, 1))
	arr, err = r.Next(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, arr.EventIDs())
	assert.Equal(t, []int{1, 2, 1}, runs.opened)

	err = r.SetRun(ctx, 9)
	assert.ErrorIs(t, err, dataerr.ErrNotFound)
	_, err = r.Next(ctx, 2)
	assert.ErrorIs(t, err, dataerr.ErrSequence)
}

func TestReader_Validation(t *testing.T) {
	runs := newFakeRuns()
	runs.add(1, seq(0, 3, 1), &fakeSource{produces: seq(0, 3, 1)})
	ctx := context.Background()

	r, err := New(ctx, runs.options(1))
	require.NoError(t, err)
	_, err = r.Next(ctx, 0)
	assert.ErrorIs(t, err, dataerr.ErrConfig)

	require.NoError(t, r.Close())
	_, err = r.Next(ctx, 1)
	assert.ErrorIs(t, err, dataerr.ErrSequence)

	opts := runs.options(1)
	opts.Generation = nil
	opts.Flight = 3
	_, err = New(ctx, opts)
	assert.ErrorIs(t, err, dataerr.ErrConfig)

	opts = runs.options(1)
	opts.OpenSource = nil
	_, err = New(ctx, opts)
	assert.ErrorIs(t, err, dataerr.ErrConfig)
}

func writeRun(t *testing.T, dir string, run int, ids []int64, samples int) {
	t.Helper()
	gen := smallGen()
	nc := gen.NumChannels()

	ev, err := columnar.NewInt64Column("eventNumber", ids)
	require.NoError(t, err)
	head := &columnar.RecordBatch{Rows: len(ids), Columns: []*columnar.Column{ev}}
	require.NoError(t, columnar.WriteParquetFile(datadir.FilePath(dir, run, "headFile", ".parquet"), "head", head))

	data := make([]float32, 0, len(ids)*nc*samples)
	for _, id := range ids {
		for c := range nc {
			for s := range samples {
				data = append(data, float32(id)+float32(c)/100+float32(s)/10_000)
			}
		}
	}
	wf, err := columnar.NewFloat32Column(fmt.Sprintf("data[12][%d]", samples), data)
	require.NoError(t, err)
	wave := &columnar.RecordBatch{Rows: len(ids), Columns: []*columnar.Column{ev, wf}}
	require.NoError(t, columnar.WriteParquetFile(datadir.FilePath(dir, run, "calibratedWaveformFile", ".parquet"), "wave", wave))
}

func TestParquetSource_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	ids := seq(500, 23, 5)
	writeRun(t, dir, 3, ids, 4)

	gen := smallGen()
	head := FileConfig{FileType: "head", Directory: dir, Prefix: "headFile", Group: "head"}
	wave := FileConfig{FileType: CalibratedFileType, Directory: dir, Prefix: "calibratedWaveformFile", Group: "wave",
		Cache: columnar.NewBlockCache(1 << 20)}
	open, err := ParquetSources(gen, wave, "data[12][4]", 7)
	require.NoError(t, err)

	ctx := context.Background()
	r, err := New(ctx, Options{Generation: gen, Run: 3, OpenSource: open, LoadEventIDs: HeaderEventIDs(head)})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	assert.Equal(t, ids, r.EventIDs())

	var got []int64
	for {
		arr, err := r.Next(ctx, 10)
		if errors.Is(err, ErrRunExhausted) {
			break
		}
		require.NoError(t, err)
		got = append(got, arr.EventIDs()...)

		ch, err := gen.ChannelIndex(2, "M", "H")
		require.NoError(t, err)
		want := float32(arr.EventIDs()[1]) + float32(ch)/100 + float32(3)/10_000
		assert.Equal(t, float64(want), arr.At(1, 1, 1, 0, 3))
	}
	assert.Equal(t, ids, got)
}

func TestParquetSource_ShortTracesZeroFilled(t *testing.T) {
	dir := t.TempDir()
	ids := seq(1, 2, 1)
	writeRun(t, dir, 1, ids, 3)

	gen := smallGen()
	wave := FileConfig{FileType: CalibratedFileType, Directory: dir, Prefix: "calibratedWaveformFile", Group: "wave"}
	open, err := ParquetSources(gen, wave, "data[12][3]", 0)
	require.NoError(t, err)

	src, err := open(context.Background(), 1)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	buf := NewBuffer(gen, 5)
	last, err := src.FillNext(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
	trace := buf.Trace(0, 0)
	assert.Equal(t, float32(0), trace[3])
	assert.InDelta(t, 1.0002, trace[2], 1e-6)

	_, err = src.FillNext(context.Background(), buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestParquetSources_RejectsNonWaveformColumn(t *testing.T) {
	_, err := ParquetSources(smallGen(), FileConfig{}, "data[7][4]", 0)
	assert.ErrorIs(t, err, dataerr.ErrConfig)
}

func TestHeaderEventIDs_Missing(t *testing.T) {
	head := FileConfig{FileType: "head", Directory: filepath.Join(t.TempDir(), "none"), Prefix: "headFile", Group: "head"}
	_, err := HeaderEventIDs(head)(context.Background(), 4)
	assert.ErrorIs(t, err, dataerr.ErrNotFound)
}

func TestWaveformColumn(t *testing.T) {
	decl, err := WaveformColumn(instrument.DefaultTables(), 4, CalibratedFileType)
	require.NoError(t, err)
	assert.Equal(t, "data[16][3][2][260]", decl)

	_, err = WaveformColumn(instrument.DefaultTables(), 4, "head")
	assert.ErrorIs(t, err, dataerr.ErrConfig)
}
