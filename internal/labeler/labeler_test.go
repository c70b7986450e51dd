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

package labeler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/anitareader/internal/columnar"
	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/instrument"
	"github.com/cardinalhq/anitareader/internal/labeled"
)

func anita4(t *testing.T) *instrument.Generation {
	t.Helper()
	gen, err := instrument.Lookup(4)
	require.NoError(t, err)
	return gen
}

func specs(t *testing.T, decls ...string) []columnar.ColumnSpec {
	t.Helper()
	out, err := columnar.ParseColumns(decls)
	require.NoError(t, err)
	return out
}

func TestNew_Plan(t *testing.T) {
	gen := anita4(t)
	l, err := New(gen, map[string][]columnar.ColumnSpec{
		"calEvent": specs(t, "run", "eventNumber", "data[96][260]", "rms[96]", "mean[16][3][2]", "raw[4][5]"),
	})
	require.NoError(t, err)

	plan := l.Plan("calEvent")
	require.Len(t, plan, 6)
	want := []struct {
		name    string
		pattern instrument.ShapePattern
	}{
		{"run", instrument.PatternScalar},
		{"eventNumber", instrument.PatternScalar},
		{WaveformField, instrument.PatternChannelWaveform},
		{"rms", instrument.PatternChannelScalar},
		{"mean", instrument.PatternChannelScalar},
		{"raw[4][5]", instrument.PatternScalar},
	}
	for i, w := range want {
		assert.Equal(t, w.name, plan[i].Name, "field %d", i)
		assert.Equal(t, w.pattern, plan[i].Pattern, "field %d", i)
	}
	assert.Empty(t, l.Plan("head"))
	assert.Equal(t, instrument.DimEvent, l.EventField())
}

func TestNew_Errors(t *testing.T) {
	_, err := New(&instrument.Generation{Flight: 9}, nil)
	assert.ErrorIs(t, err, dataerr.ErrConfig)

	_, err = New(anita4(t), map[string][]columnar.ColumnSpec{
		"calEvent": specs(t, "eventNumber", "data[96][260]", "other[16][3][2][260]"),
	})
	assert.ErrorIs(t, err, dataerr.ErrConfig)
}

func TestLabel_ScalarFields(t *testing.T) {
	l, err := New(anita4(t), map[string][]columnar.ColumnSpec{"head": specs(t, "run", "eventNumber", "realTime")})
	require.NoError(t, err)

	run, err := columnar.NewInt64Column("run", []int64{342, 342, 342})
	require.NoError(t, err)
	ev, err := columnar.NewInt64Column("eventNumber", []int64{5, 9, 12})
	require.NoError(t, err)
	rt, err := columnar.NewFloat64Column("realTime", []float64{1.5, 2.5, 3.5})
	require.NoError(t, err)

	table, err := l.Label("head", &columnar.RecordBatch{Rows: 3, Columns: []*columnar.Column{run, ev, rt}})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 9, 12}, table.EventIDs())
	assert.Equal(t, []string{"run", "realTime"}, table.Names())

	arr, ok := table.Field("realTime")
	require.True(t, ok)
	assert.Equal(t, []string{instrument.DimEvent}, arr.Dims())
	assert.Equal(t, 2.5, arr.At(1))
	assert.Equal(t, labeled.Float64, arr.DType())
}

func TestLabel_MissingEventColumn(t *testing.T) {
	l, err := New(anita4(t), nil)
	require.NoError(t, err)
	run, err := columnar.NewInt64Column("run", []int64{1})
	require.NoError(t, err)
	_, err = l.Label("head", &columnar.RecordBatch{Rows: 1, Columns: []*columnar.Column{run}})
	assert.ErrorIs(t, err, dataerr.ErrConfig)
}

// TestLabel_ChannelOrderRoundTrip checks that for every (sector, ring, pol)
// the labeled array holds the value stored at the flat channel index.
func TestLabel_ChannelOrderRoundTrip(t *testing.T) {
	gen := anita4(t)
	nc := gen.NumChannels()
	const events = 2

	l, err := New(gen, map[string][]columnar.ColumnSpec{"calEvent": specs(t, "eventNumber", "rms[96]")})
	require.NoError(t, err)

	flat := make([]float32, events*nc)
	for e := range events {
		for c := range nc {
			flat[e*nc+c] = float32(e*1000 + c)
		}
	}
	ev, err := columnar.NewInt64Column("eventNumber", []int64{10, 11})
	require.NoError(t, err)
	rms, err := columnar.NewFloat32Column("rms[96]", flat)
	require.NoError(t, err)

	table, err := l.Label("calEvent", &columnar.RecordBatch{Rows: events, Columns: []*columnar.Column{ev, rms}})
	require.NoError(t, err)
	arr, ok := table.Field("rms")
	require.True(t, ok)
	assert.Equal(t, []string{instrument.DimEvent, instrument.DimSector, instrument.DimRing, instrument.DimPol}, arr.Dims())
	assert.Equal(t, []int{events, 16, 3, 2}, arr.Shape())

	sectors, _ := arr.Coord(instrument.DimSector)
	rings, _ := arr.Coord(instrument.DimRing)
	pols, _ := arr.Coord(instrument.DimPol)
	for e := range events {
		for si, s := range sectors.Ints {
			for ri, r := range rings.Strings {
				for pi, p := range pols.Strings {
					idx, err := gen.ChannelIndex(int(s), r, p)
					require.NoError(t, err)
					assert.Equal(t, float64(e*1000+idx), arr.At(e, si, ri, pi))

					ch, err := gen.Channel(idx)
					require.NoError(t, err)
					assert.Equal(t, instrument.Channel{Sector: int(s), Ring: r, Pol: p}, ch)
				}
			}
		}
	}
}

func TestLabel_Waveforms(t *testing.T) {
	gen := &instrument.Generation{Flight: 4, Sectors: 2, Rings: []string{"T", "M", "B"}, Pols: []string{"H", "V"}, SampleRate: 2.6, WaveformLength: 8}
	l, err := New(gen, map[string][]columnar.ColumnSpec{"calEvent": specs(t, "eventNumber", "data[12][8]")})
	require.NoError(t, err)

	data := make([]float32, 3*12*8)
	for i := range data {
		data[i] = float32(i)
	}
	ev, err := columnar.NewInt64Column("eventNumber", []int64{1, 2, 3})
	require.NoError(t, err)
	dc, err := columnar.NewFloat32Column("data[12][8]", data)
	require.NoError(t, err)

	table, err := l.Label("calEvent", &columnar.RecordBatch{Rows: 3, Columns: []*columnar.Column{ev, dc}})
	require.NoError(t, err)
	wf, ok := table.Field(WaveformField)
	require.True(t, ok)
	assert.Equal(t, []int{3, 2, 3, 2, 8}, wf.Shape())

	times, ok := wf.Coord(instrument.DimTime)
	require.True(t, ok)
	assert.Equal(t, 0.0, times.Floats[0])
	assert.InDelta(t, 1/2.6, times.Floats[1], 1e-12)

	// event 1, sector 2, ring M, pol V, sample 5
	idx, err := gen.ChannelIndex(2, "M", "V")
	require.NoError(t, err)
	assert.Equal(t, float64(1*12*8+idx*8+5), wf.At(1, 1, 1, 1, 5))
}

func TestLabel_UnmatchedShapeKeepsAxes(t *testing.T) {
	l, err := New(anita4(t), nil)
	require.NoError(t, err)

	ev, err := columnar.NewInt64Column("eventNumber", []int64{7})
	require.NoError(t, err)
	raw, err := columnar.NewInt64Column("raw[2][3]", []int64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	table, err := l.Label("head", &columnar.RecordBatch{Rows: 1, Columns: []*columnar.Column{ev, raw}})
	require.NoError(t, err)
	arr, ok := table.Field("raw[2][3]")
	require.True(t, ok)
	assert.Equal(t, []string{instrument.DimEvent, "raw_dim0", "raw_dim1"}, arr.Dims())
	assert.Equal(t, 6.0, arr.At(0, 1, 2))
}

func TestWithEventField(t *testing.T) {
	l, err := New(anita4(t), nil, WithEventField("evid"))
	require.NoError(t, err)

	ev, err := columnar.NewInt64Column("evid", []int64{3, 4})
	require.NoError(t, err)
	table, err := l.Label("x", &columnar.RecordBatch{Rows: 2, Columns: []*columnar.Column{ev}})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, table.EventIDs())
	assert.Empty(t, table.Names())
}
