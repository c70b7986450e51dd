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

package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/anitareader/internal/columnar"
	"github.com/cardinalhq/anitareader/internal/datadir"
	"github.com/cardinalhq/anitareader/internal/instrument"
)

// testTables describes an eight sector instrument, 48 channels of 260
// samples, with a header and a calibrated waveform file type.
const testTables = `
groups:
  head: head
  calibratedWaveform: wave
  timedGpsEvent: adu5Pat
flights:
  4:
    generation:
      sectors: 8
      rings: [T, M, B]
      pols: [H, V]
      sampleRate: 2.6
      waveformLength: 260
    files:
      head: headFile
      calibratedWaveform: calibratedWaveformFile
      timedGpsEvent: timedGpsEvent
    defaultFileTypes: [head, calibratedWaveform]
    defaultColumns:
      head: [run, eventNumber]
      calibratedWaveform: [run, eventNumber, "data[48][260]"]
      timedGpsEvent: [eventNumber, heading]
`

const (
	testChannels = 48
	testSamples  = 260
)

func tables(t *testing.T) *instrument.Tables {
	t.Helper()
	tb, err := instrument.ParseTables([]byte(testTables))
	require.NoError(t, err)
	return tb
}

func eventID(run, i int) int64 { return int64(run)*10_000 + int64(2*i) }

func sample(event, channel, s int) float32 {
	return float32(event%100)*1000 + float32(channel) + float32(s)/1000
}

type fixture struct {
	t   *testing.T
	dir string
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, dir: t.TempDir()}
}

func (f *fixture) resolver() *datadir.Resolver {
	return datadir.NewResolver(map[int]string{4: f.dir})
}

func (f *fixture) write(fileType, prefix string, run int, cols ...*columnar.Column) {
	f.t.Helper()
	path := datadir.FilePath(f.dir, run, prefix, datadir.DefaultExtension)
	group, err := tables(f.t).Group(fileType)
	require.NoError(f.t, err)
	batch := &columnar.RecordBatch{Rows: cols[0].Rows(), Columns: cols}
	require.NoError(f.t, columnar.WriteParquetFile(path, group, batch))
}

func (f *fixture) ids(run, n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = eventID(run, i)
	}
	return ids
}

func (f *fixture) runColumn(run int, n int) *columnar.Column {
	f.t.Helper()
	v := make([]int64, n)
	for i := range v {
		v[i] = int64(run)
	}
	c, err := columnar.NewInt64Column("run", v)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) eventColumn(run, n int) *columnar.Column {
	f.t.Helper()
	c, err := columnar.NewInt64Column("eventNumber", f.ids(run, n))
	require.NoError(f.t, err)
	return c
}

// writeHead writes n header events for run.
func (f *fixture) writeHead(run, n int) {
	f.write("head", "headFile", run, f.runColumn(run, n), f.eventColumn(run, n))
}

// writeWaveforms writes n waveform events for run whose run column is
// offset by runOffset.
func (f *fixture) writeWaveforms(run, n int, runOffset int) {
	f.t.Helper()
	data := make([]float32, 0, n*testChannels*testSamples)
	for e := range n {
		for c := range testChannels {
			for s := range testSamples {
				data = append(data, sample(e, c, s))
			}
		}
	}
	wf, err := columnar.NewFloat32Column("data[48][260]", data)
	require.NoError(f.t, err)
	f.write("calibratedWaveform", "calibratedWaveformFile", run,
		f.runColumn(run+runOffset, n), f.eventColumn(run, n), wf)
}

func (f *fixture) open(mutate func(*Options)) *Dataset {
	f.t.Helper()
	opts := Options{
		Flight:    4,
		Resolver:  f.resolver(),
		Tables:    tables(f.t),
		CacheSize: "64MiB",
	}
	if mutate != nil {
		mutate(&opts)
	}
	d, err := New(opts)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = d.Close() })
	return d
}
