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
	"io"

	"github.com/cardinalhq/anitareader/internal/columnar"
	"github.com/cardinalhq/anitareader/internal/datadir"
	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/instrument"
	"github.com/cardinalhq/anitareader/internal/labeled"
	"github.com/cardinalhq/anitareader/internal/labeler"
)

// CalibratedFileType is the file type holding calibrated waveforms.
const CalibratedFileType = "calibratedWaveform"

const defaultReadBatch = 64

// FileConfig locates the files of one file type.
type FileConfig struct {
	FileType  string
	Opener    columnar.Opener
	Directory string
	Prefix    string
	Group     string
	Extension string
	Cache     *columnar.BlockCache
}

// FlightFiles builds the FileConfig of a file type from the flight tables.
func FlightFiles(tables *instrument.Tables, resolver *datadir.Resolver, flight int, fileType string) (FileConfig, error) {
	ft, err := tables.Flight(flight)
	if err != nil {
		return FileConfig{}, err
	}
	prefix, err := ft.FilePrefix(fileType)
	if err != nil {
		return FileConfig{}, err
	}
	group, err := tables.Group(fileType)
	if err != nil {
		return FileConfig{}, err
	}
	dir, err := resolver.Directory(flight)
	if err != nil {
		return FileConfig{}, err
	}
	return FileConfig{FileType: fileType, Directory: dir, Prefix: prefix, Group: group}, nil
}

// Path returns the file of a run.
func (c FileConfig) Path(run int) string {
	ext := c.Extension
	if ext == "" {
		ext = datadir.DefaultExtension
	}
	return datadir.FilePath(c.Directory, run, c.Prefix, ext)
}

func (c FileConfig) opener() columnar.Opener {
	if c.Opener == nil {
		return columnar.ParquetOpener{}
	}
	return c.Opener
}

func (c FileConfig) request(run int, batchSize int, specs ...columnar.ColumnSpec) columnar.OpenRequest {
	return columnar.OpenRequest{
		Paths:     []string{c.Path(run)},
		Runs:      []int{run},
		FileType:  c.FileType,
		Group:     c.Group,
		Columns:   specs,
		BatchSize: batchSize,
		Cache:     c.Cache,
	}
}

// HeaderEventIDs returns a loader reading the event identifier column of
// the files described by c, typically the header file type.
func HeaderEventIDs(c FileConfig) EventIDLoader {
	return func(ctx context.Context, run int) ([]int64, error) {
		spec, err := columnar.ParseColumn(instrument.DimEvent)
		if err != nil {
			return nil, err
		}
		r, err := c.opener().Open(ctx, c.request(run, columnar.Unbounded, spec))
		if err != nil {
			return nil, err
		}
		defer func() { _ = r.Close() }()

		var ids []int64
		for {
			batch, err := r.Next(ctx)
			if errors.Is(err, io.EOF) {
				return ids, nil
			}
			if err != nil {
				return nil, err
			}
			col, _ := batch.Column(instrument.DimEvent)
			got, err := col.EventIDs()
			if err != nil {
				return nil, err
			}
			ids = append(ids, got...)
		}
	}
}

// ParquetSource replays the calibrated waveform file of one run. It keeps
// its own cursor, independent of the Reader's.
type ParquetSource struct {
	reader  columnar.Reader
	column  columnar.ColumnSpec
	samples int
	pending *columnar.RecordBatch
	offset  int
}

var _ Source = (*ParquetSource)(nil)

// ParquetSources returns a SourceOpener over the files described by c,
// reading the waveform column decl ("data[96][260]" or
// "data[16][3][2][260]"). readBatch is the number of events read from
// disk at a time; zero selects a default.
func ParquetSources(gen *instrument.Generation, c FileConfig, decl string, readBatch int) (SourceOpener, error) {
	spec, err := columnar.ParseColumn(decl)
	if err != nil {
		return nil, err
	}
	if gen.Classify(spec.Shape) != instrument.PatternChannelWaveform {
		return nil, dataerr.Configf("column %q is not a %d channel waveform column", decl, gen.NumChannels())
	}
	event, err := columnar.ParseColumn(instrument.DimEvent)
	if err != nil {
		return nil, err
	}
	if readBatch <= 0 {
		readBatch = defaultReadBatch
	}
	return func(ctx context.Context, run int) (Source, error) {
		r, err := c.opener().Open(ctx, c.request(run, readBatch, event, spec))
		if err != nil {
			return nil, err
		}
		return &ParquetSource{
			reader:  r,
			column:  spec,
			samples: spec.Shape[len(spec.Shape)-1],
		}, nil
	}, nil
}

// WaveformColumn returns the waveform column among the default columns of
// a file type.
func WaveformColumn(tables *instrument.Tables, flight int, fileType string) (string, error) {
	ft, err := tables.Flight(flight)
	if err != nil {
		return "", err
	}
	if ft.Generation == nil {
		return "", dataerr.Configf("instrument generation for flight %d is not supported", flight)
	}
	for _, decl := range ft.Columns(fileType) {
		spec, err := columnar.ParseColumn(decl)
		if err != nil {
			return "", err
		}
		if ft.Generation.Classify(spec.Shape) == instrument.PatternChannelWaveform {
			return decl, nil
		}
	}
	return "", dataerr.Configf("file type %q of flight %d has no %s column", fileType, flight, labeler.WaveformField)
}

// FillNext copies up to buf.Cap() events into buf. Traces longer than the
// buffer are truncated and shorter ones leave trailing zeros.
func (s *ParquetSource) FillNext(ctx context.Context, buf *Buffer) (int64, error) {
	var last int64
	filled := 0
	for filled < buf.Cap() {
		if s.pending == nil || s.offset >= s.pending.Rows {
			batch, err := s.reader.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return 0, err
			}
			s.pending, s.offset = batch, 0
		}
		ev, _ := s.pending.Column(instrument.DimEvent)
		ids, err := ev.EventIDs()
		if err != nil {
			return 0, err
		}
		wf, ok := s.pending.Column(s.column.Name)
		if !ok {
			return 0, dataerr.Configf("batch from %s has no column %q", s.pending.Path, s.column.Raw)
		}
		if err := s.copyEvent(buf, filled, wf, s.offset); err != nil {
			return 0, err
		}
		last = ids[s.offset]
		s.offset++
		filled++
	}
	if filled == 0 {
		return 0, io.EOF
	}
	return last, nil
}

func (s *ParquetSource) copyEvent(buf *Buffer, dst int, col *columnar.Column, row int) error {
	channels := buf.Channels()
	if s.column.Elements() != channels*s.samples {
		return dataerr.Consistencyf("column %q holds %d values per event, want %d channels of %d samples",
			s.column.Raw, s.column.Elements(), channels, s.samples)
	}
	n := min(s.samples, buf.Samples())
	base := row * s.column.Elements()
	for ch := range channels {
		src := base + ch*s.samples
		trace := buf.Trace(dst, ch)
		switch col.DType {
		case labeled.Float32:
			copy(trace[:n], col.Float32s[src:src+n])
		case labeled.Float64:
			for i := range n {
				trace[i] = float32(col.Float64s[src+i])
			}
		default:
			for i := range n {
				trace[i] = float32(col.Int64s[src+i])
			}
		}
	}
	return nil
}

// Close closes the underlying reader.
func (s *ParquetSource) Close() error {
	return s.reader.Close()
}
