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

// Package flightpath loads the GPS flight path of a flight as a table
// indexed by realTime.
package flightpath

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/cardinalhq/anitareader/internal/columnar"
	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/instrument"
	"github.com/cardinalhq/anitareader/internal/labeled"
	"github.com/cardinalhq/anitareader/internal/logctx"
)

const (
	// Group is the record group of flight path files.
	Group = "adu5Pat"
	// TimeField indexes the flight path.
	TimeField = "realTime"
)

// Options selects the flight path to load.
type Options struct {
	Flight int
	// Dir holds flightpaths/anita<N>.parquet.
	Dir    string
	Opener columnar.Opener
	Tables *instrument.Tables
}

// Path returns the flight path file of a flight under dir.
func Path(dir string, flight int) string {
	return filepath.Join(dir, "flightpaths", fmt.Sprintf("anita%d.parquet", flight))
}

// Load reads every column of the flight path. Each field has the single
// dimension realTime.
func Load(ctx context.Context, opts Options) (*labeled.Table, error) {
	tables := opts.Tables
	if tables == nil {
		tables = instrument.DefaultTables()
	}
	ft, err := tables.Flight(opts.Flight)
	if err != nil {
		return nil, err
	}
	if !ft.FlightPath {
		return nil, dataerr.Configf("no flight path is available for flight %d", opts.Flight)
	}
	opener := opts.Opener
	if opener == nil {
		opener = columnar.ParquetOpener{}
	}

	path := Path(opts.Dir, opts.Flight)
	h, err := opener.Header(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(h.Columns, TimeField) {
		return nil, dataerr.Configf("%s has no %s column", path, TimeField)
	}
	decls := []string{TimeField}
	for _, c := range h.Columns {
		if c != TimeField {
			decls = append(decls, c)
		}
	}
	specs, err := columnar.ParseColumns(decls)
	if err != nil {
		return nil, err
	}

	r, err := opener.Open(ctx, columnar.OpenRequest{
		Paths:     []string{path},
		FileType:  "flightPath",
		Group:     Group,
		Columns:   specs,
		BatchSize: columnar.Unbounded,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	cols := make([]*columnar.Column, len(specs))
	for {
		batch, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for i, c := range batch.Columns {
			cols[i] = appendColumn(cols[i], c)
		}
	}
	if cols[0] == nil {
		return nil, dataerr.Configf("%s holds no rows", path)
	}

	times, err := cols[0].EventIDs()
	if err != nil {
		return nil, err
	}
	table := labeled.NewTable(times)
	coord := labeled.IntCoord(TimeField, times)
	for _, c := range cols[1:] {
		var arr *labeled.Array
		switch c.DType {
		case labeled.Int64:
			arr, err = labeled.NewInt64(c.Int64s, coord)
		case labeled.Float32:
			arr, err = labeled.NewFloat32(c.Float32s, coord)
		default:
			arr, err = labeled.NewFloat64(c.Float64s, coord)
		}
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Spec.Name, err)
		}
		if err := table.Add(c.Spec.Name, arr); err != nil {
			return nil, err
		}
	}
	logctx.FromContext(ctx).Debug("Loaded flight path",
		slog.Int("flight", opts.Flight),
		slog.Int("entries", table.Len()),
		slog.Int("fields", len(cols)-1))
	return table, nil
}

func appendColumn(dst, src *columnar.Column) *columnar.Column {
	if dst == nil {
		return &columnar.Column{
			Spec:     src.Spec,
			DType:    src.DType,
			Int64s:   slices.Clone(src.Int64s),
			Float32s: slices.Clone(src.Float32s),
			Float64s: slices.Clone(src.Float64s),
		}
	}
	dst.Int64s = append(dst.Int64s, src.Int64s...)
	dst.Float32s = append(dst.Float32s, src.Float32s...)
	dst.Float64s = append(dst.Float64s, src.Float64s...)
	return dst
}
