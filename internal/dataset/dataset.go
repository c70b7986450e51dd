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

// Package dataset reads several file types of a flight in lock-step and
// yields one merged table per chunk of events.
//
// A Dataset starts in StateUninitialized. Iterate opens one column reader
// per file type and moves it to StateIterating; Next pulls one batch from
// every reader, in file-type order, labels and merges them. When the first
// file type runs out the readers are closed and the Dataset becomes
// StateExhausted; calling Next again restarts from the first chunk.
//
// A Dataset is not safe for concurrent use.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/anitareader/internal/columnar"
	"github.com/cardinalhq/anitareader/internal/datadir"
	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/instrument"
	"github.com/cardinalhq/anitareader/internal/join"
	"github.com/cardinalhq/anitareader/internal/labeled"
	"github.com/cardinalhq/anitareader/internal/labeler"
	"github.com/cardinalhq/anitareader/internal/logctx"
)

// DefaultBatchSize is the number of events per chunk used by callers that
// do not choose one.
const DefaultBatchSize = 2000

const defaultEntryCountWorkers = 4

// Options configures a Dataset. Zero values select the flight defaults.
type Options struct {
	Flight int
	// Runs defaults to every run directory found for the flight.
	Runs []int
	// FileTypes defaults to the flight's default file types when nil.
	// The first file type is the primary stream.
	FileTypes []string
	// Columns maps a file type to its column declarations. File types
	// missing from the map use the flight's default columns.
	Columns map[string][]string
	// CacheSize is the read-ahead budget shared by every reader, e.g. "1GB".
	CacheSize string
	// Opener defaults to the parquet-go backend.
	Opener    columnar.Opener
	Resolver  *datadir.Resolver
	Tables    *instrument.Tables
	Extension string
	// StrictCollisions fails a chunk when two file types provide the same
	// field instead of keeping the first.
	StrictCollisions bool
	// EntryCountWorkers bounds the concurrent header reads of EntryCount.
	EntryCountWorkers int
}

// Dataset is a chunked, merged view over several file types of a flight.
type Dataset struct {
	flight    int
	dir       string
	runs      []int
	fileTypes []string
	columns   map[string][]columnar.ColumnSpec
	groups    map[string]string
	prefixes  map[string]string
	ext       string
	workers   int

	opener  columnar.Opener
	cache   *columnar.BlockCache
	labeler *labeler.Labeler
	merger  *join.Merger

	state     State
	batchSize int
	passRuns  []int
	readers   []columnar.Reader
}

// New resolves the configuration of a Dataset. No file is opened.
func New(opts Options) (*Dataset, error) {
	tables := opts.Tables
	if tables == nil {
		tables = instrument.DefaultTables()
	}
	ft, err := tables.Flight(opts.Flight)
	if err != nil {
		return nil, err
	}
	if ft.Generation == nil {
		return nil, dataerr.Configf("instrument generation for flight %d is not supported", opts.Flight)
	}
	if opts.Resolver == nil {
		return nil, dataerr.Configf("no data directory resolver")
	}
	dir, err := opts.Resolver.Directory(opts.Flight)
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		flight:   opts.Flight,
		dir:      dir,
		columns:  make(map[string][]columnar.ColumnSpec),
		groups:   make(map[string]string),
		prefixes: make(map[string]string),
		ext:      opts.Extension,
		workers:  opts.EntryCountWorkers,
		opener:   opts.Opener,
		merger:   join.New(join.Options{StrictCollisions: opts.StrictCollisions}),
	}
	if d.ext == "" {
		d.ext = datadir.DefaultExtension
	}
	if d.workers <= 0 {
		d.workers = defaultEntryCountWorkers
	}
	if d.opener == nil {
		d.opener = columnar.ParquetOpener{}
	}

	if opts.Runs != nil {
		d.runs = slices.Clone(opts.Runs)
	} else {
		if d.runs, err = opts.Resolver.AvailableRuns(opts.Flight); err != nil {
			return nil, err
		}
	}

	d.fileTypes = slices.Clone(opts.FileTypes)
	if opts.FileTypes == nil {
		d.fileTypes = slices.Clone(ft.DefaultFileTypes)
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, fileType := range d.fileTypes {
		if !seen.Add(fileType) {
			return nil, dataerr.Configf("file type %q requested twice", fileType)
		}
		if d.groups[fileType], err = tables.Group(fileType); err != nil {
			return nil, err
		}
		if d.prefixes[fileType], err = ft.FilePrefix(fileType); err != nil {
			return nil, err
		}
		decls, ok := opts.Columns[fileType]
		if !ok {
			decls = ft.Columns(fileType)
		}
		specs, err := columnar.ParseColumns(decls)
		if err != nil {
			return nil, fmt.Errorf("file type %q: %w", fileType, err)
		}
		if !slices.ContainsFunc(specs, func(s columnar.ColumnSpec) bool { return s.Raw == instrument.DimEvent }) {
			return nil, dataerr.Configf("file type %q does not load the %q column", fileType, instrument.DimEvent)
		}
		d.columns[fileType] = specs
	}

	if d.labeler, err = labeler.New(ft.Generation, d.columns); err != nil {
		return nil, err
	}

	cacheSize := opts.CacheSize
	if cacheSize == "" {
		cacheSize = columnar.DefaultCacheSize
	}
	if d.cache, err = columnar.NewBlockCacheFromString(cacheSize); err != nil {
		return nil, err
	}
	return d, nil
}

// Flight returns the flight number.
func (d *Dataset) Flight() int { return d.flight }

// Directory returns the data directory of the flight.
func (d *Dataset) Directory() string { return d.dir }

// Runs returns the current run list.
func (d *Dataset) Runs() []int { return slices.Clone(d.runs) }

// FileTypes returns the file types in merge order.
func (d *Dataset) FileTypes() []string { return slices.Clone(d.fileTypes) }

// State returns the iteration state.
func (d *Dataset) State() State { return d.state }

// Cache returns the read-ahead cache shared by the readers.
func (d *Dataset) Cache() *columnar.BlockCache { return d.cache }

// SetRuns replaces the run list. An iteration in progress is abandoned;
// the next call to Next starts over with the new runs.
func (d *Dataset) SetRuns(runs ...int) {
	d.runs = slices.Clone(runs)
	if d.state == StateUninitialized {
		return
	}
	_ = d.closeReaders()
	d.passRuns = nil
	d.state = StateExhausted
}

// Iterate opens one reader per file type over runs, or over the run list
// when runs is empty, reading batchSize events per chunk
// (columnar.Unbounded reads each file whole). It returns d so that calls
// can be chained.
func (d *Dataset) Iterate(ctx context.Context, batchSize int, runs ...int) (*Dataset, error) {
	if batchSize < 0 {
		return nil, dataerr.Configf("batch size must not be negative, got %d", batchSize)
	}
	if err := d.closeReaders(); err != nil {
		logctx.FromContext(ctx).Warn("Failed to close previous readers", slog.Any("error", err))
	}
	d.state = StateUninitialized
	d.batchSize = batchSize
	d.passRuns = slices.Clone(runs)
	if err := d.open(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dataset) open(ctx context.Context) error {
	if len(d.fileTypes) == 0 {
		return dataerr.Configf("no file types specified to load")
	}
	runs := d.passRuns
	if len(runs) == 0 {
		runs = d.runs
	}
	if len(runs) == 0 {
		return dataerr.Configf("no runs to load for flight %d", d.flight)
	}

	ctx = logctx.WithFlight(ctx, d.flight)
	readers := make([]columnar.Reader, 0, len(d.fileTypes))
	for _, fileType := range d.fileTypes {
		r, err := d.opener.Open(logctx.WithFileType(ctx, fileType), columnar.OpenRequest{
			Paths:     d.paths(fileType, runs),
			Runs:      runs,
			FileType:  fileType,
			Group:     d.groups[fileType],
			Columns:   d.columns[fileType],
			BatchSize: d.batchSize,
			Cache:     d.cache,
		})
		if err != nil {
			for _, opened := range readers {
				_ = opened.Close()
			}
			return err
		}
		readers = append(readers, r)
	}

	logctx.FromContext(ctx).Debug("Started dataset iteration",
		slog.Any("runs", runs),
		slog.Any("fileTypes", d.fileTypes),
		slog.Int("batchSize", d.batchSize))
	d.readers = readers
	d.state = StateIterating
	return nil
}

func (d *Dataset) paths(fileType string, runs []int) []string {
	out := make([]string, len(runs))
	for i, run := range runs {
		out[i] = datadir.FilePath(d.dir, run, d.prefixes[fileType], d.ext)
	}
	return out
}

// Next returns the next merged chunk, or io.EOF once the primary file type
// is exhausted. Any other error aborts the current pass. After the pass
// ends, Next restarts from the first chunk of Runs(), whatever runs were
// passed to Iterate.
func (d *Dataset) Next(ctx context.Context) (*labeled.Table, error) {
	ctx, span := tracer.Start(ctx, "dataset.next", trace.WithAttributes(
		attribute.Int("flight", d.flight),
		attribute.String("state", d.state.String()),
	))
	defer span.End()

	switch d.state {
	case StateUninitialized:
		return nil, &dataerr.SequenceError{Msg: "Next called before Iterate"}
	case StateExhausted:
		restartsCounter.Add(ctx, 1, flightAttrs(d.flight))
		if err := d.open(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to reopen readers")
			return nil, err
		}
	}

	table, err := d.nextChunk(ctx)
	if err != nil {
		if cerr := d.closeReaders(); cerr != nil {
			logctx.FromContext(ctx).Warn("Failed to close readers", slog.Any("error", cerr))
		}
		d.state = StateExhausted
		// a restart covers the run list, not this pass's override
		d.passRuns = nil
		if errors.Is(err, io.EOF) {
			span.SetAttributes(attribute.Bool("exhausted", true))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read chunk")
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("events", table.Len()))
	chunksCounter.Add(ctx, 1, flightAttrs(d.flight))
	eventsCounter.Add(ctx, int64(table.Len()), flightAttrs(d.flight))
	return table, nil
}

func (d *Dataset) nextChunk(ctx context.Context) (*labeled.Table, error) {
	primaryType := d.fileTypes[0]
	batch, err := d.readers[0].Next(ctx)
	if err != nil {
		return nil, err
	}
	primary, err := d.labeler.Label(primaryType, batch)
	if err != nil {
		return nil, err
	}

	secondaries := make([]join.Source, 0, len(d.fileTypes)-1)
	for i, fileType := range d.fileTypes[1:] {
		batch, err := d.readers[i+1].Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, dataerr.Consistencyf("file type %q ran out of events while %q still had %d",
				fileType, primaryType, primary.Len())
		}
		if err != nil {
			return nil, err
		}
		table, err := d.labeler.Label(fileType, batch)
		if err != nil {
			return nil, err
		}
		secondaries = append(secondaries, join.Source{Name: fileType, Table: table})
	}

	merged, _, err := d.merger.Merge(ctx, join.Source{Name: primaryType, Table: primary}, secondaries...)
	return merged, err
}

// All iterates with Iterate(ctx, batchSize) and yields every chunk of the
// pass. A non-EOF error is yielded once and ends the sequence.
func (d *Dataset) All(ctx context.Context, batchSize int) iter.Seq2[*labeled.Table, error] {
	return func(yield func(*labeled.Table, error) bool) {
		if _, err := d.Iterate(ctx, batchSize); err != nil {
			yield(nil, err)
			return
		}
		for {
			table, err := d.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(table, nil) {
				return
			}
		}
	}
}

// CountFileType is the file type EntryCount reads: the header file type
// when loaded, otherwise the primary file type.
func (d *Dataset) CountFileType() (string, error) {
	if len(d.fileTypes) == 0 {
		return "", dataerr.Configf("no file types specified to load")
	}
	if slices.Contains(d.fileTypes, instrument.HeaderFileType) {
		return instrument.HeaderFileType, nil
	}
	return d.fileTypes[0], nil
}

// EntryCount returns the number of events of every run in the run list,
// read from file metadata only. Iteration state is untouched.
func (d *Dataset) EntryCount(ctx context.Context) (map[int]int64, error) {
	fileType, err := d.CountFileType()
	if err != nil {
		return nil, err
	}
	runs := slices.Clone(d.runs)

	ctx, span := tracer.Start(ctx, "dataset.entry_count", trace.WithAttributes(
		attribute.Int("flight", d.flight),
		attribute.String("fileType", fileType),
		attribute.Int("runs", len(runs)),
	))
	defer span.End()

	paths := d.paths(fileType, runs)

	var mu sync.Mutex
	counts := make(map[int]int64, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, run := range runs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			h, err := d.opener.Header(gctx, paths[i], nil)
			if err != nil {
				var nf *dataerr.NotFoundError
				if errors.As(err, &nf) {
					return &dataerr.NotFoundError{Runs: []int{run}, FileType: fileType, Path: paths[i], Err: nf.Err}
				}
				return fmt.Errorf("run %d: %w", run, err)
			}
			mu.Lock()
			counts[run] = h.NumRows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read headers")
		return nil, err
	}
	return counts, nil
}

func (d *Dataset) String() string {
	var sb strings.Builder
	sb.WriteString("Dataset:\n")
	fmt.Fprintf(&sb, "    Flight: %d\n", d.flight)
	fmt.Fprintf(&sb, "    No. Runs: %d\n", len(d.runs))
	fmt.Fprintf(&sb, "    File Types: %v\n", d.fileTypes)
	fmt.Fprintf(&sb, "    Directory: %s\n", d.dir)
	return sb.String()
}

func (d *Dataset) closeReaders() error {
	var errs *multierror.Error
	for i, r := range d.readers {
		if err := r.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close %s reader: %w", d.fileTypes[i], err))
		}
	}
	d.readers = nil
	return errs.ErrorOrNil()
}

// Close releases every reader and drops cached blocks. The Dataset returns
// to StateUninitialized.
func (d *Dataset) Close() error {
	err := d.closeReaders()
	d.cache.Purge()
	d.state = StateUninitialized
	return err
}
