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

// Package waveform reads calibrated waveforms of one run a fixed number of
// events at a time from a sequential Source, checking after every batch
// that the source is still on the expected event sequence.
package waveform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/instrument"
	"github.com/cardinalhq/anitareader/internal/labeled"
	"github.com/cardinalhq/anitareader/internal/logctx"
)

// ErrRunExhausted is returned by Next once every event of the run has been
// read. It wraps io.EOF. Use SetRun to move to another run.
var ErrRunExhausted = fmt.Errorf("waveform run exhausted: %w", io.EOF)

// Source produces calibrated events of one run in order.
type Source interface {
	// FillNext writes up to buf.Cap() events into buf, starting at
	// position 0, and returns the event identifier of the last event
	// written.
	FillNext(ctx context.Context, buf *Buffer) (lastEventID int64, err error)
	Close() error
}

// SourceOpener opens the Source of a run.
type SourceOpener func(ctx context.Context, run int) (Source, error)

// EventIDLoader returns the ordered event identifiers of a run.
type EventIDLoader func(ctx context.Context, run int) ([]int64, error)

// Options configures a Reader.
type Options struct {
	Flight int
	// Generation overrides the descriptor looked up from Flight.
	Generation   *instrument.Generation
	Run          int
	OpenSource   SourceOpener
	LoadEventIDs EventIDLoader
}

// Reader reads batches of calibrated waveforms for one run at a time.
// It is not safe for concurrent use.
type Reader struct {
	gen      *instrument.Generation
	open     SourceOpener
	loadIDs  EventIDLoader
	run      int
	ids      []int64
	evidx    int
	src      Source
	channels []labeled.Coord
	times    labeled.Coord
}

// New creates a Reader positioned at the first event of opts.Run.
func New(ctx context.Context, opts Options) (*Reader, error) {
	gen := opts.Generation
	if gen == nil {
		var err error
		if gen, err = instrument.Lookup(opts.Flight); err != nil {
			return nil, err
		}
	}
	if err := gen.Validate(); err != nil {
		return nil, err
	}
	if opts.OpenSource == nil || opts.LoadEventIDs == nil {
		return nil, dataerr.Configf("waveform reader needs a source opener and an event identifier loader")
	}
	r := &Reader{
		gen:     gen,
		open:    opts.OpenSource,
		loadIDs: opts.LoadEventIDs,
		channels: []labeled.Coord{
			labeled.IntCoord(instrument.DimSector, gen.SectorValues()),
			labeled.StringCoord(instrument.DimRing, slices.Clone(gen.Rings)),
			labeled.StringCoord(instrument.DimPol, slices.Clone(gen.Pols)),
		},
		times: labeled.FloatCoord(instrument.DimTime, gen.Times(gen.WaveformLength)),
	}
	if err := r.SetRun(ctx, opts.Run); err != nil {
		return nil, err
	}
	return r, nil
}

// Run returns the active run.
func (r *Reader) Run() int { return r.run }

// Generation returns the instrument descriptor.
func (r *Reader) Generation() *instrument.Generation { return r.gen }

// EventIDs returns the identifiers of the active run.
func (r *Reader) EventIDs() []int64 { return r.ids }

// Position is the index of the next event to be read.
func (r *Reader) Position() int { return r.evidx }

// Remaining is the number of events of the run not yet read.
func (r *Reader) Remaining() int { return len(r.ids) - r.evidx }

// SetRun closes the current source, reloads the event identifiers for run
// and opens a new source positioned at its first event.
func (r *Reader) SetRun(ctx context.Context, run int) error {
	if err := r.closeSource(); err != nil {
		logctx.FromContext(ctx).Warn("Failed to close waveform source",
			slog.Int("run", r.run), slog.Any("error", err))
	}
	ids, err := r.loadIDs(ctx, run)
	if err != nil {
		return fmt.Errorf("load event identifiers for run %d: %w", run, err)
	}
	src, err := r.open(ctx, run)
	if err != nil {
		return fmt.Errorf("open waveform source for run %d: %w", run, err)
	}
	r.run = run
	r.ids = ids
	r.evidx = 0
	r.src = src
	logctx.FromContext(ctx).Debug("Opened waveform run",
		slog.Int("run", run), slog.Int("events", len(ids)))
	return nil
}

// Next reads up to n events. The result has dims
// (eventNumber, sector, ring, pol, time) and holds fewer than n events
// near the end of the run. Once the run is exhausted Next returns
// ErrRunExhausted.
func (r *Reader) Next(ctx context.Context, n int) (*labeled.Array, error) {
	ctx, span := tracer.Start(ctx, "waveform.next", trace.WithAttributes(
		attribute.Int("run", r.run),
		attribute.Int("position", r.evidx),
		attribute.Int("n", n),
	))
	defer span.End()

	arr, err := r.next(ctx, n)
	switch {
	case errors.Is(err, ErrRunExhausted):
		span.SetAttributes(attribute.Bool("exhausted", true))
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read waveforms")
	default:
		span.SetAttributes(attribute.Int("events", arr.Len()))
	}
	return arr, err
}

func (r *Reader) next(ctx context.Context, n int) (*labeled.Array, error) {
	if n <= 0 {
		return nil, dataerr.Configf("waveform batch size must be positive, got %d", n)
	}
	if r.src == nil {
		return nil, &dataerr.SequenceError{Msg: "waveform reader is closed"}
	}
	if r.evidx >= len(r.ids) {
		return nil, fmt.Errorf("run %d: %w", r.run, ErrRunExhausted)
	}

	buf := NewBuffer(r.gen, n)
	last, err := r.src.FillNext(ctx, buf)
	if errors.Is(err, io.EOF) {
		return nil, dataerr.Consistencyf("run %d: waveform source ended with %d expected events left",
			r.run, r.Remaining())
	}
	if err != nil {
		return nil, fmt.Errorf("run %d: fill waveforms: %w", r.run, err)
	}

	window := r.ids[r.evidx:min(r.evidx+n, len(r.ids))]
	pos := slices.Index(window, last)
	if pos < 0 {
		desyncCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.Int("run", r.run)))
		return nil, dataerr.Consistencyf("run %d: waveform source returned event %d, expected one of events %d..%d",
			r.run, last, window[0], window[len(window)-1])
	}
	loaded := pos + 1

	coords := make([]labeled.Coord, 0, 5)
	coords = append(coords, labeled.IntCoord(instrument.DimEvent, slices.Clone(window[:loaded])))
	coords = append(coords, r.channels...)
	coords = append(coords, r.times)
	arr, err := labeled.NewFloat32(buf.head(loaded), coords...)
	if err != nil {
		return nil, err
	}
	r.evidx += loaded
	eventsReadCounter.Add(ctx, int64(loaded))
	return arr, nil
}

func (r *Reader) closeSource() error {
	if r.src == nil {
		return nil
	}
	err := r.src.Close()
	r.src = nil
	return err
}

// Close closes the source. Next fails afterwards until SetRun is called.
func (r *Reader) Close() error {
	return r.closeSource()
}
