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

// Package labeler turns raw record batches into labeled tables. Each
// declared column is classified once, when the Labeler is built, into one
// of the instrument.ShapePattern kinds; Label then only reshapes.
package labeler

import (
	"fmt"
	"slices"

	"github.com/cardinalhq/anitareader/internal/columnar"
	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/instrument"
	"github.com/cardinalhq/anitareader/internal/labeled"
)

// WaveformField is the field name of calibrated waveform blocks.
const WaveformField = "waveforms"

// Field is the resolved labeling of one declared column.
type Field struct {
	Spec    columnar.ColumnSpec
	Pattern instrument.ShapePattern
	// Name is the output field name.
	Name string
}

// Labeler labels batches for one instrument generation.
type Labeler struct {
	gen        *instrument.Generation
	eventField string
	plans      map[string][]Field

	sectors labeled.Coord
	rings   labeled.Coord
	pols    labeled.Coord
}

// Option configures a Labeler.
type Option func(*Labeler)

// WithEventField overrides the column holding event identifiers.
func WithEventField(name string) Option {
	return func(l *Labeler) { l.eventField = name }
}

// New resolves the labeling of every declared column.
func New(gen *instrument.Generation, columns map[string][]columnar.ColumnSpec, opts ...Option) (*Labeler, error) {
	if err := gen.Validate(); err != nil {
		return nil, err
	}
	l := &Labeler{
		gen:        gen,
		eventField: instrument.DimEvent,
		plans:      make(map[string][]Field, len(columns)),
		sectors:    labeled.IntCoord(instrument.DimSector, gen.SectorValues()),
		rings:      labeled.StringCoord(instrument.DimRing, slices.Clone(gen.Rings)),
		pols:       labeled.StringCoord(instrument.DimPol, slices.Clone(gen.Pols)),
	}
	for _, opt := range opts {
		opt(l)
	}

	for fileType, specs := range columns {
		plan := make([]Field, 0, len(specs))
		waveforms := 0
		for _, spec := range specs {
			f := l.resolve(spec)
			if f.Pattern == instrument.PatternChannelWaveform {
				waveforms++
			}
			plan = append(plan, f)
		}
		if waveforms > 1 {
			return nil, dataerr.Configf("file type %q declares %d waveform columns, at most one is allowed", fileType, waveforms)
		}
		l.plans[fileType] = plan
	}
	return l, nil
}

// EventField is the column holding event identifiers.
func (l *Labeler) EventField() string { return l.eventField }

// Generation returns the instrument descriptor.
func (l *Labeler) Generation() *instrument.Generation { return l.gen }

// Plan returns the resolved fields of a file type in declaration order.
func (l *Labeler) Plan(fileType string) []Field {
	return slices.Clone(l.plans[fileType])
}

func (l *Labeler) resolve(spec columnar.ColumnSpec) Field {
	p := l.gen.Classify(spec.Shape)
	f := Field{Spec: spec, Pattern: p}
	switch p {
	case instrument.PatternChannelWaveform:
		f.Name = WaveformField
	case instrument.PatternChannelScalar:
		f.Name = spec.Name
	default:
		f.Name = spec.Raw
	}
	return f
}

func (l *Labeler) field(fileType string, spec columnar.ColumnSpec) Field {
	for _, f := range l.plans[fileType] {
		if f.Spec.Raw == spec.Raw {
			return f
		}
	}
	return l.resolve(spec)
}

// Label converts one batch of fileType into a table keyed by the batch's
// event identifiers. The event column itself becomes the event axis and is
// not repeated as a field.
func (l *Labeler) Label(fileType string, batch *columnar.RecordBatch) (*labeled.Table, error) {
	evcol, ok := batch.Column(l.eventField)
	if !ok {
		return nil, dataerr.Configf("file type %q: batch from %s has no %q column", fileType, batch.Path, l.eventField)
	}
	ids, err := evcol.EventIDs()
	if err != nil {
		return nil, err
	}

	table := labeled.NewTable(ids)
	for _, col := range batch.Columns {
		if col == evcol {
			continue
		}
		f := l.field(fileType, col.Spec)
		arr, err := l.array(f, col, ids)
		if err != nil {
			return nil, fmt.Errorf("file type %q column %q: %w", fileType, col.Spec.Raw, err)
		}
		if err := table.Add(f.Name, arr); err != nil {
			return nil, fmt.Errorf("file type %q: %w", fileType, err)
		}
	}
	return table, nil
}

func (l *Labeler) array(f Field, col *columnar.Column, ids []int64) (*labeled.Array, error) {
	coords := []labeled.Coord{labeled.IntCoord(instrument.DimEvent, ids)}
	switch f.Pattern {
	case instrument.PatternChannelWaveform:
		n := f.Spec.Shape[len(f.Spec.Shape)-1]
		coords = append(coords, l.sectors, l.rings, l.pols,
			labeled.FloatCoord(instrument.DimTime, l.gen.Times(n)))
	case instrument.PatternChannelScalar:
		coords = append(coords, l.sectors, l.rings, l.pols)
	default:
		for k, d := range f.Spec.Shape {
			coords = append(coords, labeled.RangeCoord(extraDim(f.Spec.Name, k), d))
		}
	}
	return newArray(col, coords)
}

func extraDim(name string, k int) string {
	return fmt.Sprintf("%s_dim%d", name, k)
}

func newArray(col *columnar.Column, coords []labeled.Coord) (*labeled.Array, error) {
	switch col.DType {
	case labeled.Int64:
		return labeled.NewInt64(col.Int64s, coords...)
	case labeled.Float32:
		return labeled.NewFloat32(col.Float32s, coords...)
	case labeled.Float64:
		return labeled.NewFloat64(col.Float64s, coords...)
	default:
		return nil, fmt.Errorf("unsupported column type %s", col.DType)
	}
}
