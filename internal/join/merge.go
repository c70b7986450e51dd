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

// Package join merges the per-file-type tables of one chunk into a single
// table over a shared event axis.
package join

import (
	"context"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/labeled"
	"github.com/cardinalhq/anitareader/internal/logctx"
)

var droppedFieldsCounter otelmetric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/anitareader/internal/join")

	var err error
	droppedFieldsCounter, err = meter.Int64Counter(
		"anitareader.join.fields.dropped",
		otelmetric.WithDescription("Number of fields dropped because an earlier file type already provided them"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create fields.dropped counter: %w", err))
	}
}

// Source is the labeled batch of one file type.
type Source struct {
	Name  string
	Table *labeled.Table
}

// Options controls collision handling.
type Options struct {
	// StrictCollisions turns a field provided by two file types into a
	// configuration error instead of keeping the first.
	StrictCollisions bool
}

// Report describes what a merge discarded.
type Report struct {
	// Dropped holds "<field>_<source>" for every field discarded in favor
	// of an earlier file type, in merge order.
	Dropped []string
}

// Merger merges chunk tables. It holds no state between calls.
type Merger struct {
	opts Options
}

// New creates a Merger.
func New(opts Options) *Merger {
	return &Merger{opts: opts}
}

// Merge starts from the primary table and adds every field of each
// secondary, in order. Every secondary must carry exactly the primary's
// event identifiers. A field name already present is kept from the earlier
// source and the later one is dropped.
func (m *Merger) Merge(ctx context.Context, primary Source, secondaries ...Source) (*labeled.Table, Report, error) {
	var report Report
	if primary.Table == nil {
		return nil, report, fmt.Errorf("merge: primary source %q has no table", primary.Name)
	}

	events := primary.Table.EventIDs()
	out := labeled.NewTable(events)
	present := mapset.NewThreadUnsafeSet[string]()
	for _, name := range primary.Table.Names() {
		arr, _ := primary.Table.Field(name)
		if err := out.Add(name, arr); err != nil {
			return nil, report, err
		}
		present.Add(name)
	}

	for _, src := range secondaries {
		if src.Table == nil {
			return nil, report, fmt.Errorf("merge: source %q has no table", src.Name)
		}
		if err := checkAligned(primary, src); err != nil {
			return nil, report, err
		}
		for _, name := range src.Table.Names() {
			if present.Contains(name) {
				tagged := name + "_" + src.Name
				if m.opts.StrictCollisions {
					return nil, report, dataerr.Configf("field %q of file type %q is already provided by an earlier file type", name, src.Name)
				}
				report.Dropped = append(report.Dropped, tagged)
				droppedFieldsCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("file_type", src.Name)))
				logctx.FromContext(ctx).Debug("Dropping colliding field",
					slog.String("field", name),
					slog.String("fileType", src.Name),
					slog.String("tag", tagged))
				continue
			}
			arr, _ := src.Table.Field(name)
			if err := out.Add(name, arr); err != nil {
				return nil, report, err
			}
			present.Add(name)
		}
	}
	return out, report, nil
}

func checkAligned(primary, src Source) error {
	pe, se := primary.Table.EventIDs(), src.Table.EventIDs()
	if len(pe) != len(se) {
		return dataerr.Consistencyf("file type %q has %d events in this chunk, %q has %d",
			src.Name, len(se), primary.Name, len(pe))
	}
	if !labeled.SameEvents(pe, se) {
		for i := range pe {
			if pe[i] != se[i] {
				return dataerr.Consistencyf("file type %q event %d is %d, %q has %d",
					src.Name, i, se[i], primary.Name, pe[i])
			}
		}
	}
	return nil
}
