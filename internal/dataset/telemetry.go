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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/cardinalhq/anitareader/internal/dataset")

var (
	chunksCounter   otelmetric.Int64Counter
	eventsCounter   otelmetric.Int64Counter
	restartsCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/anitareader/internal/dataset")

	var err error
	chunksCounter, err = meter.Int64Counter(
		"anitareader.dataset.chunks",
		otelmetric.WithDescription("Number of merged chunks returned by datasets"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create chunks counter: %w", err))
	}

	eventsCounter, err = meter.Int64Counter(
		"anitareader.dataset.events",
		otelmetric.WithDescription("Number of events returned in merged chunks"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create events counter: %w", err))
	}

	restartsCounter, err = meter.Int64Counter(
		"anitareader.dataset.restarts",
		otelmetric.WithDescription("Number of times iteration was restarted after exhaustion or a run change"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create restarts counter: %w", err))
	}
}

func flightAttrs(flight int) otelmetric.AddOption {
	return otelmetric.WithAttributes(attribute.Int("flight", flight))
}
