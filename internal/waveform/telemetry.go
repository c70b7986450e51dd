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
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/cardinalhq/anitareader/internal/waveform")

var (
	eventsReadCounter otelmetric.Int64Counter
	desyncCounter     otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/anitareader/internal/waveform")

	var err error
	eventsReadCounter, err = meter.Int64Counter(
		"anitareader.waveform.events.read",
		otelmetric.WithDescription("Number of calibrated waveform events returned"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create events.read counter: %w", err))
	}

	desyncCounter, err = meter.Int64Counter(
		"anitareader.waveform.desync",
		otelmetric.WithDescription("Number of waveform batches rejected because the source drifted from the expected events"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create desync counter: %w", err))
	}
}
