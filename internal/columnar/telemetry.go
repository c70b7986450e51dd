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

package columnar

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	rowsReadCounter    otelmetric.Int64Counter
	bytesReadCounter   otelmetric.Int64Counter
	cacheHitsCounter   otelmetric.Int64Counter
	cacheMissesCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/anitareader/internal/columnar")

	var err error
	rowsReadCounter, err = meter.Int64Counter(
		"anitareader.columnar.rows.read",
		otelmetric.WithDescription("Number of event rows read from columnar files"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.read counter: %w", err))
	}

	bytesReadCounter, err = meter.Int64Counter(
		"anitareader.columnar.bytes.read",
		otelmetric.WithDescription("Number of bytes read from disk by columnar readers"),
		otelmetric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create bytes.read counter: %w", err))
	}

	cacheHitsCounter, err = meter.Int64Counter(
		"anitareader.columnar.cache.hits",
		otelmetric.WithDescription("Number of file blocks served from the read-ahead cache"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cache.hits counter: %w", err))
	}

	cacheMissesCounter, err = meter.Int64Counter(
		"anitareader.columnar.cache.misses",
		otelmetric.WithDescription("Number of file blocks read from disk into the read-ahead cache"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cache.misses counter: %w", err))
	}
}

func readerAttrs(fileType string) otelmetric.AddOption {
	return otelmetric.WithAttributes(attribute.String("file_type", fileType))
}
