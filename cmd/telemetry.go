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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/anitareader/internal/logctx"
)

const serviceName = "anitareader"

var (
	meter = otel.Meter("github.com/cardinalhq/anitareader")

	commandCounter  metric.Int64Counter
	commandDuration metric.Float64Histogram
)

func init() {
	var err error
	commandCounter, err = meter.Int64Counter(
		"anitareader.command.runs",
		metric.WithDescription("Number of CLI commands run, by command and outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create command.runs counter: %w", err))
	}

	commandDuration, err = meter.Float64Histogram(
		"anitareader.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of a CLI command in seconds"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create command.duration histogram: %w", err))
	}
}

// debugEnabled reports whether DEBUG or ANITAREADER_DEBUG is set.
func debugEnabled() bool {
	return os.Getenv("DEBUG") != "" || os.Getenv("ANITAREADER_DEBUG") != ""
}

// setupTelemetry installs the default logger and, when OTLP export is
// enabled, the OpenTelemetry SDK. The returned context carries the logger
// and is cancelled on SIGINT or SIGTERM. The shutdown func must be called
// before exit.
func setupTelemetry(command string) (context.Context, func() error, error) {
	doneCtx, doneCancel := handleSignals(context.Background())

	f := func() error {
		doneCancel()
		return nil
	}

	var opts *slog.HandlerOptions
	if debugEnabled() {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	// logs go to stderr; stdout carries command output
	if os.Getenv("OTEL_SERVICE_NAME") != "" && os.Getenv("ENABLE_OTLP_TELEMETRY") == "true" {
		slog.SetDefault(slog.New(slogmulti.Fanout(
			slog.NewTextHandler(os.Stderr, opts),
			otelslog.NewHandler(serviceName),
		)).With(slog.String("command", command)))
		slog.Info("OpenTelemetry exporting enabled")

		otelShutdown, err := telemetry.SetupOTelSDK(doneCtx)
		if err != nil {
			doneCancel()
			return nil, nil, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
		}

		if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(time.Second * 10)); err != nil {
			slog.Warn("failed to start runtime metrics", "error", err.Error())
		}

		if err := host.Start(); err != nil {
			slog.Warn("failed to start host metrics", "error", err.Error())
		}

		f = func() error {
			defer doneCancel()
			slog.Debug("Shutting down OpenTelemetry SDK")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return otelShutdown(ctx)
		}
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)).With(
			slog.String("command", command),
		))
	}

	return logctx.WithLogger(doneCtx, slog.Default()), f, nil
}

// instrumented wraps a command body with telemetry setup, shutdown and
// the command counters.
func instrumented(command string, run func(ctx context.Context) error) error {
	ctx, shutdown, err := setupTelemetry(command)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(); err != nil {
			slog.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	start := time.Now()
	err = run(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	)
	commandCounter.Add(ctx, 1, attrs)
	commandDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	return err
}
