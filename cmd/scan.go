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
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/anitareader/internal/dataset"
	"github.com/cardinalhq/anitareader/internal/labeled"
	"github.com/cardinalhq/anitareader/internal/logctx"
	"github.com/cardinalhq/anitareader/internal/trigger"
)

func init() {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Iterate a dataset chunk by chunk and summarize each chunk",
		Long: `Joins the requested file types on eventNumber and prints one line per chunk.
When the header trigType field is loaded, trigger counts are included.

Columns are declared per file type, e.g.
  --column head=run,eventNumber,trigType
  --column calibratedWaveform=eventNumber,data[96][260]`,
		RunE: func(c *cobra.Command, _ []string) error {
			batchSize, err := c.Flags().GetInt("batch-size")
			if err != nil {
				return fmt.Errorf("failed to get batch-size flag: %w", err)
			}
			maxChunks, err := c.Flags().GetInt("max-chunks")
			if err != nil {
				return fmt.Errorf("failed to get max-chunks flag: %w", err)
			}
			return instrumented("scan", func(ctx context.Context) error {
				return runScan(ctx, c, batchSize, maxChunks)
			})
		},
	}

	rootCmd.AddCommand(cmd)

	addRunsFlag(cmd)
	cmd.Flags().StringSlice("file-types", nil, "File types to join; the first is the primary stream (default: flight defaults)")
	cmd.Flags().StringArray("column", nil, "Column declarations as fileType=column[,column...]; may be repeated")
	cmd.Flags().Int("batch-size", -1, "Events per chunk; 0 reads each run whole (default: reader.batch_size)")
	cmd.Flags().Int("max-chunks", 0, "Stop after this many chunks (0 for unlimited)")
}

func runScan(ctx context.Context, c *cobra.Command, batchSize, maxChunks int) error {
	cfg, opts, err := datasetOptions(c)
	if err != nil {
		return err
	}
	if batchSize < 0 {
		batchSize = cfg.Reader.BatchSize
	}
	ds, err := dataset.New(opts)
	if err != nil {
		return err
	}
	defer func() { _ = ds.Close() }()

	out := c.OutOrStdout()
	fmt.Fprint(out, ds.String())

	ctx = logctx.WithFlight(ctx, ds.Flight())
	start := time.Now()
	chunks, events := 0, 0
	for chunk, err := range ds.All(ctx, batchSize) {
		if err != nil {
			return err
		}
		chunks++
		events += chunk.Len()
		line, err := summarizeChunk(chunks, chunk)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, line)
		if maxChunks > 0 && chunks >= maxChunks {
			break
		}
	}

	stats := ds.Cache().Stats()
	logctx.FromContext(ctx).Info("Scan complete",
		slog.Int("chunks", chunks),
		slog.Int("events", events),
		slog.Duration("elapsed", time.Since(start)),
		slog.Uint64("cacheHits", stats.Hits),
		slog.Uint64("cacheMisses", stats.Misses))
	fmt.Fprintf(out, "%s events in %s chunks\n", humanize.Comma(int64(events)), humanize.Comma(int64(chunks)))
	return nil
}

func summarizeChunk(n int, chunk *labeled.Table) (string, error) {
	ids := chunk.EventIDs()
	var sb strings.Builder
	fmt.Fprintf(&sb, "chunk %d: %d events", n, chunk.Len())
	if len(ids) > 0 {
		fmt.Fprintf(&sb, " [%d..%d]", ids[0], ids[len(ids)-1])
	}
	if trig, ok := chunk.Field(trigger.Field); ok {
		rf, err := trigger.IsRF(trig)
		if err != nil {
			return "", err
		}
		minBias, err := trigger.IsMinBias(trig)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, " rf=%d minbias=%d", trigger.Count(rf), trigger.Count(minBias))
	}
	names := chunk.Names()
	fields := make([]string, 0, len(names))
	for _, name := range names {
		a, _ := chunk.Field(name)
		fields = append(fields, fmt.Sprintf("%s%v", name, a.Shape()))
	}
	fmt.Fprintf(&sb, " fields: %s", strings.Join(fields, " "))
	return sb.String(), nil
}

