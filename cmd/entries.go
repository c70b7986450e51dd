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
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/anitareader/internal/dataset"
	"github.com/cardinalhq/anitareader/internal/instrument"
)

func init() {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Print the number of events of each run",
		Long:  `Reads only file footers; the header file type is counted when loaded.`,
		RunE: func(c *cobra.Command, _ []string) error {
			return instrumented("entries", func(ctx context.Context) error {
				return runEntries(ctx, c)
			})
		},
	}

	rootCmd.AddCommand(cmd)

	addRunsFlag(cmd)
	cmd.Flags().StringSlice("file-types", []string{instrument.HeaderFileType}, "File types of the dataset")
}

func runEntries(ctx context.Context, c *cobra.Command) error {
	_, opts, err := datasetOptions(c)
	if err != nil {
		return err
	}
	if opts.FileTypes == nil {
		opts.FileTypes = []string{instrument.HeaderFileType}
	}
	ds, err := dataset.New(opts)
	if err != nil {
		return err
	}
	defer func() { _ = ds.Close() }()

	counts, err := ds.EntryCount(ctx)
	if err != nil {
		return err
	}
	runs := make([]int, 0, len(counts))
	for run := range counts {
		runs = append(runs, run)
	}
	slices.Sort(runs)

	out := c.OutOrStdout()
	var total int64
	for _, run := range runs {
		fmt.Fprintf(out, "run%-6d %12s\n", run, humanize.Comma(counts[run]))
		total += counts[run]
	}
	fmt.Fprintf(out, "%-9s %12s\n", "total", humanize.Comma(total))
	return nil
}
