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
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/anitareader/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs available for a flight",
		RunE: func(c *cobra.Command, _ []string) error {
			flight, err := c.Flags().GetInt("flight")
			if err != nil {
				return fmt.Errorf("failed to get flight flag: %w", err)
			}
			return instrumented("runs", func(_ context.Context) error {
				return runRuns(c, flight)
			})
		},
	}

	rootCmd.AddCommand(cmd)
}

func runRuns(c *cobra.Command, flight int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	resolver := cfg.Resolver()
	ok, err := resolver.IsAvailable(flight)
	if err != nil {
		return err
	}
	dir, _ := resolver.Directory(flight)
	out := c.OutOrStdout()
	if !ok {
		fmt.Fprintf(out, "Flight %d: no data directory (set ANITAREADER_DATA_ANITA%d or ANITA%d_ROOT_DATA)\n", flight, flight, flight)
		return nil
	}
	runs, err := resolver.AvailableRuns(flight)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Flight %d: %s\n", flight, dir)
	fmt.Fprintf(out, "Runs (%d): %s\n", len(runs), formatRuns(runs))
	return nil
}

// formatRuns renders ascending runs with consecutive spans collapsed,
// e.g. "1-3 7 9-10".
func formatRuns(runs []int) string {
	var parts []string
	for i := 0; i < len(runs); {
		j := i
		for j+1 < len(runs) && runs[j+1] == runs[j]+1 {
			j++
		}
		if j == i {
			parts = append(parts, fmt.Sprint(runs[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", runs[i], runs[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, " ")
}
