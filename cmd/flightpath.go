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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/anitareader/config"
	"github.com/cardinalhq/anitareader/internal/flightpath"
)

func init() {
	cmd := &cobra.Command{
		Use:   "flightpath",
		Short: "Summarize the GPS flight path of a flight",
		RunE: func(c *cobra.Command, _ []string) error {
			flight, err := c.Flags().GetInt("flight")
			if err != nil {
				return fmt.Errorf("failed to get flight flag: %w", err)
			}
			dir, err := c.Flags().GetString("dir")
			if err != nil {
				return fmt.Errorf("failed to get dir flag: %w", err)
			}
			return instrumented("flightpath", func(ctx context.Context) error {
				return runFlightPath(ctx, c, flight, dir)
			})
		},
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().String("dir", "", "Directory holding flightpaths/anita<N>.parquet (default: data.flightpath_dir)")
}

func runFlightPath(ctx context.Context, c *cobra.Command, flight int, dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dir == "" {
		dir = cfg.Data.FlightPathDir
	}
	opener, err := cfg.Opener()
	if err != nil {
		return err
	}
	path, err := flightpath.Load(ctx, flightpath.Options{Flight: flight, Dir: dir, Opener: opener})
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	times := path.EventIDs()
	fmt.Fprintf(out, "Flight %d: %d positions\n", flight, path.Len())
	if len(times) > 0 {
		fmt.Fprintf(out, "%s: %d..%d\n", flightpath.TimeField, times[0], times[len(times)-1])
	}
	for _, name := range path.Names() {
		a, _ := path.Field(name)
		fmt.Fprintf(out, "  %s (%s)\n", name, a.DType())
	}
	return nil
}
