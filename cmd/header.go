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
		Use:   "header",
		Short: "Print the record group, row count and columns of a file",
		RunE: func(c *cobra.Command, _ []string) error {
			filename, err := c.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}
			return instrumented("header", func(ctx context.Context) error {
				return runHeader(ctx, c, filename)
			})
		},
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().String("file", "", "File to read")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}
}

func runHeader(ctx context.Context, c *cobra.Command, filename string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	opener, err := cfg.Opener()
	if err != nil {
		return err
	}
	h, err := opener.Header(ctx, filename, nil)
	if err != nil {
		return err
	}
	out := c.OutOrStdout()
	fmt.Fprintf(out, "File: %s\nGroup: %s\nRows: %d\nColumns: %s\n",
		h.Path, h.Group, h.NumRows, strings.Join(h.Columns, ", "))
	return nil
}
