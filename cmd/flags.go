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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/anitareader/config"
	"github.com/cardinalhq/anitareader/internal/dataset"
)

// datasetOptions loads configuration and applies the --flight, --runs,
// --file-types and --column flags shared by the dataset commands.
func datasetOptions(c *cobra.Command) (*config.Config, dataset.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, dataset.Options{}, fmt.Errorf("failed to load config: %w", err)
	}
	flight, err := c.Flags().GetInt("flight")
	if err != nil {
		return nil, dataset.Options{}, fmt.Errorf("failed to get flight flag: %w", err)
	}
	opts, err := cfg.DatasetOptions(flight)
	if err != nil {
		return nil, dataset.Options{}, err
	}

	if c.Flags().Changed("runs") {
		if opts.Runs, err = c.Flags().GetIntSlice("runs"); err != nil {
			return nil, dataset.Options{}, fmt.Errorf("failed to get runs flag: %w", err)
		}
	}
	if c.Flags().Lookup("file-types") != nil && c.Flags().Changed("file-types") {
		if opts.FileTypes, err = c.Flags().GetStringSlice("file-types"); err != nil {
			return nil, dataset.Options{}, fmt.Errorf("failed to get file-types flag: %w", err)
		}
	}
	if c.Flags().Lookup("column") != nil {
		decls, err := c.Flags().GetStringArray("column")
		if err != nil {
			return nil, dataset.Options{}, fmt.Errorf("failed to get column flag: %w", err)
		}
		if opts.Columns, err = parseColumnFlags(decls); err != nil {
			return nil, dataset.Options{}, err
		}
	}
	return cfg, opts, nil
}

// parseColumnFlags turns "fileType=decl,decl" values into a column map.
// Repeating a file type appends to its list.
func parseColumnFlags(values []string) (map[string][]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(values))
	for _, v := range values {
		fileType, decls, ok := strings.Cut(v, "=")
		if !ok || fileType == "" || decls == "" {
			return nil, fmt.Errorf("invalid --column %q, want fileType=column[,column...]", v)
		}
		for _, decl := range splitDecls(decls) {
			out[fileType] = append(out[fileType], decl)
		}
	}
	return out, nil
}

// splitDecls splits on commas outside of brackets.
func splitDecls(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		out = append(out, last)
	}
	return out
}

func addRunsFlag(c *cobra.Command) {
	c.Flags().IntSlice("runs", nil, "Runs to read (default: every run directory of the flight)")
}
