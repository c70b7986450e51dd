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

// Package datadir locates flight data on the local filesystem.
//
// Data for a flight lives under one directory with one subdirectory per run:
//
//	<dir>/run<N>/<prefix><N><ext>
package datadir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cardinalhq/anitareader/internal/instrument"
)

// DefaultExtension is the file extension of columnar run files.
const DefaultExtension = ".parquet"

// Resolver maps flights to their data directories. It is built once from
// configuration and never consults the environment itself.
type Resolver struct {
	dirs map[int]string
}

// NewResolver creates a Resolver from a flight -> directory map.
func NewResolver(dirs map[int]string) *Resolver {
	cp := make(map[int]string, len(dirs))
	for k, v := range dirs {
		cp[k] = v
	}
	return &Resolver{dirs: cp}
}

// Directory returns the data directory of a flight, or "" if unset.
func (r *Resolver) Directory(flight int) (string, error) {
	if err := instrument.ValidateFlight(flight); err != nil {
		return "", err
	}
	return r.dirs[flight], nil
}

// IsAvailable reports whether the data directory of a flight is set and exists.
func (r *Resolver) IsAvailable(flight int) (bool, error) {
	dir, err := r.Directory(flight)
	if err != nil {
		return false, err
	}
	if dir == "" {
		return false, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AvailableRuns lists the run numbers with a run<N> directory, ascending.
// It does not check that the run files themselves exist.
func (r *Resolver) AvailableRuns(flight int) ([]int, error) {
	dir, err := r.Directory(flight)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list runs in %s: %w", dir, err)
	}
	var runs []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if run, ok := ParseRunDir(e.Name()); ok {
			runs = append(runs, run)
		}
	}
	sort.Ints(runs)
	return runs, nil
}

// ParseRunDir extracts N from a directory named run<N>.
func ParseRunDir(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "run")
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// FilePath returns <dir>/run<N>/<prefix><N><ext>.
func FilePath(dir string, run int, prefix, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("run%d", run), fmt.Sprintf("%s%d%s", prefix, run, ext))
}
