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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/logctx"
)

// Unbounded as a batch size reads each file whole.
const Unbounded = 0

// Backend names accepted by NewOpener.
const (
	BackendParquet = "parquet"
	BackendArrow   = "arrow"
)

// Reader yields record batches until io.EOF.
type Reader interface {
	// Next returns the next batch. Returns io.EOF when every file is exhausted.
	Next(ctx context.Context) (*RecordBatch, error)

	// Close releases any resources held by the reader.
	Close() error
}

// OpenRequest describes the files and columns a Reader reads.
type OpenRequest struct {
	// Paths are read in order, typically one file per run.
	Paths []string
	// Runs optionally names the run of each path, for error reporting.
	Runs []int
	// FileType is used for error reporting only.
	FileType  string
	Group     string
	Columns   []ColumnSpec
	BatchSize int
	// Cache is shared by every reader of one dataset; nil reads uncached.
	Cache *BlockCache
}

// Header is the metadata of one file.
type Header struct {
	Path    string
	Group   string
	NumRows int64
	Columns []string
}

// Opener opens readers and file headers for one storage backend.
type Opener interface {
	Open(ctx context.Context, req OpenRequest) (Reader, error)
	Header(ctx context.Context, path string, cache *BlockCache) (Header, error)
}

// NewOpener returns the Opener for a backend name.
func NewOpener(backend string) (Opener, error) {
	switch backend {
	case "", BackendParquet:
		return ParquetOpener{}, nil
	case BackendArrow:
		return ArrowOpener{}, nil
	default:
		return nil, dataerr.Configf("unknown column reader backend %q", backend)
	}
}

// fileReader reads one file.
type fileReader interface {
	next(ctx context.Context) (*RecordBatch, error)
	close() error
}

type openFileFunc func(ctx context.Context, path string) (fileReader, error)

// multiFileReader reads files sequentially in the order provided, opening
// each one lazily when the previous one is exhausted.
type multiFileReader struct {
	req     OpenRequest
	open    openFileFunc
	index   int
	current fileReader
	closed  bool
}

func newMultiFileReader(ctx context.Context, req OpenRequest, open openFileFunc) (*multiFileReader, error) {
	if len(req.Paths) == 0 {
		return nil, dataerr.Configf("no files to read for file type %q", req.FileType)
	}
	if len(req.Columns) == 0 {
		return nil, dataerr.Configf("no columns to read for file type %q", req.FileType)
	}
	if err := checkPaths(req); err != nil {
		return nil, err
	}
	logctx.FromContext(ctx).Debug("Opening column reader",
		slog.String("fileType", req.FileType),
		slog.String("group", req.Group),
		slog.Int("files", len(req.Paths)),
		slog.String("columns", describeColumns(req.Columns)),
		slog.Int("batchSize", req.BatchSize))
	return &multiFileReader{req: req, open: open}, nil
}

// checkPaths fails with a NotFoundError naming the runs whose files are missing.
func checkPaths(req OpenRequest) error {
	var missingRuns []int
	var firstMissing string
	var firstErr error
	for i, p := range req.Paths {
		if _, err := statFile(p); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", p, err)
			}
			if firstMissing == "" {
				firstMissing = p
				firstErr = err
			}
			if i < len(req.Runs) {
				missingRuns = append(missingRuns, req.Runs[i])
			}
		}
	}
	if firstMissing == "" {
		return nil
	}
	return &dataerr.NotFoundError{Runs: missingRuns, FileType: req.FileType, Path: firstMissing, Err: firstErr}
}

func (m *multiFileReader) Next(ctx context.Context) (*RecordBatch, error) {
	if m.closed {
		return nil, errors.New("reader is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for m.index < len(m.req.Paths) {
		if m.current == nil {
			fr, err := m.open(ctx, m.req.Paths[m.index])
			if err != nil {
				return nil, err
			}
			m.current = fr
		}
		batch, err := m.current.next(ctx)
		if errors.Is(err, io.EOF) {
			if cerr := m.current.close(); cerr != nil {
				return nil, fmt.Errorf("close %s: %w", m.req.Paths[m.index], cerr)
			}
			m.current = nil
			m.index++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", m.req.Paths[m.index], err)
		}
		if err := batch.validate(); err != nil {
			return nil, err
		}
		rowsReadCounter.Add(ctx, int64(batch.Rows), readerAttrs(m.req.FileType))
		return batch, nil
	}
	return nil, io.EOF
}

func (m *multiFileReader) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.current == nil {
		return nil
	}
	err := m.current.close()
	m.current = nil
	return err
}

func batchSizeFor(req OpenRequest, numRows int64) int {
	if req.BatchSize <= Unbounded || int64(req.BatchSize) > numRows {
		if numRows <= 0 {
			return 1
		}
		return int(numRows)
	}
	return req.BatchSize
}
