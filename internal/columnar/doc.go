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

// Package columnar reads named columns from per-run columnar files in
// fixed-size record batches.
//
// # Column declarations
//
// A column is declared either by its bare name ("eventNumber") or with a
// fixed per-event shape suffix ("data[16][3][2][260]"). Declarations are
// parsed once with ParseColumn; the bare name is the column name on disk.
//
// # Readers
//
// An Opener opens a Reader over a list of files (one per run) that share a
// record group. Reader.Next returns one RecordBatch of at most BatchSize
// events and io.EOF once every file is exhausted. A batch never spans two
// files. BatchSize Unbounded reads each file whole.
//
//	reader, err := opener.Open(ctx, columnar.OpenRequest{
//	    Paths:     paths,
//	    Group:     "head",
//	    Columns:   specs,
//	    BatchSize: 1000,
//	    Cache:     cache,
//	})
//	if err != nil {
//	    return err
//	}
//	defer reader.Close()
//
//	for {
//	    batch, err := reader.Next(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // use batch
//	}
//
// Two backends are provided: ParquetOpener (parquet-go/parquet-go) and
// ArrowOpener (apache/arrow-go pqarrow). Both treat the parquet schema root
// name as the record-group name and store fixed-shape columns as repeated
// leaves, flattened row-major per event.
//
// # Resource Management
//
//   - Readers must be closed via Close()
//   - Files are read through a shared BlockCache bounded by a byte budget
//   - Returned batches are owned by the caller and are not reused
package columnar
