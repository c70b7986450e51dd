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

package labeled

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/anitareader/internal/dataerr"
)

func grid(t *testing.T) *Array {
	t.Helper()
	data := []int64{
		0, 1, 2,
		10, 11, 12,
		20, 21, 22,
		30, 31, 32,
	}
	a, err := NewInt64(data,
		IntCoord("eventNumber", []int64{100, 101, 105, 109}),
		StringCoord("ring", []string{"T", "M", "B"}),
	)
	require.NoError(t, err)
	return a
}

func TestNewArrayValidatesShape(t *testing.T) {
	_, err := NewFloat64([]float64{1, 2, 3}, RangeCoord("x", 2))
	assert.Error(t, err)

	_, err = NewFloat64([]float64{1, 2}, RangeCoord("x", 2), RangeCoord("x", 1))
	assert.Error(t, err)

	_, err = NewFloat64(nil)
	assert.Error(t, err)

	a, err := NewFloat32([]float32{1, 2, 3, 4, 5, 6}, RangeCoord("x", 2), FloatCoord("t", []float64{0, 0.5, 1}))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, a.Shape())
	assert.Equal(t, []string{"x", "t"}, a.Dims())
	assert.Equal(t, Float32, a.DType())
	assert.Equal(t, 6, a.Size())
}

func TestArrayIndexing(t *testing.T) {
	a := grid(t)
	assert.Equal(t, 4, a.Len())
	assert.Equal(t, []int64{100, 101, 105, 109}, a.EventIDs())
	assert.Equal(t, 21.0, a.At(2, 1))
	assert.Panics(t, func() { a.At(4, 0) })

	ring, ok := a.Coord("ring")
	require.True(t, ok)
	assert.Equal(t, []string{"T", "M", "B"}, ring.Strings)
	_, ok = a.Coord("pol")
	assert.False(t, ok)
}

func TestArraySliceAndRow(t *testing.T) {
	a := grid(t)

	h, err := a.Head(2)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101}, h.EventIDs())
	assert.Equal(t, []int64{0, 1, 2, 10, 11, 12}, h.Int64s())

	s, err := a.Slice(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 105}, s.EventIDs())
	assert.Equal(t, 22.0, s.At(1, 2))

	_, err = a.Slice(3, 5)
	assert.Error(t, err)

	r, err := a.Row(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"ring"}, r.Dims())
	assert.Equal(t, []int64{30, 31, 32}, r.Int64s())
}

func TestTableAddRequiresSameEvents(t *testing.T) {
	events := []int64{100, 101, 105, 109}
	tbl := NewTable(events)
	require.NoError(t, tbl.Add("grid", grid(t)))

	runs, err := NewInt64([]int64{1, 1, 1, 1}, IntCoord("eventNumber", events))
	require.NoError(t, err)
	require.NoError(t, tbl.Add("run", runs))
	assert.Equal(t, []string{"grid", "run"}, tbl.Names())

	assert.Error(t, tbl.Add("run", runs))

	shifted, err := NewInt64([]int64{1, 1, 1, 1}, IntCoord("eventNumber", []int64{100, 101, 106, 109}))
	require.NoError(t, err)
	assert.ErrorIs(t, tbl.Add("other", shifted), dataerr.ErrConsistency)

	short, err := NewInt64([]int64{1, 1}, IntCoord("eventNumber", []int64{100, 101}))
	require.NoError(t, err)
	assert.ErrorIs(t, tbl.Add("short", short), dataerr.ErrConsistency)

	assert.True(t, tbl.Drop("grid"))
	assert.False(t, tbl.Drop("grid"))
	assert.Equal(t, []string{"run"}, tbl.Names())
	assert.Equal(t, 4, tbl.Len())
	assert.Contains(t, tbl.String(), "run int64 [eventNumber] [4]")
}
