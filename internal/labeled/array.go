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

// Package labeled provides multi-dimensional arrays with named, coordinate
// valued axes, and tables of such arrays sharing one event axis.
//
// Data is stored flat in row-major order. The first axis of every array in a
// Table is the event axis, and its coordinate holds event identifiers.
package labeled

import (
	"fmt"
	"slices"
)

// DType is the element type of an Array.
type DType int

const (
	Int64 DType = iota + 1
	Float32
	Float64
)

func (d DType) String() string {
	switch d {
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// Coord holds the coordinate values of one axis. Exactly one of the value
// slices is set.
type Coord struct {
	Dim     string
	Ints    []int64
	Floats  []float64
	Strings []string
}

// IntCoord builds an integer-valued coordinate.
func IntCoord(dim string, v []int64) Coord { return Coord{Dim: dim, Ints: v} }

// FloatCoord builds a float-valued coordinate.
func FloatCoord(dim string, v []float64) Coord { return Coord{Dim: dim, Floats: v} }

// StringCoord builds a string-valued coordinate.
func StringCoord(dim string, v []string) Coord { return Coord{Dim: dim, Strings: v} }

// RangeCoord builds the integer coordinate 0..n-1.
func RangeCoord(dim string, n int) Coord {
	v := make([]int64, n)
	for i := range v {
		v[i] = int64(i)
	}
	return IntCoord(dim, v)
}

// Len is the number of positions along the axis.
func (c Coord) Len() int {
	switch {
	case c.Ints != nil:
		return len(c.Ints)
	case c.Floats != nil:
		return len(c.Floats)
	default:
		return len(c.Strings)
	}
}

// Equal compares dimension names and values.
func (c Coord) Equal(o Coord) bool {
	return c.Dim == o.Dim &&
		slices.Equal(c.Ints, o.Ints) &&
		slices.Equal(c.Floats, o.Floats) &&
		slices.Equal(c.Strings, o.Strings)
}

func (c Coord) slice(start, end int) Coord {
	out := Coord{Dim: c.Dim}
	switch {
	case c.Ints != nil:
		out.Ints = c.Ints[start:end]
	case c.Floats != nil:
		out.Floats = c.Floats[start:end]
	default:
		out.Strings = c.Strings[start:end]
	}
	return out
}

// Array is a labeled n-dimensional array.
type Array struct {
	coords []Coord
	shape  []int
	dtype  DType
	i64    []int64
	f32    []float32
	f64    []float64
}

// NewInt64 builds an int64 array; the axes and shape come from coords.
func NewInt64(data []int64, coords ...Coord) (*Array, error) {
	a := &Array{dtype: Int64, i64: data}
	return a, a.init(len(data), coords)
}

// NewFloat32 builds a float32 array; the axes and shape come from coords.
func NewFloat32(data []float32, coords ...Coord) (*Array, error) {
	a := &Array{dtype: Float32, f32: data}
	return a, a.init(len(data), coords)
}

// NewFloat64 builds a float64 array; the axes and shape come from coords.
func NewFloat64(data []float64, coords ...Coord) (*Array, error) {
	a := &Array{dtype: Float64, f64: data}
	return a, a.init(len(data), coords)
}

func (a *Array) init(n int, coords []Coord) error {
	if len(coords) == 0 {
		return fmt.Errorf("array needs at least one axis")
	}
	seen := make(map[string]struct{}, len(coords))
	a.shape = make([]int, len(coords))
	size := 1
	for i, c := range coords {
		if c.Dim == "" {
			return fmt.Errorf("axis %d has no name", i)
		}
		if _, dup := seen[c.Dim]; dup {
			return fmt.Errorf("duplicate axis %q", c.Dim)
		}
		seen[c.Dim] = struct{}{}
		a.shape[i] = c.Len()
		size *= a.shape[i]
	}
	if size != n {
		return fmt.Errorf("shape %v holds %d values, got %d", a.shape, size, n)
	}
	a.coords = coords
	return nil
}

// Dims returns the axis names in order.
func (a *Array) Dims() []string {
	dims := make([]string, len(a.coords))
	for i, c := range a.coords {
		dims[i] = c.Dim
	}
	return dims
}

// Shape returns the length of each axis.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Coords returns the coordinates of every axis.
func (a *Array) Coords() []Coord { return a.coords }

// Coord returns the coordinate of the named axis.
func (a *Array) Coord(dim string) (Coord, bool) {
	for _, c := range a.coords {
		if c.Dim == dim {
			return c, true
		}
	}
	return Coord{}, false
}

// Len is the length of the first axis.
func (a *Array) Len() int { return a.shape[0] }

// Size is the total number of elements.
func (a *Array) Size() int {
	n := 1
	for _, s := range a.shape {
		n *= s
	}
	return n
}

// EventIDs returns the integer coordinate of the first axis, or nil.
func (a *Array) EventIDs() []int64 { return a.coords[0].Ints }

// Int64s returns the backing data of an Int64 array.
func (a *Array) Int64s() []int64 { return a.i64 }

// Float32s returns the backing data of a Float32 array.
func (a *Array) Float32s() []float32 { return a.f32 }

// Float64s returns the backing data of a Float64 array.
func (a *Array) Float64s() []float64 { return a.f64 }

// Flat returns element i of the flat data as float64.
func (a *Array) Flat(i int) float64 {
	switch a.dtype {
	case Int64:
		return float64(a.i64[i])
	case Float32:
		return float64(a.f32[i])
	default:
		return a.f64[i]
	}
}

// Offset converts a multi-index into a flat offset.
func (a *Array) Offset(idx ...int) (int, error) {
	if len(idx) != len(a.shape) {
		return 0, fmt.Errorf("need %d indices, got %d", len(a.shape), len(idx))
	}
	off := 0
	for i, ix := range idx {
		if ix < 0 || ix >= a.shape[i] {
			return 0, fmt.Errorf("index %d out of range for axis %q of length %d", ix, a.coords[i].Dim, a.shape[i])
		}
		off = off*a.shape[i] + ix
	}
	return off, nil
}

// At returns the element at a multi-index as float64. It panics on a bad index.
func (a *Array) At(idx ...int) float64 {
	off, err := a.Offset(idx...)
	if err != nil {
		panic(err)
	}
	return a.Flat(off)
}

func (a *Array) stride() int {
	n := 1
	for _, s := range a.shape[1:] {
		n *= s
	}
	return n
}

// Slice returns the positions [start, end) along the first axis. The
// result shares data with a.
func (a *Array) Slice(start, end int) (*Array, error) {
	if start < 0 || end < start || end > a.shape[0] {
		return nil, fmt.Errorf("slice [%d:%d] out of range for length %d", start, end, a.shape[0])
	}
	st := a.stride()
	out := &Array{dtype: a.dtype}
	switch a.dtype {
	case Int64:
		out.i64 = a.i64[start*st : end*st]
	case Float32:
		out.f32 = a.f32[start*st : end*st]
	default:
		out.f64 = a.f64[start*st : end*st]
	}
	coords := slices.Clone(a.coords)
	coords[0] = a.coords[0].slice(start, end)
	return out, out.init((end-start)*st, coords)
}

// Head returns the first n positions along the first axis.
func (a *Array) Head(n int) (*Array, error) { return a.Slice(0, n) }

// Row returns position i of the first axis with that axis removed. A one
// dimensional array keeps its axis with length one.
func (a *Array) Row(i int) (*Array, error) {
	if len(a.shape) == 1 {
		return a.Slice(i, i+1)
	}
	sub, err := a.Slice(i, i+1)
	if err != nil {
		return nil, err
	}
	out := &Array{dtype: a.dtype, i64: sub.i64, f32: sub.f32, f64: sub.f64}
	return out, out.init(a.stride(), a.coords[1:])
}
