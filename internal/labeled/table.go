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
	"fmt"
	"slices"
	"strings"

	"github.com/cardinalhq/anitareader/internal/dataerr"
)

// Table is an ordered set of named arrays that share the same event axis:
// every field has the same event identifiers, in the same order.
type Table struct {
	events []int64
	names  []string
	fields map[string]*Array
}

// NewTable creates an empty table over the given event identifiers.
func NewTable(events []int64) *Table {
	return &Table{
		events: events,
		fields: make(map[string]*Array),
	}
}

// SameEvents reports whether two event sequences are identical by value and order.
func SameEvents(a, b []int64) bool {
	return slices.Equal(a, b)
}

// Add appends a field. The field's first axis must carry exactly the
// table's event identifiers.
func (t *Table) Add(name string, a *Array) error {
	if _, exists := t.fields[name]; exists {
		return fmt.Errorf("field %q already present", name)
	}
	if a.Len() != len(t.events) {
		return dataerr.Consistencyf("field %q has %d events, table has %d", name, a.Len(), len(t.events))
	}
	if !SameEvents(a.EventIDs(), t.events) {
		return dataerr.Consistencyf("field %q event identifiers differ from the table's", name)
	}
	t.names = append(t.names, name)
	t.fields[name] = a
	return nil
}

// Has reports whether a field exists.
func (t *Table) Has(name string) bool {
	_, ok := t.fields[name]
	return ok
}

// Field returns a field by name.
func (t *Table) Field(name string) (*Array, bool) {
	a, ok := t.fields[name]
	return a, ok
}

// Drop removes a field, reporting whether it existed.
func (t *Table) Drop(name string) bool {
	if _, ok := t.fields[name]; !ok {
		return false
	}
	delete(t.fields, name)
	t.names = slices.DeleteFunc(t.names, func(n string) bool { return n == name })
	return true
}

// Names returns the field names in insertion order.
func (t *Table) Names() []string { return slices.Clone(t.names) }

// Len is the number of events.
func (t *Table) Len() int { return len(t.events) }

// EventIDs returns the shared event identifiers.
func (t *Table) EventIDs() []int64 { return t.events }

func (t *Table) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Table(events=%d)", len(t.events))
	for _, n := range t.names {
		a := t.fields[n]
		fmt.Fprintf(&sb, "\n    %s %s %v %v", n, a.DType(), a.Dims(), a.Shape())
	}
	return sb.String()
}
