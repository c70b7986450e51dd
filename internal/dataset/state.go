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

package dataset

import "fmt"

// State is the iteration state of a Dataset.
type State int

const (
	// StateUninitialized means no readers exist; Next is a sequencing error.
	StateUninitialized State = iota
	// StateIterating means readers are open and advance in lock-step.
	StateIterating
	// StateExhausted means the last pass ended. Next restarts from the
	// first chunk of the current run list.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIterating:
		return "iterating"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
