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

// Package trigger decodes the trigType bit field of header events.
package trigger

import (
	"slices"

	"github.com/cardinalhq/anitareader/internal/dataerr"
	"github.com/cardinalhq/anitareader/internal/labeled"
)

// Field is the header field holding the trigger bits.
const Field = "trigType"

// Bits is a set of trigger type bits.
type Bits int64

const (
	RF   Bits = 1 << 0
	ADU5 Bits = 1 << 1
	G12  Bits = 1 << 2
	Soft Bits = 1 << 3

	// MinBias is any of the minimum-bias triggers.
	MinBias = ADU5 | G12 | Soft
)

// Any reports, per event, whether any of bits is set.
func Any(trigType *labeled.Array, bits Bits) ([]bool, error) {
	if trigType == nil {
		return nil, dataerr.Configf("no %s field", Field)
	}
	if len(trigType.Shape()) != 1 {
		return nil, dataerr.Configf("%s must hold one value per event, got dims %v", Field, trigType.Dims())
	}
	out := make([]bool, trigType.Len())
	for i := range out {
		out[i] = Bits(trigType.Flat(i))&bits != 0
	}
	return out, nil
}

// IsRF reports RF triggers.
func IsRF(trigType *labeled.Array) ([]bool, error) { return Any(trigType, RF) }

// IsADU5 reports ADU5 GPS triggers.
func IsADU5(trigType *labeled.Array) ([]bool, error) { return Any(trigType, ADU5) }

// IsG12 reports G12 GPS triggers.
func IsG12(trigType *labeled.Array) ([]bool, error) { return Any(trigType, G12) }

// IsSoft reports software triggers.
func IsSoft(trigType *labeled.Array) ([]bool, error) { return Any(trigType, Soft) }

// IsMinBias reports ADU5, G12 or software triggers.
func IsMinBias(trigType *labeled.Array) ([]bool, error) { return Any(trigType, MinBias) }

// Count is the number of true entries.
func Count(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}

// Select returns the event identifiers whose mask entry is true.
func Select(events []int64, mask []bool) []int64 {
	out := make([]int64, 0, Count(mask))
	for i, m := range mask {
		if m {
			out = append(out, events[i])
		}
	}
	return slices.Clip(out)
}
