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

package waveform

import (
	"github.com/cardinalhq/anitareader/internal/instrument"
)

// Buffer is a zero-filled float32 block shaped
// (events, sector, ring, pol, time) that a Source fills in place.
type Buffer struct {
	events   int
	channels int
	samples  int
	data     []float32
}

// NewBuffer allocates room for n events of gen.
func NewBuffer(gen *instrument.Generation, n int) *Buffer {
	nc := gen.NumChannels()
	return &Buffer{
		events:   n,
		channels: nc,
		samples:  gen.WaveformLength,
		data:     make([]float32, n*nc*gen.WaveformLength),
	}
}

// Cap is the number of events the buffer holds.
func (b *Buffer) Cap() int { return b.events }

// Channels is the number of channels per event.
func (b *Buffer) Channels() int { return b.channels }

// Samples is the number of samples per channel.
func (b *Buffer) Samples() int { return b.samples }

func (b *Buffer) stride() int { return b.channels * b.samples }

// Event returns the samples of event i, channel-major in flat channel order.
func (b *Buffer) Event(i int) []float32 {
	st := b.stride()
	return b.data[i*st : (i+1)*st]
}

// Trace returns the samples of one channel of event i.
func (b *Buffer) Trace(i, channel int) []float32 {
	off := i*b.stride() + channel*b.samples
	return b.data[off : off+b.samples]
}

// Set stores one sample.
func (b *Buffer) Set(event, channel, sample int, v float32) {
	b.data[event*b.stride()+channel*b.samples+sample] = v
}

// Data returns the backing slice.
func (b *Buffer) Data() []float32 { return b.data }

// head returns the data of the first n events.
func (b *Buffer) head(n int) []float32 { return b.data[:n*b.stride()] }
