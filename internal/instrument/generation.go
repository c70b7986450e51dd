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

package instrument

import (
	"fmt"
	"slices"

	"github.com/cardinalhq/anitareader/internal/dataerr"
)

// Axis names used for labeled detector data.
const (
	DimEvent  = "eventNumber"
	DimSector = "sector"
	DimRing   = "ring"
	DimPol    = "pol"
	DimTime   = "time"
)

// ChannelOrder is the nesting of the flat channel axis in raw column data:
// sector outermost, then ring, then polarization innermost. ChannelIndex and
// Channel are the only places this order is turned into arithmetic.
var ChannelOrder = [3]string{DimSector, DimRing, DimPol}

// Generation describes one instrument generation: the channel axes, the
// sampling rate and the calibrated waveform length.
type Generation struct {
	Flight         int      `yaml:"-"`
	Sectors        int      `yaml:"sectors"`
	Rings          []string `yaml:"rings"`
	Pols           []string `yaml:"pols"`
	SampleRate     float64  `yaml:"sampleRate"` // samples per ns
	WaveformLength int      `yaml:"waveformLength"`
}

// Channel addresses one detector element.
type Channel struct {
	Sector int
	Ring   string
	Pol    string
}

// ID returns the conventional channel label, e.g. "01TH".
func (c Channel) ID() string {
	return fmt.Sprintf("%02d%s%s", c.Sector, c.Ring, c.Pol)
}

// Validate checks that the descriptor can label data.
func (g *Generation) Validate() error {
	switch {
	case g == nil:
		return dataerr.Configf("no instrument generation")
	case g.Sectors <= 0:
		return dataerr.Configf("flight %d: sector count must be positive, got %d", g.Flight, g.Sectors)
	case len(g.Rings) == 0 || len(g.Pols) == 0:
		return dataerr.Configf("flight %d: rings and polarizations must be non-empty", g.Flight)
	case g.SampleRate <= 0:
		return dataerr.Configf("flight %d: sample rate must be positive, got %v", g.Flight, g.SampleRate)
	case g.WaveformLength <= 0:
		return dataerr.Configf("flight %d: waveform length must be positive, got %d", g.Flight, g.WaveformLength)
	}
	return nil
}

// NumChannels is Sectors * len(Rings) * len(Pols).
func (g *Generation) NumChannels() int {
	return g.Sectors * len(g.Rings) * len(g.Pols)
}

// ChannelIndex returns the flat channel index of (sector, ring, pol).
// Sectors are numbered from 1.
func (g *Generation) ChannelIndex(sector int, ring, pol string) (int, error) {
	if sector < 1 || sector > g.Sectors {
		return 0, fmt.Errorf("sector %d out of range [1, %d]", sector, g.Sectors)
	}
	ri := slices.Index(g.Rings, ring)
	if ri < 0 {
		return 0, fmt.Errorf("unknown ring %q", ring)
	}
	pi := slices.Index(g.Pols, pol)
	if pi < 0 {
		return 0, fmt.Errorf("unknown polarization %q", pol)
	}
	return ((sector-1)*len(g.Rings)+ri)*len(g.Pols) + pi, nil
}

// Channel is the inverse of ChannelIndex.
func (g *Generation) Channel(index int) (Channel, error) {
	if index < 0 || index >= g.NumChannels() {
		return Channel{}, fmt.Errorf("channel index %d out of range [0, %d)", index, g.NumChannels())
	}
	np := len(g.Pols)
	nr := len(g.Rings)
	return Channel{
		Sector: index/(nr*np) + 1,
		Ring:   g.Rings[(index/np)%nr],
		Pol:    g.Pols[index%np],
	}, nil
}

// Channels lists every channel in flat channel order.
func (g *Generation) Channels() []Channel {
	out := make([]Channel, 0, g.NumChannels())
	for s := 1; s <= g.Sectors; s++ {
		for _, r := range g.Rings {
			for _, p := range g.Pols {
				out = append(out, Channel{Sector: s, Ring: r, Pol: p})
			}
		}
	}
	return out
}

// ChannelIDs lists the channel labels in flat channel order.
func (g *Generation) ChannelIDs() []string {
	chans := g.Channels()
	ids := make([]string, len(chans))
	for i, c := range chans {
		ids[i] = c.ID()
	}
	return ids
}

// SectorValues returns 1..Sectors.
func (g *Generation) SectorValues() []int64 {
	out := make([]int64, g.Sectors)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

// Times returns the sample times in ns for n samples.
func (g *Generation) Times(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) / g.SampleRate
	}
	return out
}

// ShapePattern is the kind of per-event block a column holds.
type ShapePattern int

const (
	// PatternScalar is one value per event, or a block that is not channel shaped.
	PatternScalar ShapePattern = iota
	// PatternChannelScalar is one value per channel per event.
	PatternChannelScalar
	// PatternChannelWaveform is one sampled trace per channel per event.
	PatternChannelWaveform
)

func (p ShapePattern) String() string {
	switch p {
	case PatternScalar:
		return "scalar"
	case PatternChannelScalar:
		return "channel-scalar"
	case PatternChannelWaveform:
		return "channel-waveform"
	default:
		return fmt.Sprintf("ShapePattern(%d)", int(p))
	}
}

// Classify resolves the per-event shape of a column (the event axis excluded)
// into a ShapePattern. Channel axes may be declared flat, [S*R*P], or
// unrolled, [S][R][P]; a trailing axis makes it a waveform.
func (g *Generation) Classify(shape []int) ShapePattern {
	nc := g.NumChannels()
	unrolled := func(s []int) bool {
		return len(s) == 3 && s[0] == g.Sectors && s[1] == len(g.Rings) && s[2] == len(g.Pols)
	}
	switch {
	case len(shape) == 1 && shape[0] == nc:
		return PatternChannelScalar
	case unrolled(shape):
		return PatternChannelScalar
	case len(shape) == 2 && shape[0] == nc && shape[1] > 0:
		return PatternChannelWaveform
	case len(shape) == 4 && unrolled(shape[:3]) && shape[3] > 0:
		return PatternChannelWaveform
	}
	return PatternScalar
}
