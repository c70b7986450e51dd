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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/anitareader/config"
	"github.com/cardinalhq/anitareader/internal/columnar"
	"github.com/cardinalhq/anitareader/internal/instrument"
	"github.com/cardinalhq/anitareader/internal/logctx"
	"github.com/cardinalhq/anitareader/internal/waveform"
)

func init() {
	cmd := &cobra.Command{
		Use:   "waveforms",
		Short: "Read the calibrated waveforms of one run",
		Long: `Reads calibrated waveforms in batches, cross-checking every batch against
the run's header event numbers, and prints the peak amplitude of each batch.`,
		RunE: func(c *cobra.Command, _ []string) error {
			flight, err := c.Flags().GetInt("flight")
			if err != nil {
				return fmt.Errorf("failed to get flight flag: %w", err)
			}
			run, err := c.Flags().GetInt("run")
			if err != nil {
				return fmt.Errorf("failed to get run flag: %w", err)
			}
			n, err := c.Flags().GetInt("n")
			if err != nil {
				return fmt.Errorf("failed to get n flag: %w", err)
			}
			return instrumented("waveforms", func(ctx context.Context) error {
				return runWaveforms(ctx, c, flight, run, n)
			})
		},
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().Int("run", 0, "Run to read")
	if err := cmd.MarkFlagRequired("run"); err != nil {
		panic(fmt.Errorf("failed to mark run flag as required: %w", err))
	}
	cmd.Flags().Int("n", 100, "Events per batch")
}

func runWaveforms(ctx context.Context, c *cobra.Command, flight, run, n int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	opener, err := cfg.Opener()
	if err != nil {
		return err
	}
	cache, err := columnar.NewBlockCacheFromString(cfg.Reader.CacheSize)
	if err != nil {
		return err
	}
	defer cache.Purge()

	tables := instrument.DefaultTables()
	resolver := cfg.Resolver()
	head, err := waveform.FlightFiles(tables, resolver, flight, instrument.HeaderFileType)
	if err != nil {
		return err
	}
	calibrated, err := waveform.FlightFiles(tables, resolver, flight, waveform.CalibratedFileType)
	if err != nil {
		return err
	}
	head.Opener, head.Cache = opener, cache
	calibrated.Opener, calibrated.Cache = opener, cache

	decl, err := waveform.WaveformColumn(tables, flight, waveform.CalibratedFileType)
	if err != nil {
		return err
	}
	gen, err := instrument.Lookup(flight)
	if err != nil {
		return err
	}
	sources, err := waveform.ParquetSources(gen, calibrated, decl, 0)
	if err != nil {
		return err
	}

	ctx = logctx.WithRun(logctx.WithFlight(ctx, flight), run)
	r, err := waveform.New(ctx, waveform.Options{
		Flight:       flight,
		Generation:   gen,
		Run:          run,
		OpenSource:   sources,
		LoadEventIDs: waveform.HeaderEventIDs(head),
	})
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	peaks, err := newPeakSketch()
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	fmt.Fprintf(out, "Run %d: %d events, %d channels\n", run, len(r.EventIDs()), gen.NumChannels())
	for {
		batch, err := r.Next(ctx, n)
		if errors.Is(err, waveform.ErrRunExhausted) {
			break
		}
		if err != nil {
			return err
		}
		ids := batch.EventIDs()
		fmt.Fprintf(out, "events %d..%d shape %v peak %.2f mV\n",
			ids[0], ids[len(ids)-1], batch.Shape(), peak(batch.Float32s()))
		if err := peaks.addEvents(batch.Float32s(), batch.Len()); err != nil {
			return err
		}
	}

	summary, err := peaks.summary()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, summary)
	return nil
}

// peakSketch tracks the distribution of per-event peak amplitudes.
type peakSketch struct {
	sk *ddsketch.DDSketch
}

func newPeakSketch() (*peakSketch, error) {
	sk, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return nil, fmt.Errorf("failed to create sketch: %w", err)
	}
	return &peakSketch{sk: sk}, nil
}

// addEvents adds the peak of each of the events stored back to back in data.
func (p *peakSketch) addEvents(data []float32, events int) error {
	if events == 0 {
		return nil
	}
	stride := len(data) / events
	for i := 0; i < events; i++ {
		if err := p.sk.Add(peak(data[i*stride : (i+1)*stride])); err != nil {
			return err
		}
	}
	return nil
}

func (p *peakSketch) summary() (string, error) {
	if p.sk.IsEmpty() {
		return "no events", nil
	}
	qs, err := p.sk.GetValuesAtQuantiles([]float64{0.5, 0.9, 0.99})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%.0f events, peak mV p50 %.2f p90 %.2f p99 %.2f",
		p.sk.GetCount(), qs[0], qs[1], qs[2]), nil
}

func peak(data []float32) float64 {
	var p float64
	for _, v := range data {
		p = math.Max(p, math.Abs(float64(v)))
	}
	return p
}
