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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	gomaxecs "github.com/rdforte/gomaxecs/maxprocs"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cardinalhq/anitareader/cmd"
)

// memLimitRatio is the share of the container memory limit given to the
// Go heap. Unbounded scans hold a whole run of waveforms at once.
const memLimitRatio = 0.8

func stderrf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
}

// tuneProcess sizes GOMAXPROCS and GOMEMLIMIT to the container.
func tuneProcess() {
	var err error
	if gomaxecs.IsECS() {
		_, err = gomaxecs.Set(gomaxecs.WithLogger(stderrf))
	} else {
		_, err = maxprocs.Set(maxprocs.Logger(stderrf))
	}
	if err != nil {
		slog.Warn("Failed to set GOMAXPROCS", slog.Any("error", err))
	}

	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(memLimitRatio),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		slog.Warn("Failed to set memory limit", slog.Any("error", err))
		return
	}
	slog.Debug("Memory limit set", slog.Int64("bytes", limit))
}

func main() {
	time.Local = time.UTC
	tuneProcess()
	cmd.Execute()
}
