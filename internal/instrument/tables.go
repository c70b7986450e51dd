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
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/anitareader/internal/dataerr"
)

// MinFlight and MaxFlight bound the valid flight numbers.
const (
	MinFlight = 1
	MaxFlight = 4
)

// HeaderFileType is the lowest-overhead file type carrying one row per event.
const HeaderFileType = "head"

//go:embed flights.yaml
var flightsYAML []byte

// Tables holds the per-flight naming conventions.
type Tables struct {
	// Groups maps a file type to its record-group name.
	Groups  map[string]string    `yaml:"groups"`
	Flights map[int]*FlightTable `yaml:"flights"`
}

// FlightTable holds the conventions of one flight.
type FlightTable struct {
	Flight int `yaml:"-"`
	// FlightPath is true when a flight path file ships for this flight.
	FlightPath bool        `yaml:"flightPath"`
	Generation *Generation `yaml:"generation"`
	// Files maps a file type to its file-name prefix.
	Files            map[string]string   `yaml:"files"`
	DefaultFileTypes []string            `yaml:"defaultFileTypes"`
	DefaultColumns   map[string][]string `yaml:"defaultColumns"`
}

var (
	defaultTables     *Tables
	defaultTablesOnce sync.Once
)

// DefaultTables returns the tables compiled into the binary.
func DefaultTables() *Tables {
	defaultTablesOnce.Do(func() {
		t, err := ParseTables(flightsYAML)
		if err != nil {
			panic(fmt.Errorf("embedded flight tables: %w", err))
		}
		defaultTables = t
	})
	return defaultTables
}

// ParseTables decodes a YAML flight table document.
func ParseTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, &dataerr.ConfigError{Msg: "decode flight tables", Err: err}
	}
	for n, ft := range t.Flights {
		if ft == nil {
			ft = &FlightTable{}
			t.Flights[n] = ft
		}
		ft.Flight = n
		if ft.Generation != nil {
			ft.Generation.Flight = n
			if err := ft.Generation.Validate(); err != nil {
				return nil, err
			}
		}
	}
	return &t, nil
}

// ValidateFlight rejects flight numbers outside [MinFlight, MaxFlight].
func ValidateFlight(flight int) error {
	if flight < MinFlight || flight > MaxFlight {
		return dataerr.Configf("%d is not a valid flight number", flight)
	}
	return nil
}

// Flight returns the table for a flight.
func (t *Tables) Flight(flight int) (*FlightTable, error) {
	if err := ValidateFlight(flight); err != nil {
		return nil, err
	}
	ft, ok := t.Flights[flight]
	if !ok {
		return nil, dataerr.Configf("no file conventions for flight %d", flight)
	}
	return ft, nil
}

// Group returns the record-group name of a file type.
func (t *Tables) Group(fileType string) (string, error) {
	g, ok := t.Groups[fileType]
	if !ok {
		return "", dataerr.Configf("unknown file type %q", fileType)
	}
	return g, nil
}

// FilePrefix returns the file-name prefix of a file type.
func (ft *FlightTable) FilePrefix(fileType string) (string, error) {
	p, ok := ft.Files[fileType]
	if !ok {
		return "", dataerr.Configf("flight %d has no file type %q", ft.Flight, fileType)
	}
	return p, nil
}

// FileTypes lists the file types known for this flight, sorted.
func (ft *FlightTable) FileTypes() []string {
	out := make([]string, 0, len(ft.Files))
	for k := range ft.Files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Columns returns the default column declarations of a file type.
func (ft *FlightTable) Columns(fileType string) []string {
	return ft.DefaultColumns[fileType]
}

// Lookup returns the generation descriptor for a flight from the default
// tables. Flights without a descriptor are unsupported.
func Lookup(flight int) (*Generation, error) {
	ft, err := DefaultTables().Flight(flight)
	if err != nil {
		return nil, err
	}
	if ft.Generation == nil {
		return nil, dataerr.Configf("instrument generation for flight %d is not supported", flight)
	}
	return ft.Generation, nil
}
