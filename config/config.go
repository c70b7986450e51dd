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

// Package config loads anitareader settings from an optional config file
// and the environment.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/cardinalhq/anitareader/internal/columnar"
	"github.com/cardinalhq/anitareader/internal/datadir"
	"github.com/cardinalhq/anitareader/internal/dataset"
	"github.com/cardinalhq/anitareader/internal/instrument"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ANITAREADER"

// Config aggregates configuration for the application.
type Config struct {
	Data   DataConfig   `mapstructure:"data"`
	Reader ReaderConfig `mapstructure:"reader"`
}

// DataConfig locates the data of each flight.
type DataConfig struct {
	Anita1 string `mapstructure:"anita1"`
	Anita2 string `mapstructure:"anita2"`
	Anita3 string `mapstructure:"anita3"`
	Anita4 string `mapstructure:"anita4"`
	// FlightPathDir holds flightpaths/anita<N>.parquet.
	FlightPathDir string `mapstructure:"flightpath_dir"`
}

// ReaderConfig tunes the column readers.
type ReaderConfig struct {
	Backend           string `mapstructure:"backend"`
	CacheSize         string `mapstructure:"cache_size"`
	BatchSize         int    `mapstructure:"batch_size"`
	StrictCollisions  bool   `mapstructure:"strict_collisions"`
	EntryCountWorkers int    `mapstructure:"entry_count_workers"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Reader: ReaderConfig{
			Backend:           columnar.BackendParquet,
			CacheSize:         columnar.DefaultCacheSize,
			BatchSize:         dataset.DefaultBatchSize,
			EntryCountWorkers: 4,
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "ANITAREADER" and the dot character
// in keys is replaced by an underscore. For example, "data.anita4" becomes
// "ANITAREADER_DATA_ANITA4". A flight directory left unset falls back to
// the ANITA<N>_ROOT_DATA variable.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("anitareader")
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Data.applyLegacyEnv()
	return cfg, nil
}

func (d *DataConfig) applyLegacyEnv() {
	for flight, dir := range d.dirPtrs() {
		if *dir == "" {
			*dir = os.Getenv(fmt.Sprintf("ANITA%d_ROOT_DATA", flight))
		}
	}
}

func (d *DataConfig) dirPtrs() map[int]*string {
	return map[int]*string{1: &d.Anita1, 2: &d.Anita2, 3: &d.Anita3, 4: &d.Anita4}
}

// Directories maps each flight to its data directory; unset flights map to "".
func (d *DataConfig) Directories() map[int]string {
	out := make(map[int]string, instrument.MaxFlight)
	for flight, dir := range d.dirPtrs() {
		out[flight] = *dir
	}
	return out
}

// Resolver returns a datadir.Resolver over the configured directories.
func (c *Config) Resolver() *datadir.Resolver {
	return datadir.NewResolver(c.Data.Directories())
}

// Opener returns the configured column reader backend.
func (c *Config) Opener() (columnar.Opener, error) {
	return columnar.NewOpener(c.Reader.Backend)
}

// DatasetOptions fills the reader settings of a dataset.Options.
func (c *Config) DatasetOptions(flight int) (dataset.Options, error) {
	opener, err := c.Opener()
	if err != nil {
		return dataset.Options{}, err
	}
	return dataset.Options{
		Flight:            flight,
		CacheSize:         c.Reader.CacheSize,
		Opener:            opener,
		Resolver:          c.Resolver(),
		StrictCollisions:  c.Reader.StrictCollisions,
		EntryCountWorkers: c.Reader.EntryCountWorkers,
	}, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
