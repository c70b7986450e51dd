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

// Package dataerr defines the error kinds surfaced while loading event data.
// None of them are retried internally; callers decide whether to reconfigure
// (different runs or file types) or abort.
package dataerr

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

var (
	// ErrConfig matches every ConfigError.
	ErrConfig = errors.New("configuration error")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrConsistency matches every ConsistencyError.
	ErrConsistency = errors.New("consistency error")
	// ErrSequence matches every SequenceError.
	ErrSequence = errors.New("sequencing error")
)

// ConfigError reports an invalid flight, an empty file type list, an
// unsupported instrument generation or a malformed column declaration.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that the data for one or more runs is missing.
type NotFoundError struct {
	Runs     []int
	FileType string
	Path     string
	Err      error
}

func (e *NotFoundError) Error() string {
	var sb strings.Builder
	sb.WriteString("unable to load data for runs: ")
	sb.WriteString(formatRuns(e.Runs))
	if e.FileType != "" {
		sb.WriteString(" (file type ")
		sb.WriteString(e.FileType)
		sb.WriteString(")")
	}
	if e.Path != "" {
		sb.WriteString(": missing ")
		sb.WriteString(e.Path)
	}
	return sb.String()
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == fs.ErrNotExist
}

// ConsistencyError reports that merged streams disagree, or that a
// sequential source has drifted away from the expected event sequence.
type ConsistencyError struct {
	Msg string
}

func (e *ConsistencyError) Error() string { return "consistency error: " + e.Msg }

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// Consistencyf builds a ConsistencyError from a format string.
func Consistencyf(format string, args ...any) error {
	return &ConsistencyError{Msg: fmt.Sprintf(format, args...)}
}

// SequenceError reports a call made in the wrong lifecycle state.
type SequenceError struct {
	Msg string
}

func (e *SequenceError) Error() string { return "sequencing error: " + e.Msg }

func (e *SequenceError) Is(target error) bool { return target == ErrSequence }

func formatRuns(runs []int) string {
	parts := make([]string, len(runs))
	for i, r := range runs {
		parts[i] = fmt.Sprint(r)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
