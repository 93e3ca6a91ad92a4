// Copyright 2020-2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reporter

import (
	"errors"
	"fmt"
)

// ErrInvalidSource is a sentinel error. Handler.Error returns it when one
// or more errors were reported but the configured Reporter chose to
// swallow them (returned nil each time); the coordinator's codegen phase
// returns it when the walk over the graph fails.
var ErrInvalidSource = errors.New("build failed: invalid unit source")

// Position identifies where in the build an error or warning occurred:
// which unit, and which phase was executing when it happened. The
// front-end's own diagnostics (line/column positions inside a unit) are
// entirely opaque to the coordinator, so this is the coarsest position
// the coordinator itself can ever observe.
type Position struct {
	UnitID string
	Phase  string
}

func (p Position) String() string {
	if p.UnitID == "" {
		return p.Phase
	}
	return fmt.Sprintf("%s[%s]", p.UnitID, p.Phase)
}

// ErrorWithPos is an error about a unit that adds the coordinator phase
// and unit ID that produced it.
type ErrorWithPos interface {
	error
	// GetPosition returns the position that caused the underlying error.
	GetPosition() Position
	// Unwrap returns the underlying error.
	Unwrap() error
}

// Error creates a new ErrorWithPos from the given error and position.
func Error(pos Position, err error) ErrorWithPos {
	return errorWithPos{pos: pos, underlying: err}
}

// Errorf creates a new ErrorWithPos whose underlying error is created
// using the given message format and arguments (via fmt.Errorf).
func Errorf(pos Position, format string, args ...interface{}) ErrorWithPos {
	return errorWithPos{pos: pos, underlying: fmt.Errorf(format, args...)}
}

type errorWithPos struct {
	underlying error
	pos        Position
}

func (e errorWithPos) Error() string {
	return fmt.Sprintf("%s: %v", e.pos, e.underlying)
}

func (e errorWithPos) GetPosition() Position {
	return e.pos
}

func (e errorWithPos) Unwrap() error {
	return e.underlying
}

var _ ErrorWithPos = errorWithPos{}

// Custom error types that contain additional information for each error.

// DuplicateUnitError is reported during source collection (spec §4.1
// step 1) when two source files resolve to the same unit identifier:
// one from the project root and one from a library root, or two
// colliding library roots.
type DuplicateUnitError struct {
	UnitID             string
	PreviousDefinition string // path of the file that registered it first
}

func DuplicateUnit(unitID, previousDefinition string) DuplicateUnitError {
	return DuplicateUnitError{UnitID: unitID, PreviousDefinition: previousDefinition}
}

func (e DuplicateUnitError) Error() string {
	return fmt.Sprintf("unit %q already registered from %s", e.UnitID, e.PreviousDefinition)
}
