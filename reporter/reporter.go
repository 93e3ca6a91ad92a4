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

// Package reporter provides a general mechanism for handling errors and
// warnings encountered while building. A Reporter decides what to do
// with each one (fail fast, collect, log); a Handler wraps a Reporter
// with the bookkeeping the coordinator needs (error counts, a sticky
// first error) and is safe to share across the worker goroutines in
// internal/task.
package reporter

import "sync"

// ErrorReporter is responsible for reporting the given error. If it
// returns a non-nil error, the calling operation aborts with that
// error. If it returns nil, processing continues and the error is
// merely recorded as having happened.
type ErrorReporter func(err ErrorWithPos) error

// WarningReporter is responsible for reporting the given warning. Since
// warnings are non-fatal by definition, this does not return an error.
type WarningReporter func(err ErrorWithPos)

// Reporter handles errors and warnings encountered while building.
type Reporter interface {
	// Error is invoked when an error is encountered. If this returns a
	// non-nil error, processing stops at that point. Returning nil
	// allows the caller to accumulate more than one error in a single
	// run before finally failing with ErrInvalidSource.
	Error(ErrorWithPos) error
	// Warning is invoked when a warning is encountered. Unlike Error,
	// there is no mechanism to abort processing from a warning.
	Warning(ErrorWithPos)
}

// NewReporter creates a new Reporter that invokes the given functions on
// error or warning. Either may be nil: a nil errRep aborts on every
// error (by propagating it directly, as if it were fatal); a nil
// warnRep silently drops warnings.
func NewReporter(errRep ErrorReporter, warnRep WarningReporter) Reporter {
	return &reporterFuncs{errRep: errRep, warnRep: warnRep}
}

type reporterFuncs struct {
	errRep  ErrorReporter
	warnRep WarningReporter
}

func (r *reporterFuncs) Error(err ErrorWithPos) error {
	if r.errRep == nil {
		return err
	}
	return r.errRep(err)
}

func (r *reporterFuncs) Warning(err ErrorWithPos) {
	if r.warnRep != nil {
		r.warnRep(err)
	}
}

// handlerState is the mutex-guarded bookkeeping a Handler and all of its
// SubHandlers share, so that errors reported from any worker goroutine
// are counted consistently regardless of which Handler value reported
// them.
type handlerState struct {
	reporter Reporter

	mu       sync.Mutex
	errCount int
	firstErr error
}

func newHandlerState(rep Reporter) *handlerState {
	return &handlerState{reporter: rep}
}

// Handler wraps a Reporter with shared error/warning bookkeeping. The
// zero Handler is not usable; create one with NewHandler.
type Handler struct {
	state *handlerState
}

// NewHandler creates a root Handler around rep. A nil rep fails fast on
// the first error (matching ErrorReporter's nil-function behavior) and
// silently discards warnings.
func NewHandler(rep Reporter) *Handler {
	if rep == nil {
		rep = NewReporter(nil, nil)
	}
	return &Handler{state: newHandlerState(rep)}
}

// SubHandler returns a Handler sharing this one's underlying state:
// errors reported through either are counted together, and the
// bookkeeping underneath is synchronized.
func (h *Handler) SubHandler() *Handler {
	return &Handler{state: h.state}
}

// HandleError reports err through the underlying Reporter and records
// it. If the Reporter returns a non-nil error, that error is returned
// (and remembered as the Handler's sticky first error); otherwise nil is
// returned and the caller should continue.
func (h *Handler) HandleError(err ErrorWithPos) error {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.errCount++
	if reportErr := h.state.reporter.Error(err); reportErr != nil {
		if h.state.firstErr == nil {
			h.state.firstErr = reportErr
		}
		return reportErr
	}
	return nil
}

// HandleErrorf is a convenience wrapper combining Errorf and HandleError.
func (h *Handler) HandleErrorf(pos Position, format string, args ...interface{}) error {
	return h.HandleError(Errorf(pos, format, args...))
}

// HandleWarning reports a warning through the underlying Reporter.
func (h *Handler) HandleWarning(err ErrorWithPos) {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.reporter.Warning(err)
}

// HandleWarningf is a convenience wrapper combining Errorf and
// HandleWarning.
func (h *Handler) HandleWarningf(pos Position, format string, args ...interface{}) {
	h.HandleWarning(Errorf(pos, format, args...))
}

// ReportedErrorCount returns the number of errors reported so far across
// this Handler and all of its SubHandlers.
func (h *Handler) ReportedErrorCount() int {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.errCount
}

// Error returns the Handler's terminal error, if any: the first error a
// Reporter call actually returned, or ErrInvalidSource if the Reporter
// swallowed every error it was given but at least one was reported.
// Returns nil if no errors were reported.
func (h *Handler) Error() error {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	if h.state.firstErr != nil {
		return h.state.firstErr
	}
	if h.state.errCount > 0 {
		return ErrInvalidSource
	}
	return nil
}
