package cppl

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Status is the shared mutable run state spec §9 calls for: a single
// mutex is acceptable, since contention is low compared to
// child-process cost. Every phase checks Failed before starting and
// calls Fail to report its own failure; accumulated errors are
// aggregated with go-multierror (mirroring terragrunt's use of the same
// library for concurrent run failures), and warnings are collected for
// the end-of-run summary (spec §7 "accumulated and printed at the end
// without affecting exit code").
type Status struct {
	mu       sync.Mutex
	failed   bool
	errs     *multierror.Error
	warnings []string
}

// NewStatus returns a fresh, unfailed Status.
func NewStatus() *Status {
	return &Status{}
}

// Fail records err as a cause of build failure. Safe to call from any
// goroutine; may be called more than once.
func (s *Status) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
	s.errs = multierror.Append(s.errs, err)
}

// Failed reports whether any phase has recorded a failure so far.
func (s *Status) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Err returns the aggregated failure, or nil if none was recorded.
func (s *Status) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		return nil
	}
	return s.errs.ErrorOrNil()
}

// Warn records a non-fatal warning for the end-of-run summary.
func (s *Status) Warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

// Warnings returns every warning recorded so far, in recording order.
func (s *Status) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// CoordinatorHooks are optional callbacks invoked around each phase,
// mirroring the teacher's CompilerHooks shape (pre/post callbacks around
// each unit of work) generalized to whole phases instead of per-file
// invalidation events.
type CoordinatorHooks struct {
	// PrePhase, if set, is called before a phase starts (only if no
	// prior phase has already failed).
	PrePhase func(name string)
	// PostPhase, if set, is called after a phase finishes, with its
	// error (nil on success).
	PostPhase func(name string, err error)
}
