// Package frontendtest provides a counting stub frontend for tests that
// need to observe which library operations ran.
package frontendtest

import (
	"context"
	"sync"
	"time"

	"ccd/internal/frontend"
)

// Handle is the stub's translation unit handle.
type Handle struct {
	MainFile string
	Flags    []string

	mu       sync.Mutex
	disposed int
}

// DisposeCount returns how many times this handle was disposed.
func (h *Handle) DisposeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

// Stub implements frontend.Frontend with canned results and call counters.
type Stub struct {
	mu sync.Mutex

	parseCalls    int
	reparseCalls  int
	completeCalls int

	handles []*Handle

	// Canned results
	ParseDiags   []frontend.Diagnostic
	ReparseDiags []frontend.Diagnostic
	Candidates   []frontend.RawCandidate

	// Failure injection
	ParseErr    error
	ReparseErr  error
	CompleteErr error

	// Delay simulates a slow frontend call; applied to every operation.
	// Use SetDelay to change it once operations may be in flight.
	Delay time.Duration

	// OnComplete, when set, runs inside CompleteAt before returning.
	OnComplete func()
}

// SetDelay changes the simulated latency.
func (s *Stub) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.Delay = d
	s.mu.Unlock()
}

// SetCompleteErr changes the injected CompleteAt failure.
func (s *Stub) SetCompleteErr(err error) {
	s.mu.Lock()
	s.CompleteErr = err
	s.mu.Unlock()
}

// New returns an empty stub.
func New() *Stub {
	return &Stub{}
}

func (s *Stub) wait(ctx context.Context) error {
	s.mu.Lock()
	delay := s.Delay
	s.mu.Unlock()
	if delay == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Parse implements frontend.Frontend.
func (s *Stub) Parse(ctx context.Context, mainFile string, flags []string, workingDir string, unsaved map[string][]byte) (frontend.Handle, []frontend.Diagnostic, error) {
	if err := s.wait(ctx); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.parseCalls++
	if s.ParseErr != nil {
		return nil, nil, s.ParseErr
	}
	h := &Handle{MainFile: mainFile, Flags: append([]string{}, flags...)}
	s.handles = append(s.handles, h)
	return h, append([]frontend.Diagnostic{}, s.ParseDiags...), nil
}

// Reparse implements frontend.Frontend.
func (s *Stub) Reparse(ctx context.Context, h frontend.Handle, unsaved map[string][]byte) ([]frontend.Diagnostic, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reparseCalls++
	if s.ReparseErr != nil {
		return nil, s.ReparseErr
	}
	return append([]frontend.Diagnostic{}, s.ReparseDiags...), nil
}

// CompleteAt implements frontend.Frontend.
func (s *Stub) CompleteAt(ctx context.Context, h frontend.Handle, line, col int, unsaved map[string][]byte) ([]frontend.RawCandidate, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	hook := s.OnComplete
	s.completeCalls++
	err := s.CompleteErr
	cands := append([]frontend.RawCandidate{}, s.Candidates...)
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return cands, nil
}

// Dispose implements frontend.Frontend.
func (s *Stub) Dispose(h frontend.Handle) {
	if sh, ok := h.(*Handle); ok {
		sh.mu.Lock()
		sh.disposed++
		sh.mu.Unlock()
	}
}

// ParseCalls returns the number of Parse invocations.
func (s *Stub) ParseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parseCalls
}

// ReparseCalls returns the number of Reparse invocations.
func (s *Stub) ReparseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reparseCalls
}

// CompleteCalls returns the number of CompleteAt invocations.
func (s *Stub) CompleteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeCalls
}

// Handles returns every handle Parse has produced, in order.
func (s *Stub) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Handle{}, s.handles...)
}
