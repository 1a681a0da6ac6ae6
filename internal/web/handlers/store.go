package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/schoolmap/internal/engine"
)

// ErrNoRun is returned when no linkage run has completed yet.
var ErrNoRun = errors.New("no linkage run available")

// ErrRefreshInProgress is returned when a refresh is already running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// RunFunc performs a full linkage run.
type RunFunc func(ctx context.Context) (*engine.RunResult, error)

// RunStore holds the latest run result. Handlers read it concurrently; a
// refresh swaps in a new result only when the run succeeds.
type RunStore struct {
	mu         sync.RWMutex
	result     *engine.RunResult
	run        RunFunc
	refreshing bool
	lastError  string
	lastTry    time.Time
}

// NewRunStore creates a store that refreshes with run. run may be nil for a
// store that only serves a fixed result.
func NewRunStore(run RunFunc) *RunStore {
	return &RunStore{run: run}
}

// Set replaces the current result.
func (s *RunStore) Set(result *engine.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
}

// Current returns the latest result.
func (s *RunStore) Current() (*engine.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil, ErrNoRun
	}
	return s.result, nil
}

// CanRefresh reports whether the store has a run function.
func (s *RunStore) CanRefresh() bool {
	return s.run != nil
}

// Refresh performs a new run and publishes it. The previous result stays in
// place if the run fails.
func (s *RunStore) Refresh(ctx context.Context) (*engine.RunResult, error) {
	if s.run == nil {
		return nil, errors.New("refresh not configured")
	}

	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil, ErrRefreshInProgress
	}
	s.refreshing = true
	s.lastTry = time.Now()
	s.mu.Unlock()

	result, err := s.run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing = false
	if err != nil {
		s.lastError = err.Error()
		return nil, err
	}
	s.lastError = ""
	s.result = result
	return result, nil
}

// Status is a snapshot of the store for the status endpoint.
type Status struct {
	RunID       string     `json:"run_id,omitempty"`
	RunLabel    string     `json:"run_label,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Refreshing  bool       `json:"refreshing"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Status returns the store's current state.
func (s *RunStore) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Refreshing: s.refreshing, LastError: s.lastError}
	if !s.lastTry.IsZero() {
		t := s.lastTry
		st.LastAttempt = &t
	}
	if s.result != nil {
		started, completed := s.result.StartedAt, s.result.CompletedAt
		st.RunID = s.result.RunID
		st.RunLabel = s.result.RunLabel
		st.StartedAt = &started
		st.CompletedAt = &completed
	}
	return st
}
