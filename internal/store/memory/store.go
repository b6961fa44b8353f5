// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jobscout/jobscout/internal/scout"
)

// JobStore keeps persisted jobs in a mutex-guarded map keyed by canonical
// link, which serializes concurrent inserts for the same key.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scout.PersistedJob
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]scout.PersistedJob)}
}

// Exists reports whether the canonical link is already persisted.
func (s *JobStore) Exists(_ context.Context, link string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[link]
	return ok, nil
}

// Insert persists the job, returning scout.ErrDuplicateLink when the link
// is already present.
func (s *JobStore) Insert(_ context.Context, job scout.PersistedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Link]; exists {
		return scout.ErrDuplicateLink
	}
	s.jobs[job.Link] = job
	return nil
}

// All returns a copy of every persisted job.
func (s *JobStore) All() []scout.PersistedJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scout.PersistedJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// RunStore keeps run records in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]scout.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]scout.Run)}
}

// Create stores a new run record.
func (s *RunStore) Create(_ context.Context, run scout.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// Get fetches a run by ID.
func (s *RunStore) Get(_ context.Context, runID string) (scout.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return scout.Run{}, scout.ErrRunNotFound
	}
	return run, nil
}

// GetStatus returns only the run's status; the coordinator polls this for
// cancellation.
func (s *RunStore) GetStatus(_ context.Context, runID string) (scout.RunStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return "", scout.ErrRunNotFound
	}
	return run.Status, nil
}

// Update sets status, error text and counters. Terminal states are sticky:
// once a run is cancelled or completed it never transitions to a different
// status. A repeated write of the same terminal status lands its counters,
// so a coordinator finalizing after an operator cancellation still records
// the run's final statistics.
func (s *RunStore) Update(
	_ context.Context,
	runID string,
	status scout.RunStatus,
	errText string,
	counters scout.RunCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return scout.ErrRunNotFound
	}
	if run.Status.Terminal() {
		if status == run.Status {
			run.Counters = counters
			if errText != "" {
				run.ErrorText = errText
			}
			s.runs[runID] = run
		}
		return nil
	}
	run.Status = status
	run.ErrorText = errText
	run.Counters = counters
	now := time.Now().UTC()
	if status == scout.RunStatusRunning && run.Started == nil {
		run.Started = pointerTime(now)
	}
	if status.Terminal() {
		run.Finished = pointerTime(now)
	}
	s.runs[runID] = run
	return nil
}

// Delete removes a run record; a coordinator observing the absence treats
// the run as cancelled.
func (s *RunStore) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
