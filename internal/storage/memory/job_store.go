package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitesnap/internal/job"
)

// JobStore keeps job records in memory. Records are never evicted.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]job.Record
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]job.Record)}
}

// Create stores a new record.
func (s *JobStore) Create(_ context.Context, rec job.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[rec.ID]; exists {
		return fmt.Errorf("create %s: %w", rec.ID, job.ErrExists)
	}
	s.jobs[rec.ID] = rec.Clone()
	return nil
}

// Get returns a copy of the record.
func (s *JobStore) Get(_ context.Context, id string) (job.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return job.Record{}, fmt.Errorf("get %s: %w", id, job.ErrNotFound)
	}
	return rec.Clone(), nil
}

// Update applies fn to a copy under the write lock and stores the result
// only when fn succeeds.
func (s *JobStore) Update(_ context.Context, id string, fn job.UpdateFunc) (job.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return job.Record{}, fmt.Errorf("update %s: %w", id, job.ErrNotFound)
	}
	working := rec.Clone()
	if err := fn(&working); err != nil {
		return rec.Clone(), err
	}
	s.jobs[id] = working
	return working.Clone(), nil
}
