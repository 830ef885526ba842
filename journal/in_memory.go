package journal

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// InMemoryStore is a volatile Store keeping entries in a process local map.
// It is safe for concurrent access and best suited for tests or one-shot
// runs. Returned runs and entries are copies.
type InMemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	entries map[string][]Entry
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs:    make(map[string]*Run),
		entries: make(map[string][]Entry),
	}
}

// Append stores e, assigning its sequence number within the run.
func (s *InMemoryStore) Append(_ context.Context, e Entry) error {
	if e.RunID == "" {
		return fmt.Errorf("entry %s has no run id", e.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.Seq = len(s.entries[e.RunID]) + 1
	s.entries[e.RunID] = append(s.entries[e.RunID], e)
	s.runs[e.RunID] = apply(s.runs[e.RunID], e)

	return nil
}

// Run returns a copy of the summary of runID.
func (s *InMemoryStore) Run(_ context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	c := *run

	return &c, nil
}

// Entries returns the entries of runID in sequence order.
func (s *InMemoryStore) Entries(_ context.Context, runID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.entries[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return slices.Clone(entries), nil
}

// Runs returns copies of the run summaries, newest first.
func (s *InMemoryStore) Runs(_ context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		c := *run
		runs = append(runs, &c)
	}

	slices.SortFunc(runs, func(a, b *Run) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

var _ Store = (*InMemoryStore)(nil)
