package memorystore

import (
	"context"
	"sort"
	"sync"

	"github.com/PaulFidika/rolesync/policy"
)

// TimerStore is an in-memory core.TimerStore. Nothing survives a restart, so
// it is meant for tests and dry runs.
type TimerStore struct {
	mu   sync.Mutex
	data map[string]policy.Timer
}

// NewTimerStore creates an empty in-memory timer store.
func NewTimerStore() *TimerStore {
	return &TimerStore{data: make(map[string]policy.Timer)}
}

func (s *TimerStore) Put(ctx context.Context, t policy.Timer) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[t.SubjectID] = t
	return nil
}

func (s *TimerStore) Get(ctx context.Context, subjectID string) (policy.Timer, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data[subjectID]
	return t, ok, nil
}

func (s *TimerStore) Delete(ctx context.Context, subjectID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, subjectID)
	return nil
}

// List returns all timers ordered by subject id.
func (s *TimerStore) List(ctx context.Context) ([]policy.Timer, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]policy.Timer, 0, len(s.data))
	for _, t := range s.data {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// Close is a no-op kept for parity with the persistent stores.
func (s *TimerStore) Close() error { return nil }
