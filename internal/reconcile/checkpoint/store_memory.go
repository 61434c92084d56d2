package checkpoint

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps checkpoints in process memory.
type InMemoryStore struct {
	mu     sync.Mutex
	states map[string]State
	clock  func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]State), clock: time.Now}
}

func (s *InMemoryStore) Get(_ context.Context, jobName string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[jobName]
	if !ok {
		return State{}, ErrNotFound
	}
	return state, nil
}

// GetOrCreate returns the job's checkpoint, creating it at initial if absent.
func (s *InMemoryStore) GetOrCreate(_ context.Context, jobName string, initial time.Time) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[jobName]; ok {
		return state, nil
	}
	now := s.clock()
	state := State{JobName: jobName, LastProcessedTo: initial, CreatedAt: now, UpdatedAt: now}
	s.states[jobName] = state
	return state, nil
}

// Advance moves the watermark forward to to. Earlier values are ignored.
func (s *InMemoryStore) Advance(_ context.Context, jobName string, to time.Time) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[jobName]
	if !ok {
		return State{}, ErrNotFound
	}
	if to.After(state.LastProcessedTo) {
		state.LastProcessedTo = to
	}
	state.UpdatedAt = s.clock()
	s.states[jobName] = state
	return state, nil
}
