package memory

import (
	"sync"

	"training-portal/internal/app"
)

type runSlot struct {
	gen     uint64
	loading bool
	run     *app.Run
}

// RunStore is an in-memory implementation of app.RunStore.
type RunStore struct {
	mu    sync.RWMutex
	next  uint64
	slots map[string]*runSlot
}

func NewRunStore() *RunStore {
	return &RunStore{
		slots: make(map[string]*runSlot),
	}
}

// Begin marks key as loading and returns the generation a later Install must present.
func (s *RunStore) Begin(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.slots[key] = &runSlot{gen: s.next, loading: true}
	return s.next
}

// Install stores run only if no newer Begin or Delete happened since gen was issued.
func (s *RunStore) Install(key string, gen uint64, run *app.Run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[key]
	if !ok || slot.gen != gen {
		return false
	}
	slot.loading = false
	slot.run = run
	return true
}

func (s *RunStore) Abort(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.slots[key]; ok && slot.gen == gen {
		delete(s.slots, key)
	}
}

func (s *RunStore) Get(key string) (*app.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[key]
	if !ok || slot.run == nil {
		return nil, false
	}
	return slot.run, true
}

func (s *RunStore) Loading(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[key]
	return ok && slot.loading
}

func (s *RunStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
}
