package memory

import (
	"context"
	"sync"

	"training-portal/internal/app"
	"training-portal/internal/domain"
)

// ContextStore keeps client contexts in process memory. Contexts do not survive a restart.
type ContextStore struct {
	mu       sync.RWMutex
	contexts map[string]app.ClientContext
}

func NewContextStore() *ContextStore {
	return &ContextStore{contexts: make(map[string]app.ClientContext)}
}

func (s *ContextStore) Save(_ context.Context, cc app.ClientContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[cc.SessionID] = cc
	return nil
}

func (s *ContextStore) Load(_ context.Context, sessionID string) (app.ClientContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cc, ok := s.contexts[sessionID]
	if !ok {
		return app.ClientContext{}, domain.ErrSessionInvalidated
	}
	return cc, nil
}

func (s *ContextStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, sessionID)
	return nil
}
