package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"training-portal/internal/domain"
)

// ClientContext is the per-browser state that must survive a page reload: who is
// logged in, with which session token, and the learner's choices.
type ClientContext struct {
	AccountID   string               `json:"accountId"`
	SessionID   string               `json:"sessionId"`
	LearnerName string               `json:"learnerName,omitempty"`
	Mode        domain.Mode          `json:"mode"`
	Count       domain.QuestionCount `json:"count"`
}

// Handle returns the session handle the context was created with.
func (c ClientContext) Handle() SessionHandle {
	return SessionHandle{AccountID: c.AccountID, SessionID: c.SessionID}
}

// ContextStore persists client contexts keyed by session token.
type ContextStore interface {
	Save(ctx context.Context, cc ClientContext) error
	// Load fails with domain.ErrSessionInvalidated when no context exists.
	Load(ctx context.Context, sessionID string) (ClientContext, error)
	Delete(ctx context.Context, sessionID string) error
}

// ClientSessions owns the lifetime of client contexts: created on login, removed on
// logout or eviction.
type ClientSessions struct {
	sessions *SessionManager
	contexts ContextStore
	runs     RunStore
	log      zerolog.Logger

	mu       sync.Mutex
	nextID   uint64
	watchers map[string]map[uint64]func(SessionEnd)
}

// SessionEnd says why a client session was torn down.
type SessionEnd string

const (
	EndLoggedOut SessionEnd = "loggedOut"
	EndEvicted   SessionEnd = "evicted"
)

func NewClientSessions(sessions *SessionManager, contexts ContextStore, runs RunStore, log zerolog.Logger) *ClientSessions {
	return &ClientSessions{
		sessions: sessions,
		contexts: contexts,
		runs:     runs,
		log:      log.With().Str("component", "client_sessions").Logger(),
		watchers: make(map[string]map[uint64]func(SessionEnd)),
	}
}

// Login acquires the account's session and stores a fresh client context.
func (s *ClientSessions) Login(ctx context.Context, accountID, password string) (ClientContext, error) {
	handle, err := s.sessions.Acquire(ctx, accountID, password)
	if err != nil {
		return ClientContext{}, err
	}
	cc := ClientContext{
		AccountID: handle.AccountID,
		SessionID: handle.SessionID,
		Mode:      domain.ModePractice,
		Count:     domain.AllQuestions,
	}
	if err := s.contexts.Save(ctx, cc); err != nil {
		if relErr := s.sessions.Release(ctx, handle); relErr != nil {
			s.log.Warn().Err(relErr).Str("account_id", accountID).Msg("release after failed login")
		}
		return ClientContext{}, fmt.Errorf("save client context: %w", err)
	}
	return cc, nil
}

// Context loads the client context of a session token.
func (s *ClientSessions) Context(ctx context.Context, sessionID string) (ClientContext, error) {
	return s.contexts.Load(ctx, sessionID)
}

// SetLearner records the learner's display name.
func (s *ClientSessions) SetLearner(ctx context.Context, sessionID, name string) (ClientContext, error) {
	key, err := domain.NormalizeLearnerKey(name)
	if err != nil {
		return ClientContext{}, err
	}
	return s.update(ctx, sessionID, func(cc *ClientContext) {
		cc.LearnerName = key
	})
}

// ClearLearner forgets the learner name and any run, as "return home" does.
func (s *ClientSessions) ClearLearner(ctx context.Context, sessionID string) (ClientContext, error) {
	cc, err := s.update(ctx, sessionID, func(cc *ClientContext) {
		cc.LearnerName = ""
	})
	if err != nil {
		return ClientContext{}, err
	}
	s.runs.Delete(sessionID)
	return cc, nil
}

// SetMode stores the quiz mode and count. Test mode always asks for the fixed count.
func (s *ClientSessions) SetMode(ctx context.Context, sessionID string, mode domain.Mode, count domain.QuestionCount) (ClientContext, error) {
	if mode == domain.ModeTest {
		count = domain.QuestionCount{N: domain.TestModeQuestions}
	}
	return s.update(ctx, sessionID, func(cc *ClientContext) {
		cc.Mode = mode
		cc.Count = count
	})
}

// Heartbeat runs one heartbeat tick for the session and logs it out locally on eviction.
func (s *ClientSessions) Heartbeat(ctx context.Context, sessionID string) (HeartbeatStatus, error) {
	cc, err := s.contexts.Load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	status, err := s.sessions.Heartbeat(ctx, cc.Handle())
	if err != nil {
		return "", err
	}
	if status == HeartbeatEvicted {
		s.Evict(ctx, sessionID)
	}
	return status, nil
}

// Logout releases the remote lock when it is still ours and always clears local state.
// Remote failures are logged only.
func (s *ClientSessions) Logout(ctx context.Context, handle SessionHandle) {
	if err := s.sessions.Release(ctx, handle); err != nil {
		s.log.Warn().Err(err).Str("account_id", handle.AccountID).Msg("session release failed")
	}
	s.clear(ctx, handle.SessionID, EndLoggedOut)
}

// Evict clears local state for a session that another login took over.
func (s *ClientSessions) Evict(ctx context.Context, sessionID string) {
	s.clear(ctx, sessionID, EndEvicted)
}

// Watch registers notify to run once when the session is logged out or evicted.
// Heartbeat streams use it to stop as soon as the context is gone. notify must not
// block. The returned func unregisters it.
func (s *ClientSessions) Watch(sessionID string, notify func(SessionEnd)) (unwatch func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.watchers[sessionID] == nil {
		s.watchers[sessionID] = make(map[uint64]func(SessionEnd))
	}
	s.watchers[sessionID][id] = notify
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[sessionID], id)
		if len(s.watchers[sessionID]) == 0 {
			delete(s.watchers, sessionID)
		}
	}
}

// Manager exposes the underlying session manager for heartbeat loops.
func (s *ClientSessions) Manager() *SessionManager {
	return s.sessions
}

func (s *ClientSessions) clear(ctx context.Context, sessionID string, reason SessionEnd) {
	if err := s.contexts.Delete(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Msg("client context delete failed")
	}
	s.runs.Delete(sessionID)

	s.mu.Lock()
	watchers := s.watchers[sessionID]
	delete(s.watchers, sessionID)
	s.mu.Unlock()
	for _, notify := range watchers {
		notify(reason)
	}
}

func (s *ClientSessions) update(ctx context.Context, sessionID string, mutate func(*ClientContext)) (ClientContext, error) {
	cc, err := s.contexts.Load(ctx, sessionID)
	if err != nil {
		return ClientContext{}, err
	}
	mutate(&cc)
	if err := s.contexts.Save(ctx, cc); err != nil {
		return ClientContext{}, fmt.Errorf("save client context: %w", err)
	}
	return cc, nil
}

// IsInvalidated reports whether err means the client session is gone.
func IsInvalidated(err error) bool {
	return errors.Is(err, domain.ErrSessionInvalidated)
}
