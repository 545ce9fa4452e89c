package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"training-portal/internal/docstore"
	"training-portal/internal/domain"
)

const (
	DefaultLivenessWindow    = 3 * time.Minute
	DefaultHeartbeatInterval = 2 * time.Minute
)

// CredentialSource lists the company accounts allowed to log in.
// Implementations fetch fresh rows on every call.
type CredentialSource interface {
	Accounts(ctx context.Context) ([]domain.Account, error)
}

// SessionHandle identifies a session this process acquired.
type SessionHandle struct {
	AccountID string `json:"accountId"`
	SessionID string `json:"sessionId"`
}

// HeartbeatStatus is the outcome of one heartbeat tick.
type HeartbeatStatus string

const (
	HeartbeatRefreshed HeartbeatStatus = "refreshed"
	// HeartbeatEvicted means the lock now bears another session's token.
	HeartbeatEvicted HeartbeatStatus = "evicted"
	// HeartbeatMissing means the lock document is gone; there is nothing to refresh.
	HeartbeatMissing HeartbeatStatus = "missing"
)

// SessionConfig holds the liveness timings. Zero values fall back to the defaults.
type SessionConfig struct {
	LivenessWindow    time.Duration
	HeartbeatInterval time.Duration
}

// SessionManager enforces at most one live session per company account.
type SessionManager struct {
	creds    CredentialSource
	docs     docstore.Store
	window   time.Duration
	interval time.Duration
	now      func(context.Context) (time.Time, error)
	newToken func() string
	log      zerolog.Logger
}

// NewSessionManager judges liveness by the store's clock when docs implements
// docstore.Clock, since lastActiveAt is stamped by that clock. Otherwise it uses time.Now.
func NewSessionManager(creds CredentialSource, docs docstore.Store, cfg SessionConfig, log zerolog.Logger) *SessionManager {
	m := NewSessionManagerWithClock(creds, docs, cfg, log, time.Now)
	if clock, ok := docs.(docstore.Clock); ok {
		m.now = clock.Now
	}
	return m
}

// NewSessionManagerWithClock allows deterministic liveness checks in tests.
func NewSessionManagerWithClock(creds CredentialSource, docs docstore.Store, cfg SessionConfig, log zerolog.Logger, now func() time.Time) *SessionManager {
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = DefaultLivenessWindow
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &SessionManager{
		creds:    creds,
		docs:     docs,
		window:   cfg.LivenessWindow,
		interval: cfg.HeartbeatInterval,
		now:      func(context.Context) (time.Time, error) { return now(), nil },
		newToken: uuid.NewString,
		log:      log.With().Str("component", "session_manager").Logger(),
	}
}

// Acquire checks the credentials and takes the account's session lock.
// A live rival (including an earlier login by the same person) fails with a
// *domain.SessionConflictError; a stale lock is overwritten.
func (m *SessionManager) Acquire(ctx context.Context, accountID, password string) (SessionHandle, error) {
	accounts, err := m.creds.Accounts(ctx)
	if err != nil {
		return SessionHandle{}, err
	}
	if !matchAccount(accounts, accountID, password) || !validAccountID(accountID) {
		return SessionHandle{}, domain.ErrInvalidCredentials
	}

	ref := sessionRef(accountID)
	current, found, err := m.read(ctx, ref)
	if err != nil {
		return SessionHandle{}, err
	}
	now, err := m.now(ctx)
	if err != nil {
		return SessionHandle{}, fmt.Errorf("read store clock: %w", err)
	}
	if found && current.IsLive(now, m.window) {
		return SessionHandle{}, &domain.SessionConflictError{
			RetryAfter: m.window - now.Sub(current.LastActiveAt),
		}
	}

	// No compare-and-swap here: two logins racing past the liveness check both write and
	// the last writer owns the lock. The other one learns it was evicted on its next heartbeat.
	handle := SessionHandle{AccountID: accountID, SessionID: m.newToken()}
	err = m.docs.Set(ctx, ref, docstore.Fields{
		"sessionId":    handle.SessionID,
		"lastActiveAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return SessionHandle{}, fmt.Errorf("write session: %w", err)
	}

	m.log.Info().
		Str("account_id", accountID).
		Bool("replaced_stale", found).
		Msg("session acquired")
	return handle, nil
}

// Heartbeat refreshes lastActiveAt if the lock still bears the handle's token.
func (m *SessionManager) Heartbeat(ctx context.Context, h SessionHandle) (HeartbeatStatus, error) {
	ref := sessionRef(h.AccountID)
	current, found, err := m.read(ctx, ref)
	if err != nil {
		return "", err
	}
	if !found {
		return HeartbeatMissing, nil
	}
	if current.SessionID != h.SessionID {
		return HeartbeatEvicted, nil
	}
	if err := m.docs.Update(ctx, ref, docstore.Fields{"lastActiveAt": docstore.ServerTimestamp}); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return HeartbeatMissing, nil
		}
		return "", fmt.Errorf("refresh session: %w", err)
	}
	return HeartbeatRefreshed, nil
}

// StartHeartbeat runs Heartbeat immediately and then on every interval until the
// returned stop func is called, ctx is done, or an eviction is observed.
// observe runs on the heartbeat goroutine and must not call stop. Failed ticks are
// logged and retried on the next tick; observe never sees them.
func (m *SessionManager) StartHeartbeat(ctx context.Context, h SessionHandle, observe func(HeartbeatStatus)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			if m.beat(ctx, h, observe) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// beat reports whether the loop should end.
func (m *SessionManager) beat(ctx context.Context, h SessionHandle, observe func(HeartbeatStatus)) bool {
	status, err := m.Heartbeat(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		m.log.Warn().Err(err).Str("account_id", h.AccountID).Msg("heartbeat failed")
		return false
	}
	if observe != nil {
		observe(status)
	}
	if status == HeartbeatEvicted {
		m.log.Info().Str("account_id", h.AccountID).Msg("session evicted by a newer login")
		return true
	}
	return false
}

// Release deletes the lock only if it still bears the handle's token.
func (m *SessionManager) Release(ctx context.Context, h SessionHandle) error {
	ref := sessionRef(h.AccountID)
	current, found, err := m.read(ctx, ref)
	if err != nil {
		return err
	}
	if !found || current.SessionID != h.SessionID {
		return nil
	}
	if err := m.docs.Delete(ctx, ref); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.log.Info().Str("account_id", h.AccountID).Msg("session released")
	return nil
}

func (m *SessionManager) read(ctx context.Context, ref docstore.DocumentRef) (domain.SessionDocument, bool, error) {
	doc, err := m.docs.Get(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.SessionDocument{}, false, nil
	}
	if err != nil {
		return domain.SessionDocument{}, false, fmt.Errorf("read session: %w", err)
	}
	var current domain.SessionDocument
	if err := doc.DataTo(&current); err != nil {
		return domain.SessionDocument{}, false, fmt.Errorf("decode session: %w", err)
	}
	return current, true, nil
}

func matchAccount(accounts []domain.Account, accountID, password string) bool {
	for _, a := range accounts {
		if a.ID == accountID && subtle.ConstantTimeCompare([]byte(a.Password), []byte(password)) == 1 {
			return true
		}
	}
	return false
}

func validAccountID(accountID string) bool {
	return accountID != "" && !strings.Contains(accountID, "/")
}

func sessionRef(accountID string) docstore.DocumentRef {
	return docstore.Doc("company", accountID, "session", "active")
}

func learnersRef(accountID string) docstore.CollectionRef {
	return docstore.Collection("company", accountID, "learners")
}
