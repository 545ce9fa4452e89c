package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"training-portal/internal/app"
	"training-portal/internal/docstore"
	"training-portal/internal/domain"
	"training-portal/internal/infra/memory"
)

type staticAccounts []domain.Account

func (a staticAccounts) Accounts(context.Context) ([]domain.Account, error) {
	return a, nil
}

type staticQuestions struct {
	questions []domain.Question
	err       error
}

func (s staticQuestions) Questions(context.Context) ([]domain.Question, error) {
	return append([]domain.Question(nil), s.questions...), s.err
}

// fakeClock is a settable clock shared by the manager and the document store.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyStore fails chosen operations of an otherwise working store.
type flakyStore struct {
	docstore.Store
	mu      sync.Mutex
	failGet bool
	failSet bool
}

var errStoreDown = errors.New("store unavailable")

func (s *flakyStore) setFailures(get, set bool) {
	s.mu.Lock()
	s.failGet, s.failSet = get, set
	s.mu.Unlock()
}

func (s *flakyStore) Get(ctx context.Context, ref docstore.DocumentRef) (docstore.Document, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return docstore.Document{}, errStoreDown
	}
	return s.Store.Get(ctx, ref)
}

func (s *flakyStore) Set(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields, opts ...docstore.SetOption) error {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.Set(ctx, ref, fields, opts...)
}

var testAccounts = staticAccounts{{ID: "u1", Password: "p1"}, {ID: "acme", Password: "s3cret"}}

func newTestManager(clock *fakeClock, docs docstore.Store) *app.SessionManager {
	return app.NewSessionManagerWithClock(testAccounts, docs, app.SessionConfig{}, zerolog.Nop(), clock.Now)
}

func single(id string, correct domain.Label) domain.Question {
	return domain.Question{
		ID:          id,
		Text:        "question " + id,
		Options:     []domain.Option{{Label: "A", Text: "alpha"}, {Label: "B", Text: "beta"}, {Label: "C", Text: "gamma"}},
		Correct:     []domain.Label{correct},
		Explanation: "because " + id,
	}
}

func multi(id string, correct ...domain.Label) domain.Question {
	q := single(id, "A")
	q.Correct = correct
	return q
}

func questionSet(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = single(string(rune('a'+i)), "A")
	}
	return qs
}

func noShuffle([]domain.Question) {}

func newMemoryDocs(clock *fakeClock) *memory.DocumentStore {
	return memory.NewDocumentStoreWithClock(clock.Now)
}
