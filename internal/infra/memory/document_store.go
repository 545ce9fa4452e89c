package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"training-portal/internal/docstore"
)

// DocumentStore is an in-memory implementation of docstore.Store.
// Data is kept JSON-normalised so reads look the same as the networked backends.
type DocumentStore struct {
	clock func() time.Time

	mu   sync.RWMutex
	docs map[string][]byte
}

func NewDocumentStore() *DocumentStore {
	return NewDocumentStoreWithClock(time.Now)
}

// NewDocumentStoreWithClock resolves ServerTimestamp with now; used by tests.
func NewDocumentStoreWithClock(now func() time.Time) *DocumentStore {
	return &DocumentStore{
		clock: now,
		docs:  make(map[string][]byte),
	}
}

// Now reports the store clock.
func (s *DocumentStore) Now(context.Context) (time.Time, error) {
	return s.clock(), nil
}

func (s *DocumentStore) Get(_ context.Context, ref docstore.DocumentRef) (docstore.Document, error) {
	s.mu.RLock()
	raw, ok := s.docs[ref.String()]
	s.mu.RUnlock()
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	data, err := docstore.Decode(raw)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{Ref: ref, Data: data}, nil
}

func (s *DocumentStore) Set(_ context.Context, ref docstore.DocumentRef, fields docstore.Fields, opts ...docstore.SetOption) error {
	update, err := docstore.ResolveFields(fields, s.clock())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data := update
	if docstore.ApplySetOptions(opts) {
		if raw, ok := s.docs[ref.String()]; ok {
			existing, err := docstore.Decode(raw)
			if err != nil {
				return err
			}
			data = docstore.Merge(existing, update)
		}
	}
	return s.putLocked(ref, data)
}

func (s *DocumentStore) Update(_ context.Context, ref docstore.DocumentRef, fields docstore.Fields) error {
	update, err := docstore.ResolveFields(fields, s.clock())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[ref.String()]
	if !ok {
		return docstore.ErrNotFound
	}
	existing, err := docstore.Decode(raw)
	if err != nil {
		return err
	}
	return s.putLocked(ref, docstore.Merge(existing, update))
}

func (s *DocumentStore) Delete(_ context.Context, ref docstore.DocumentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, ref.String())
	return nil
}

func (s *DocumentStore) Query(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	prefix := q.Collection.String() + "/"

	s.mu.RLock()
	docs := make([]docstore.Document, 0)
	for path, raw := range s.docs {
		id, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(id, "/") {
			continue
		}
		data, err := docstore.Decode(raw)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		docs = append(docs, docstore.Document{Ref: q.Collection.Doc(id), Data: data})
	}
	s.mu.RUnlock()

	return docstore.SortDocuments(docs, q), nil
}

func (s *DocumentStore) putLocked(ref docstore.DocumentRef, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.docs[ref.String()] = raw
	return nil
}
