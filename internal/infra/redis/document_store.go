package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"training-portal/internal/docstore"
)

// maxTxRetries bounds optimistic retries when a watched document changes mid-write.
const maxTxRetries = 8

// DocumentStore implements docstore.Store on Redis.
// Documents are stored as JSON strings under doc:{path}; the members of a collection are
// kept in the set col:{collection path}.
type DocumentStore struct {
	client *redis.Client
}

func NewDocumentStore(client *redis.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) Get(ctx context.Context, ref docstore.DocumentRef) (docstore.Document, error) {
	raw, err := s.client.Get(ctx, docKey(ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("redis get %s: %w", ref, err)
	}
	data, err := docstore.Decode(raw)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{Ref: ref, Data: data}, nil
}

func (s *DocumentStore) Set(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields, opts ...docstore.SetOption) error {
	if !docstore.ApplySetOptions(opts) {
		data, err := s.resolve(ctx, fields)
		if err != nil {
			return err
		}
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return queueWrite(ctx, pipe, ref, data)
		})
		if err != nil {
			return fmt.Errorf("redis set %s: %w", ref, err)
		}
		return nil
	}
	return s.mergeTx(ctx, ref, fields, false)
}

func (s *DocumentStore) Update(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields) error {
	return s.mergeTx(ctx, ref, fields, true)
}

func (s *DocumentStore) Delete(ctx context.Context, ref docstore.DocumentRef) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(ref))
		pipe.SRem(ctx, colKey(ref.Parent()), ref.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", ref, err)
	}
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	paths, err := s.client.SMembers(ctx, colKey(q.Collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis members %s: %w", q.Collection, err)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = "doc:" + p
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", q.Collection, err)
	}

	docs := make([]docstore.Document, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Member without a document: removed between SMEMBERS and MGET.
			continue
		}
		ref, err := docstore.ParseDocumentRef(paths[i])
		if err != nil {
			return nil, err
		}
		data, err := docstore.Decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{Ref: ref, Data: data})
	}
	return docstore.SortDocuments(docs, q), nil
}

// mergeTx overlays fields onto the current document inside WATCH/MULTI.
func (s *DocumentStore) mergeTx(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields, mustExist bool) error {
	key := docKey(ref)
	txf := func(tx *redis.Tx) error {
		existing := map[string]any{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if mustExist {
				return docstore.ErrNotFound
			}
		case err != nil:
			return err
		default:
			if existing, err = docstore.Decode(raw); err != nil {
				return err
			}
		}

		update, err := s.resolve(ctx, fields)
		if err != nil {
			return err
		}
		merged := docstore.Merge(existing, update)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return queueWrite(ctx, pipe, ref, merged)
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("redis merge %s: %w", ref, err)
		}
		return err
	}
	return fmt.Errorf("redis merge %s: too much contention", ref)
}

func queueWrite(ctx context.Context, pipe redis.Pipeliner, ref docstore.DocumentRef, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	pipe.Set(ctx, docKey(ref), raw, 0)
	pipe.SAdd(ctx, colKey(ref.Parent()), ref.String())
	return nil
}

// Now reports the Redis server clock.
func (s *DocumentStore) Now(ctx context.Context) (time.Time, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("redis time: %w", err)
	}
	return t, nil
}

// resolve stamps server timestamps with the Redis server clock.
func (s *DocumentStore) resolve(ctx context.Context, fields docstore.Fields) (map[string]any, error) {
	now := time.Time{}
	if docstore.HasServerTimestamp(fields) {
		t, err := s.Now(ctx)
		if err != nil {
			return nil, err
		}
		now = t
	}
	return docstore.ResolveFields(fields, now)
}

func docKey(ref docstore.DocumentRef) string { return "doc:" + ref.String() }

func colKey(ref docstore.CollectionRef) string { return "col:" + ref.String() }
