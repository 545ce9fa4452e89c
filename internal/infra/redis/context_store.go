package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"training-portal/internal/app"
	"training-portal/internal/domain"
)

// ContextStore keeps client contexts in Redis so they survive a restart of this process.
// Each save refreshes the key's TTL; an idle context expires on its own.
type ContextStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewContextStore(client *redis.Client, ttl time.Duration) *ContextStore {
	return &ContextStore{client: client, ttl: ttl}
}

func (s *ContextStore) Save(ctx context.Context, cc app.ClientContext) error {
	raw, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("encode client context: %w", err)
	}
	if err := s.client.Set(ctx, s.key(cc.SessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save client context: %w", err)
	}
	return nil
}

func (s *ContextStore) Load(ctx context.Context, sessionID string) (app.ClientContext, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.ClientContext{}, domain.ErrSessionInvalidated
	}
	if err != nil {
		return app.ClientContext{}, fmt.Errorf("redis load client context: %w", err)
	}
	var cc app.ClientContext
	if err := json.Unmarshal(raw, &cc); err != nil {
		return app.ClientContext{}, fmt.Errorf("decode client context: %w", err)
	}
	return cc, nil
}

func (s *ContextStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *ContextStore) key(sessionID string) string {
	return "portal:client:" + sessionID
}
