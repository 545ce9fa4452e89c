package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"training-portal/internal/app"
	"training-portal/internal/domain"
)

func TestContextStoreRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewContextStore(client, time.Hour)

	cc := app.ClientContext{
		AccountID:   "acme",
		SessionID:   "tok",
		LearnerName: "Ann",
		Mode:        domain.ModePractice,
		Count:       domain.QuestionCount{N: 10},
	}
	if err := store.Save(ctx, cc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("portal:client:tok"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
	got, err := store.Load(ctx, "tok")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != cc {
		t.Fatalf("expected %+v, got %+v", cc, got)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := store.Load(ctx, "tok"); !errors.Is(err, domain.ErrSessionInvalidated) {
		t.Fatalf("expected expired context to be invalidated, got %v", err)
	}
}

func TestContextStoreDelete(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	store := NewContextStore(client, time.Hour)

	_ = store.Save(ctx, app.ClientContext{AccountID: "acme", SessionID: "tok", Count: domain.AllQuestions})
	if err := store.Delete(ctx, "tok"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "tok"); !errors.Is(err, domain.ErrSessionInvalidated) {
		t.Fatalf("expected invalidated after delete, got %v", err)
	}
}
