package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"training-portal/internal/docstore"
)

func TestDocumentStoreSetMergeAndUpdate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store := NewDocumentStoreWithClock(func() time.Time { return now })
	ref := docstore.Doc("company", "u1", "learners", "Alice")

	if err := store.Set(ctx, ref, docstore.Fields{"score": 3, "note": "keep"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, ref, docstore.Fields{"score": 5, "completedAt": docstore.ServerTimestamp}, docstore.MergeAll()); err != nil {
		t.Fatalf("merge set: %v", err)
	}

	doc, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data["score"] != float64(5) || doc.Data["note"] != "keep" {
		t.Fatalf("unexpected merged data %v", doc.Data)
	}
	var out struct {
		CompletedAt time.Time `json:"completedAt"`
	}
	if err := doc.DataTo(&out); err != nil || !out.CompletedAt.Equal(now) {
		t.Fatalf("expected server timestamp %v, got %v (%v)", now, out.CompletedAt, err)
	}

	if err := store.Set(ctx, ref, docstore.Fields{"score": 1}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	doc, _ = store.Get(ctx, ref)
	if _, ok := doc.Data["note"]; ok {
		t.Fatalf("expected plain set to replace the document, got %v", doc.Data)
	}

	missing := docstore.Doc("company", "u1", "session", "active")
	if err := store.Update(ctx, missing, docstore.Fields{"x": 1}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestDocumentStoreDeleteAndQuery(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store := NewDocumentStoreWithClock(func() time.Time { return clock })
	learners := docstore.Collection("company", "u1", "learners")

	for _, name := range []string{"Alice", "Bob", "Carol"} {
		clock = clock.Add(time.Minute)
		if err := store.Set(ctx, learners.Doc(name), docstore.Fields{"completedAt": docstore.ServerTimestamp}); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
	if err := store.Set(ctx, docstore.Doc("company", "u2", "learners", "Dave"), docstore.Fields{"completedAt": docstore.ServerTimestamp}); err != nil {
		t.Fatalf("set other company: %v", err)
	}
	if err := store.Delete(ctx, learners.Doc("Bob")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, learners.Doc("Nobody")); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	docs, err := store.Query(ctx, docstore.Query{Collection: learners, OrderBy: "completedAt", Descending: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 || docs[0].Ref.ID() != "Carol" || docs[1].Ref.ID() != "Alice" {
		t.Fatalf("unexpected query result %+v", docs)
	}
}
