package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-portal/internal/docstore"
)

// DocumentStore implements docstore.Store on a single jsonb table.
type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

func (s *DocumentStore) Get(ctx context.Context, ref docstore.DocumentRef) (docstore.Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM documents WHERE path=$1`, ref.String()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("load document %s: %w", ref, err)
	}
	data, err := docstore.Decode(raw)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{Ref: ref, Data: data}, nil
}

func (s *DocumentStore) Set(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields, opts ...docstore.SetOption) error {
	raw, err := s.encode(ctx, fields)
	if err != nil {
		return err
	}
	onConflict := `data = EXCLUDED.data`
	if docstore.ApplySetOptions(opts) {
		onConflict = `data = documents.data || EXCLUDED.data`
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (path, collection, doc_id, data, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (path) DO UPDATE SET `+onConflict+`, updated_at = now()`,
		ref.String(), ref.Parent().String(), ref.ID(), raw)
	if err != nil {
		return fmt.Errorf("write document %s: %w", ref, err)
	}
	return nil
}

func (s *DocumentStore) Update(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields) error {
	raw, err := s.encode(ctx, fields)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET data = data || $2::jsonb, updated_at = now() WHERE path=$1`,
		ref.String(), raw)
	if err != nil {
		return fmt.Errorf("update document %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, ref docstore.DocumentRef) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path=$1`, ref.String()); err != nil {
		return fmt.Errorf("delete document %s: %w", ref, err)
	}
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT path, data FROM documents WHERE collection=$1`, q.Collection.String())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			path string
			raw  []byte
		)
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		ref, err := docstore.ParseDocumentRef(path)
		if err != nil {
			return nil, err
		}
		data, err := docstore.Decode(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{Ref: ref, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return docstore.SortDocuments(docs, q), nil
}

// Now reports the database clock.
func (s *DocumentStore) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("server time: %w", err)
	}
	return now, nil
}

// encode resolves server timestamps with the database clock and returns jsonb text.
func (s *DocumentStore) encode(ctx context.Context, fields docstore.Fields) (string, error) {
	var now time.Time
	if docstore.HasServerTimestamp(fields) {
		t, err := s.Now(ctx)
		if err != nil {
			return "", err
		}
		now = t
	}
	data, err := docstore.ResolveFields(fields, now)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}
