// Package docstore defines the hierarchical document store used for session locks and
// completion records, plus helpers shared by its backends.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by Get and Update when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Store is a document store keyed by collection/document paths.
// It offers no compare-and-swap; callers that read then write race with other writers.
type Store interface {
	Get(ctx context.Context, ref DocumentRef) (Document, error)
	Set(ctx context.Context, ref DocumentRef, fields Fields, opts ...SetOption) error
	// Update merges fields into an existing document and fails with ErrNotFound otherwise.
	Update(ctx context.Context, ref DocumentRef, fields Fields) error
	// Delete removes the document; deleting a missing document is not an error.
	Delete(ctx context.Context, ref DocumentRef) error
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Clock is implemented by stores that can report the time they resolve ServerTimestamp
// with. Stored timestamps are compared against it rather than the local clock, which
// may be skewed from the backend's.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// Fields holds top-level document fields. Values must be JSON encodable or ServerTimestamp.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is replaced by the backend's current time when the write is applied.
var ServerTimestamp = serverTimestamp{}

type setOptions struct {
	merge bool
}

// SetOption tunes Set.
type SetOption func(*setOptions)

// MergeAll keeps existing fields that the write does not mention.
func MergeAll() SetOption {
	return func(o *setOptions) { o.merge = true }
}

// ApplySetOptions folds opts and reports whether the write merges.
func ApplySetOptions(opts []SetOption) bool {
	o := setOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return o.merge
}

// Query selects every document of a collection ordered by one field.
// Documents without the order field are left out.
type Query struct {
	Collection CollectionRef
	OrderBy    string
	Descending bool
	Limit      int
}

// Document is a stored document with its JSON-decoded data.
type Document struct {
	Ref  DocumentRef
	Data map[string]any
}

// DataTo decodes the document into v through JSON.
func (d Document) DataTo(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// DocumentRef addresses a document: an even number of path segments.
type DocumentRef struct {
	segments []string
}

// CollectionRef addresses a collection: an odd number of path segments.
type CollectionRef struct {
	segments []string
}

// Doc builds a document reference. It panics on an odd segment count or a segment that
// is empty or contains '/'; document paths in this module are built from validated keys.
func Doc(segments ...string) DocumentRef {
	if len(segments) == 0 || len(segments)%2 != 0 {
		panic(fmt.Sprintf("docstore: document path needs an even number of segments, got %v", segments))
	}
	mustSegments(segments)
	return DocumentRef{segments: append([]string(nil), segments...)}
}

// Collection builds a collection reference.
func Collection(segments ...string) CollectionRef {
	if len(segments)%2 != 1 {
		panic(fmt.Sprintf("docstore: collection path needs an odd number of segments, got %v", segments))
	}
	mustSegments(segments)
	return CollectionRef{segments: append([]string(nil), segments...)}
}

// ParseDocumentRef is the inverse of DocumentRef.String.
func ParseDocumentRef(path string) (DocumentRef, error) {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 0 {
		return DocumentRef{}, fmt.Errorf("docstore: %q is not a document path", path)
	}
	for _, s := range segments {
		if s == "" {
			return DocumentRef{}, fmt.Errorf("docstore: %q has an empty segment", path)
		}
	}
	return DocumentRef{segments: segments}, nil
}

func mustSegments(segments []string) {
	for _, s := range segments {
		if s == "" || strings.Contains(s, "/") {
			panic(fmt.Sprintf("docstore: invalid path segment %q", s))
		}
	}
}

func (r DocumentRef) String() string { return strings.Join(r.segments, "/") }

// ID is the last path segment.
func (r DocumentRef) ID() string {
	if len(r.segments) == 0 {
		return ""
	}
	return r.segments[len(r.segments)-1]
}

// Parent is the collection holding the document.
func (r DocumentRef) Parent() CollectionRef {
	return CollectionRef{segments: r.segments[:len(r.segments)-1]}
}

func (c CollectionRef) String() string { return strings.Join(c.segments, "/") }

// Doc addresses a document inside the collection.
func (c CollectionRef) Doc(id string) DocumentRef {
	segments := append(append([]string(nil), c.segments...), id)
	mustSegments(segments[len(segments)-1:])
	return DocumentRef{segments: segments}
}

// ResolveFields replaces ServerTimestamp values with now and returns a JSON-normalised copy.
func ResolveFields(fields Fields, now time.Time) (map[string]any, error) {
	resolved := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			resolved[k] = now.UTC()
			continue
		}
		resolved[k] = v
	}
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return Decode(raw)
}

// HasServerTimestamp reports whether any field asks for the server time.
func HasServerTimestamp(fields Fields) bool {
	for _, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			return true
		}
	}
	return false
}

// Decode parses stored JSON into document data.
func Decode(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}

// Merge overlays update onto existing (top-level fields only) and returns the result.
func Merge(existing, update map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(update))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

// SortDocuments applies the query's ordering and limit to docs of its collection.
func SortDocuments(docs []Document, q Query) []Document {
	filtered := make([]Document, 0, len(docs))
	for _, d := range docs {
		if _, ok := d.Data[q.OrderBy]; ok || q.OrderBy == "" {
			filtered = append(filtered, d)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(filtered[i].Data[q.OrderBy], filtered[j].Data[q.OrderBy])
			if c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return filtered[i].Ref.ID() < filtered[j].Ref.ID()
	})
	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	return filtered
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		ta, errA := time.Parse(time.RFC3339Nano, av)
		tb, errB := time.Parse(time.RFC3339Nano, bv)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		return strings.Compare(av, bv)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
