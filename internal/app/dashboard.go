package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"training-portal/internal/docstore"
	"training-portal/internal/domain"
)

// Dashboard lists the completion records of a company account.
type Dashboard struct {
	docs docstore.Store
	log  zerolog.Logger
}

func NewDashboard(docs docstore.Store, log zerolog.Logger) *Dashboard {
	return &Dashboard{docs: docs, log: log.With().Str("component", "dashboard").Logger()}
}

// Learners returns the records newest first. Records without completedAt are skipped.
func (d *Dashboard) Learners(ctx context.Context, accountID string) ([]domain.CompletionRecord, error) {
	if !validAccountID(accountID) {
		return nil, domain.ErrInvalidCredentials
	}
	docs, err := d.docs.Query(ctx, docstore.Query{
		Collection: learnersRef(accountID),
		OrderBy:    "completedAt",
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query learners: %w", err)
	}

	records := make([]domain.CompletionRecord, 0, len(docs))
	for _, doc := range docs {
		var rec domain.CompletionRecord
		if err := doc.DataTo(&rec); err != nil {
			d.log.Warn().Err(err).Str("path", doc.Ref.String()).Msg("skipping malformed learner record")
			continue
		}
		rec.LearnerKey = doc.Ref.ID()
		records = append(records, rec)
	}
	return records, nil
}
