package sheets

import (
	"context"

	"training-portal/internal/domain"
)

// CredentialSheet lists company accounts: column 0 is the account id, column 1 the password.
// Rows are fetched fresh on every call.
type CredentialSheet struct {
	fetcher *Fetcher
	url     string
}

func NewCredentialSheet(fetcher *Fetcher, url string) *CredentialSheet {
	return &CredentialSheet{fetcher: fetcher, url: url}
}

func (s *CredentialSheet) Accounts(ctx context.Context) ([]domain.Account, error) {
	if s.url == "" {
		return nil, domain.ErrConfiguration
	}
	rows, err := s.fetcher.Rows(ctx, s.url)
	if err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(rows))
	for _, row := range rows {
		id := cell(row, 0)
		if id == "" {
			continue
		}
		// Passwords compare by exact string, so they are not trimmed.
		password := ""
		if len(row) > 1 {
			password = row[1]
		}
		accounts = append(accounts, domain.Account{ID: id, Password: password})
	}
	return accounts, nil
}
