// Package sheets reads the tabular row sources (published spreadsheets served as CSV).
package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"training-portal/internal/domain"
)

const defaultFetchTimeout = 20 * time.Second

// Fetcher downloads CSV row sets over HTTP.
type Fetcher struct {
	client *http.Client
}

// NewFetcher uses client, or a client with a default timeout when nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Fetcher{client: client}
}

func (f *Fetcher) timeout() time.Duration {
	if f.client.Timeout > 0 {
		return f.client.Timeout
	}
	return defaultFetchTimeout
}

// Rows downloads url and returns its records without the header row. Blank lines are
// skipped; rows keep whatever number of fields they have.
func (f *Fetcher) Rows(ctx context.Context, url string) ([][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrSourceFetch, resp.StatusCode)
	}
	return parseRows(resp.Body)
}

func parseRows(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	header := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse csv: %w", domain.ErrSourceFetch, err)
		}
		if header {
			header = false
			continue
		}
		if blankRecord(record) {
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// cell returns row[i] trimmed, or "" for short rows.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
