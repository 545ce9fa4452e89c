package sheets

import (
	"context"

	"golang.org/x/sync/singleflight"

	"training-portal/internal/domain"
)

const (
	colID          = 0
	colText        = 1
	colFirstOption = 2
	colCorrect     = 10
	colExplanation = 11
	colImage       = 12
)

// QuestionSheet maps question rows. Columns: id, text, options A-H, correct labels,
// explanation, image URL. Concurrent calls share one download; nothing is cached.
type QuestionSheet struct {
	fetcher *Fetcher
	url     string
	sf      singleflight.Group
}

func NewQuestionSheet(fetcher *Fetcher, url string) *QuestionSheet {
	return &QuestionSheet{fetcher: fetcher, url: url}
}

func (s *QuestionSheet) Questions(ctx context.Context) ([]domain.Question, error) {
	if s.url == "" {
		return nil, domain.ErrConfiguration
	}
	ch := s.sf.DoChan(s.url, func() (interface{}, error) {
		// The download outlives any one caller: a learner who leaves must not fail the
		// others waiting on it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetcher.timeout())
		defer cancel()
		rows, err := s.fetcher.Rows(fetchCtx, s.url)
		if err != nil {
			return nil, err
		}
		return ParseQuestions(rows), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	shared := res.Val.([]domain.Question)
	// Callers shuffle in place; each gets its own slice.
	return append([]domain.Question(nil), shared...), nil
}

// ParseQuestions maps every row to a question. Rows with blank text are kept here and
// dropped by the quiz engine.
func ParseQuestions(rows [][]string) []domain.Question {
	questions := make([]domain.Question, 0, len(rows))
	for _, row := range rows {
		q := domain.Question{
			ID:          cell(row, colID),
			Text:        cell(row, colText),
			Correct:     domain.ParseLabels(cell(row, colCorrect)),
			Explanation: cell(row, colExplanation),
			ImageURL:    cell(row, colImage),
		}
		for i, label := range domain.Labels {
			if text := cell(row, colFirstOption+i); text != "" {
				q.Options = append(q.Options, domain.Option{Label: label, Text: text})
			}
		}
		questions = append(questions, q)
	}
	return questions
}
