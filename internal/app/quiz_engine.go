package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"training-portal/internal/docstore"
	"training-portal/internal/domain"
)

// QuestionSource loads the full question set. It is called once per quiz start.
type QuestionSource interface {
	Questions(ctx context.Context) ([]domain.Question, error)
}

const defaultSaveTimeout = 15 * time.Second

// QuizEngine selects question subsets and persists completion records.
type QuizEngine struct {
	source      QuestionSource
	docs        docstore.Store
	shuffle     func([]domain.Question)
	saveTimeout time.Duration
	log         zerolog.Logger
}

func NewQuizEngine(source QuestionSource, docs docstore.Store, log zerolog.Logger) *QuizEngine {
	return NewQuizEngineWithShuffle(source, docs, log, shuffleQuestions)
}

// NewQuizEngineWithShuffle replaces the random permutation, for deterministic tests.
func NewQuizEngineWithShuffle(source QuestionSource, docs docstore.Store, log zerolog.Logger, shuffle func([]domain.Question)) *QuizEngine {
	return &QuizEngine{
		source:      source,
		docs:        docs,
		shuffle:     shuffle,
		saveTimeout: defaultSaveTimeout,
		log:         log.With().Str("component", "quiz_engine").Logger(),
	}
}

// Load fetches every question, drops the ones without text, shuffles them and keeps
// the effective count for mode and count.
func (e *QuizEngine) Load(ctx context.Context, mode domain.Mode, count domain.QuestionCount) ([]domain.Question, error) {
	all, err := e.source.Questions(ctx)
	if err != nil {
		return nil, err
	}

	usable := make([]domain.Question, 0, len(all))
	for _, q := range all {
		if strings.TrimSpace(q.Text) != "" {
			usable = append(usable, q)
		}
	}
	if len(usable) == 0 {
		return nil, domain.ErrEmptyQuestionSet
	}

	e.shuffle(usable)
	n := EffectiveCount(mode, count, len(usable))
	e.log.Debug().
		Str("mode", string(mode)).
		Str("requested", count.String()).
		Int("available", len(usable)).
		Int("selected", n).
		Msg("questions loaded")
	return usable[:n], nil
}

// EffectiveCount is min(50, available) in test mode, available for "all",
// otherwise min(requested, available).
func EffectiveCount(mode domain.Mode, count domain.QuestionCount, available int) int {
	n := available
	switch {
	case mode == domain.ModeTest:
		n = domain.TestModeQuestions
	case !count.All:
		n = count.N
	}
	return min(n, available)
}

// Finish saves the run's completion record in the background. The caller does not
// wait: the run's SaveStatus reports the outcome. Calls after the first are ignored.
func (e *QuizEngine) Finish(ctx context.Context, run *Run, accountID, learnerKey string) {
	if !run.beginSave() {
		return
	}
	result := run.Result()
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.saveTimeout)

	go func() {
		defer cancel()
		err := e.SaveCompletion(saveCtx, accountID, learnerKey, result)
		if err != nil {
			e.log.Error().Err(err).
				Str("account_id", accountID).
				Str("learner", learnerKey).
				Msg("completion record not saved")
		}
		run.endSave(err)
	}()
}

// SaveCompletion overwrites the learner's completion record, keeping any other fields.
func (e *QuizEngine) SaveCompletion(ctx context.Context, accountID, learnerKey string, result RunResult) error {
	if !validAccountID(accountID) {
		return fmt.Errorf("%w: invalid account id %q", domain.ErrPersistence, accountID)
	}
	key, err := domain.NormalizeLearnerKey(learnerKey)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	err = e.docs.Set(ctx, learnersRef(accountID).Doc(key), docstore.Fields{
		"score":          result.Score,
		"totalQuestions": result.TotalQuestions,
		"completedAt":    docstore.ServerTimestamp,
		"mode":           result.Mode,
	}, docstore.MergeAll())
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return nil
}

func shuffleQuestions(qs []domain.Question) {
	rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}
