package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"training-portal/internal/domain"
)

// RunStore abstracts where quiz runs live (in-memory, per process). Runs are keyed by
// session token. Begin hands out a generation so a slow load cannot install a run
// over a newer start.
type RunStore interface {
	Begin(key string) uint64
	Install(key string, gen uint64, run *Run) bool
	Abort(key string, gen uint64)
	Get(key string) (*Run, bool)
	Loading(key string) bool
	Delete(key string)
}

// QuizService contains the quiz use cases of one client session.
type QuizService struct {
	engine *QuizEngine
	runs   RunStore
	log    zerolog.Logger
}

func NewQuizService(engine *QuizEngine, runs RunStore, log zerolog.Logger) *QuizService {
	return &QuizService{
		engine: engine,
		runs:   runs,
		log:    log.With().Str("component", "quiz_service").Logger(),
	}
}

// Start loads a fresh question set and replaces any existing run of the session.
func (s *QuizService) Start(ctx context.Context, cc ClientContext) (RunView, error) {
	if cc.LearnerName == "" {
		return RunView{}, domain.ErrLearnerRequired
	}

	gen := s.runs.Begin(cc.SessionID)
	questions, err := s.engine.Load(ctx, cc.Mode, cc.Count)
	if err != nil {
		s.runs.Abort(cc.SessionID, gen)
		return RunView{}, err
	}

	run := NewRun(uuid.NewString(), cc.Mode, questions)
	if !s.runs.Install(cc.SessionID, gen, run) {
		return RunView{}, domain.ErrRunSuperseded
	}
	s.log.Info().
		Str("account_id", cc.AccountID).
		Str("learner", cc.LearnerName).
		Str("mode", string(cc.Mode)).
		Int("questions", len(questions)).
		Msg("quiz started")
	return run.View(), nil
}

// Current reports the run of the session, or a loading view while a start is in flight.
func (s *QuizService) Current(_ context.Context, cc ClientContext) (RunView, error) {
	if s.runs.Loading(cc.SessionID) {
		return RunView{Phase: PhaseLoading, Mode: cc.Mode}, nil
	}
	run, ok := s.runs.Get(cc.SessionID)
	if !ok {
		return RunView{}, domain.ErrRunNotFound
	}
	return run.View(), nil
}

// Toggle applies an option click to the current question.
func (s *QuizService) Toggle(_ context.Context, cc ClientContext, label domain.Label) (RunView, error) {
	run, err := s.run(cc)
	if err != nil {
		return RunView{}, err
	}
	if _, _, err := run.Toggle(label); err != nil {
		return RunView{}, err
	}
	return run.View(), nil
}

// Submit evaluates the pending multi-select answer.
func (s *QuizService) Submit(_ context.Context, cc ClientContext) (RunView, error) {
	run, err := s.run(cc)
	if err != nil {
		return RunView{}, err
	}
	if _, err := run.Submit(); err != nil {
		return RunView{}, err
	}
	return run.View(), nil
}

// Next moves past the revealed question. Passing the last one finishes the run and
// starts the completion record save without waiting for it.
func (s *QuizService) Next(ctx context.Context, cc ClientContext) (RunView, error) {
	run, err := s.run(cc)
	if err != nil {
		return RunView{}, err
	}
	finished, err := run.Advance()
	if err != nil {
		return RunView{}, err
	}
	if finished {
		result := run.Result()
		s.log.Info().
			Str("account_id", cc.AccountID).
			Str("learner", cc.LearnerName).
			Int("score", result.Score).
			Int("total", result.TotalQuestions).
			Msg("quiz finished")
		s.engine.Finish(ctx, run, cc.AccountID, cc.LearnerName)
	}
	return run.View(), nil
}

// Leave drops the session's run. A pending save still completes.
func (s *QuizService) Leave(_ context.Context, cc ClientContext) {
	s.runs.Delete(cc.SessionID)
}

func (s *QuizService) run(cc ClientContext) (*Run, error) {
	run, ok := s.runs.Get(cc.SessionID)
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}
