package app

import (
	"context"
	"sync"

	"training-portal/internal/domain"
)

// RunPhase is the lifecycle phase of a quiz run.
type RunPhase string

const (
	PhaseLoading  RunPhase = "loading"
	PhaseActive   RunPhase = "active"
	PhaseFinished RunPhase = "finished"
)

// SaveStatus tracks the completion record write of a finished run.
type SaveStatus string

const (
	SavePending SaveStatus = "pending"
	SaveSaving  SaveStatus = "saving"
	SaveSaved   SaveStatus = "saved"
	SaveFailed  SaveStatus = "failed"
)

// RunResult is what a finished run reports for persistence.
type RunResult struct {
	Score          int
	TotalQuestions int
	Mode           domain.Mode
}

// QuestionView is a question as shown to the learner, without the answer key.
type QuestionView struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Options  []domain.Option   `json:"options"`
	Kind     domain.AnswerKind `json:"kind"`
	ImageURL string            `json:"imageUrl,omitempty"`
}

// RunView is a serialisable snapshot of a run.
type RunView struct {
	RunID      string             `json:"runId,omitempty"`
	Phase      RunPhase           `json:"phase"`
	Mode       domain.Mode        `json:"mode,omitempty"`
	Index      int                `json:"index"`
	Total      int                `json:"total"`
	Score      int                `json:"score"`
	Question   *QuestionView      `json:"question,omitempty"`
	Selected   []domain.Label     `json:"selected,omitempty"`
	Evaluation *domain.Evaluation `json:"evaluation,omitempty"`
	SaveStatus SaveStatus         `json:"saveStatus,omitempty"`
}

// Run walks a learner through a fixed question sequence. Each question moves one way
// from unanswered to revealed; the run ends when the cursor passes the last question.
type Run struct {
	id        string
	mode      domain.Mode
	questions []domain.Question

	mu         sync.Mutex
	cursor     int
	score      int
	selected   []domain.Label
	evaluation *domain.Evaluation
	phase      RunPhase
	save       SaveStatus
	saveErr    error
	saved      chan struct{}
}

// NewRun starts a run over questions, which must not be empty.
func NewRun(id string, mode domain.Mode, questions []domain.Question) *Run {
	return &Run{
		id:        id,
		mode:      mode,
		questions: questions,
		phase:     PhaseActive,
		save:      SavePending,
		saved:     make(chan struct{}),
	}
}

func (r *Run) ID() string { return r.id }

// Toggle handles a click on an option. A single-select question is evaluated at once and
// the evaluation is returned with evaluated=true; a multi-select question only flips the
// label in the pending selection.
func (r *Run) Toggle(label domain.Label) (eval domain.Evaluation, evaluated bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, err := r.answerableLocked()
	if err != nil {
		return domain.Evaluation{}, false, err
	}
	if !q.HasOption(label) {
		return domain.Evaluation{}, false, domain.ErrUnknownOption
	}

	if q.Kind() == domain.Single {
		return r.evaluateLocked(q, []domain.Label{label}), true, nil
	}

	for i, l := range r.selected {
		if l == label {
			r.selected = append(r.selected[:i], r.selected[i+1:]...)
			return domain.Evaluation{}, false, nil
		}
	}
	r.selected = append(r.selected, label)
	return domain.Evaluation{}, false, nil
}

// Submit evaluates the pending selection of a multi-select question.
func (r *Run) Submit() (domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, err := r.answerableLocked()
	if err != nil {
		return domain.Evaluation{}, err
	}
	if q.Kind() == domain.Single {
		return domain.Evaluation{}, domain.ErrNotMultiSelect
	}
	if len(r.selected) == 0 {
		return domain.Evaluation{}, domain.ErrEmptySelection
	}
	return r.evaluateLocked(q, r.selected), nil
}

// Advance clears the revealed question and moves on. It reports true when the run
// has just finished.
func (r *Run) Advance() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseFinished {
		return false, domain.ErrRunFinished
	}
	if r.evaluation == nil {
		return false, domain.ErrNotAnswered
	}
	r.selected = nil
	r.evaluation = nil
	r.cursor++
	if r.cursor >= len(r.questions) {
		r.phase = PhaseFinished
		return true, nil
	}
	return false, nil
}

// Result reports the score so far, the run length and mode.
func (r *Run) Result() RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunResult{Score: r.score, TotalQuestions: len(r.questions), Mode: r.mode}
}

// View snapshots the run for display.
func (r *Run) View() RunView {
	r.mu.Lock()
	defer r.mu.Unlock()

	view := RunView{
		RunID: r.id,
		Phase: r.phase,
		Mode:  r.mode,
		Index: r.cursor,
		Total: len(r.questions),
		Score: r.score,
	}
	if r.phase == PhaseFinished {
		view.Index = len(r.questions)
		view.SaveStatus = r.save
		return view
	}

	q := r.questions[r.cursor]
	view.Question = &QuestionView{
		ID:       q.ID,
		Text:     q.Text,
		Options:  q.Options,
		Kind:     q.Kind(),
		ImageURL: q.ImageURL,
	}
	view.Selected = append([]domain.Label(nil), r.selected...)
	if r.evaluation != nil {
		eval := *r.evaluation
		view.Evaluation = &eval
	}
	return view
}

// SaveStatus reports the completion record write state.
func (r *Run) SaveStatus() SaveStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save
}

// WaitSaved blocks until the completion record write settles or ctx is done.
func (r *Run) WaitSaved(ctx context.Context) error {
	select {
	case <-r.saved:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.saveErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginSave moves a finished run to saving. Only the first caller gets true.
func (r *Run) beginSave() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseFinished || r.save != SavePending {
		return false
	}
	r.save = SaveSaving
	return true
}

func (r *Run) endSave(err error) {
	r.mu.Lock()
	if err != nil {
		r.save = SaveFailed
		r.saveErr = err
	} else {
		r.save = SaveSaved
	}
	r.mu.Unlock()
	close(r.saved)
}

func (r *Run) answerableLocked() (domain.Question, error) {
	if r.phase == PhaseFinished {
		return domain.Question{}, domain.ErrRunFinished
	}
	if r.evaluation != nil {
		return domain.Question{}, domain.ErrAlreadyRevealed
	}
	return r.questions[r.cursor], nil
}

func (r *Run) evaluateLocked(q domain.Question, selected []domain.Label) domain.Evaluation {
	eval := domain.Evaluation{
		QuestionID: q.ID,
		Selected:   append([]domain.Label(nil), selected...),
		Correct:    append([]domain.Label(nil), q.Correct...),
		IsCorrect:  q.IsCorrect(selected),
	}
	// Explanations belong to practice; a test run only reveals right or wrong.
	if r.mode != domain.ModeTest {
		eval.Explanation = q.Explanation
	}
	if eval.IsCorrect {
		r.score++
	}
	r.selected = eval.Selected
	r.evaluation = &eval
	return eval
}
