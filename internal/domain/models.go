package domain

import (
	"strconv"
	"strings"
	"time"
)

// Account is a credential row from the company account sheet.
type Account struct {
	ID       string
	Password string
}

// SessionDocument is the per-account lock record. Absence means no active session.
type SessionDocument struct {
	SessionID    string    `json:"sessionId"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// IsLive reports whether the last heartbeat falls within window of now.
func (d SessionDocument) IsLive(now time.Time, window time.Duration) bool {
	return now.Sub(d.LastActiveAt) < window
}

// Label identifies an answer option.
type Label string

// Labels lists every option label in display order.
var Labels = []Label{"A", "B", "C", "D", "E", "F", "G", "H"}

// Option is a non-blank answer option of a question.
type Option struct {
	Label Label  `json:"label"`
	Text  string `json:"text"`
}

// AnswerKind tells whether a question takes one selection or several.
type AnswerKind string

const (
	Single AnswerKind = "single"
	Multi  AnswerKind = "multi"
)

// Question models a multiple-choice question. Correct holds each label once.
type Question struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Options     []Option `json:"options"`
	Correct     []Label  `json:"correct"`
	Explanation string   `json:"explanation,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
}

// Kind derives the answer kind from the number of correct labels.
func (q Question) Kind() AnswerKind {
	if len(q.Correct) == 1 {
		return Single
	}
	return Multi
}

// HasOption reports whether label is one of the question's options.
func (q Question) HasOption(label Label) bool {
	for _, opt := range q.Options {
		if opt.Label == label {
			return true
		}
	}
	return false
}

// IsCorrect reports exact set equality between selected and the correct labels.
func (q Question) IsCorrect(selected []Label) bool {
	chosen := make(map[Label]struct{}, len(selected))
	for _, l := range selected {
		chosen[l] = struct{}{}
	}
	if len(chosen) != len(q.Correct) {
		return false
	}
	for _, l := range q.Correct {
		if _, ok := chosen[l]; !ok {
			return false
		}
	}
	return true
}

// ParseLabels upper-cases a comma separated label list, dropping blanks and repeats.
func ParseLabels(raw string) []Label {
	parts := strings.Split(strings.ToUpper(raw), ",")
	labels := make([]Label, 0, len(parts))
	seen := make(map[Label]struct{}, len(parts))
	for _, p := range parts {
		l := Label(strings.TrimSpace(p))
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		labels = append(labels, l)
	}
	return labels
}

// Evaluation is the outcome of answering one question.
type Evaluation struct {
	QuestionID  string  `json:"questionId"`
	Selected    []Label `json:"selected"`
	Correct     []Label `json:"correct"`
	IsCorrect   bool    `json:"isCorrect"`
	Explanation string  `json:"explanation,omitempty"`
}

// Mode selects practice or test behaviour.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeTest     Mode = "test"
)

// TestModeQuestions is the fixed question count of a test run.
const TestModeQuestions = 50

// ParseMode accepts "practice" or "test"; empty means practice.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(raw)) {
	case "", ModePractice:
		return ModePractice, nil
	case ModeTest:
		return ModeTest, nil
	default:
		return "", ErrInvalidMode
	}
}

// QuestionCount is the requested number of questions: all of them or N.
type QuestionCount struct {
	All bool
	N   int
}

// AllQuestions requests every available question.
var AllQuestions = QuestionCount{All: true}

// ParseQuestionCount accepts "all" (or empty) or a positive integer.
func ParseQuestionCount(raw string) (QuestionCount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return AllQuestions, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return QuestionCount{}, ErrInvalidQuestionCount
	}
	return QuestionCount{N: n}, nil
}

func (c QuestionCount) String() string {
	if c.All {
		return "all"
	}
	return strconv.Itoa(c.N)
}

func (c QuestionCount) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *QuestionCount) UnmarshalText(text []byte) error {
	parsed, err := ParseQuestionCount(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// NormalizeLearnerKey trims a display name and checks it can be used as a document key.
func NormalizeLearnerKey(name string) (string, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		return "", ErrLearnerRequired
	}
	if strings.Contains(key, "/") {
		return "", ErrInvalidLearnerKey
	}
	return key, nil
}

// ScoreTier groups completion records for the dashboard badge.
type ScoreTier string

const (
	TierPerfect   ScoreTier = "perfect"
	TierPassing   ScoreTier = "passing"
	TierNeedsWork ScoreTier = "needs-work"
)

// CompletionRecord is the most recent finished run of a learner.
type CompletionRecord struct {
	LearnerKey     string    `json:"learnerKey"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	CompletedAt    time.Time `json:"completedAt"`
	Mode           Mode      `json:"mode"`
}

// Tier buckets the score: full marks, at least 70%, or below.
func (r CompletionRecord) Tier() ScoreTier {
	switch {
	case r.Score == r.TotalQuestions:
		return TierPerfect
	case r.Score*10 >= r.TotalQuestions*7:
		return TierPassing
	default:
		return TierNeedsWork
	}
}
