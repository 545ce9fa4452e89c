package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"training-portal/internal/app"
	"training-portal/internal/docstore"
	"training-portal/internal/domain"
)

func TestEffectiveCount(t *testing.T) {
	cases := []struct {
		name      string
		mode      domain.Mode
		count     domain.QuestionCount
		available int
		want      int
	}{
		{"test mode fixed", domain.ModeTest, domain.AllQuestions, 120, 50},
		{"test mode clamps", domain.ModeTest, domain.QuestionCount{N: 5}, 30, 30},
		{"all", domain.ModePractice, domain.AllQuestions, 42, 42},
		{"requested", domain.ModePractice, domain.QuestionCount{N: 10}, 42, 10},
		{"requested clamps", domain.ModePractice, domain.QuestionCount{N: 10}, 3, 3},
	}
	for _, tc := range cases {
		if got := app.EffectiveCount(tc.mode, tc.count, tc.available); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestLoadDropsBlankQuestionsAndTruncates(t *testing.T) {
	questions := questionSet(5)
	questions[1].Text = "   "
	engine := app.NewQuizEngineWithShuffle(staticQuestions{questions: questions}, nil, zerolog.Nop(), noShuffle)

	got, err := engine.Load(context.Background(), domain.ModePractice, domain.QuestionCount{N: 10})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 usable questions, got %d", len(got))
	}
	for _, q := range got {
		if q.ID == questions[1].ID {
			t.Fatalf("blank question %s should be dropped", q.ID)
		}
	}

	got, _ = engine.Load(context.Background(), domain.ModePractice, domain.QuestionCount{N: 2})
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("expected the first two shuffled questions, got %v", got)
	}
}

func TestLoadShufflesSelection(t *testing.T) {
	reverse := func(qs []domain.Question) {
		for i, j := 0, len(qs)-1; i < j; i, j = i+1, j-1 {
			qs[i], qs[j] = qs[j], qs[i]
		}
	}
	engine := app.NewQuizEngineWithShuffle(staticQuestions{questions: questionSet(4)}, nil, zerolog.Nop(), reverse)
	got, _ := engine.Load(context.Background(), domain.ModePractice, domain.QuestionCount{N: 1})
	if len(got) != 1 || got[0].ID != "d" {
		t.Fatalf("expected truncation after shuffle, got %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	blank := []domain.Question{{ID: "x", Text: ""}}
	engine := app.NewQuizEngine(staticQuestions{questions: blank}, nil, zerolog.Nop())
	if _, err := engine.Load(context.Background(), domain.ModePractice, domain.AllQuestions); !errors.Is(err, domain.ErrEmptyQuestionSet) {
		t.Fatalf("expected empty question set, got %v", err)
	}

	engine = app.NewQuizEngine(staticQuestions{err: domain.ErrSourceFetch}, nil, zerolog.Nop())
	if _, err := engine.Load(context.Background(), domain.ModePractice, domain.AllQuestions); !errors.Is(err, domain.ErrSourceFetch) {
		t.Fatalf("expected source fetch error, got %v", err)
	}
}

func TestFinishSavesCompletionRecord(t *testing.T) {
	clock := newFakeClock()
	docs := newMemoryDocs(clock)
	engine := app.NewQuizEngineWithShuffle(staticQuestions{}, docs, zerolog.Nop(), noShuffle)

	// An earlier record carries an extra field that the merge must keep.
	learner := docstore.Doc("company", "acme", "learners", "Ann")
	_ = docs.Set(context.Background(), learner, docstore.Fields{"score": 1, "department": "ops"})

	run := finishedRun(t, domain.ModeTest, 3, 2)
	ctx, cancel := context.WithCancel(context.Background())
	engine.Finish(ctx, run, "acme", "Ann")
	// The save must survive the request context going away.
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := run.WaitSaved(waitCtx); err != nil {
		t.Fatalf("wait saved: %v", err)
	}
	if run.SaveStatus() != app.SaveSaved {
		t.Fatalf("expected saved, got %s", run.SaveStatus())
	}

	doc, err := docs.Get(context.Background(), learner)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	var rec domain.CompletionRecord
	if err := doc.DataTo(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Score != 2 || rec.TotalQuestions != 3 || rec.Mode != domain.ModeTest || !rec.CompletedAt.Equal(clock.Now()) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if doc.Data["department"] != "ops" {
		t.Fatalf("expected merge to keep other fields, got %v", doc.Data)
	}

	// A second Finish is ignored.
	engine.Finish(context.Background(), run, "acme", "Ann")
	if run.SaveStatus() != app.SaveSaved {
		t.Fatalf("expected status to stay saved")
	}
}

func TestFinishReportsPersistenceFailure(t *testing.T) {
	clock := newFakeClock()
	docs := &flakyStore{Store: newMemoryDocs(clock)}
	docs.setFailures(false, true)
	engine := app.NewQuizEngineWithShuffle(staticQuestions{}, docs, zerolog.Nop(), noShuffle)

	run := finishedRun(t, domain.ModePractice, 1, 1)
	engine.Finish(context.Background(), run, "acme", "Ann")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := run.WaitSaved(ctx); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	view := run.View()
	if view.SaveStatus != app.SaveFailed || view.Score != 1 {
		t.Fatalf("expected failed save with the result still shown, got %+v", view)
	}
}

func TestFinishIgnoresActiveRun(t *testing.T) {
	engine := app.NewQuizEngine(staticQuestions{}, newMemoryDocs(newFakeClock()), zerolog.Nop())
	run := app.NewRun("r1", domain.ModePractice, questionSet(2))
	engine.Finish(context.Background(), run, "acme", "Ann")
	if run.SaveStatus() != app.SavePending {
		t.Fatalf("an unfinished run must not be saved")
	}
}

// finishedRun answers total questions, the first correct ones right.
func finishedRun(t *testing.T, mode domain.Mode, total, correct int) *app.Run {
	t.Helper()
	run := app.NewRun("r", mode, questionSet(total))
	for i := 0; i < total; i++ {
		pick := domain.Label("B")
		if i < correct {
			pick = "A"
		}
		if _, _, err := run.Toggle(pick); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		if _, err := run.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	return run
}
