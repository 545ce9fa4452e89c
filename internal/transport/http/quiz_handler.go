package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"training-portal/internal/app"
	"training-portal/internal/domain"
)

// QuizHandler serves the quiz run of the caller's client session.
type QuizHandler struct {
	quiz *app.QuizService
	log  zerolog.Logger
}

func NewQuizHandler(quiz *app.QuizService, log zerolog.Logger) *QuizHandler {
	return &QuizHandler{quiz: quiz, log: log.With().Str("component", "quiz_handler").Logger()}
}

type toggleRequest struct {
	Label string `json:"label" binding:"required,len=1,alpha"`
}

// Start POST /api/v1/quiz/start
func (h *QuizHandler) Start(c *gin.Context) {
	h.serve(c, http.StatusCreated, func(cc app.ClientContext) (app.RunView, error) {
		return h.quiz.Start(c.Request.Context(), cc)
	})
}

// Current GET /api/v1/quiz
func (h *QuizHandler) Current(c *gin.Context) {
	h.serve(c, http.StatusOK, func(cc app.ClientContext) (app.RunView, error) {
		return h.quiz.Current(c.Request.Context(), cc)
	})
}

// Toggle POST /api/v1/quiz/toggle
func (h *QuizHandler) Toggle(c *gin.Context) {
	var req toggleRequest
	if !bind(c, &req) {
		return
	}
	label := domain.Label(strings.ToUpper(req.Label))
	h.serve(c, http.StatusOK, func(cc app.ClientContext) (app.RunView, error) {
		return h.quiz.Toggle(c.Request.Context(), cc, label)
	})
}

// Submit POST /api/v1/quiz/submit
func (h *QuizHandler) Submit(c *gin.Context) {
	h.serve(c, http.StatusOK, func(cc app.ClientContext) (app.RunView, error) {
		return h.quiz.Submit(c.Request.Context(), cc)
	})
}

// Next POST /api/v1/quiz/next
func (h *QuizHandler) Next(c *gin.Context) {
	h.serve(c, http.StatusOK, func(cc app.ClientContext) (app.RunView, error) {
		return h.quiz.Next(c.Request.Context(), cc)
	})
}

// Leave DELETE /api/v1/quiz
func (h *QuizHandler) Leave(c *gin.Context) {
	cc, err := clientContext(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.quiz.Leave(c.Request.Context(), cc)
	c.Status(http.StatusNoContent)
}

func (h *QuizHandler) serve(c *gin.Context, status int, call func(app.ClientContext) (app.RunView, error)) {
	cc, err := clientContext(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	view, err := call(cc)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, status, view)
}

// DashboardHandler serves the company's completion records.
type DashboardHandler struct {
	dashboard *app.Dashboard
	log       zerolog.Logger
}

func NewDashboardHandler(dashboard *app.Dashboard, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, log: log.With().Str("component", "dashboard_handler").Logger()}
}

type learnerRecord struct {
	LearnerKey     string           `json:"learnerKey"`
	Score          int              `json:"score"`
	TotalQuestions int              `json:"totalQuestions"`
	CompletedAt    time.Time        `json:"completedAt"`
	Mode           domain.Mode      `json:"mode"`
	Tier           domain.ScoreTier `json:"tier"`
}

// Learners GET /api/v1/dashboard
func (h *DashboardHandler) Learners(c *gin.Context) {
	cc, err := clientContext(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	records, err := h.dashboard.Learners(c.Request.Context(), cc.AccountID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]learnerRecord, 0, len(records))
	for _, r := range records {
		out = append(out, learnerRecord{
			LearnerKey:     r.LearnerKey,
			Score:          r.Score,
			TotalQuestions: r.TotalQuestions,
			CompletedAt:    r.CompletedAt,
			Mode:           r.Mode,
			Tier:           r.Tier(),
		})
	}
	success(c, http.StatusOK, out)
}
