package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"training-portal/internal/app"
	"training-portal/internal/auth"
)

// Deps groups what the router needs to build its handlers.
type Deps struct {
	Sessions       *app.ClientSessions
	Quiz           *app.QuizService
	Dashboard      *app.Dashboard
	Tokens         *auth.Tokens
	AllowedOrigins []string
	GinMode        string
	Log            zerolog.Logger
}

// NewRouter wires every route of the portal API.
func NewRouter(d Deps) *gin.Engine {
	if d.GinMode != "" {
		gin.SetMode(d.GinMode)
	}
	setupValidator()

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(d.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = d.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))
	router.Use(requestID(), requestLogger(d.Log))

	sessionHandler := NewSessionHandler(d.Sessions, d.Tokens, d.Log)
	quizHandler := NewQuizHandler(d.Quiz, d.Log)
	dashboardHandler := NewDashboardHandler(d.Dashboard, d.Log)
	wsHandler := NewWSHandler(d.Sessions, d.AllowedOrigins, d.Log)
	authed := requireSession(d.Tokens, d.Sessions, d.Log)

	router.GET("/healthz", func(c *gin.Context) {
		success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := router.Group("/api/v1/auth")
	{
		authGroup.POST("/login", sessionHandler.Login)
		authGroup.POST("/logout", authed, sessionHandler.Logout)
	}

	api := router.Group("/api/v1")
	api.Use(authed)
	{
		api.GET("/me", sessionHandler.Me)
		api.PUT("/learner", sessionHandler.SetLearner)
		api.DELETE("/learner", sessionHandler.ClearLearner)
		api.PUT("/mode", sessionHandler.SetMode)
		api.POST("/session/heartbeat", sessionHandler.Heartbeat)

		api.POST("/quiz/start", quizHandler.Start)
		api.GET("/quiz", quizHandler.Current)
		api.POST("/quiz/toggle", quizHandler.Toggle)
		api.POST("/quiz/submit", quizHandler.Submit)
		api.POST("/quiz/next", quizHandler.Next)
		api.DELETE("/quiz", quizHandler.Leave)

		api.GET("/dashboard", dashboardHandler.Learners)
	}

	ws := router.Group("/ws/v1")
	ws.Use(authed)
	{
		ws.GET("/session", wsHandler.SessionStream)
	}
	return router
}
