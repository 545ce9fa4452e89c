package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"training-portal/internal/app"
	"training-portal/internal/auth"
	"training-portal/internal/config"
	"training-portal/internal/infra/memory"
	"training-portal/internal/logger"
	"training-portal/internal/sheets"
	transport "training-portal/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the portal API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	if cfg.Sources.CredentialsURL == "" || cfg.Sources.QuestionsURL == "" {
		log.Warn().Msg("row source urls not configured; login and quiz start will fail")
	}
	fetcher := sheets.NewFetcher(&http.Client{Timeout: config.TTLDuration(cfg.Sources.Timeout, 20*time.Second)})

	manager := app.NewSessionManager(
		sheets.NewCredentialSheet(fetcher, cfg.Sources.CredentialsURL),
		st.docs,
		app.SessionConfig{
			LivenessWindow:    config.TTLDuration(cfg.Session.Liveness, app.DefaultLivenessWindow),
			HeartbeatInterval: config.TTLDuration(cfg.Session.Heartbeat, app.DefaultHeartbeatInterval),
		},
		log,
	)
	engine := app.NewQuizEngine(sheets.NewQuestionSheet(fetcher, cfg.Sources.QuestionsURL), st.docs, log)
	runs := memory.NewRunStore()

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))
	if err != nil {
		return err
	}

	router := transport.NewRouter(transport.Deps{
		Sessions:       app.NewClientSessions(manager, st.contexts, runs, log),
		Quiz:           app.NewQuizService(engine, runs, log),
		Dashboard:      app.NewDashboard(st.docs, log),
		Tokens:         tokens,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		GinMode:        cfg.Server.GinMode,
		Log:            log,
	})

	addr := ":" + cfg.Server.Port
	if portFlag != "" {
		addr = ":" + portFlag
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("starting training portal")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
