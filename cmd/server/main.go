// Command server runs the ShipOrSkip research API.
//
//	@title						ShipOrSkip API
//	@version					1.0
//	@description				Competitive-landscape research for product ideas: fast and deep analyses, research history, notes and chat on a report.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/shiporskip-backend/docs"
	"github.com/tbourn/shiporskip-backend/internal/config"
	httpapi "github.com/tbourn/shiporskip-backend/internal/http"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/observability"
	"github.com/tbourn/shiporskip-backend/internal/repo"
	"github.com/tbourn/shiporskip-backend/internal/research"
	"github.com/tbourn/shiporskip-backend/internal/services"
	"github.com/tbourn/shiporskip-backend/internal/sysutil"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	cfg.OTEL.ServiceName = sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, "shiporskip-backend")
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.Version())
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	policy, err := research.LoadPolicy(cfg.Pipeline.RankingPolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("ranking policy invalid")
	}

	hc := &http.Client{
		Timeout: cfg.Pipeline.DeepBudget,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}

	var llm research.LLM
	if c := research.NewOpenAIClient(cfg.LLM); c != nil {
		llm = c
	} else {
		log.Warn().Msg("no LLM API key configured; synthesis disabled and chat answers from retrieval")
	}

	deps := httpapi.Deps{
		DB:       db,
		Pipeline: research.NewPipeline(cfg, hc, llm, policy),
		LLM:      llm,
		// The bot check gates admission, so it keeps its own short timeout.
		Bot: identity.NewTurnstile(cfg.Auth, nil),
	}
	if cfg.Chat.KnowledgeFile != "" {
		kb, err := services.LoadKnowledge(cfg.Chat.KnowledgeFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Chat.KnowledgeFile).Msg("chat knowledge file invalid")
		}
		deps.Knowledge = kb
	}
	if cfg.Auth.URL != "" {
		deps.Verifier = identity.NewRemoteVerifier(cfg.Auth, nil)
	} else {
		log.Warn().Msg("AUTH_URL not set; every caller is anonymous")
	}

	janitor := &services.Janitor{DB: db, StaleAfter: cfg.Pipeline.ResearchStaleAfter, Interval: cfg.Pipeline.JanitorInterval}
	go janitor.Run(ctx)

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DBDriver).Bool("llm", llm != nil).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}
