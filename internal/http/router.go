// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, identity, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Resolve the caller before anything that logs or throttles by identity
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/shiporskip-backend/internal/config"
	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/http/handlers"
	"github.com/tbourn/shiporskip-backend/internal/http/middleware"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/repo"
	"github.com/tbourn/shiporskip-backend/internal/research"
	"github.com/tbourn/shiporskip-backend/internal/search"
	"github.com/tbourn/shiporskip-backend/internal/services"
)

// researchRepoShim adapts the repository free functions to the
// services.ResearchRepo interface expected by the ResearchService.
type researchRepoShim struct{}

func (researchRepoShim) GetResearch(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Research, error) {
	return repo.GetResearch(ctx, db, id, userID)
}

func (researchRepoShim) CountResearch(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountResearch(ctx, db, userID)
}

func (researchRepoShim) ListResearchPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Research, error) {
	return repo.ListResearchPage(ctx, db, userID, offset, limit)
}

func (researchRepoShim) DeleteResearch(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteResearch(ctx, db, id, userID)
}

func (researchRepoShim) UpdateResearchNotes(ctx context.Context, db *gorm.DB, id, userID, notes string) error {
	return repo.UpdateResearchNotes(ctx, db, id, userID, notes)
}

func (researchRepoShim) ResearchStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return repo.ResearchStats(ctx, db, userID)
}

// Deps are the collaborators RegisterRoutes cannot build from config alone.
// Verifier, LLM and Bot may be nil: callers are then anonymous, chat answers
// from retrieval only, and bot checks are skipped.
type Deps struct {
	DB       *gorm.DB
	Pipeline services.Runner
	LLM      research.LLM
	Verifier identity.Verifier
	Bot      handlers.BotVerifier
	// Knowledge is the optional chat FAQ index.
	Knowledge search.Index
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Authenticate: resolve user or anonymous identity
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Gzip (never on the SSE stream)
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per identity, bypass on replay)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	// Anonymous identities hash the client IP, so forwarded headers are only
	// honored from configured proxies.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Err(err).Msg("invalid trusted proxies; forwarded headers ignored")
		_ = r.SetTrustedProxies(nil)
	}
	r.TrustedPlatform = cfg.TrustedPlatform
	db := deps.DB
	apiBase := cfg.APIBasePath

	quotaSvc := services.NewQuotaService(db, cfg.Quota)
	analysisSvc := &services.AnalysisService{
		DB:             db,
		Pipeline:       deps.Pipeline,
		Quota:          quotaSvc,
		IdeaMaxRunes:   cfg.Pipeline.IdeaMaxRunes,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	researchSvc := services.NewResearchService(db, researchRepoShim{})
	if cfg.Chat.NotesMaxRunes > 0 {
		researchSvc.NotesMaxRunes = cfg.Chat.NotesMaxRunes
	}
	chatSvc := &services.ChatService{
		DB:              db,
		LLM:             deps.LLM,
		MaxMessageRunes: cfg.Chat.MaxMessageRunes,
		HistoryWindow:   cfg.Chat.HistoryWindow,
		FreeLimit:       cfg.Chat.FreeUserLimit,
		Knowledge:       deps.Knowledge,
	}
	h := handlers.New(analysisSvc, quotaSvc, researchSvc, chatSvc, deps.Bot)

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Authenticate(deps.Verifier, cfg.Quota.AnonSalt))
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())

	// 64 KiB comfortably covers an idea, chat message or notes payload.
	r.Use(limitBody(64 << 10))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{joinPath(apiBase, "/analyze/deep")})))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, analysisSvc.IdempotencyExists))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIdentity())
	r.Use(rl.Handler())

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID", middleware.HeaderIdempotencyKey, "cf-turnstile-response"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "Retry-After", "ETag", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		Revalidate:   []string{joinPath(apiBase, "/research")},
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/health/ready", readiness(db))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	fastRL := middleware.NewPerMinuteLimiter("analyze_fast", cfg.AnalyzeFastPerMin, middleware.KeyByIdentity())
	deepRL := middleware.NewPerMinuteLimiter("analyze_deep", cfg.AnalyzeDeepPerMin, middleware.KeyByIdentity())

	api := groupWithPrefix(r, apiBase)
	{
		// Analysis
		api.POST("/analyze/fast", fastRL.Handler(), h.AnalyzeFast)
		api.POST("/analyze/deep", deepRL.Handler(), h.AnalyzeDeep)

		// Caller
		api.GET("/usage", h.GetUsage)
		api.GET("/me", h.GetMe)

		// History
		api.GET("/research", h.ListResearch)
		api.GET("/research/:id", h.GetResearch)
		api.DELETE("/research/:id", h.DeleteResearch)
		api.GET("/research/:id/notes", h.GetNotes)
		api.PUT("/research/:id/notes", h.UpdateNotes)

		// Chat on report
		api.GET("/research/:id/chat", h.ChatHistory)
		api.POST("/research/:id/chat", h.SendChat)
	}
}

// readiness reports 503 while the database cannot be reached.
func readiness(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
