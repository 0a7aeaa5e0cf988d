// Analysis HTTP handlers.
//
// This file exposes the analysis endpoints and the caller's allowance:
//   - POST /analyze/fast   (synchronous JSON, Idempotency-Key replay)
//   - POST /analyze/deep   (server-sent events: progress, done, error)
//   - GET  /usage          (daily quota snapshot)
//   - GET  /me             (resolved identity plus usage)
package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/http/middleware"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/research"
	"github.com/tbourn/shiporskip-backend/internal/services"
)

// turnstileHeader may carry the bot token when the body does not.
const turnstileHeader = "cf-turnstile-response"

// AnalyzeRequest is the JSON payload of both analyze endpoints.
type AnalyzeRequest struct {
	// Idea is the startup idea in plain words (1–500 characters).
	Idea string `json:"idea" example:"A Slack bot that turns daily standups into weekly client updates"`
	// Category optionally narrows the research (e.g. "devtools").
	Category string `json:"category,omitempty" example:"productivity"`
	// TurnstileToken is the Cloudflare Turnstile response token.
	TurnstileToken string `json:"turnstile_token,omitempty"`
}

// MeResponse describes the caller.
type MeResponse struct {
	Identity identity.Identity `json:"identity"`
	Usage    services.Usage    `json:"usage"`
}

// verifyBot runs the bot check when a verifier is configured.
func (h *Handlers) verifyBot(c *gin.Context, bodyToken string) error {
	if h.bot == nil {
		return nil
	}
	token := strings.TrimSpace(bodyToken)
	if token == "" {
		token = strings.TrimSpace(c.GetHeader(turnstileHeader))
	}
	return h.bot.Verify(c.Request.Context(), token, c.ClientIP())
}

func bindAnalyze(c *gin.Context, mode domain.Mode) (AnalyzeRequest, services.AnalyzeInput, bool) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body")
		return req, services.AnalyzeInput{}, false
	}
	return req, services.AnalyzeInput{Idea: req.Idea, Category: req.Category, Mode: mode}, true
}

// admit binds and validates the request, then runs the bot check. Replays
// skip the bot check since they never reach providers.
func (h *Handlers) admit(c *gin.Context, mode domain.Mode) (services.AnalyzeInput, bool) {
	req, in, valid := bindAnalyze(c, mode)
	if !valid {
		return in, false
	}
	if err := h.analysis.Validate(in); err != nil {
		failErr(c, err)
		return in, false
	}
	if mode == domain.ModeFast && middleware.IsReplay(c) {
		return in, true
	}
	if err := h.verifyBot(c, req.TurnstileToken); err != nil {
		failErr(c, err)
		return in, false
	}
	return in, true
}

// AnalyzeFast godoc
// @ID          analyzeFast
// @Summary     Run a fast analysis
// @Description Searches the web and developer sources for competitors and returns a synthesized report. Signed-in users get the report saved; repeating an Idempotency-Key replays the saved report without consuming quota.
// @Tags        Analysis
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string                  false  "Replay key (signed-in users)"  example(9b2f7e1c-idem)
// @Param       body             body    handlers.AnalyzeRequest true   "Idea"
//
// @Success     200  {object}  services.AnalysisResult
// @Header      200  {string}  Idempotency-Replayed  "true when the stored report was replayed"
// @Failure     400  {object}  handlers.ErrorResponse "Validation or missing bot token"
// @Failure     403  {object}  handlers.ErrorResponse "Bot check failed"
// @Failure     404  {object}  handlers.ErrorResponse "No results"
// @Failure     429  {object}  handlers.ErrorResponse "Quota or rate limit exceeded"
// @Failure     502  {object}  handlers.ErrorResponse "Upstream or synthesis failure"
// @Failure     503  {object}  handlers.ErrorResponse "Usage ledger unavailable"
// @Failure     504  {object}  handlers.ErrorResponse "Timed out"
// @Router      /analyze/fast [post]
func (h *Handlers) AnalyzeFast(c *gin.Context) {
	in, admitted := h.admit(c, domain.ModeFast)
	if !admitted {
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	res, err := h.analysis.RunFast(c.Request.Context(), middleware.IdentityFrom(c), in, key)
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusOK, res)
}

// AnalyzeDeep godoc
// @ID          analyzeDeep
// @Summary     Run a deep analysis (server-sent events)
// @Description Streams progress events while the deep pipeline runs, then exactly one terminal event: "done" with the report or "error" with a stable code. Admission errors (validation, bot check, quota, in-progress run) are returned as a JSON error before the stream opens. Closing the connection cancels the run.
// @Tags        Analysis
// @Accept      json
// @Produce     text/event-stream
// @Security    BearerAuth
//
// @Param       body  body  handlers.AnalyzeRequest  true  "Idea"
//
// @Success     200  {object}  research.Event  "event: progress | done | error"
// @Failure     400  {object}  handlers.ErrorResponse "Validation or missing bot token"
// @Failure     403  {object}  handlers.ErrorResponse "Bot check failed"
// @Failure     409  {object}  handlers.ErrorResponse "Deep research already in progress"
// @Failure     429  {object}  handlers.ErrorResponse "Quota or rate limit exceeded"
// @Failure     503  {object}  handlers.ErrorResponse "Usage ledger unavailable"
// @Router      /analyze/deep [post]
func (h *Handlers) AnalyzeDeep(c *gin.Context) {
	in, admitted := h.admit(c, domain.ModeDeep)
	if !admitted {
		return
	}

	ctx := c.Request.Context()
	t, err := h.analysis.Begin(ctx, middleware.IdentityFrom(c), in)
	if err != nil {
		failErr(c, err)
		return
	}

	em := research.NewEmitter(0)
	go func() {
		res, err := h.analysis.Execute(ctx, t, em)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("research_id", t.ResearchID).Msg("deep analysis failed")
		}
		em.Finish(ctx, terminalEvent(res, err))
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	events := em.Events()
	c.Stream(func(io.Writer) bool {
		ev, open := <-events
		if !open {
			return false
		}
		c.SSEvent(string(ev.Kind), ev)
		return !ev.Terminal()
	})
}

// terminalEvent converts the outcome of Execute into the last stream event.
func terminalEvent(res *services.AnalysisResult, err error) research.Event {
	if err != nil {
		_, code, msg := classify(err)
		return research.Event{Kind: research.EventError, Code: code, Message: msg}
	}
	ev := research.Event{
		Kind:       research.EventDone,
		Pct:        100,
		Report:     res.Report,
		ResearchID: res.ResearchID,
		Saved:      res.Saved,
	}
	if res.Usage != nil {
		ev.Usage = res.Usage
	}
	return ev
}

// GetUsage godoc
// @ID          getUsage
// @Summary     Daily quota snapshot
// @Description Returns used, limit and remaining analyses per mode for the caller (anonymous or signed in), and when the allowance resets (midnight UTC).
// @Tags        Account
// @Produce     json
//
// @Success     200  {object}  services.Usage
// @Failure     503  {object}  handlers.ErrorResponse "Usage ledger unavailable"
// @Router      /usage [get]
func (h *Handlers) GetUsage(c *gin.Context) {
	u, err := h.quota.Snapshot(c.Request.Context(), middleware.IdentityFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// GetMe godoc
// @ID          getMe
// @Summary     Who am I
// @Description Returns the resolved identity (anonymous or user) and its usage.
// @Tags        Account
// @Produce     json
//
// @Success     200  {object}  handlers.MeResponse
// @Failure     503  {object}  handlers.ErrorResponse "Usage ledger unavailable"
// @Router      /me [get]
func (h *Handlers) GetMe(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	u, err := h.quota.Snapshot(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MeResponse{Identity: id, Usage: u})
}
