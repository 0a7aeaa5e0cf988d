// Research HTTP handlers.
//
// This file declares the service contracts consumed by the HTTP layer, the
// Handlers wiring, and the saved-research endpoints:
//   - GET    /research               (list, paginated, ETag support)
//   - GET    /research/{id}          (fetch one, with report)
//   - DELETE /research/{id}          (soft delete)
//   - GET    /research/{id}/notes    (read notes)
//   - PUT    /research/{id}/notes    (replace notes)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/http/middleware"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/research"
	"github.com/tbourn/shiporskip-backend/internal/services"
	"github.com/tbourn/shiporskip-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AnalysisService admits and runs analyses.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AnalysisService interface {
	// Validate rejects malformed input before any external call.
	Validate(in services.AnalyzeInput) error
	// Begin validates, reserves quota and creates the processing record.
	Begin(ctx context.Context, id identity.Identity, in services.AnalyzeInput) (*services.Ticket, error)
	// Execute runs an admitted ticket, reporting progress on em (may be nil).
	Execute(ctx context.Context, t *services.Ticket, em *research.Emitter) (*services.AnalysisResult, error)
	// RunFast is the synchronous fast path with Idempotency-Key replay.
	RunFast(ctx context.Context, id identity.Identity, in services.AnalyzeInput, idemKey string) (*services.AnalysisResult, error)
}

// QuotaService reports daily allowances.
type QuotaService interface {
	Snapshot(ctx context.Context, id identity.Identity) (services.Usage, error)
}

// ResearchService manages saved research records of signed-in users.
type ResearchService interface {
	ListPage(ctx context.Context, id identity.Identity, page, pageSize int) ([]domain.Research, int64, error)
	Get(ctx context.Context, id identity.Identity, researchID string) (*domain.Research, error)
	Delete(ctx context.Context, id identity.Identity, researchID string) error
	UpdateNotes(ctx context.Context, id identity.Identity, researchID, notes string) error
	// Stats returns the record count and newest update, used for ETags.
	Stats(ctx context.Context, id identity.Identity) (int64, *time.Time, error)
}

// ChatService answers questions about a saved report.
type ChatService interface {
	Send(ctx context.Context, id identity.Identity, researchID, content string) (*services.ChatReply, error)
	History(ctx context.Context, id identity.Identity, researchID string) ([]domain.ChatMessage, error)
}

// BotVerifier checks a bot-protection token for the caller's address.
type BotVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for analysis, saved research and chat.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	analysis AnalysisService
	quota    QuotaService
	research ResearchService
	chat     ChatService
	bot      BotVerifier
}

// New constructs and returns a Handlers instance bound to the given services.
// bot may be nil to disable the bot check.
func New(analysis AnalysisService, quota QuotaService, rs ResearchService, chat ChatService, bot BotVerifier) *Handlers {
	return &Handlers{analysis: analysis, quota: quota, research: rs, chat: chat, bot: bot}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListResearchResponse wraps a page of research records (without reports).
type ListResearchResponse struct {
	Research   []domain.Research `json:"research"`
	Pagination Pagination        `json:"pagination"`
}

// NotesRequest is the JSON payload for replacing notes.
type NotesRequest struct {
	// Notes is free text, at most 10000 characters.
	Notes string `json:"notes" example:"Talk to three agencies before building."`
}

// NotesResponse carries the notes of one research record.
type NotesResponse struct {
	ResearchID string `json:"research_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Notes      string `json:"notes"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// researchID validates the :id path parameter.
func researchID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "research id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// ListResearch godoc
// @ID          listResearch
// @Summary     List saved research (paginated)
// @Description Returns a page of the signed-in user's research, newest first, without reports. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Research
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListResearchResponse
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Sign in required"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /research [get]
func (h *Handlers) ListResearch(c *gin.Context) {
	ctx := c.Request.Context()
	id := middleware.IdentityFrom(c)
	page, pageSize := clampPagination(c)

	count, maxTS, err := h.research.Stats(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"research:%s:%d:%d:%d:%d"`, id.UserID, count, ts, page, pageSize)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	items, total, err := h.research.ListPage(ctx, id, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListResearchResponse{
		Research: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetResearch godoc
// @ID          getResearch
// @Summary     Get one research record
// @Description Returns a research record owned by the signed-in user, including its report once completed.
// @Tags        Research
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Research ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Research
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Sign in required"
// @Failure     404  {object} handlers.ErrorResponse "Research not found"
// @Router      /research/{id} [get]
func (h *Handlers) GetResearch(c *gin.Context) {
	rid, valid := researchID(c)
	if !valid {
		return
	}
	r, err := h.research.Get(c.Request.Context(), middleware.IdentityFrom(c), rid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteResearch godoc
// @ID          deleteResearch
// @Summary     Delete a research record
// @Description Soft-deletes a research record owned by the signed-in user.
// @Tags        Research
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Research ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Sign in required"
// @Failure     404  {object} handlers.ErrorResponse "Research not found"
// @Router      /research/{id} [delete]
func (h *Handlers) DeleteResearch(c *gin.Context) {
	rid, valid := researchID(c)
	if !valid {
		return
	}
	if err := h.research.Delete(c.Request.Context(), middleware.IdentityFrom(c), rid); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// GetNotes godoc
// @ID          getResearchNotes
// @Summary     Read research notes
// @Tags        Research
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Research ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.NotesResponse
// @Failure     401  {object} handlers.ErrorResponse "Sign in required"
// @Failure     404  {object} handlers.ErrorResponse "Research not found"
// @Router      /research/{id}/notes [get]
func (h *Handlers) GetNotes(c *gin.Context) {
	rid, valid := researchID(c)
	if !valid {
		return
	}
	r, err := h.research.Get(c.Request.Context(), middleware.IdentityFrom(c), rid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, NotesResponse{ResearchID: r.ID, Notes: r.Notes})
}

// UpdateNotes godoc
// @ID          updateResearchNotes
// @Summary     Replace research notes
// @Description Replaces the free-text notes attached to a research record. Empty notes clear them.
// @Tags        Research
// @Accept      json
// @Security    BearerAuth
//
// @Param       id    path  string                 true  "Research ID (UUID)"  format(uuid)
// @Param       body  body  handlers.NotesRequest  true  "Notes"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Sign in required"
// @Failure     404  {object} handlers.ErrorResponse "Research not found"
// @Router      /research/{id}/notes [put]
func (h *Handlers) UpdateNotes(c *gin.Context) {
	rid, valid := researchID(c)
	if !valid {
		return
	}
	var req NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body")
		return
	}
	if err := h.research.UpdateNotes(c.Request.Context(), middleware.IdentityFrom(c), rid, req.Notes); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
