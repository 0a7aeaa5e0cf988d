// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints,
// including structured error envelopes, consistent JSON serialization, and the
// mapping from service and pipeline errors to (status, code, message).
//
// Conventions:
//   - All error responses must return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
//   - `failErr()` classifies an error through classify() and fails with it.
//   - `ok()` and `noContent()` write success responses.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "research not found"
//	}
package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/shiporskip-backend/internal/http/middleware"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/research"
	"github.com/tbourn/shiporskip-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: Optional correlation ID, echoed from X-Request-ID header, used
//     to correlate server logs with client-side errors.
//   - Code: A stable, machine-readable string (see errors.go constants).
//   - Message: A human-readable error description, safe for display to users.
//   - Usage / ResetsAt: present on quota denials.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
	// Usage snapshot (quota denials only)
	Usage *services.Usage `json:"usage,omitempty"`
	// Next quota reset (quota denials only)
	ResetsAt *time.Time `json:"resets_at,omitempty" example:"2026-10-19T00:00:00Z"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// It constructs an ErrorResponse, writes it as JSON with the given HTTP status,
// and calls gin.Context.AbortWithStatusJSON to stop further processing.
//
// Server errors (>=500) are logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	abort(c, status, ErrorResponse{Code: code, Message: msg})
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func abort(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// failErr classifies err and aborts with the matching envelope. Quota
// denials carry the usage snapshot and a Retry-After header.
func failErr(c *gin.Context, err error) {
	status, code, msg := classify(err)
	resp := ErrorResponse{Code: code, Message: msg}
	if qe, isQuota := services.IsQuotaError(err); isQuota {
		resp.Usage = &qe.Usage
		resp.ResetsAt = &qe.Usage.ResetsAt
		c.Header("Retry-After", strconv.Itoa(retryAfter(qe.Usage.ResetsAt, time.Now())))
	}
	if status >= http.StatusInternalServerError && code == ErrCodeInternal {
		middleware.LoggerFrom(c).Error().Err(err).Msg("unclassified error")
	}
	abort(c, status, resp)
}

// classify maps service, identity and pipeline errors to HTTP semantics.
// Messages are user-safe; internals are never echoed.
func classify(err error) (status int, code, msg string) {
	switch {
	// validation
	case errors.Is(err, services.ErrInvalidMode):
		return http.StatusBadRequest, ErrCodeValidation, "mode must be fast or deep"
	case errors.Is(err, research.ErrInvalidIdea):
		return http.StatusBadRequest, ErrCodeValidation, "idea is required"
	case errors.Is(err, services.ErrIdeaTooLong):
		return http.StatusBadRequest, ErrCodeValidation, "idea is too long"
	case errors.Is(err, services.ErrEmptyMessage):
		return http.StatusBadRequest, ErrCodeValidation, "message is required"
	case errors.Is(err, services.ErrTooLong):
		return http.StatusBadRequest, ErrCodeValidation, "message is too long"
	case errors.Is(err, services.ErrNotesTooLong):
		return http.StatusBadRequest, ErrCodeValidation, "notes are too long"
	case errors.Is(err, services.ErrReportNotReady):
		return http.StatusBadRequest, ErrCodeValidation, "research is not completed yet"

	// bot check
	case errors.Is(err, identity.ErrBotTokenMissing):
		return http.StatusBadRequest, ErrCodeBotCheckFailed, "bot verification token is required"
	case errors.Is(err, identity.ErrBotCheckFailed):
		return http.StatusForbidden, ErrCodeBotCheckFailed, "bot verification failed"

	// identity and ownership
	case errors.Is(err, services.ErrAuthRequired):
		return http.StatusUnauthorized, ErrCodeUnauthorized, "sign in required"
	case errors.Is(err, services.ErrResearchNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "research not found"
	case errors.Is(err, services.ErrResearchInProgress):
		return http.StatusConflict, ErrCodeConflict, "a deep research is already in progress"

	// quota
	case errors.Is(err, services.ErrQuotaExceeded):
		if qe, ok := services.IsQuotaError(err); ok {
			return http.StatusTooManyRequests, ErrCodeRateLimited, "daily " + string(qe.Mode) + " quota exceeded"
		}
		return http.StatusTooManyRequests, ErrCodeRateLimited, "daily quota exceeded"
	case errors.Is(err, services.ErrChatLimitReached):
		return http.StatusTooManyRequests, ErrCodeRateLimited, "chat message limit reached for this research"
	case errors.Is(err, services.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, ErrCodeLedgerUnavailable, "usage ledger unavailable, try again later"

	// pipeline outcomes
	case errors.Is(err, research.ErrNoResults):
		return http.StatusNotFound, ErrCodeNoResults, "no results found for this idea"
	case errors.Is(err, research.ErrSynthesisFailed):
		return http.StatusBadGateway, ErrCodeSynthesisFailed, "could not synthesize a report"
	case errors.Is(err, research.ErrUpstream), errors.Is(err, research.ErrLLMDisabled):
		return http.StatusBadGateway, ErrCodeUpstream, "an upstream service failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeUpstream, "analysis timed out"
	}
	return http.StatusInternalServerError, ErrCodeInternal, "internal error"
}

// retryAfter returns whole seconds until resetsAt, at least 1.
func retryAfter(resetsAt, now time.Time) int {
	return max(int(math.Ceil(resetsAt.Sub(now).Seconds())), 1)
}

// ok writes a success JSON response.
//
// It serializes `body` as JSON with the given HTTP status code.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
//
// Used when the operation succeeds but there is no response body.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
