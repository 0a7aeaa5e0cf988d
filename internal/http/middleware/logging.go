// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request ID injector, a panic-safe recovery handler,
// and the request-scoped logger plumbing shared by RedactingLogger:
//
//   - RequestID() ensures every request carries a stable correlation ID
//     (propagated via X-Request-ID and stored in the Gin context).
//   - attachLogger() builds a zerolog.Logger carrying request_id, user and
//     route, stores it under the "logger" Gin key and in the request context
//     so services can reach it through zerolog.Ctx.
//   - Recovery() converts panics into JSON 500 responses while preserving the
//     correlation ID and emitting a stack trace to logs.
//   - LoggerFrom() retrieves the request-scoped logger inside handlers.
//
// Recommended order: RequestID, Authenticate, RedactingLogger, Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey is the Gin context key for the request-scoped logger.
	loggerKey = "logger"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID attaches (or propagates) a correlation identifier per request.
//
// If the incoming request has X-Request-ID that value is reused, otherwise a
// new UUIDv4 is generated. The ID is echoed on the response and stored in the
// Gin context under "requestID".
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// attachLogger derives the request-scoped logger and installs it on both the
// Gin context and c.Request's context.
func attachLogger(c *gin.Context, path string) *zerolog.Logger {
	rid, _ := c.Get(requestIDKey)
	reqID := asString(rid)
	if reqID == "" {
		reqID = c.Writer.Header().Get(requestIDHeader)
	}
	if reqID == "" {
		reqID = c.GetHeader(requestIDHeader)
	}
	id := IdentityFrom(c)

	l := log.With().
		Str("request_id", reqID).
		Str("identity", id.Key).
		Str("method", c.Request.Method).
		Str("path", path).
		Logger()

	c.Set(loggerKey, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
	return &l
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500 error.
//
// If no response has been written it emits
// { "request_id": "...", "code": "internal_error", "message": "internal server error" }.
// Once an SSE stream has started only the status is recorded.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger.
//
// If none was attached, a fallback logger without request fields is returned.
// Callers can use the result without nil checks.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString converts an arbitrary interface to a string, returning an empty
// string when the value is not a string. Used for context values.
func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate returns s unchanged when within max length, otherwise it truncates
// s to max bytes and appends an ellipsis. A max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
