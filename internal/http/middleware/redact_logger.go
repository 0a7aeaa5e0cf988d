// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It scrubs obvious
// PII from request metadata before emitting logs and never logs bodies, so
// startup ideas and chat questions stay out of log storage.
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"apikey"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders specifies extra HTTP header names whose values will be fully
// replaced with "[REDACTED]". Matching is case-insensitive and merged with
// the built-in sensitive headers.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so UUID hex segments never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redact masks UUIDs, emails and phone numbers, in that order.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger returns a Gin middleware that attaches the request-scoped
// logger and writes one access log line per request with sensitive values
// scrubbed.
//
// Authorization, Cookie, Set-Cookie, apikey and cf-turnstile-response are
// always masked. The level is info, warn for 4xx and error for 5xx or when
// handlers recorded gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":         {},
		"cookie":                {},
		"set-cookie":            {},
		"apikey":                {},
		"cf-turnstile-response": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(redact(c.Request.URL.RawQuery), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		l := attachLogger(c, path)

		c.Next()

		status := c.Writer.Status()

		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = l.Warn()
		}

		ev.
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
