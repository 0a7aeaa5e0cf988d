// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes (e.g., unauthorized, conflict) mirror common HTTP status
//     semantics to aid interoperability.
//   - Pipeline codes (no_results, synthesis_failed) describe outcomes a client
//     may want to present differently from a plain failure.
//   - The same codes are used in the `code` field of SSE `error` events.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "rate_limited",
//	  "message": "daily deep quota exceeded",
//	  "resets_at": "2026-10-19T00:00:00Z"
//	}
package handlers

const (
	ErrCodeValidation       = "validation_error"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "service_unavailable"

	// Domain-specific:
	ErrCodeBotCheckFailed    = "bot_check_failed"
	ErrCodeUpstream          = "upstream_error"
	ErrCodeNoResults         = "no_results"
	ErrCodeSynthesisFailed   = "synthesis_failed"
	ErrCodeLedgerUnavailable = "ledger_unavailable"
)
