// Package services defines the business logic for analysis runs, the usage
// ledger, research history, chat-on-report and notes.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Analysis and quota errors.
var (
	// ErrInvalidMode is returned for a mode other than fast or deep.
	ErrInvalidMode = errors.New("mode must be fast or deep")

	// ErrIdeaTooLong is returned when the idea exceeds the configured rune cap.
	ErrIdeaTooLong = errors.New("idea too long")

	// ErrQuotaExceeded is returned when the identity has no units left for
	// the requested mode today. Use errors.As with *QuotaError for the usage
	// snapshot.
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrLedgerUnavailable is returned when the usage ledger cannot be read
	// or written and the service fails closed.
	ErrLedgerUnavailable = errors.New("usage ledger unavailable")

	// ErrResearchInProgress is returned when an authenticated user starts a
	// deep run while another one is still processing.
	ErrResearchInProgress = errors.New("a deep research is already in progress")
)

// Research, chat and notes errors.
var (
	// ErrResearchNotFound indicates that the requested research does not exist
	// or is not accessible to the current user.
	ErrResearchNotFound = errors.New("research not found")

	// ErrAuthRequired is returned for operations reserved to signed-in users.
	ErrAuthRequired = errors.New("authentication required")

	// ErrReportNotReady is returned when chatting about a research that has
	// not completed.
	ErrReportNotReady = errors.New("research is not completed yet")

	// ErrEmptyMessage is returned when a chat message is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a chat message exceeds the maximum
	// configured length limit.
	ErrTooLong = errors.New("message too long")

	// ErrChatLimitReached is returned once the per-research chat allowance
	// has been used up.
	ErrChatLimitReached = errors.New("chat message limit reached for this research")

	// ErrNotesTooLong is returned when notes exceed the configured rune cap.
	ErrNotesTooLong = errors.New("notes too long")
)
