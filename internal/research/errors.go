// Package research implements the deep-research pipeline: query planning,
// concurrent provider search, aggregation and ranking, deep-fetch
// enrichment, LLM synthesis and progress streaming.
//
// This file centralizes the pipeline's sentinel errors. Callers match them
// with errors.Is; the HTTP layer maps each to a stable error code.
package research

import "errors"

var (
	// ErrInvalidIdea is returned when the idea is empty after sanitizing.
	ErrInvalidIdea = errors.New("idea is empty")

	// ErrNoResults is returned when every provider came back empty or failed.
	// It is a distinct outcome, not an upstream error.
	ErrNoResults = errors.New("no search results")

	// ErrSynthesisFailed is returned when the model output could not be
	// parsed into a valid report after the retry.
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrUpstream wraps transport or non-2xx failures of external services.
	ErrUpstream = errors.New("upstream error")

	// ErrUnsafeURL is returned by the fetch guard for non-http(s) schemes and
	// private, loopback or link-local targets.
	ErrUnsafeURL = errors.New("unsafe url")

	// ErrLLMDisabled is returned by a nil or unconfigured LLM client.
	ErrLLMDisabled = errors.New("llm not configured")
)
