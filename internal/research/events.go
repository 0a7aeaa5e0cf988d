package research

import (
	"context"
	"sync"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

// EventKind distinguishes progress from terminal events.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// Stage names reported in progress events.
const (
	StageStarted       = "started"
	StageQueries       = "queries_planned"
	StageSearching     = "provider_searching"
	StageFiltering     = "filtering"
	StageEnriching     = "enriching"
	StageSynthesizing  = "synthesizing"
	StageSaving        = "saving"
	defaultEventBuffer = 16
)

// Event is one message on the progress stream.
type Event struct {
	Kind       EventKind              `json:"-"`
	Stage      string                 `json:"stage,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Pct        int                    `json:"pct"`
	Report     *domain.AnalysisReport `json:"report,omitempty"`
	Usage      any                    `json:"usage,omitempty"`
	Code       string                 `json:"code,omitempty"`
	ResearchID string                 `json:"research_id,omitempty"`
	Saved      bool                   `json:"saved"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool { return e.Kind == EventDone || e.Kind == EventError }

// Emitter owns the event channel of one run. It delivers exactly one
// terminal event, drops anything sent after it, and closes the channel once
// the terminal event is delivered or abandoned.
//
// Progress sends never block: when the buffer is full the event is dropped.
// The terminal send blocks until a reader takes it or ctx is done.
type Emitter struct {
	ch   chan Event
	mu   sync.Mutex
	done bool
}

// NewEmitter returns an Emitter with a buffered channel of size buf
// (a default is used when buf <= 0).
func NewEmitter(buf int) *Emitter {
	if buf <= 0 {
		buf = defaultEventBuffer
	}
	return &Emitter{ch: make(chan Event, buf)}
}

// Events is the read side of the stream.
func (e *Emitter) Events() <-chan Event { return e.ch }

// Progress emits a best-effort progress event.
func (e *Emitter) Progress(stage, msg string, pct int) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	select {
	case e.ch <- Event{Kind: EventProgress, Stage: stage, Message: msg, Pct: pct}:
	default:
	}
}

// Finish emits the terminal event. It returns false when a terminal event
// was already emitted or ctx ended before the reader took it.
func (e *Emitter) Finish(ctx context.Context, ev Event) bool {
	if e == nil || !ev.Terminal() {
		return false
	}
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return false
	}
	e.done = true
	e.mu.Unlock()

	defer close(e.ch)
	select {
	case e.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
