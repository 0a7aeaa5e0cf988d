package research

import (
	"context"
	"errors"
	"sync"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

// fakeLLM replays canned outputs in order; the last one repeats.
type fakeLLM struct {
	mu      sync.Mutex
	outputs []string
	err     error
	calls   int
	seen    [][]Message
	block   bool // wait for ctx instead of answering
}

func (f *fakeLLM) Complete(ctx context.Context, msgs []Message, _ bool) (string, error) {
	f.mu.Lock()
	f.calls++
	f.seen = append(f.seen, append([]Message(nil), msgs...))
	i := f.calls - 1
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.outputs) == 0 {
		return "", errors.New("no output")
	}
	if i >= len(f.outputs) {
		i = len(f.outputs) - 1
	}
	return f.outputs[i], nil
}

// fakeProvider returns fixed hits, an error, or blocks until ctx ends.
type fakeProvider struct {
	name   string
	source domain.SourceType
	hits   []domain.SearchResult
	err    error
	block  bool

	mu      sync.Mutex
	queries []string
}

func (f *fakeProvider) Name() string              { return f.name }
func (f *fakeProvider) Source() domain.SourceType { return f.source }

func (f *fakeProvider) Search(ctx context.Context, queries []string) ([]domain.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, queries...)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	out := make([]domain.SearchResult, len(f.hits))
	copy(out, f.hits)
	for i := range out {
		out[i].Source = f.source
		out[i].Provider = f.name
	}
	return out, f.err
}

const validReportJSON = `{
  "verdict": "Ship it: async standups for tiny teams are underserved",
  "market_saturation": "medium",
  "competitors": [
    {"name": "Geekbot", "url": "https://geekbot.com/", "description": "Slack standups", "differentiator": "mature", "threat_level": "high"},
    {"name": "standup-bot", "url": "", "description": "OSS bot", "differentiator": "", "threat_level": "low"}
  ],
  "gaps": ["voice updates"],
  "pros": ["clear pain"],
  "cons": ["crowded"],
  "build_plan": ["ship a Slack app"]
}`
