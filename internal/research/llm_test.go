package research

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tbourn/shiporskip-backend/internal/config"
)

func newCompletionServer(t *testing.T, delay time.Duration) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"verdict\":\"ship\"}"},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func TestNewOpenAIClient_NoKeyDisablesLLM(t *testing.T) {
	c := NewOpenAIClient(config.LLMConfig{APIKey: "  "})
	if c != nil {
		t.Fatalf("expected nil client without an API key")
	}
	if _, err := c.Complete(context.Background(), nil, false); !errors.Is(err, ErrLLMDisabled) {
		t.Fatalf("nil client should report ErrLLMDisabled, got %v", err)
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv, bodies := newCompletionServer(t, 0)
	c := NewOpenAIClient(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o-mini", Timeout: time.Second})

	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, true)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"verdict":"ship"}` {
		t.Fatalf("content = %q", out)
	}
	if len(*bodies) != 1 || (*bodies)[0]["response_format"] == nil {
		t.Fatalf("json mode should set response_format: %v", *bodies)
	}
}

func TestOpenAIClient_CompleteHonorsTimeout(t *testing.T) {
	srv, _ := newCompletionServer(t, 5*time.Second)
	c := NewOpenAIClient(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if c.Timeout != 50*time.Millisecond {
		t.Fatalf("timeout not carried from config: %v", c.Timeout)
	}

	start := time.Now()
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, false)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if el := time.Since(start); el > 2*time.Second {
		t.Fatalf("completion outlived its timeout: %v", el)
	}
}
