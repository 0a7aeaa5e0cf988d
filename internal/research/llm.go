package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/tbourn/shiporskip-backend/internal/config"
)

const maxTokens = 2048

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// LLM is the narrow completion surface the pipeline and chat depend on.
// When jsonMode is set the model is asked for a single JSON object.
type LLM interface {
	Complete(ctx context.Context, msgs []Message, jsonMode bool) (string, error)
}

// OpenAIClient implements LLM over any OpenAI-compatible endpoint.
type OpenAIClient struct {
	*openai.Client
	Model   string
	Timeout time.Duration // per completion; zero leaves only the caller's deadline
}

// NewOpenAIClient builds a client from cfg. It returns nil when no API key
// is configured so callers can fall back to LLM-free behaviour.
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{Client: openai.NewClientWithConfig(oc), Model: cfg.Model, Timeout: cfg.Timeout}
}

// Complete runs one chat completion and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, msgs []Message, jsonMode bool) (string, error) {
	if c == nil || c.Client == nil {
		return "", ErrLLMDisabled
	}
	model := c.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.2,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// Reasoning models (o1/o3/o4/gpt-5*) take MaxCompletionTokens and no temperature.
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
		req.Temperature = 0
	} else {
		req.MaxTokens = maxTokens
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", ErrUpstream)
	}
	return resp.Choices[0].Message.Content, nil
}
