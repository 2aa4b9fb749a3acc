// Package llm wraps language-model providers behind a JSON-in-text contract
// and runs prompts as named stages.
package llm

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joelkehle/opportunity-radar/internal/ratelimit"
	"github.com/joelkehle/opportunity-radar/internal/retry"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultMaxTokens      = 4096
)

const systemPrompt = "You are an analyst for a solo SaaS opportunity discovery system. You produce conservative, structured outputs and do not invent facts. Return strict JSON only."

// Caller returns model text that is expected to parse as JSON.
type Caller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages  AnthropicMessager
	model     string
	maxTokens int64
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicCaller(apiKey, model string, maxTokens int) (*AnthropicCaller, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key not configured")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: model, maxTokens: int64(maxTokens)}, nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", retry.WithStatus(apiErr.StatusCode, err)
		}
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// Limited makes every call wait on a rate limiter first.
type Limited struct {
	Caller  Caller
	Limiter *ratelimit.Limiter
}

func (l Limited) ModelName() string { return l.Caller.ModelName() }

func (l Limited) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.Caller.GenerateJSON(ctx, prompt)
}
