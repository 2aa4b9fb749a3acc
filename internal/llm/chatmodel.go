package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatGenerator is the part of an eino chat model the caller needs.
type ChatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatModelCaller talks to any OpenAI-compatible endpoint through eino.
type ChatModelCaller struct {
	cm    ChatGenerator
	model string
}

type ChatModelConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

func NewChatModelCaller(ctx context.Context, cfg ChatModelConfig) (*ChatModelCaller, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key not configured")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model not configured")
	}
	temp := float32(0)
	mc := &openai.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: &temp,
	}
	if cfg.MaxTokens > 0 {
		mc.MaxTokens = &cfg.MaxTokens
	}
	cm, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return NewChatModelCallerWith(cm, cfg.Model), nil
}

func NewChatModelCallerWith(cm ChatGenerator, modelName string) *ChatModelCaller {
	return &ChatModelCaller{cm: cm, model: modelName}
}

func (c *ChatModelCaller) ModelName() string { return c.model }

func (c *ChatModelCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := c.cm.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}
