package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"tradeloop/internal/config"
)

// Completer is the decision model capability: one text prompt in, the
// model's free-form text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatModel adapts an eino chat model to the Completer capability.
type ChatModel struct {
	model model.BaseChatModel
}

// NewChatModel builds the configured provider's chat model.
func NewChatModel(ctx context.Context, cfg *config.Config) (*ChatModel, error) {
	switch cfg.LLMProvider {
	case "openai":
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.LLMModel,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai model: %w", err)
		}
		return &ChatModel{model: cm}, nil

	case "deepseek":
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    cfg.DeepSeekAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: 4096,
		})
		if err != nil {
			return nil, fmt.Errorf("init deepseek model: %w", err)
		}
		return &ChatModel{model: cm}, nil
	}

	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}

// Complete sends one user message and returns the trimmed response text.
func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := m.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("model generate: %w", err)
	}
	return strings.TrimSpace(msg.Content), nil
}
