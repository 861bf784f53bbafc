package aiprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/brandcraft/server/internal/utils/requestctx"
	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible chat completion backend.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OpenAIProvider implements outbound.GenerationProviderPort on the chat completions API.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	counter *TokenCounter
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig, counter *TokenCounter) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}
	if counter == nil {
		counter = NewTokenCounter()
	}
	modelID := cfg.Model
	if modelID == "" {
		modelID = openai.GPT4oMini
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(config),
		model:   modelID,
		counter: counter,
	}
}

// Generate performs a non-streaming chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req *model.GenerationRequest) (*model.Generation, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		User:        requestctx.CallerID(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	text := resp.Choices[0].Message.Content
	modelID := resp.Model
	if modelID == "" {
		modelID = p.model
	}

	usage := model.Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if usage.TotalTokens() == 0 {
		usage.InputTokens = p.counter.Count(modelID, req.SystemPrompt) + p.counter.Count(modelID, req.Prompt)
		usage.OutputTokens = p.counter.Count(modelID, text)
	}

	return &model.Generation{
		Text:    text,
		Usage:   usage,
		ModelID: modelID,
	}, nil
}

// Compile-time interface assertions
var _ outbound.GenerationProviderPort = (*OpenAIProvider)(nil)
