package aiprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Provider types.
const (
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"
	TypeEcho      = "echo"
)

// Config selects and configures the generation backend.
type Config struct {
	Type    string         `mapstructure:"type"`
	APIKey  string         `mapstructure:"api_key"`
	BaseURL string         `mapstructure:"base_url"`
	Model   string         `mapstructure:"model"`
	Breaker *BreakerConfig `mapstructure:"breaker"`
}

// New builds the configured provider wrapped in a circuit breaker.
func New(cfg *Config, client *http.Client, logger *zap.Logger, onHealth func(provider string, healthy bool)) (outbound.GenerationProviderPort, error) {
	var provider outbound.GenerationProviderPort

	switch strings.ToLower(cfg.Type) {
	case TypeOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an api key")
		}
		provider = NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: client,
		}, NewTokenCounter())
	case TypeAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an api key")
		}
		provider = NewAnthropicProvider(AnthropicConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, client)
	case TypeEcho:
		provider = NewEchoProvider(NewTokenCounter())
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}

	name := strings.ToLower(cfg.Type)
	if name == "" {
		name = TypeOpenAI
	}
	return NewBreakerProvider(name, provider, cfg.Breaker, logger, onHealth), nil
}

// EchoProvider returns the prompt's instruction lines as text. It is meant for local runs
// without backend credentials.
type EchoProvider struct {
	counter *TokenCounter
}

// NewEchoProvider creates a new echo provider.
func NewEchoProvider(counter *TokenCounter) *EchoProvider {
	if counter == nil {
		counter = NewTokenCounter()
	}
	return &EchoProvider{counter: counter}
}

// Generate echoes the prompt.
func (e *EchoProvider) Generate(ctx context.Context, req *model.GenerationRequest) (*model.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines := strings.Split(req.Prompt, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(strings.TrimSpace(line), ".")
	}
	text := strings.Join(lines, ". ") + "."

	return &model.Generation{
		Text: text,
		Usage: model.Usage{
			InputTokens:  e.counter.Count(TypeEcho, req.SystemPrompt) + e.counter.Count(TypeEcho, req.Prompt),
			OutputTokens: e.counter.Count(TypeEcho, text),
		},
		ModelID: TypeEcho,
	}, nil
}

// Compile-time interface assertions
var _ outbound.GenerationProviderPort = (*EchoProvider)(nil)
