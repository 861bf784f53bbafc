package aiprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/brandcraft/server/internal/utils/requestctx"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicDefaultModel   = "claude-3-5-haiku-latest"
)

// AnthropicConfig configures the Anthropic messages backend.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AnthropicProvider implements outbound.GenerationProviderPort on the messages API.
type AnthropicProvider struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
}

// NewAnthropicProvider creates a new Anthropic provider with the given HTTP client.
func NewAnthropicProvider(cfg AnthropicConfig, client *http.Client) *AnthropicProvider {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	modelID := cfg.Model
	if modelID == "" {
		modelID = anthropicDefaultModel
	}

	return &AnthropicProvider{
		client:  client,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   modelID,
	}
}

// Generate performs a non-streaming message completion.
func (a *AnthropicProvider) Generate(ctx context.Context, req *model.GenerationRequest) (*model.Generation, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body := map[string]any{
		"model":       a.model,
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}
	if callerID := requestctx.CallerID(ctx); callerID != "" {
		body["metadata"] = map[string]string{"user_id": callerID}
	}

	respBody, err := a.doRequest(ctx, "/messages", body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var anthropicResp struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(respBody).Decode(&anthropicResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Extract text content
	var content strings.Builder
	for _, c := range anthropicResp.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}
	if content.Len() == 0 {
		return nil, errors.New("response contained no text content")
	}

	modelID := anthropicResp.Model
	if modelID == "" {
		modelID = a.model
	}

	return &model.Generation{
		Text: content.String(),
		Usage: model.Usage{
			InputTokens:  anthropicResp.Usage.InputTokens,
			OutputTokens: anthropicResp.Usage.OutputTokens,
		},
		ModelID: modelID,
	}, nil
}

// doRequest performs an HTTP request to the Anthropic API.
func (a *AnthropicProvider) doRequest(ctx context.Context, path string, body map[string]any) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return resp.Body, nil
}

// Compile-time interface assertions
var _ outbound.GenerationProviderPort = (*AnthropicProvider)(nil)
