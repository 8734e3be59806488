package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Ensure AnthropicLLM implements LLMService
var _ driven.LLMService = (*AnthropicLLM)(nil)

const anthropicAPIVersion = "2023-06-01"

// AnthropicLLM implements LLMService using Anthropic's messages API
type AnthropicLLM struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewAnthropicLLM creates a new Anthropic LLM service
func NewAnthropicLLM(apiKey, model string) (driven.LLMService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	return &AnthropicLLM{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.anthropic.com/v1",
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate produces text for the given prompt
func (l *AnthropicLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (*driven.Generation, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	reqBody := anthropicRequest{
		Model:       l.model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	}

	var resp *anthropicResponse
	err := withRetries(ctx, defaultRetryAttempts, func() error {
		var reqErr error
		resp, reqErr = l.doRequest(ctx, reqBody)
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no completion returned")
	}

	return &driven.Generation{Text: text}, nil
}

// Model returns the model name being used
func (l *AnthropicLLM) Model() string {
	return l.model
}

// Ping verifies the LLM service is available
func (l *AnthropicLLM) Ping(ctx context.Context) error {
	_, err := l.Generate(ctx, "ping", driven.GenerateOptions{MaxTokens: 1})
	return err
}

// Close releases resources held by the LLM service
func (l *AnthropicLLM) Close() error {
	l.client.CloseIdleConnections()
	return nil
}

func (l *AnthropicLLM) doRequest(ctx context.Context, reqBody anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusError("Anthropic", resp.StatusCode)
		}
		if apiResp.Error != nil {
			return nil, fmt.Errorf("Anthropic API error: %s (type: %s)", apiResp.Error.Message, apiResp.Error.Type)
		}
		return nil, statusError("Anthropic", resp.StatusCode)
	}

	return &apiResp, nil
}
