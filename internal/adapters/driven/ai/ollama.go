package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Ensure the Ollama adapters implement their ports
var (
	_ driven.EmbeddingService = (*OllamaEmbedding)(nil)
	_ driven.LLMService       = (*OllamaLLM)(nil)
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaEmbedding implements EmbeddingService against a local Ollama server
type OllamaEmbedding struct {
	baseURL string
	model   string
	client  *http.Client

	// Dimensions are model-dependent and latched from the first response.
	// Guarded for concurrent Embed callers.
	mu         sync.Mutex
	dimensions int
}

// NewOllamaEmbedding creates a new Ollama embedding service
func NewOllamaEmbedding(baseURL, model string) (driven.EmbeddingService, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbedding{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed generates embeddings for multiple texts
func (e *OllamaEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp *ollamaEmbedResponse
	err := withRetries(ctx, defaultRetryAttempts, func() error {
		var reqErr error
		resp, reqErr = e.doRequest(ctx, ollamaEmbedRequest{Model: e.model, Input: texts})
		return reqErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", domain.ErrModelUnavailable, len(resp.Embeddings), len(texts))
	}

	e.mu.Lock()
	if e.dimensions == 0 && len(resp.Embeddings[0]) > 0 {
		e.dimensions = len(resp.Embeddings[0])
	}
	e.mu.Unlock()
	return resp.Embeddings, nil
}

// EmbedQuery generates an embedding for a search query
func (e *OllamaEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimension size (0 before the first call)
func (e *OllamaEmbedding) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimensions
}

// Model returns the model name being used
func (e *OllamaEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *OllamaEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding service
func (e *OllamaEmbedding) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *OllamaEmbedding) doRequest(ctx context.Context, reqBody ollamaEmbedRequest) (*ollamaEmbedResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var embResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if embResp.Error != "" {
		return nil, fmt.Errorf("Ollama error: %s", embResp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("Ollama", resp.StatusCode)
	}
	return &embResp, nil
}

// OllamaLLM implements LLMService against a local Ollama server
type OllamaLLM struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaLLM creates a new Ollama LLM service
func NewOllamaLLM(baseURL, model string) (driven.LLMService, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = "llama3.1"
	}
	return &OllamaLLM{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
	}, nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate produces text for the given prompt
func (l *OllamaLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (*driven.Generation, error) {
	options := map[string]any{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	reqBody := ollamaGenerateRequest{
		Model:   l.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	}

	var resp *ollamaGenerateResponse
	err := withRetries(ctx, defaultRetryAttempts, func() error {
		var reqErr error
		resp, reqErr = l.doRequest(ctx, reqBody)
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	return &driven.Generation{Text: resp.Response}, nil
}

// Model returns the model name being used
func (l *OllamaLLM) Model() string {
	return l.model
}

// Ping verifies the LLM service is available
func (l *OllamaLLM) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", l.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("Ollama", resp.StatusCode)
	}
	return nil
}

// Close releases resources held by the LLM service
func (l *OllamaLLM) Close() error {
	l.client.CloseIdleConnections()
	return nil
}

func (l *OllamaLLM) doRequest(ctx context.Context, reqBody ollamaGenerateRequest) (*ollamaGenerateResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if genResp.Error != "" {
		return nil, fmt.Errorf("Ollama error: %s", genResp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("Ollama", resp.StatusCode)
	}
	return &genResp, nil
}
