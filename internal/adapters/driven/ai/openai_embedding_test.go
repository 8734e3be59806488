package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

func TestNewOpenAIEmbedding_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedding("", "text-embedding-3-small", "")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNewOpenAIEmbedding_DefaultModel(t *testing.T) {
	svc, err := NewOpenAIEmbedding("sk-test", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	emb := svc.(*OpenAIEmbedding)
	if emb.model != "text-embedding-3-small" {
		t.Errorf("expected default model text-embedding-3-small, got %s", emb.model)
	}
}

func TestOpenAIEmbedding_Dimensions(t *testing.T) {
	testCases := []struct {
		model      string
		dimensions int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"unknown-model", 1536}, // defaults to 1536
	}

	for _, tc := range testCases {
		t.Run(tc.model, func(t *testing.T) {
			svc, err := NewOpenAIEmbedding("sk-test", tc.model, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if svc.Dimensions() != tc.dimensions {
				t.Errorf("expected dimensions %d, got %d", tc.dimensions, svc.Dimensions())
			}
		})
	}
}

func TestOpenAIEmbedding_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		// Return embeddings in reversed index order; the client must
		// restore input order.
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0.4, 0.5}},
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2}},
			},
			"model": "text-embedding-3-small",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	svc, err := NewOpenAIEmbedding("sk-test", "text-embedding-3-small", server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	embeddings, err := svc.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embeddings))
	}
	if embeddings[0][0] != 0.1 || embeddings[1][0] != 0.4 {
		t.Error("embeddings not restored to input order")
	}
}

func TestOpenAIEmbedding_EmptyDataRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{},
			"model":  "text-embedding-3-small",
		})
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding("sk-test", "text-embedding-3-small", server.URL)

	vec, err := svc.EmbedQuery(context.Background(), "query")
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for empty data, got %v", err)
	}
	if vec != nil {
		t.Errorf("expected no vector, got %v", vec)
	}
}

func TestOpenAIEmbedding_ShortDataRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2}},
			},
			"model": "text-embedding-3-small",
		})
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding("sk-test", "text-embedding-3-small", server.URL)

	_, err := svc.Embed(context.Background(), []string{"first", "second"})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for short data, got %v", err)
	}
}

func TestOpenAIEmbedding_EmptyVectorRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{}},
			},
			"model": "text-embedding-3-small",
		})
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding("sk-test", "text-embedding-3-small", server.URL)

	_, err := svc.EmbedQuery(context.Background(), "query")
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for empty vector, got %v", err)
	}
}

func TestOpenAIEmbedding_RateLimited(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding("sk-test", "text-embedding-3-small", server.URL)

	_, err := svc.EmbedQuery(context.Background(), "query")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if calls != defaultRetryAttempts {
		t.Errorf("expected %d attempts, got %d", defaultRetryAttempts, calls)
	}
}

func TestOpenAIEmbedding_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid input", "type": "invalid_request_error", "code": "bad"},
		})
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding("sk-test", "text-embedding-3-small", server.URL)

	_, err := svc.EmbedQuery(context.Background(), "query")
	if err == nil {
		t.Fatal("expected API error")
	}
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("client error should not be retryable: %v", err)
	}
}
