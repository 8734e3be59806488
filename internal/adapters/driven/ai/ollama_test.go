package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

func newOllamaEmbedServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		n := 1
		if texts, ok := req.Input.([]any); ok {
			n = len(texts)
		}
		embeddings := make([][]float32, n)
		for i := range embeddings {
			vec := make([]float32, dims)
			for j := range vec {
				vec[j] = 0.1
			}
			embeddings[i] = vec
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedding_ConcurrentDimensionLatch(t *testing.T) {
	srv := newOllamaEmbedServer(t, 3)

	svc, err := NewOllamaEmbedding(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range 4 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Embed(context.Background(), []string{"a", "b"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: unexpected error: %v", i, err)
		}
	}
	if svc.Dimensions() != 3 {
		t.Errorf("expected dimensions 3 after first response, got %d", svc.Dimensions())
	}
}

func TestOllamaEmbedding_CountMismatchRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1}}})
	}))
	defer srv.Close()

	svc, err := NewOllamaEmbedding(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Embed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for count mismatch, got %v", err)
	}
}
