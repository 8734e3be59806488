package ai

import (
	"context"
	"testing"
	"time"

	"github.com/veridian-labs/regcore/internal/core/ports/driven/mocks"
)

func TestCachedEmbedding_QueryHit(t *testing.T) {
	inner := mocks.NewMockEmbeddingService()
	svc := WrapWithCache(inner, 16, time.Minute)

	first, err := svc.EmbedQuery(context.Background(), "emissions")
	if err != nil {
		t.Fatalf("EmbedQuery failed: %v", err)
	}
	callsAfterFirst := inner.CallCount()

	second, err := svc.EmbedQuery(context.Background(), "emissions")
	if err != nil {
		t.Fatalf("cached EmbedQuery failed: %v", err)
	}
	if inner.CallCount() != callsAfterFirst {
		t.Error("cache hit still called the inner service")
	}
	if len(first) != len(second) {
		t.Fatal("cached vector length mismatch")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d", i)
		}
	}

	// Mutating the returned slice must not poison the cache.
	second[0] = -99
	third, _ := svc.EmbedQuery(context.Background(), "emissions")
	if third[0] == -99 {
		t.Error("cache returned a shared slice")
	}
}

func TestCachedEmbedding_BatchPartialHit(t *testing.T) {
	inner := mocks.NewMockEmbeddingService()
	svc := WrapWithCache(inner, 16, time.Minute)
	ctx := context.Background()

	if _, err := svc.EmbedQuery(ctx, "cached text"); err != nil {
		t.Fatalf("prime failed: %v", err)
	}

	vectors, err := svc.Embed(ctx, []string{"new text", "cached text", "another new"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			t.Errorf("vector %d is empty", i)
		}
	}

	// The cached entry and the fresh ones agree with direct embedding.
	direct, _ := inner.EmbedQuery(ctx, "cached text")
	for i := range direct {
		if vectors[1][i] != direct[i] {
			t.Fatal("cached batch position does not match direct embedding")
		}
	}
}

func TestWrapWithCache_Disabled(t *testing.T) {
	inner := mocks.NewMockEmbeddingService()

	if got := WrapWithCache(inner, 0, time.Minute); got != inner {
		t.Error("zero size should return the service unwrapped")
	}
	if got := WrapWithCache(inner, 16, 0); got != inner {
		t.Error("zero TTL should return the service unwrapped")
	}
	if got := WrapWithCache(nil, 16, time.Minute); got != nil {
		t.Error("nil service should stay nil")
	}
}
