package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is a minimal REST client to Qdrant implementing the vector
// index port. It assumes cosine distance and creates the collection on
// first use. Point IDs are chunk IDs (UUIDs), so upserts are idempotent.
//
// Status and element-code filters are applied by post-filtering through the
// document and schema stores, since Qdrant payloads are written at embed
// time and would go stale. The query over-fetches to compensate.
type VectorIndex struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	documents driven.DocumentStore
	schemas   driven.SchemaStore

	initMu      sync.Mutex
	initialized bool
}

// Config holds Qdrant connection settings.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:        url,
		Collection: "regcore_chunks",
		Timeout:    15 * time.Second,
	}
}

// NewVectorIndex creates a Qdrant-backed vector index. The document and
// schema stores are used for status and element-code post-filtering.
func NewVectorIndex(cfg Config, documents driven.DocumentStore, schemas driven.SchemaStore) *VectorIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "regcore_chunks"
	}
	return &VectorIndex{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
		documents:  documents,
		schemas:    schemas,
	}
}

// ensureCollection creates the collection if missing. Qdrant returns 200
// when the collection already exists with the same schema. Safe for
// concurrent callers; a failed create is retried on the next call.
func (v *VectorIndex) ensureCollection(ctx context.Context, dimension int) error {
	v.initMu.Lock()
	defer v.initMu.Unlock()
	if v.initialized {
		return nil
	}
	if dimension <= 0 {
		return errors.New("invalid vector dimension")
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	err := v.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", v.url, v.collection), body, nil)
	if err != nil {
		return err
	}
	v.initialized = true
	return nil
}

// Upsert stores or replaces the vector for a chunk
func (v *VectorIndex) Upsert(ctx context.Context, entry driven.VectorEntry) error {
	return v.UpsertBatch(ctx, []driven.VectorEntry{entry})
}

// UpsertBatch stores multiple vectors
func (v *VectorIndex) UpsertBatch(ctx context.Context, entries []driven.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := v.ensureCollection(ctx, len(entries[0].Vector)); err != nil {
		return err
	}

	points := make([]map[string]any, len(entries))
	for i, entry := range entries {
		points[i] = map[string]any{
			"id":     entry.ChunkID,
			"vector": entry.Vector,
			"payload": map[string]any{
				"chunk_id":    entry.ChunkID,
				"document_id": entry.DocumentID,
				"schema_type": string(entry.SchemaType),
				"model":       entry.Model,
			},
		}
	}

	body := map[string]any{"points": points}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", v.url, v.collection)
	return v.doJSON(ctx, http.MethodPut, url, body, nil)
}

// Query returns the k nearest entries produced by the given model, ordered
// by descending cosine similarity.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, model string, k int, filters domain.SearchFilters) ([]driven.VectorMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	needsPostFilter := filters.Status != "" || len(filters.ElementCodes) > 0
	limit := k
	if needsPostFilter {
		limit = k * 3
		if limit < 20 {
			limit = 20
		}
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter":       buildFilter(model, filters),
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", v.url, v.collection)
	if err := v.doJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}

	docStatus := make(map[string]domain.ProcessingStatus)
	matches := make([]driven.VectorMatch, 0, k)

	for _, r := range resp.Result {
		chunkID, _ := r.Payload["chunk_id"].(string)
		documentID, _ := r.Payload["document_id"].(string)
		if chunkID == "" {
			continue
		}

		if filters.Status != "" {
			status, err := v.documentStatus(ctx, documentID, docStatus)
			if err != nil {
				return nil, err
			}
			if status != filters.Status {
				continue
			}
		}
		if len(filters.ElementCodes) > 0 {
			ok, err := v.chunkMapsToAny(ctx, chunkID, filters.ElementCodes)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		// Qdrant cosine score is similarity in [-1,1]
		matches = append(matches, driven.VectorMatch{
			ChunkID:    chunkID,
			DocumentID: documentID,
			Similarity: r.Score,
			Relevance:  (r.Score + 1) / 2,
		})
		if len(matches) == k {
			break
		}
	}

	return matches, nil
}

// buildFilter translates the natively-enforceable filters to a Qdrant
// filter expression.
func buildFilter(model string, filters domain.SearchFilters) map[string]any {
	must := []map[string]any{
		{"key": "model", "match": map[string]any{"value": model}},
	}
	if filters.SchemaType != "" {
		must = append(must, map[string]any{
			"key": "schema_type", "match": map[string]any{"value": string(filters.SchemaType)},
		})
	}
	if filters.DocumentID != "" {
		must = append(must, map[string]any{
			"key": "document_id", "match": map[string]any{"value": filters.DocumentID},
		})
	}

	filter := map[string]any{"must": must}
	if filters.ExcludeDocumentID != "" {
		filter["must_not"] = []map[string]any{
			{"key": "document_id", "match": map[string]any{"value": filters.ExcludeDocumentID}},
		}
	}
	return filter
}

func (v *VectorIndex) documentStatus(ctx context.Context, documentID string, cache map[string]domain.ProcessingStatus) (domain.ProcessingStatus, error) {
	if status, ok := cache[documentID]; ok {
		return status, nil
	}
	doc, err := v.documents.Get(ctx, documentID)
	if errors.Is(err, domain.ErrNotFound) {
		cache[documentID] = domain.StatusFailed
		return domain.StatusFailed, nil
	}
	if err != nil {
		return "", err
	}
	cache[documentID] = doc.Status
	return doc.Status, nil
}

func (v *VectorIndex) chunkMapsToAny(ctx context.Context, chunkID string, codes []string) (bool, error) {
	mappings, err := v.schemas.GetMappings(ctx, domain.MappingTargetChunk, chunkID)
	if err != nil {
		return false, err
	}
	for _, m := range mappings {
		for _, code := range codes {
			if m.ElementCode == code {
				return true, nil
			}
		}
	}
	return false, nil
}

// GetVector returns the stored vector and model for a chunk
func (v *VectorIndex) GetVector(ctx context.Context, chunkID string) ([]float32, string, error) {
	var resp struct {
		Result struct {
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
		Status string `json:"status"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/%s", v.url, v.collection, chunkID)
	err := v.doJSON(ctx, http.MethodGet, url, nil, &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", err
	}
	if len(resp.Result.Vector) == 0 {
		return nil, "", domain.ErrNotFound
	}

	model, _ := resp.Result.Payload["model"].(string)
	return resp.Result.Vector, model, nil
}

// DeleteByDocument removes all index entries for a document
func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", v.url, v.collection)
	err := v.doJSON(ctx, http.MethodPost, url, body, nil)

	// Deleting before anything was indexed is fine
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

// HealthCheck verifies the index is available
func (v *VectorIndex) HealthCheck(ctx context.Context) error {
	return v.doJSON(ctx, http.MethodGet, v.url+"/collections", nil, nil)
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant request failed: %s", e.status)
}

func (v *VectorIndex) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("api-key", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
