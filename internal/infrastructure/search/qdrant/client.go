package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/search"
)

const (
	sparseVectorName = "text"
	upsertBatchSize  = 128
	searchOverfetch  = 2
)

// Client indexes chunks into a sparse-only Qdrant collection and scores
// queries with BM25-style term weights.
type Client struct {
	baseURL    string
	collection string
	apiKey     string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
}

func New(baseURL, collection, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type point struct {
	ID      string                  `json:"id"`
	Vector  map[string]sparseVector `json:"vector"`
	Payload map[string]any          `json:"payload"`
}

func (c *Client) Index(ctx context.Context, chunks []domain.DocumentChunk, ref domain.DocumentRef) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := c.ensureCollection(ctx); err != nil {
		return 0, err
	}

	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, point{
			ID: pointID(ref.SessionID, chunk.ID),
			Vector: map[string]sparseVector{
				sparseVectorName: encodeSparseDocument(chunk.Content, ref.SourceFile),
			},
			Payload: map[string]any{
				"id":            chunk.ID,
				"content":       chunk.Content,
				"chunk_index":   chunk.Index,
				"document_hash": ref.DocumentHash,
				"session_id":    ref.SessionID,
				"taxonomy":      string(chunk.Taxonomy),
				"has_table":     chunk.HasTable,
				"char_count":    chunk.CharCount,
				"source_file":   ref.SourceFile,
			},
		})
	}

	indexed := 0
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		if err := c.upsert(ctx, points[start:end]); err != nil {
			return indexed, err
		}
		indexed = end
	}
	return indexed, nil
}

func (c *Client) upsert(ctx context.Context, points []point) error {
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPut, url, map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("qdrant upsert request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError("qdrant upsert status", resp)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, query string, filter domain.SearchFilter, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	vector := encodeSparseQuery(query)
	if len(vector.Indices) == 0 {
		return []domain.SearchHit{}, nil
	}

	reqBody := map[string]any{
		"query":        vector,
		"using":        sparseVectorName,
		"limit":        topK * searchOverfetch,
		"with_payload": true,
	}
	if f := buildFilter(filter.DocumentHash, filter.SessionID, filter.Taxonomies); f != nil {
		reqBody["filter"] = f
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("qdrant query request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError("qdrant query status", resp)
	}

	points, err := decodeQueryPoints(resp.Body)
	if err != nil {
		return nil, err
	}
	hits := make([]domain.SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, domain.SearchHit{
			ChunkID:    getStringPayload(p.Payload, "id"),
			Content:    getStringPayload(p.Payload, "content"),
			Score:      p.Score,
			Taxonomy:   domain.Taxonomy(getStringPayload(p.Payload, "taxonomy")),
			ChunkIndex: getIntPayload(p.Payload, "chunk_index"),
			HasTable:   getBoolPayload(p.Payload, "has_table"),
		})
	}
	return search.Dedup(hits, topK), nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	filter := buildFilter("", sessionID, nil)

	countURL := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPost, countURL, map[string]any{"filter": filter, "exact": true})
	if err != nil {
		return 0, fmt.Errorf("qdrant count request: %w", err)
	}
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return 0, nil
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return 0, statusError("qdrant count status", resp)
	}
	err = json.NewDecoder(resp.Body).Decode(&countResp)
	resp.Body.Close()
	if err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	if countResp.Result.Count == 0 {
		return 0, nil
	}

	deleteURL := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	resp, err = c.do(ctx, http.MethodPost, deleteURL, map[string]any{"filter": filter})
	if err != nil {
		return 0, fmt.Errorf("qdrant delete request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, statusError("qdrant delete status", resp)
	}
	return countResp.Result.Count, nil
}

func (c *Client) ensureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	if c.ensuredCollection {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{"modifier": "idf"},
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPut, url, reqBody)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 409 when the collection already exists.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return statusError("qdrant ensure collection status", resp)
	}

	if err := c.ensurePayloadIndexes(ctx); err != nil {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) ensurePayloadIndexes(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s/index?wait=true", c.baseURL, c.collection)
	for _, field := range []string{"document_hash", "session_id", "taxonomy"} {
		resp, err := c.do(ctx, http.MethodPut, url, map[string]any{
			"field_name":   field,
			"field_schema": "keyword",
		})
		if err != nil {
			return fmt.Errorf("qdrant payload index request: %w", err)
		}
		if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
			err := statusError("qdrant payload index status", resp)
			resp.Body.Close()
			return err
		}
		resp.Body.Close()
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	return c.httpClient.Do(req)
}

func buildFilter(documentHash, sessionID string, taxonomies []domain.Taxonomy) map[string]any {
	must := make([]map[string]any, 0, 3)
	if documentHash != "" {
		must = append(must, map[string]any{
			"key":   "document_hash",
			"match": map[string]any{"value": documentHash},
		})
	}
	if sessionID != "" {
		must = append(must, map[string]any{
			"key":   "session_id",
			"match": map[string]any{"value": sessionID},
		})
	}
	if len(taxonomies) > 0 {
		values := make([]string, 0, len(taxonomies))
		for _, t := range taxonomies {
			values = append(values, string(t))
		}
		must = append(must, map[string]any{
			"key":   "taxonomy",
			"match": map[string]any{"any": values},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// pointID derives a stable UUID so re-indexing a session overwrites its points.
func pointID(sessionID, chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sessionID+"/"+chunkID)).String()
}

type queryPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func decodeQueryPoints(r io.Reader) ([]queryPoint, error) {
	var resp struct {
		Result struct {
			Points []queryPoint `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return resp.Result.Points, nil
}

func statusError(prefix string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("%s: %s: %s", prefix, resp.Status, msg)
	}
	return fmt.Errorf("%s: %s", prefix, resp.Status)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func getBoolPayload(payload map[string]any, key string) bool {
	b, _ := payload[key].(bool)
	return b
}
