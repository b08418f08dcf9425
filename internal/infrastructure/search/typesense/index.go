package typesense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/search"
)

const (
	DefaultCollection = "compliance_chunks"
	deleteBatchSize   = 250
)

// Index stores chunks in a Typesense collection and answers full-text
// queries over their content.
type Index struct {
	client     *typesense.Client
	collection string

	ensureMu sync.Mutex
	ensured  bool
}

func New(serverURL, apiKey, collection string) *Index {
	if strings.TrimSpace(collection) == "" {
		collection = DefaultCollection
	}
	client := typesense.NewClient(
		typesense.WithServer(serverURL),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(10*time.Second),
	)
	return &Index{client: client, collection: collection}
}

func (i *Index) EnsureCollection(ctx context.Context) error {
	i.ensureMu.Lock()
	defer i.ensureMu.Unlock()
	if i.ensured {
		return nil
	}

	if _, err := i.client.Collection(i.collection).Retrieve(ctx); err == nil {
		i.ensured = true
		return nil
	}

	schema := &api.CollectionSchema{
		Name: i.collection,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "content", Type: "string"},
			{Name: "chunk_index", Type: "int32"},
			{Name: "document_hash", Type: "string", Facet: pointer.True()},
			{Name: "session_id", Type: "string", Facet: pointer.True()},
			{Name: "taxonomy", Type: "string", Facet: pointer.True()},
			{Name: "has_table", Type: "bool"},
			{Name: "char_count", Type: "int32"},
			{Name: "source_file", Type: "string", Optional: pointer.True()},
		},
		DefaultSortingField: pointer.String("chunk_index"),
	}
	if _, err := i.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("create typesense collection: %w", err)
	}
	slog.Info("typesense_collection_created", "collection", i.collection)
	i.ensured = true
	return nil
}

func (i *Index) Index(ctx context.Context, chunks []domain.DocumentChunk, ref domain.DocumentRef) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := i.EnsureCollection(ctx); err != nil {
		return 0, err
	}

	indexed := 0
	for _, chunk := range chunks {
		document := map[string]interface{}{
			"id":            chunk.ID,
			"content":       chunk.Content,
			"chunk_index":   chunk.Index,
			"document_hash": ref.DocumentHash,
			"session_id":    ref.SessionID,
			"taxonomy":      string(chunk.Taxonomy),
			"has_table":     chunk.HasTable,
			"char_count":    chunk.CharCount,
			"source_file":   ref.SourceFile,
		}
		if _, err := i.client.Collection(i.collection).Documents().Upsert(ctx, document); err != nil {
			return indexed, fmt.Errorf("index chunk %s: %w", chunk.ID, err)
		}
		indexed++
	}
	return indexed, nil
}

func (i *Index) Search(ctx context.Context, query string, filter domain.SearchFilter, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	params := &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("content"),
		PerPage: pointer.Int(topK * 2),
		Page:    pointer.Int(1),
	}
	if expr := filterExpression(filter); expr != "" {
		params.FilterBy = pointer.String(expr)
	}

	result, err := i.client.Collection(i.collection).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search typesense: %w", err)
	}
	if result.Hits == nil {
		return []domain.SearchHit{}, nil
	}

	hits := make([]domain.SearchHit, 0, len(*result.Hits))
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		var score float64
		if hit.TextMatch != nil {
			score = float64(*hit.TextMatch)
		}
		hits = append(hits, hitFromDocument(*hit.Document, score))
	}
	return search.Dedup(hits, topK), nil
}

// DeleteSession removes every chunk of the session with a single filtered
// delete. A missing collection counts as nothing to delete.
func (i *Index) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	deleted, err := i.client.Collection(i.collection).Documents().Delete(ctx, &api.DeleteDocumentsParams{
		FilterBy:  pointer.String("session_id:=" + quote(sessionID)),
		BatchSize: pointer.Int(deleteBatchSize),
	})
	if err != nil {
		var httpErr *typesense.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("delete session chunks: %w", err)
	}
	return deleted, nil
}

func filterExpression(filter domain.SearchFilter) string {
	clauses := make([]string, 0, 3)
	if filter.DocumentHash != "" {
		clauses = append(clauses, "document_hash:="+quote(filter.DocumentHash))
	}
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id:="+quote(filter.SessionID))
	}
	if len(filter.Taxonomies) > 0 {
		values := make([]string, 0, len(filter.Taxonomies))
		for _, t := range filter.Taxonomies {
			values = append(values, quote(string(t)))
		}
		clauses = append(clauses, "taxonomy:=["+strings.Join(values, ",")+"]")
	}
	return strings.Join(clauses, " && ")
}

func quote(value string) string {
	return "`" + strings.ReplaceAll(value, "`", "") + "`"
}

func hitFromDocument(doc map[string]interface{}, score float64) domain.SearchHit {
	hit := domain.SearchHit{
		ChunkID:  stringField(doc, "id"),
		Content:  stringField(doc, "content"),
		Score:    score,
		Taxonomy: domain.Taxonomy(stringField(doc, "taxonomy")),
	}
	if hit.Taxonomy == "" {
		hit.Taxonomy = domain.TaxonomyGeneral
	}
	if v, ok := doc["chunk_index"].(float64); ok {
		hit.ChunkIndex = int(v)
	}
	if v, ok := doc["has_table"].(bool); ok {
		hit.HasTable = v
	}
	return hit
}

func stringField(doc map[string]interface{}, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}
