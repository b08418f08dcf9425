package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

func TestIndexEnsuresCollectionOnce(t *testing.T) {
	var ensureCalls, upsertCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			atomic.AddInt32(&ensureCalls, 1)
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if _, ok := body["sparse_vectors"]; !ok {
				t.Errorf("expected sparse_vectors in create body, got %v", body)
			}
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/index":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			atomic.AddInt32(&upsertCalls, 1)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks", "")
	chunks := []domain.DocumentChunk{{ID: "s1_fs_chunk_0", Content: "Revenue"}, {ID: "s1_fs_chunk_1", Content: "Leases"}}
	ref := domain.DocumentRef{SessionID: "s1", DocumentHash: "h1", SourceFile: "fs.pdf"}

	for i := 0; i < 2; i++ {
		n, err := client.Index(context.Background(), chunks, ref)
		if err != nil {
			t.Fatalf("Index() error = %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2 indexed, got %d", n)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if got := atomic.LoadInt32(&upsertCalls); got != 2 {
		t.Fatalf("expected 2 upserts, got %d", got)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/chunks" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "chunks", "")
	_, err := client.Index(context.Background(), []domain.DocumentChunk{{ID: "c", Content: "a"}}, domain.DocumentRef{SessionID: "s1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestSearchSendsFiltersAndDeduplicates(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/chunks/points/query" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("api-key") != "secret" {
			t.Errorf("expected api-key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"score":2.5,"payload":{"id":"c1","content":"Revenue policy","taxonomy":"notes","chunk_index":3,"has_table":true}},
			{"score":2.1,"payload":{"id":"c9","content":"Revenue policy","taxonomy":"notes","chunk_index":9}},
			{"score":1.0,"payload":{"id":"c2","content":"Leases","taxonomy":"notes","chunk_index":4}}
		]}}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", "secret")
	hits, err := client.Search(context.Background(), "revenue policy", domain.SearchFilter{
		DocumentHash: "h1",
		SessionID:    "s1",
		Taxonomies:   []domain.Taxonomy{domain.TaxonomyNotes},
	}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 deduplicated hits, got %+v", hits)
	}
	if hits[0].ChunkID != "c1" || hits[0].ChunkIndex != 3 || !hits[0].HasTable || hits[0].Taxonomy != domain.TaxonomyNotes {
		t.Fatalf("unexpected first hit: %+v", hits[0])
	}
	if captured["using"] != sparseVectorName {
		t.Fatalf("expected sparse vector name in query, got %v", captured["using"])
	}
	filter, _ := captured["filter"].(map[string]any)
	must, _ := filter["must"].([]any)
	if len(must) != 3 {
		t.Fatalf("expected 3 filter clauses, got %v", filter)
	}
}

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	client := New("http://127.0.0.1:0", "chunks", "")
	hits, err := client.Search(context.Background(), "!!!", domain.SearchFilter{}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestDeleteSessionCountsThenDeletes(t *testing.T) {
	var deleted int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/chunks/points/count":
			_, _ = w.Write([]byte(`{"result":{"count":7}}`))
		case "/collections/chunks/points/delete":
			atomic.AddInt32(&deleted, 1)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks", "")
	n, err := client.DeleteSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if n != 7 || atomic.LoadInt32(&deleted) != 1 {
		t.Fatalf("expected 7 deleted in one call, got n=%d calls=%d", n, deleted)
	}
}

func TestPointIDIsStable(t *testing.T) {
	if pointID("s1", "c1") != pointID("s1", "c1") {
		t.Fatalf("expected stable point id")
	}
	if pointID("s1", "c1") == pointID("s2", "c1") {
		t.Fatalf("expected session-scoped point id")
	}
}
