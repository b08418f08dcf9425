package typesense

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeleteSessionUsesSingleFilteredDelete(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodDelete || r.URL.Path != "/collections/chunks/documents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("filter_by"); got != "session_id:=`s1`" {
			t.Errorf("unexpected filter_by %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"num_deleted":3}`))
	}))
	defer server.Close()

	deleted, err := New(server.URL, "key", "chunks").DeleteSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}
	if calls != 1 {
		t.Fatalf("expected one request, got %d", calls)
	}
}

func TestDeleteSessionMissingCollectionIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer server.Close()

	deleted, err := New(server.URL, "key", "chunks").DeleteSession(context.Background(), "s1")
	if err != nil || deleted != 0 {
		t.Fatalf("expected empty delete, got deleted=%d err=%v", deleted, err)
	}
}
