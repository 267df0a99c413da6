package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbedderEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("expected /api/embeddings, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	c := NewOllamaEmbedder(server.URL, "nomic-embed-text", 3)
	got, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(got) != 3 || got[0] != 0.1 {
		t.Fatalf("unexpected embedding: %v", got)
	}
}

func TestOllamaEmbedderEmbedBatch_SequentialFallback(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{float64(calls)}})
	}))
	defer server.Close()

	c := NewOllamaEmbedder(server.URL, "nomic-embed-text", 1)
	got, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(got))
	}
	if calls != 3 {
		t.Fatalf("expected 3 sequential calls (no native batch endpoint), got %d", calls)
	}
}

func TestOllamaEmbedderNon200Response(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewOllamaEmbedder(server.URL, "nomic-embed-text", 3)
	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestOllamaEmbedderDimensionAndModelName(t *testing.T) {
	c := NewOllamaEmbedder("http://localhost:11434", "nomic-embed-text", 768)
	if c.Dimension() != 768 {
		t.Errorf("expected dimension 768, got %d", c.Dimension())
	}
	if c.ModelName() != "nomic-embed-text" {
		t.Errorf("expected model name nomic-embed-text, got %s", c.ModelName())
	}
}
