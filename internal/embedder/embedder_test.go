package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// ---------------------------------------------------------------------------
// Ollama
// ---------------------------------------------------------------------------

// newFakeOllama returns a server answering /api/embed with one 2-d vector per
// input whose first value is the input length. requests counts embed calls.
func newFakeOllama(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = io.WriteString(w, `{"models":[]}`)
		case "/api/embed":
			requests.Add(1)
			var req ollamaEmbedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.Model == "missing" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"error":"model \"missing\" not found, try pulling it first"}`)
				return
			}
			resp := ollamaEmbedResponse{}
			for _, in := range req.Input {
				resp.Embeddings = append(resp.Embeddings, []float32{float32(len(in)), 1})
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newFakeOllama(t, &requests)
	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "all-minilm", BatchSize: 2})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := emb.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if int(v[0]) != len(texts[i]) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("expected 3 batched requests, got %d", got)
	}
}

func TestOllamaEmbedder_StatusError(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newFakeOllama(t, &requests)
	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})

	_, err := emb.Embed(context.Background(), []string{"x"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusNotFound || !strings.Contains(se.Message, "not found") {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestOllamaEmbedder_EmptyInput(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newFakeOllama(t, &requests)
	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "all-minilm"})

	vecs, err := emb.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("Embed(nil) = %v, %v", vecs, err)
	}
	if requests.Load() != 0 {
		t.Error("empty input should not hit the server")
	}
}

func TestOllamaEmbedder_Ping(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newFakeOllama(t, &requests)
	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "all-minilm"})
	if err := emb.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if emb.Name() != "embedder" {
		t.Errorf("Name() = %q", emb.Name())
	}

	srv.Close()
	if err := emb.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error after server closed")
	}
}

// ---------------------------------------------------------------------------
// OpenAI / Azure
// ---------------------------------------------------------------------------

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`)
	}))
	t.Cleanup(srv.Close)

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "text-embedding-3-small"})
	vecs, err := emb.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("vectors not reordered by index: %v", vecs)
	}

	bad := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "wrong", Model: "m"})
	_, err = bad.Embed(context.Background(), []string{"x"})
	var se *StatusError
	if !errors.As(err, &se) || se.Message != "bad key" {
		t.Fatalf("expected StatusError with message, got %v", err)
	}
}

func TestOpenAIEmbedder_AzureRouting(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/embed-dep/embeddings" ||
			r.URL.Query().Get("api-version") != "2024-02-01" ||
			r.Header.Get("api-key") != "az-key" {
			http.Error(w, "bad route", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"index":0,"embedding":[0.5]}]}`)
	}))
	t.Cleanup(srv.Close)

	emb := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL + "/openai",
		APIKey:     "az-key",
		Model:      "embed-dep",
		Azure:      true,
		APIVersion: "2024-02-01",
	})
	if _, err := emb.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Factory and validation
// ---------------------------------------------------------------------------

func TestBackend(t *testing.T) {
	tests := []struct {
		embedding, model, want string
	}{
		{"", "", "ollama"},
		{"", "gemini", "ollama"},
		{"", "ark", "ollama"},
		{"", "azure", "azure"},
		{"", "openai", "openai"},
		{"ollama", "openai", "ollama"},
	}
	for _, tt := range tests {
		t.Setenv("EMBEDDING_PROVIDER", tt.embedding)
		t.Setenv("MODEL_PROVIDER", tt.model)
		if got := Backend(); got != tt.want {
			t.Errorf("Backend(EMBEDDING_PROVIDER=%q, MODEL_PROVIDER=%q) = %q, want %q", tt.embedding, tt.model, got, tt.want)
		}
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewFromEnv(); err == nil {
		t.Error("expected error for openai without key")
	}

	t.Setenv("EMBEDDING_PROVIDER", "azure")
	t.Setenv("AZURE_OPENAI_API_KEY", "key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	t.Setenv("EMBEDDING_ENDPOINT", "")
	if _, err := NewFromEnv(); err == nil {
		t.Error("expected error for azure without endpoint")
	}

	t.Setenv("EMBEDDING_PROVIDER", "bedrock")
	if _, err := NewFromEnv(); err == nil {
		t.Error("expected error for unknown backend")
	}

	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	emb, err := NewFromEnv()
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if o, ok := emb.(*OllamaEmbedder); !ok || o.model != defaultOllamaModel {
		t.Errorf("expected ollama embedder with default model, got %#v", emb)
	}
}

func TestValidateForRAG(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Setenv("EMBEDDING_MODEL", "gemma:2b")
	if !ValidateForRAG(log) {
		t.Error("expected warning for chat model")
	}

	t.Setenv("EMBEDDING_MODEL", "all-minilm")
	if ValidateForRAG(log) {
		t.Error("unexpected warning for embedding model")
	}
}
