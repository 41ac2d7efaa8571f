package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OpenAIEmbedder implements rag.Embedder using the OpenAI (or Azure OpenAI)
// embeddings REST API. It is safe for concurrent use.
type OpenAIEmbedder struct {
	// endpoint is the fully resolved embeddings URL.
	endpoint string
	// header carries the auth header for the selected flavour.
	header http.Header
	// model is the embedding model name (e.g. "text-embedding-3-small").
	model string
	// dimensions is the desired embedding vector length (0 = model default).
	dimensions int
	// batchSize bounds texts per request.
	batchSize int
	// client is the shared HTTP client.
	client *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name, or the deployment name on Azure.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
	// BatchSize bounds texts per request. Defaults to 64.
	BatchSize int
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	endpoint := base + "/embeddings"
	header := http.Header{}
	if cfg.Azure {
		endpoint = base + "/deployments/" + url.PathEscape(cfg.Model) +
			"/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
		header.Set("api-key", cfg.APIKey)
	} else {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	return &OpenAIEmbedder{
		endpoint:   endpoint,
		header:     header,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  batch,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// openaiEmbedRequest is the JSON body sent to the embeddings endpoint.
type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// openaiEmbedResponse is the JSON body returned from the embeddings endpoint.
type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return inBatches(texts, e.batchSize, func(batch []string) ([][]float32, error) {
		var result openaiEmbedResponse
		err := postJSON(ctx, e.client, "openai", e.endpoint, e.header,
			openaiEmbedRequest{Input: batch, Model: e.model, Dimensions: e.dimensions},
			&result, openaiErrorMessage)
		if err != nil {
			return nil, err
		}
		if len(result.Data) != len(batch) {
			return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(batch), len(result.Data))
		}

		// The API may return data out of order; place by index.
		vecs := make([][]float32, len(batch))
		for _, d := range result.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(batch))
			}
			vecs[d.Index] = d.Embedding
		}
		return vecs, nil
	})
}

// openaiErrorMessage extracts error.message from an OpenAI error body.
func openaiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Error.Message
}
