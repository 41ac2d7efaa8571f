// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. Each implementation talks to a
// different backend (Ollama, OpenAI, Azure OpenAI) via plain HTTP.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 2048

// StatusError reports a non-2xx response from an embedding backend.
type StatusError struct {
	// Backend names the embedder that made the call ("ollama", "openai").
	Backend string
	// StatusCode is the HTTP status returned.
	StatusCode int
	// Message is the backend's error message, or the raw body if it had none.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s embedder: HTTP %d", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("%s embedder: HTTP %d: %s", e.Backend, e.StatusCode, e.Message)
}

// postJSON marshals body, posts it to url and decodes a 2xx response into
// out. Non-2xx responses become a *StatusError carrying the backend's
// message, extracted by errMsg when the body is JSON.
func postJSON(ctx context.Context, client *http.Client, backend, url string, header http.Header, body, out any, errMsg func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s embedder: marshal request: %w", backend, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s embedder: create request: %w", backend, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s embedder: request failed: %w", backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := ""
		if errMsg != nil {
			msg = errMsg(raw)
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &StatusError{Backend: backend, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s embedder: decode response: %w", backend, err)
	}
	return nil
}

// inBatches calls fn on consecutive slices of texts no longer than size and
// concatenates the results. A size of zero or less sends everything at once.
func inBatches(texts []string, size int, fn func([]string) ([][]float32, error)) ([][]float32, error) {
	if size <= 0 || len(texts) <= size {
		return fn(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := fn(texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}
