package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultConnectTimeout bounds TCP connection establishment.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultTimeout bounds a whole generation request.
	DefaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of an upstream error body is kept.
	maxErrorBody = 2048

	ollamaBackend = "Ollama"
)

// Options are the Ollama sampling parameters sent with each request.
type Options struct {
	Temperature   float32  `json:"temperature"`
	TopP          float32  `json:"top_p"`
	TopK          int      `json:"top_k"`
	NumThread     int      `json:"num_thread"`
	NumPredict    int      `json:"num_predict"`
	RepeatPenalty float32  `json:"repeat_penalty"`
	Stop          []string `json:"stop"`
}

// DefaultOptions returns the sampling parameters tuned for short, factual
// answers. Generation stops when the model starts echoing the prompt's
// section markers.
func DefaultOptions() Options {
	return Options{
		Temperature:   0.2,
		TopP:          0.9,
		TopK:          40,
		NumThread:     4,
		NumPredict:    700,
		RepeatPenalty: 1.2,
		Stop:          []string{"Question :", "Contexte :"},
	}
}

// OllamaConfig holds the settings for constructing an Ollama generator.
type OllamaConfig struct {
	// Host is the Ollama server base URL. Defaults to http://localhost:11434.
	Host string
	// Model is the generation model name (e.g. "gemma:2b").
	Model string
	// Options overrides DefaultOptions when non-nil.
	Options *Options
	// ConnectTimeout bounds connection establishment. Defaults to 5s.
	ConnectTimeout time.Duration
	// Timeout bounds the whole request. Defaults to 60s.
	Timeout time.Duration
}

// Ollama generates answers through the Ollama /api/generate endpoint.
// It is safe for concurrent use.
type Ollama struct {
	host    string
	model   string
	options Options
	client  *http.Client
}

// NewOllama constructs an Ollama generator. The returned client applies
// ConnectTimeout to dialing and Timeout to the request as a whole.
func NewOllama(cfg *OllamaConfig) *Ollama {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	opts := DefaultOptions()
	if cfg.Options != nil {
		opts = *cfg.Options
	}
	return &Ollama{
		host:    host,
		model:   cfg.Model,
		options: opts,
		client:  NewHTTPClient(cfg.ConnectTimeout, cfg.Timeout),
	}
}

// NewHTTPClient returns a client whose dialer gives up after connect and
// whose requests give up after total. Non-positive values select
// DefaultConnectTimeout and DefaultTimeout.
func NewHTTPClient(connect, total time.Duration) *http.Client {
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	if total <= 0 {
		total = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	return &http.Client{Timeout: total, Transport: transport}
}

// generateRequest is the JSON body sent to /api/generate.
type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	System  string  `json:"system"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

// generateResponse is the non-streaming /api/generate reply.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends one non-streaming generation request. It is never retried.
func (o *Ollama) Generate(ctx context.Context, question, grounding string) Result {
	payload, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  BuildPrompt(question, grounding),
		System:  SystemPersona,
		Stream:  false,
		Options: o.options,
	})
	if err != nil {
		return Result{Kind: KindTransport, Backend: ollamaBackend, Err: fmt.Errorf("generator: marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return Result{Kind: KindTransport, Backend: ollamaBackend, Err: fmt.Errorf("generator: create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return classify(ollamaBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Result{
			Kind:    KindUpstream,
			Backend: ollamaBackend,
			Status:  resp.StatusCode,
			Body:    strings.TrimSpace(string(body)),
		}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return classify(ollamaBackend, fmt.Errorf("generator: decode response: %w", err))
	}
	return Result{Kind: KindOK, Backend: ollamaBackend, Text: out.Response}
}

// Model is one entry of the Ollama model list.
type Model struct {
	Name       string    `json:"name"`
	Model      string    `json:"model,omitempty"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

// StatusError reports that the Ollama host answered, but not with 200.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generator: models: HTTP %d: %s", e.Status, e.Body)
}

// Models returns the models installed on the Ollama host.
func (o *Ollama) Models(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("generator: models: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generator: models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out struct {
		Models []Model `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("generator: models: decode: %w", err)
	}
	return out.Models, nil
}

// Name implements the server readiness pinger interface.
func (o *Ollama) Name() string { return "ollama" }

// Ping reports whether the Ollama host answers /api/tags with 200.
func (o *Ollama) Ping(ctx context.Context) error {
	_, err := o.Models(ctx)
	return err
}
