package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/yolsda-go/internal/assistant"
	"github.com/54b3r/yolsda-go/internal/generator"
	"github.com/54b3r/yolsda-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed the generation timeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Store persists conversations. Nil disables history: chat answers are
	// not saved and the /api/conversations routes return 503.
	Store store.ConversationStore
	// Models lists the models installed on the Ollama host for GET /models
	// and the ollama_status field of GET /health. Optional.
	Models ModelLister
	// Documents is the number of corpus documents loaded, reported by
	// GET /health.
	Documents int
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the chat
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /chat and the protected /api/*
	// routes. If empty, authentication is disabled (development mode).
	APIKey string
	// StaticDir is served under /static/ (default: static).
	StaticDir string
	// IndexHTML is the page served at / (default: templates/index.html).
	IndexHTML string
	// AllowedOrigin is sent as Access-Control-Allow-Origin (default: *).
	AllowedOrigin string
	// MetricsRegistry receives the server metrics. Defaults to
	// [prometheus.DefaultRegisterer].
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// [prometheus.DefaultGatherer].
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface handleChat calls to produce a response.
// *assistant.Assistant satisfies it; tests inject a fake.
type answerer interface {
	// Answer grounds and generates a response to question. It never fails.
	Answer(ctx context.Context, question string) assistant.Answer
}

// ModelLister lists the models available on the generation host.
// *generator.Ollama satisfies it.
type ModelLister interface {
	Models(ctx context.Context) ([]generator.Model, error)
}

// Server is the HTTP server in front of the assistant and the history store.
type Server struct {
	// assistant answers chat questions.
	assistant answerer
	// store persists conversations; nil when history is disabled.
	store store.ConversationStore
	// models lists Ollama models; nil when the backend is not Ollama.
	models ModelLister
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// now is the clock used for generated conversation ids.
	now func() time.Time
}

// chatRequest is the JSON body for POST /chat and POST /api/chat.
type chatRequest struct {
	// Message is the user's question.
	Message string `json:"message"`
	// ConversationID continues an existing conversation. When empty a new
	// id is generated.
	ConversationID string `json:"conversation_id,omitempty"`
}

// chatResponse is the JSON response for the chat endpoints.
type chatResponse struct {
	// Response is the assistant's answer. Never empty.
	Response string `json:"response"`
	// ConversationID is the conversation the exchange was stored under.
	ConversationID string `json:"conversation_id"`
	// Sources lists the corpus files that grounded the answer.
	Sources []string `json:"sources"`
}

// createConversationRequest is the JSON body for POST /api/conversations.
type createConversationRequest struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// createConversationResponse is the JSON response for POST /api/conversations.
type createConversationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// updateConversationRequest is the JSON body for PUT /api/conversations/{id}.
type updateConversationRequest struct {
	Title string `json:"title"`
}

// updateConversationResponse is the JSON response for PUT /api/conversations/{id}.
type updateConversationResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// deleteConversationResponse is the JSON response for DELETE /api/conversations/{id}.
type deleteConversationResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// historyResponse is the JSON response for GET /api/conversations/{id}/history.
type historyResponse struct {
	History []store.Exchange `json:"history"`
}

// statusResponse is the JSON response for GET /health.
type statusResponse struct {
	// Status is always "healthy"; the process answered.
	Status string `json:"status"`
	// DataLoaded is the number of corpus documents in the index.
	DataLoaded int `json:"data_loaded"`
	// OllamaStatus is healthy, unhealthy, unreachable or unknown.
	OllamaStatus string `json:"ollama_status"`
}

// modelsResponse is the JSON response for GET /models.
type modelsResponse struct {
	Models []generator.Model `json:"models"`
	Error  string            `json:"error,omitempty"`
}

// errorResponse is the JSON body of every handler error.
type errorResponse struct {
	Detail string `json:"detail"`
}
