// Package provider builds the language model backends that answer chat
// questions. The default backend talks to Ollama's /api/generate endpoint
// directly; the others are eino chat models.
package provider

import (
	"time"

	"github.com/cloudwego/eino/callbacks"
)

// Backend enumerates the supported generation providers.
type Backend string

const (
	// BackendOllama selects Ollama's /api/generate endpoint with the tuned
	// sampling options. This is the default.
	BackendOllama Backend = "ollama"
	// BackendOllamaChat selects Ollama's /api/chat endpoint through eino.
	BackendOllamaChat Backend = "ollama-chat"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which provider to use.
	Backend Backend

	// Ollama holds the settings shared by both Ollama backends.
	Ollama ProviderOllama
	// OpenAI holds OpenAI settings.
	OpenAI ProviderOpenAI
	// AzureOpenAI holds Azure OpenAI settings.
	AzureOpenAI ProviderAzureOpenAI
	// Gemini holds Google Gemini settings.
	Gemini ProviderGemini
	// Ark holds Volcengine Ark settings.
	Ark ProviderArk

	// Tuning holds settings shared by every backend.
	Tuning SharedTuning

	// Handlers are eino callbacks (tracing) attached to chat model calls.
	// The native Ollama backend does not run through eino and ignores them.
	Handlers []callbacks.Handler
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama base URL.
	Host string
	// Model is the model tag, e.g. "gemma:2b".
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	APIKey string
	Model  string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SharedTuning holds generation settings applied regardless of backend.
type SharedTuning struct {
	// MaxTokens caps generated tokens (num_predict on Ollama).
	MaxTokens int
	// Temperature controls response randomness.
	Temperature float32
	// ConnectTimeout bounds connection establishment on every backend.
	ConnectTimeout time.Duration
	// Timeout bounds a whole generation call.
	Timeout time.Duration
	// Breaker wraps the generator in a circuit breaker when true.
	Breaker bool
}
