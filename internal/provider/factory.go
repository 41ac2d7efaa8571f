package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/yolsda-go/internal/generator"
)

// ConfigFromEnv reads provider configuration from environment variables.
// MODEL_PROVIDER selects the backend; each provider uses its own native
// credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER = ollama | ollama-chat | openai | azure | gemini | ark (default: ollama)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: gemma:2b)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini)
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-flash)
//	Ark:     ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//
//	Shared:  MODEL_MAX_TOKENS (default: 700), MODEL_TEMPERATURE (default: 0.2),
//	         GENERATION_CONNECT_TIMEOUT (default: 5s), GENERATION_TIMEOUT (default: 60s),
//	         GENERATION_BREAKER (default: false)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendOllama))),
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", "gemma:2b"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Ark: ProviderArk{
			APIKey:  os.Getenv("ARK_API_KEY"),
			Model:   os.Getenv("ARK_MODEL"),
			BaseURL: os.Getenv("ARK_BASE_URL"),
		},
		Tuning: SharedTuning{
			MaxTokens:      getEnvInt("MODEL_MAX_TOKENS", 700),
			Temperature:    getEnvFloat32("MODEL_TEMPERATURE", 0.2),
			ConnectTimeout: getEnvDuration("GENERATION_CONNECT_TIMEOUT", generator.DefaultConnectTimeout),
			Timeout:        getEnvDuration("GENERATION_TIMEOUT", generator.DefaultTimeout),
			Breaker:        getEnvBool("GENERATION_BREAKER"),
		},
	}
}

// Validate reports the first missing setting for the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama, BackendOllamaChat:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for %s backend", c.Backend)
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, ollama-chat, openai, azure, gemini, ark)", c.Backend)
	}
	return nil
}

// New validates cfg and constructs the generator for its backend. When the
// breaker is enabled the generator is wrapped in a [generator.Breaker].
func New(ctx context.Context, cfg *Config, log *slog.Logger) (generator.Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend := displayName(cfg.Backend)
	var gen generator.Generator
	if cfg.Backend == BackendOllama {
		gen = NewOllama(cfg)
	} else {
		m, err := newChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("provider: failed to create %s chat model: %w", cfg.Backend, err)
		}
		gen = generator.NewChatModel(m, backend, cfg.Tuning.Timeout).WithHandlers(cfg.Handlers...)
	}

	if cfg.Tuning.Breaker {
		gen = generator.NewBreaker(gen, generator.BreakerConfig{Backend: backend, Logger: log})
	}
	return gen, nil
}

// displayName is the backend label used in user-facing error messages.
func displayName(b Backend) string {
	switch b {
	case BackendOllama, BackendOllamaChat:
		return "Ollama"
	case BackendOpenAI:
		return "OpenAI"
	case BackendAzure:
		return "Azure OpenAI"
	case BackendGemini:
		return "Gemini"
	case BackendArk:
		return "Ark"
	default:
		return string(b)
	}
}

// NewOllama constructs the native Ollama generator. It is exported so the
// server can reuse it for /models and health probes regardless of backend.
func NewOllama(cfg *Config) *generator.Ollama {
	opts := generator.DefaultOptions()
	if cfg.Tuning.MaxTokens > 0 {
		opts.NumPredict = cfg.Tuning.MaxTokens
	}
	if cfg.Tuning.Temperature > 0 {
		opts.Temperature = cfg.Tuning.Temperature
	}
	return generator.NewOllama(&generator.OllamaConfig{
		Host:           cfg.Ollama.Host,
		Model:          cfg.Ollama.Model,
		Options:        &opts,
		ConnectTimeout: cfg.Tuning.ConnectTimeout,
		Timeout:        cfg.Tuning.Timeout,
	})
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

// getEnvDuration parses a Go duration ("5s", "1m30s") or a bare number of
// seconds, falling back when unset or invalid.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if s, err := strconv.Atoi(v); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	return fallback
}

// getEnvBool reports whether the named variable parses as true.
func getEnvBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}
