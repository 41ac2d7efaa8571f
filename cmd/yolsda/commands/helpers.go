package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/yolsda-go/internal/assistant"
	"github.com/54b3r/yolsda-go/internal/corpus"
	"github.com/54b3r/yolsda-go/internal/embedder"
	"github.com/54b3r/yolsda-go/internal/provider"
	"github.com/54b3r/yolsda-go/internal/rag"
	"github.com/54b3r/yolsda-go/internal/server"
	"github.com/54b3r/yolsda-go/internal/tracing"
)

// defaultDataDir is the corpus directory when neither --data nor
// YOLSDA_DATA_DIR is set.
const defaultDataDir = "data"

// dataDirDefault resolves an unset --data flag. It runs after the config
// file has been applied to the environment.
func dataDirDefault() string {
	if d := os.Getenv("YOLSDA_DATA_DIR"); d != "" {
		return d
	}
	return defaultDataDir
}

// addDataFlag registers --data on cmd.
func addDataFlag(cmd *cobra.Command, dir *string) {
	cmd.Flags().StringVar(dir, "data", "", "Directory holding the JSON knowledge base (default: $YOLSDA_DATA_DIR or data)")
}

// knowledgeBase is the corpus loaded from disk and its similarity index.
type knowledgeBase struct {
	index    *rag.Index
	embedder rag.Embedder
}

// buildKnowledgeBase loads dir and embeds every document once.
func buildKnowledgeBase(ctx context.Context, log *slog.Logger, dir string) (*knowledgeBase, error) {
	if dir == "" {
		dir = dataDirDefault()
	}
	embedder.ValidateForRAG(log)

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	docs, err := corpus.Load(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	index, err := rag.Build(ctx, emb, docs)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	log.Info("knowledge base ready",
		slog.String("dir", dir),
		slog.Int("documents", index.Len()),
		slog.Int("dimensions", index.Dimensions()),
		slog.String("embedder", embedder.Backend()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return &knowledgeBase{index: index, embedder: emb}, nil
}

// buildAssistant wires the generator selected by the environment to the
// knowledge base. The returned tracer is nil when tracing is disabled.
func buildAssistant(ctx context.Context, log *slog.Logger, kb *knowledgeBase) (*assistant.Assistant, *provider.Config, *tracing.Tracer, error) {
	cfg := provider.ConfigFromEnv()

	tracer := tracing.Setup(log)
	if tracer != nil {
		cfg.Handlers = append(cfg.Handlers, tracer.Handler)
	}

	gen, err := provider.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, tracer, err
	}
	log.Info("generator ready",
		slog.String("backend", string(cfg.Backend)),
		slog.Bool("breaker", cfg.Tuning.Breaker),
		slog.Duration("timeout", cfg.Tuning.Timeout),
	)

	a, err := assistant.New(&assistant.Config{Retriever: kb.index, Generator: gen})
	if err != nil {
		return nil, nil, tracer, err
	}
	return a, cfg, tracer, nil
}

// buildPingers collects the readiness probes for the configured backends.
// Probes never spend tokens: Ollama hosts answer /api/tags, hosted APIs are
// checked for reachability only.
func buildPingers(cfg *provider.Config, emb rag.Embedder, extra ...server.Pinger) []server.Pinger {
	var pingers []server.Pinger

	switch cfg.Backend {
	case provider.BackendOllama, provider.BackendOllamaChat:
		pingers = append(pingers, provider.NewOllama(cfg))
	case provider.BackendOpenAI:
		pingers = append(pingers, server.NewHTTPPinger("openai", "https://api.openai.com/v1/models"))
	case provider.BackendAzure:
		pingers = append(pingers, server.NewHTTPPinger("azure", cfg.AzureOpenAI.Endpoint))
	case provider.BackendGemini:
		pingers = append(pingers, server.NewHTTPPinger("gemini", "https://generativelanguage.googleapis.com"))
	case provider.BackendArk:
		url := cfg.Ark.BaseURL
		if url == "" {
			url = "https://ark.cn-beijing.volces.com/api/v3"
		}
		pingers = append(pingers, server.NewHTTPPinger("ark", url))
	}

	if p, ok := emb.(server.Pinger); ok {
		pingers = append(pingers, p)
	}
	return append(pingers, extra...)
}
