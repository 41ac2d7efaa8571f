package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/yolsda-go/internal/logging"
	"github.com/54b3r/yolsda-go/internal/provider"
	"github.com/54b3r/yolsda-go/internal/server"
	"github.com/54b3r/yolsda-go/internal/store"
)

// defaultHistoryDB is the history database path when YOLSDA_HISTORY_DB is unset.
const defaultHistoryDB = "chat_history.db"

// NewServeCmd constructs the `yolsda serve` command, which indexes the corpus
// and starts the HTTP server with the chat UI.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var dataDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index the knowledge base and start the HTTP server",
		Long: `Load every JSON file of the data directory, embed it once, and serve
the chat API and web UI.

Conversation history is kept in YOLSDA_HISTORY_DB (default: chat_history.db).
Set YOLSDA_HISTORY_DB=disabled to answer without storing anything.

Examples:
  yolsda serve
  yolsda serve --port 9000 --data ./corpus
  MODEL_PROVIDER=openai yolsda serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if host == "" {
				host = envOrDefault("YOLSDA_HOST", "127.0.0.1")
			}
			if port == 0 {
				port = envIntOrDefault("YOLSDA_PORT", 8000)
			}

			kb, err := buildKnowledgeBase(ctx, log, dataDir)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			a, providerCfg, tracer, err := buildAssistant(ctx, log, kb)
			defer tracer.Flush()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// A store that fails to open disables history rather than the server.
			var history store.ConversationStore
			var pingers []server.Pinger
			if dbPath := envOrDefault("YOLSDA_HISTORY_DB", defaultHistoryDB); dbPath != "disabled" {
				hs, hsErr := store.Open(dbPath)
				if hsErr != nil {
					log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
				} else {
					history = hs
					pingers = append(pingers, hs)
					defer func() { _ = hs.Close() }()
					log.Info("history: store opened", slog.String("path", dbPath))
				}
			} else {
				log.Info("history: disabled via YOLSDA_HISTORY_DB=disabled")
			}

			var models server.ModelLister
			switch providerCfg.Backend {
			case provider.BackendOllama, provider.BackendOllamaChat:
				models = provider.NewOllama(providerCfg)
			}

			srv, err := server.New(a, &server.Config{
				Host:         host,
				Port:         port,
				WriteTimeout: providerCfg.Tuning.Timeout + 30*time.Second,
				Logger:       log,
				Store:        history,
				Models:       models,
				Documents:    kb.index.Len(),
				Pingers:      buildPingers(providerCfg, kb.embedder, pingers...),
				RateLimit:    envFloat("YOLSDA_RATE_LIMIT"),
				RateBurst:    envInt("YOLSDA_RATE_BURST"),
				APIKey:       os.Getenv("YOLSDA_API_KEY"),
				StaticDir:    os.Getenv("YOLSDA_STATIC_DIR"),
				IndexHTML:    os.Getenv("YOLSDA_INDEX_HTML"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: $YOLSDA_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: $YOLSDA_PORT or 8000)")
	addDataFlag(cmd, &dataDir)

	return cmd
}

// envOrDefault returns the named variable, or fallback when it is empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntOrDefault parses the named variable, or returns fallback when it is
// empty or not an integer.
func envIntOrDefault(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

// envInt parses the named variable; zero leaves the server default.
func envInt(key string) int { return envIntOrDefault(key, 0) }

// envFloat parses the named variable; zero leaves the server default.
func envFloat(key string) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return f
}
