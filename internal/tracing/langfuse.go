// Package tracing exports chat model calls to Langfuse when credentials are
// configured.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

const defaultHost = "http://localhost:3000"

// Tracer holds the Langfuse handler and its flush function.
type Tracer struct {
	Handler callbacks.Handler
	flush   func()
}

// Flush sends buffered traces. Safe to call on a nil Tracer.
func (t *Tracer) Flush() {
	if t == nil || t.flush == nil {
		return
	}
	t.flush()
}

// Setup builds a Tracer from LANGFUSE_PUBLIC_KEY, LANGFUSE_SECRET_KEY and
// LANGFUSE_HOST. It returns nil when either key is missing.
func Setup(log *slog.Logger) *Tracer {
	cfg, ok := configFromEnv()
	if !ok {
		log.Debug("tracing: langfuse disabled")
		return nil
	}
	handler, flush := langfuse.NewLangfuseHandler(cfg)
	log.Info("tracing: langfuse enabled", slog.String("host", cfg.Host))
	return &Tracer{Handler: handler, flush: flush}
}

func configFromEnv() (*langfuse.Config, bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, false
	}
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}
	return &langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	}, true
}
