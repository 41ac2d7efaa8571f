package embedder

import (
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"llama3",
	"llama2",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"qwen",
	"deepseek",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// ValidateForRAG logs a warning when EMBEDDING_MODEL looks like a chat model.
// A chat model served through /api/embed produces vectors, but they rank
// passages poorly and the relevance threshold stops meaning much.
//
// It returns true when a warning was emitted.
func ValidateForRAG(log *slog.Logger) bool {
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" || !looksLikeChatModel(model) {
		return false
	}
	log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
		slog.String("model", model),
		slog.String("backend", Backend()),
		slog.String("hint", "use a dedicated embedding model e.g. all-minilm, nomic-embed-text, text-embedding-3-small"),
	)
	return true
}
