// Package rag implements the in-memory similarity index used to ground chat
// answers in the knowledge base.
//
// The index is built once from the full corpus and never mutated afterwards,
// so any number of goroutines may search it concurrently without locking.
package rag

import (
	"context"
)

const (
	// RelevanceThreshold is the exclusive lower bound on the similarity of a
	// returned result. Hits scoring at or below it are dropped even when
	// they rank within the top k.
	RelevanceThreshold float32 = 0.3

	// MaxResultChars is the number of characters of document content
	// returned per hit before TruncationMarker is appended.
	MaxResultChars = 1000

	// TruncationMarker is appended to content cut at MaxResultChars.
	TruncationMarker = "..."
)

// Result is one retrieved passage. It is produced per query and never stored.
type Result struct {
	// Content is the document text, truncated to MaxResultChars.
	Content string

	// Source is the corpus file the document was loaded from.
	Source string

	// Similarity is the inner product of the query and document vectors.
	Similarity float32
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be deterministic and safe to call from multiple
// goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever returns the passages most relevant to a query.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns at most k results whose similarity exceeds
	// RelevanceThreshold. An empty knowledge base yields no results and no
	// error.
	Retrieve(ctx context.Context, query string, k int) ([]Result, error)
}
