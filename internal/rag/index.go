package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/54b3r/yolsda-go/internal/corpus"
)

// ErrDimensionMismatch is returned when a vector does not have the
// dimension of the index.
var ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")

// Index is an immutable brute-force inner-product index over a corpus.
// Row i of the embedding matrix belongs to document i.
type Index struct {
	// embedder embeds queries. It is the same embedder used at build time.
	embedder Embedder

	// docs holds the corpus in load order, each with its embedding set.
	docs []corpus.Document

	// rows is the embedding matrix, parallel to docs.
	rows [][]float32

	// dim is the shared length of every row. Zero for an empty index.
	dim int
}

// Build embeds the whole corpus in a single batch call and returns the
// resulting index. An empty corpus produces an empty index that answers every
// query with no results; the embedder is not called in that case.
//
// The documents are copied; the caller's slice is not modified.
func Build(ctx context.Context, embedder Embedder, docs []corpus.Document) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	ix := &Index{embedder: embedder}
	if len(docs) == 0 {
		return ix, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	rows, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("rag: embed corpus: %w", err)
	}
	if len(rows) != len(docs) {
		return nil, fmt.Errorf("rag: embed corpus: expected %d embeddings, got %d", len(docs), len(rows))
	}

	dim := len(rows[0])
	if dim == 0 {
		return nil, fmt.Errorf("rag: embed corpus: embedder returned empty vectors")
	}
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(row), dim)
		}
	}

	ix.docs = make([]corpus.Document, len(docs))
	copy(ix.docs, docs)
	for i := range ix.docs {
		ix.docs[i].Embedding = rows[i]
	}
	ix.rows = rows
	ix.dim = dim

	return ix, nil
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	return len(ix.docs)
}

// Dimensions returns the embedding dimension, or 0 for an empty index.
func (ix *Index) Dimensions() int {
	return ix.dim
}

// Documents returns the indexed documents with their embeddings.
// The returned slice must not be modified.
func (ix *Index) Documents() []corpus.Document {
	return ix.docs
}

// Retrieve implements [Retriever] by delegating to [Index.Search].
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	return ix.Search(ctx, query, k)
}

// Search embeds query and returns up to k documents ranked by inner product,
// keeping only those scoring above RelevanceThreshold. Results are ordered by
// descending similarity; the order of equal scores is unspecified.
//
// An empty index, or k <= 0, returns no results without embedding the query.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if len(ix.rows) == 0 || k <= 0 {
		return nil, nil
	}

	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: embed query: expected 1 embedding, got %d", len(vecs))
	}
	q := vecs[0]
	if len(q) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(q), ix.dim)
	}

	scores := make([]float32, len(ix.rows))
	for i, row := range ix.rows {
		scores[i] = dot(q, row)
	}

	top := topK(scores, k)
	sort.Slice(top, func(i, j int) bool { return scores[top[i]] > scores[top[j]] })

	results := make([]Result, 0, len(top))
	for _, i := range top {
		if scores[i] <= RelevanceThreshold {
			continue
		}
		results = append(results, Result{
			Content:    Truncate(ix.docs[i].Content, MaxResultChars),
			Source:     ix.docs[i].Source,
			Similarity: scores[i],
		})
	}
	return results, nil
}

// dot returns the inner product of equal-length vectors, accumulated in
// float64.
func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// Truncate cuts s to at most limit characters and appends TruncationMarker
// when anything was removed. It never splits a multi-byte character.
func Truncate(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}
