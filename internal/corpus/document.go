// Package corpus loads the JSON knowledge base from disk and normalises its
// loosely-typed records into flat documents ready for embedding.
//
// A corpus directory holds *.json files. Each file contains either a single
// record (a JSON object) or a list of records. Records come from several
// collectors (web scraping, PDF extraction, hand-written guides) and do not
// share a schema, so text is pulled out by [ExtractText] using a fixed field
// priority with a best-effort fallback.
package corpus

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Document is one normalised corpus entry.
type Document struct {
	// Content is the text extracted from the source record.
	Content string
	// Source is the base name of the file the record was read from.
	Source string
	// Embedding is the document vector. It is nil until the document has
	// been passed through an index build.
	Embedding []float32
}

// Record is a decoded JSON object with its keys kept in file order.
// Key order matters for the fallback extraction rule.
type Record = orderedmap.OrderedMap[string, any]

// NewRecord returns an empty record. It is mostly useful in tests.
func NewRecord() *Record {
	return orderedmap.New[string, any]()
}
