package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"unicode/utf8"
)

// FileSummary describes one corpus file.
type FileSummary struct {
	Name      string `json:"name"`
	Records   int    `json:"records"`
	Documents int    `json:"documents"`
	Error     string `json:"error,omitempty"`
}

// Summary reports what a corpus directory contains and how much of it
// survives text extraction.
type Summary struct {
	Dir        string         `json:"dir"`
	Files      []FileSummary  `json:"files"`
	Records    int            `json:"records"`
	Documents  int            `json:"documents"`
	Discarded  int            `json:"discarded"`
	Characters int            `json:"characters"`
	ByType     map[string]int `json:"by_type"`
	ByCategory map[string]int `json:"by_category"`
}

// Summarize walks dir the same way [Load] does and tallies records by their
// "type" and "category" fields. Unparseable files are listed with their error
// instead of failing the walk.
func Summarize(ctx context.Context, dir string) (*Summary, error) {
	s := &Summary{
		Dir:        dir,
		ByType:     map[string]int{},
		ByCategory: map[string]int{},
	}

	files, err := jsonFiles(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("corpus: summarize: %w", err)
		}

		fsum := FileSummary{Name: name}
		records, err := readRecords(filepath.Join(dir, name))
		if err != nil {
			fsum.Error = err.Error()
			s.Files = append(s.Files, fsum)
			continue
		}

		fsum.Records = len(records)
		for _, rec := range records {
			text := ExtractText(rec)
			if text == "" {
				s.Discarded++
				continue
			}
			fsum.Documents++
			s.Characters += utf8.RuneCountInString(text)
			s.ByType[labelOf(rec, "type")]++
			s.ByCategory[labelOf(rec, "category")]++
		}
		s.Records += fsum.Records
		s.Documents += fsum.Documents
		s.Files = append(s.Files, fsum)
	}

	return s, nil
}

// labelOf returns a record's string field, or "unknown".
func labelOf(rec *Record, field string) string {
	if v, ok := rec.Get(field); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

// Count pairs a label with its number of occurrences.
type Count struct {
	Label string
	N     int
}

// Sorted returns the entries of counts ordered by count descending, then label.
func Sorted(counts map[string]int) []Count {
	out := make([]Count, 0, len(counts))
	for k, v := range counts {
		out = append(out, Count{Label: k, N: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Label < out[j].Label
	})
	return out
}
