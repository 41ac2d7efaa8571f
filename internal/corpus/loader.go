package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/54b3r/yolsda-go/internal/logging"
)

// Load reads every *.json file directly inside dir and returns the documents
// they contain, in file name order then record order.
//
// Files that cannot be read or parsed are logged and skipped. A missing
// directory yields an empty corpus rather than an error so the server can
// still start and answer from the model alone.
func Load(ctx context.Context, dir string) ([]Document, error) {
	log := logging.FromContext(ctx)

	files, err := jsonFiles(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("corpus: data directory does not exist", slog.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("corpus: load: %w", err)
		}

		records, err := readRecords(filepath.Join(dir, name))
		if err != nil {
			log.Warn("corpus: skipping file", slog.String("file", name), slog.Any("error", err))
			continue
		}

		kept := 0
		for _, rec := range records {
			text := ExtractText(rec)
			if text == "" {
				continue
			}
			docs = append(docs, Document{Content: text, Source: name})
			kept++
		}
		log.Debug("corpus: file loaded",
			slog.String("file", name),
			slog.Int("records", len(records)),
			slog.Int("documents", kept),
		)
	}

	log.Info("corpus: loaded", slog.String("dir", dir), slog.Int("documents", len(docs)))
	return docs, nil
}

// jsonFiles returns the names of regular *.json files in dir, sorted.
// Subdirectories are not descended into.
func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus: read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// readRecords decodes a corpus file into its records. A top-level object is a
// single record and a top-level array contributes its object elements. Any
// other top-level value, and non-object array elements, contribute nothing.
func readRecords(path string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if !json.Valid(data) {
		return nil, errors.New("malformed JSON")
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case '{':
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		return []*Record{rec}, nil

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		records := make([]*Record, 0, len(items))
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) == 0 || item[0] != '{' {
				continue
			}
			rec, err := decodeRecord(item)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		return records, nil

	default:
		return nil, nil
	}
}

// decodeRecord decodes a JSON object keeping its key order.
func decodeRecord(data []byte) (*Record, error) {
	raw := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	// Numbers stay json.Number so large integers keep every digit.
	rec := NewRecord()
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		dec := json.NewDecoder(bytes.NewReader(pair.Value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode record field %q: %w", pair.Key, err)
		}
		rec.Set(pair.Key, v)
	}
	return rec, nil
}
