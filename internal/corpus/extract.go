package corpus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// StandardFields lists the record fields that carry document text, in the
// order they are appended. The order is significant.
var StandardFields = []string{"content", "text", "body", "article", "description"}

// fallbackMinChars is the exclusive lower bound on the length of a string
// field considered by the fallback rule.
const fallbackMinChars = 10

// ExtractText returns the searchable text of a record.
//
// Every standard field that is present and non-empty is stringified and
// appended, joined by a single space. When no standard field matches, every
// string field longer than ten characters is joined instead, in the order the
// keys appear in the record. An empty result means the record carries no
// usable text.
func ExtractText(rec *Record) string {
	if rec == nil {
		return ""
	}

	var parts []string
	for _, field := range StandardFields {
		v, ok := rec.Get(field)
		if !ok {
			continue
		}
		if s, ok := stringify(v); ok {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	for pair := rec.Oldest(); pair != nil; pair = pair.Next() {
		s, ok := pair.Value.(string)
		if !ok {
			continue
		}
		if utf8.RuneCountInString(s) > fallbackMinChars {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// stringify renders a decoded JSON value as text. The boolean result is false
// for values that count as empty: null, "", false, 0, [] and {}.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case bool:
		return strconv.FormatBool(t), t
	case json.Number:
		return numberText(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), t != 0
	case []any:
		if len(t) == 0 {
			return "", false
		}
		return marshalValue(t), true
	case map[string]any:
		if len(t) == 0 {
			return "", false
		}
		return marshalValue(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// numberText renders integers exactly as written and other numbers in plain
// decimal notation.
func numberText(n json.Number) (string, bool) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		return s, strings.TrimLeft(strings.TrimPrefix(s, "-"), "0") != ""
	}
	f, err := n.Float64()
	if err != nil {
		return s, true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), f != 0
}

// marshalValue encodes nested values compactly. Values decoded from JSON
// always re-encode, so the error is unreachable in practice.
func marshalValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
