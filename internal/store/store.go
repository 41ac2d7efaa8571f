// Package store provides the SQLite-backed conversation log for the chat
// server. Each exchange (a user message and the assistant's response) is
// stored under a conversation id and survives server restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/54b3r/yolsda-go/internal/logging"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("store: conversation not found")

const (
	// DefaultTitle is shown for conversations that were never named.
	DefaultTitle = "Nouvelle conversation"

	// DefaultListLimit, DefaultHistoryLimit and DefaultMessageLimit apply
	// when callers pass a limit <= 0.
	DefaultListLimit    = 20
	DefaultHistoryLimit = 10
	DefaultMessageLimit = 100

	maxSnippetChars = 300
	maxTitleChars   = 50
	ellipsis        = "..."
)

// Sender identifies the author of an [Entry].
type Sender string

const (
	// SenderUser marks the question typed by the user.
	SenderUser Sender = "user"
	// SenderAI marks the assistant's response.
	SenderAI Sender = "ai"
)

// Exchange is one stored question and its response.
type Exchange struct {
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is one side of an exchange, in the shape the chat frontend renders.
type Entry struct {
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
}

// Conversation describes a conversation and some or all of its entries.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Snippet      string    `json:"snippet,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Messages     []Entry   `json:"messages"`
}

// ConversationStore persists chat exchanges. Implementations must be safe
// for concurrent use.
type ConversationStore interface {
	// Save records an exchange, creating the conversation on first use.
	Save(ctx context.Context, id, message, response string, sources []string) error
	// Create registers a conversation with an optional title. Creating an
	// existing conversation only refreshes its update time.
	Create(ctx context.Context, id, title string) error
	// UpdateTitle renames a conversation.
	UpdateTitle(ctx context.Context, id, title string) error
	// Get returns a conversation with up to limit exchanges, oldest first.
	Get(ctx context.Context, id string, limit int) (*Conversation, error)
	// History returns up to limit exchanges, newest first.
	History(ctx context.Context, id string, limit int) ([]Exchange, error)
	// List returns up to limit conversations, most recently updated first,
	// each carrying only its latest exchange.
	List(ctx context.Context, limit int) ([]Conversation, error)
	// Delete removes a conversation and all of its exchanges.
	Delete(ctx context.Context, id string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ConversationStore backed by a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLiteStore at the given path and applies the
// schema. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// alive for the lifetime of the store.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT    NOT NULL UNIQUE,
    title           TEXT,
    snippet         TEXT,
    created_at      INTEGER NOT NULL,  -- Unix milliseconds
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated
    ON conversations (updated_at);
CREATE TABLE IF NOT EXISTS messages (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT    NOT NULL REFERENCES conversations (conversation_id),
    message         TEXT    NOT NULL,
    response        TEXT    NOT NULL,
    sources         TEXT    NOT NULL DEFAULT '[]',  -- JSON array
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
    ON messages (conversation_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save records an exchange in a single transaction. The conversation is
// created if needed and its snippet is set to the truncated response; a
// failure to write the snippet does not fail the save.
func (s *SQLiteStore) Save(ctx context.Context, id, message, response string, sources []string) error {
	if sources == nil {
		sources = []string{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("store: save: encode sources: %w", err)
	}
	ts := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (conversation_id, created_at, updated_at) VALUES (?, ?, ?)`,
		id, ts, ts); err != nil {
		return fmt.Errorf("store: save: create conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE conversation_id = ?`,
		ts, id); err != nil {
		return fmt.Errorf("store: save: touch conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, message, response, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, message, response, string(encoded), ts); err != nil {
		return fmt.Errorf("store: save: insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET snippet = ? WHERE conversation_id = ?`,
		truncate(response, maxSnippetChars), id); err != nil {
		logging.FromContext(ctx).Warn("store: snippet update failed", slog.String("conversation_id", id), slog.Any("error", err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save: commit: %w", err)
	}
	return nil
}

// Create registers a conversation. An empty title is stored as NULL.
func (s *SQLiteStore) Create(ctx context.Context, id, title string) error {
	ts := s.now().UnixMilli()
	var t sql.NullString
	if title != "" {
		t = sql.NullString{String: title, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: create: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (conversation_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, t, ts, ts); err != nil {
		return fmt.Errorf("store: create: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE conversation_id = ?`,
		ts, id); err != nil {
		return fmt.Errorf("store: create: touch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: create: commit: %w", err)
	}
	return nil
}

// UpdateTitle renames a conversation and refreshes its update time.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE conversation_id = ?`,
		title, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: update title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update title: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the conversation's metadata and up to limit exchanges,
// oldest first, each expanded into a user entry and an ai entry.
func (s *SQLiteStore) Get(ctx context.Context, id string, limit int) (*Conversation, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	conv, err := s.conversation(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT message, response, sources, created_at
FROM   messages
WHERE  conversation_id = ?
ORDER  BY created_at ASC, id ASC
LIMIT  ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get messages: %w", err)
	}
	exchanges, err := scanExchanges(rows)
	if err != nil {
		return nil, fmt.Errorf("store: get messages: %w", err)
	}

	conv.Messages = make([]Entry, 0, 2*len(exchanges))
	for _, e := range exchanges {
		conv.Messages = append(conv.Messages, entries(e)...)
	}
	if conv.MessageCount, err = s.count(ctx, id); err != nil {
		return nil, err
	}
	return conv, nil
}

// History returns the latest exchanges of a conversation, newest first.
// An unknown conversation has no history.
func (s *SQLiteStore) History(ctx context.Context, id string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT message, response, sources, created_at
FROM   messages
WHERE  conversation_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	exchanges, err := scanExchanges(rows)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	return exchanges, nil
}

// List returns conversation summaries ordered by most recent activity.
// Titles longer than 50 characters are shortened.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT conversation_id, title, snippet, created_at, updated_at
FROM   conversations
ORDER  BY updated_at DESC, id DESC
LIMIT  ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}

	convs := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		c.Title = truncate(c.Title, maxTitleChars)
		convs = append(convs, *c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	// The pool holds one connection, so the cursor must be released before
	// the per-conversation queries below.
	_ = rows.Close()

	for i := range convs {
		last, err := s.History(ctx, convs[i].ID, 1)
		if err != nil {
			return nil, err
		}
		convs[i].Messages = []Entry{}
		if len(last) == 1 {
			convs[i].Messages = entries(last[0])
			convs[i].Messages[1].Sources = nil
		}
		if convs[i].MessageCount, err = s.count(ctx, convs[i].ID); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// Delete removes a conversation's exchanges and then the conversation
// itself in one transaction.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete: commit: %w", err)
	}
	return nil
}

// Name implements the server's Pinger interface.
func (s *SQLiteStore) Name() string { return "history" }

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// conversation loads one conversation row without its messages.
func (s *SQLiteStore) conversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT conversation_id, title, snippet, created_at, updated_at
FROM   conversations
WHERE  conversation_id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) count(ctx context.Context, id string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(id) FROM messages WHERE conversation_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count messages: %w", err)
	}
	return n, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(sc scanner) (*Conversation, error) {
	var (
		c                Conversation
		title, snippet   sql.NullString
		created, updated int64
	)
	if err := sc.Scan(&c.ID, &title, &snippet, &created, &updated); err != nil {
		return nil, err
	}
	c.Title = DefaultTitle
	if title.Valid && title.String != "" {
		c.Title = title.String
	}
	c.Snippet = snippet.String
	c.CreatedAt = time.UnixMilli(created).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()
	return &c, nil
}

// scanExchanges drains and closes rows.
func scanExchanges(rows *sql.Rows) ([]Exchange, error) {
	defer rows.Close()

	out := []Exchange{}
	for rows.Next() {
		var (
			e       Exchange
			sources string
			ts      int64
		)
		if err := rows.Scan(&e.Message, &e.Response, &sources, &ts); err != nil {
			return nil, err
		}
		e.Sources = decodeSources(sources)
		e.CreatedAt = time.UnixMilli(ts).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeSources reads the JSON array written by Save. Comma-separated lists
// from older databases are accepted as well.
func decodeSources(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var out []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &out); err == nil && out != nil {
			return out
		}
		return []string{}
	}
	return strings.Split(raw, ",")
}

// entries expands an exchange into the user then ai entries.
func entries(e Exchange) []Entry {
	return []Entry{
		{Content: e.Message, Sender: SenderUser, Timestamp: e.CreatedAt},
		{Content: e.Response, Sender: SenderAI, Timestamp: e.CreatedAt, Sources: e.Sources},
	}
}

// truncate cuts s to limit characters and appends an ellipsis when anything
// was removed.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + ellipsis
		}
		n++
	}
	return s
}
