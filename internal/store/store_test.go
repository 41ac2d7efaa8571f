package store

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// openTestStore opens an in-memory SQLiteStore whose clock advances one
// second per call, so update ordering is deterministic.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	s.now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) }
	return s
}

// ---------------------------------------------------------------------------
// Save / Get
// ---------------------------------------------------------------------------

func Test_Store_SaveAndGet(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "conv_1", "Comment créer une SARL ?", "Passez par le CEFORE.", []string{"creation.json"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "conv_1", "Et le capital ?", "Aucun minimum.", nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	conv, err := s.Get(ctx, "conv_1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.ID != "conv_1" || conv.Title != DefaultTitle {
		t.Errorf("id/title = %q/%q", conv.ID, conv.Title)
	}
	if conv.Snippet != "Aucun minimum." {
		t.Errorf("snippet = %q, want latest response", conv.Snippet)
	}
	if conv.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", conv.MessageCount)
	}
	if len(conv.Messages) != 4 {
		t.Fatalf("want 4 entries, got %d", len(conv.Messages))
	}

	first, reply := conv.Messages[0], conv.Messages[1]
	if first.Sender != SenderUser || first.Content != "Comment créer une SARL ?" {
		t.Errorf("entry[0] = %+v", first)
	}
	if reply.Sender != SenderAI || reply.Content != "Passez par le CEFORE." {
		t.Errorf("entry[1] = %+v", reply)
	}
	if len(reply.Sources) != 1 || reply.Sources[0] != "creation.json" {
		t.Errorf("entry[1].Sources = %v", reply.Sources)
	}
	if conv.Messages[3].Sources == nil || len(conv.Messages[3].Sources) != 0 {
		t.Errorf("nil sources should round-trip as empty, got %#v", conv.Messages[3].Sources)
	}
	if !conv.UpdatedAt.After(conv.CreatedAt) {
		t.Errorf("updated_at %v not after created_at %v", conv.UpdatedAt, conv.CreatedAt)
	}
}

func Test_Store_SnippetTruncated(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("é", 350)
	if err := s.Save(ctx, "c", "q", long, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	conv, err := s.Get(ctx, "c", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if want := strings.Repeat("é", 300) + "..."; conv.Snippet != want {
		t.Errorf("snippet has %d runes, want 300 + ellipsis", len([]rune(conv.Snippet)))
	}
	// The stored response itself is never truncated.
	if conv.Messages[1].Content != long {
		t.Error("response was truncated")
	}
}

func Test_Store_GetNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func Test_Store_GetLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 5 {
		if err := s.Save(ctx, "c", "q", string(rune('a'+i)), nil); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	conv, err := s.Get(ctx, "c", 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(conv.Messages) != 4 || conv.Messages[1].Content != "a" || conv.Messages[3].Content != "b" {
		t.Errorf("want oldest two exchanges, got %+v", conv.Messages)
	}
	if conv.MessageCount != 5 {
		t.Errorf("message_count = %d, want 5", conv.MessageCount)
	}
}

// ---------------------------------------------------------------------------
// Create / UpdateTitle
// ---------------------------------------------------------------------------

func Test_Store_CreateAndRename(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "c1", "Projet agricole"); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Creating again keeps the original title.
	if err := s.Create(ctx, "c1", "Autre"); err != nil {
		t.Fatalf("create again: %v", err)
	}
	conv, err := s.Get(ctx, "c1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.Title != "Projet agricole" {
		t.Errorf("title = %q", conv.Title)
	}
	if conv.Messages == nil || len(conv.Messages) != 0 {
		t.Errorf("messages = %#v, want empty", conv.Messages)
	}

	if err := s.UpdateTitle(ctx, "c1", "Élevage de volailles"); err != nil {
		t.Fatalf("update title: %v", err)
	}
	conv, _ = s.Get(ctx, "c1", 0)
	if conv.Title != "Élevage de volailles" {
		t.Errorf("title = %q", conv.Title)
	}

	if err := s.UpdateTitle(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func Test_Store_CreateWithoutTitle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "c", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	conv, err := s.Get(ctx, "c", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.Title != DefaultTitle {
		t.Errorf("title = %q, want default", conv.Title)
	}
}

// ---------------------------------------------------------------------------
// History / List
// ---------------------------------------------------------------------------

func Test_Store_HistoryNewestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, r := range []string{"un", "deux", "trois"} {
		if err := s.Save(ctx, "c", "q", r, []string{"a.json", "b.json"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	hist, err := s.History(ctx, "c", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].Response != "trois" || hist[1].Response != "deux" {
		t.Fatalf("history = %+v", hist)
	}
	if len(hist[0].Sources) != 2 || hist[0].Sources[1] != "b.json" {
		t.Errorf("sources = %v", hist[0].Sources)
	}

	empty, err := s.History(ctx, "missing", 0)
	if err != nil {
		t.Fatalf("history missing: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("history of unknown conversation = %#v, want empty", empty)
	}
}

func Test_Store_ListOrderAndSummary(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	longTitle := strings.Repeat("t", 60)
	if err := s.Create(ctx, "old", longTitle); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Save(ctx, "new", "première", "réponse 1", nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "new", "seconde", "réponse 2", []string{"x.json"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	convs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("want 2 conversations, got %d", len(convs))
	}
	if convs[0].ID != "new" || convs[1].ID != "old" {
		t.Errorf("order = %s, %s; want new, old", convs[0].ID, convs[1].ID)
	}

	latest := convs[0]
	if latest.MessageCount != 2 || len(latest.Messages) != 2 {
		t.Fatalf("summary = %+v", latest)
	}
	if latest.Messages[0].Content != "seconde" || latest.Messages[1].Content != "réponse 2" {
		t.Errorf("last exchange = %+v", latest.Messages)
	}
	if latest.Snippet != "réponse 2" {
		t.Errorf("snippet = %q", latest.Snippet)
	}

	if want := strings.Repeat("t", 50) + "..."; convs[1].Title != want {
		t.Errorf("title = %q, want truncated to 50", convs[1].Title)
	}
	if convs[1].Messages == nil || len(convs[1].Messages) != 0 || convs[1].MessageCount != 0 {
		t.Errorf("empty conversation summary = %+v", convs[1])
	}

	limited, err := s.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d", len(limited))
	}
}

func Test_Store_ListEmpty(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	convs, err := s.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if convs == nil || len(convs) != 0 {
		t.Errorf("list = %#v, want empty non-nil", convs)
	}
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func Test_Store_Delete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "c", "q", "r", nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "keep", "q", "r", nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, "c"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "c", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	hist, err := s.History(ctx, "c", 0)
	if err != nil || len(hist) != 0 {
		t.Errorf("messages survived delete: %v %v", hist, err)
	}
	if _, err := s.Get(ctx, "keep", 0); err != nil {
		t.Errorf("unrelated conversation affected: %v", err)
	}
	if err := s.Delete(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: want ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Failure injection
// ---------------------------------------------------------------------------

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &SQLiteStore{db: db, now: time.Now}, mock
}

func Test_Store_SaveSwallowsSnippetFailure(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT OR IGNORE INTO conversations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE conversations SET updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE conversations SET snippet").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectCommit()

	if err := s.Save(context.Background(), "c", "q", "r", []string{"a.json"}); err != nil {
		t.Fatalf("save should succeed despite snippet failure: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func Test_Store_SaveFailsOnMessageInsert(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT OR IGNORE INTO conversations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE conversations SET updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	err := s.Save(context.Background(), "c", "q", "r", nil)
	if err == nil || !strings.Contains(err.Error(), "insert message") {
		t.Fatalf("want insert message error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func Test_Store_DeleteRollsBackWhenAbsent(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM messages").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM conversations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := s.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDecodeSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want []string
	}{
		{"", []string{}},
		{"[]", []string{}},
		{`["a.json","b.json"]`, []string{"a.json", "b.json"}},
		{"a.json,b.json", []string{"a.json", "b.json"}},
		{"[broken", []string{}},
	}
	for _, tt := range tests {
		got := decodeSources(tt.raw)
		if len(got) != len(tt.want) {
			t.Errorf("decodeSources(%q) = %v, want %v", tt.raw, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("decodeSources(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		}
	}
}
