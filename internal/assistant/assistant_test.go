package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/54b3r/yolsda-go/internal/corpus"
	"github.com/54b3r/yolsda-go/internal/generator"
	"github.com/54b3r/yolsda-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeRetriever struct {
	results []rag.Result
	err     error
	gotK    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, k int) ([]rag.Result, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

type fakeGenerator struct {
	mu        sync.Mutex
	result    generator.Result
	question  string
	grounding string
	ctxErr    error
}

func (f *fakeGenerator) Generate(ctx context.Context, question, grounding string) generator.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.question, f.grounding = question, grounding
	f.ctxErr = ctx.Err()
	return f.result
}

func newAssistant(t *testing.T, r rag.Retriever, g generator.Generator) *Assistant {
	t.Helper()
	a, err := New(&Config{Retriever: r, Generator: g})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNew_RequiresGenerator(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{}); err == nil {
		t.Fatal("expected error for nil generator")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

// ---------------------------------------------------------------------------
// Context building
// ---------------------------------------------------------------------------

func TestAnswer_NoResultsUsesFallback(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{result: generator.Result{Kind: generator.KindOK, Text: "Voici mes conseils."}}
	a := newAssistant(t, &fakeRetriever{}, gen)

	ans := a.Answer(context.Background(), "Quel statut choisir ?")
	if gen.grounding != FallbackContext {
		t.Errorf("grounding = %q, want fallback", gen.grounding)
	}
	if gen.question != "Quel statut choisir ?" {
		t.Errorf("question = %q", gen.question)
	}
	if ans.Text != "Voici mes conseils." {
		t.Errorf("Text = %q", ans.Text)
	}
	if ans.Sources == nil || len(ans.Sources) != 0 {
		t.Errorf("Sources = %#v, want empty non-nil", ans.Sources)
	}
	if ans.Retrieved != 0 || ans.Outcome != generator.KindOK {
		t.Errorf("Retrieved/Outcome = %d/%v", ans.Retrieved, ans.Outcome)
	}
}

func TestAnswer_NilRetrieverUsesFallback(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{result: generator.Result{Kind: generator.KindOK, Text: "ok"}}
	a := newAssistant(t, nil, gen)
	a.Answer(context.Background(), "q")
	if gen.grounding != FallbackContext {
		t.Errorf("grounding = %q, want fallback", gen.grounding)
	}
}

func TestAnswer_RetrievalErrorFallsBack(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{result: generator.Result{Kind: generator.KindOK, Text: "ok"}}
	a := newAssistant(t, &fakeRetriever{err: errors.New("embedder down")}, gen)

	ans := a.Answer(context.Background(), "q")
	if gen.grounding != FallbackContext {
		t.Errorf("grounding = %q, want fallback", gen.grounding)
	}
	if ans.Text != "ok" || len(ans.Sources) != 0 {
		t.Errorf("answer = %+v", ans)
	}
}

func TestAnswer_BuildsContextAndDedupesSources(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{results: []rag.Result{
		{Content: "Le CEFORE centralise les formalités.", Source: "creation.json", Similarity: 0.9},
		{Content: "La SARL exige un capital minimum.", Source: "creation.json", Similarity: 0.8},
		{Content: "jamais retourné", Source: "autre.json", Similarity: 0.7},
	}}
	gen := &fakeGenerator{result: generator.Result{Kind: generator.KindOK, Text: "Réponse"}}
	a := newAssistant(t, ret, gen)

	ans := a.Answer(context.Background(), "Comment créer une entreprise ?")

	if ret.gotK != DefaultTopK {
		t.Errorf("k = %d, want %d", ret.gotK, DefaultTopK)
	}
	want := ContextHeader +
		"--- Source 1 (creation.json) ---\nLe CEFORE centralise les formalités.\n\n" +
		"--- Source 2 (creation.json) ---\nLa SARL exige un capital minimum.\n\n"
	if gen.grounding != want {
		t.Errorf("grounding =\n%q\nwant\n%q", gen.grounding, want)
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "creation.json" {
		t.Errorf("Sources = %v, want [creation.json]", ans.Sources)
	}
	if ans.Retrieved != 2 {
		t.Errorf("Retrieved = %d, want 2", ans.Retrieved)
	}
}

func TestAnswer_TopKOverride(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{}
	a, err := New(&Config{Retriever: ret, Generator: &fakeGenerator{}, TopK: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Answer(context.Background(), "q")
	if ret.gotK != 5 {
		t.Errorf("k = %d, want 5", ret.gotK)
	}
}

func TestAnswer_GenerationIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{result: generator.Result{Kind: generator.KindOK, Text: "ok"}}
	a := newAssistant(t, &fakeRetriever{}, gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Answer(ctx, "q")
	if gen.ctxErr != nil {
		t.Errorf("generator saw ctx error %v, want nil", gen.ctxErr)
	}
}

// ---------------------------------------------------------------------------
// Failure mapping
// ---------------------------------------------------------------------------

func TestAnswer_TimeoutReturnsApology(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{results: []rag.Result{{Content: "x", Source: "a.json", Similarity: 0.9}}}
	gen := &fakeGenerator{result: generator.Result{Kind: generator.KindTimeout, Backend: "Ollama", Err: context.DeadlineExceeded}}
	a := newAssistant(t, ret, gen)

	ans := a.Answer(context.Background(), "q")
	if ans.Text != TimeoutMessage {
		t.Errorf("Text = %q, want apology", ans.Text)
	}
	if ans.Sources == nil || len(ans.Sources) != 0 {
		t.Errorf("Sources = %#v, want empty", ans.Sources)
	}
	if ans.Outcome != generator.KindTimeout {
		t.Errorf("Outcome = %v", ans.Outcome)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   generator.Result
		want string
	}{
		{"ok", generator.Result{Kind: generator.KindOK, Text: "Bonjour"}, "Bonjour"},
		{"empty ok", generator.Result{Kind: generator.KindOK, Text: "  \n"}, EmptyMessage},
		{"timeout", generator.Result{Kind: generator.KindTimeout}, TimeoutMessage},
		{
			"transport",
			generator.Result{Kind: generator.KindTransport, Backend: "Ollama", Err: errors.New("connection refused")},
			"Erreur de connexion à Ollama: connection refused",
		},
		{
			"transport default backend",
			generator.Result{Kind: generator.KindTransport, Err: errors.New("eof")},
			"Erreur de connexion à Ollama: eof",
		},
		{
			"upstream",
			generator.Result{Kind: generator.KindUpstream, Backend: "Ollama", Status: 404, Body: "model not found"},
			"Erreur Ollama 404: model not found",
		},
		{
			"upstream without status",
			generator.Result{Kind: generator.KindUpstream, Backend: "Gemini", Body: "quota exceeded"},
			"Erreur Gemini: quota exceeded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Message(tt.in); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnswer_NeverEmpty(t *testing.T) {
	t.Parallel()

	kinds := []generator.Kind{generator.KindOK, generator.KindTimeout, generator.KindTransport, generator.KindUpstream}
	for _, k := range kinds {
		a := newAssistant(t, &fakeRetriever{}, &fakeGenerator{result: generator.Result{Kind: k}})
		if ans := a.Answer(context.Background(), "q"); strings.TrimSpace(ans.Text) == "" {
			t.Errorf("kind %v produced an empty answer", k)
		}
	}
}

// ---------------------------------------------------------------------------
// End to end with the real index
// ---------------------------------------------------------------------------

// keywordEmbedder maps each text onto two axes: "sarl" and "impot".
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := []float32{0, 0}
		if strings.Contains(t, "sarl") {
			v[0] = 1
		}
		if strings.Contains(t, "impot") {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
}

func TestAnswer_WithIndex(t *testing.T) {
	t.Parallel()

	docs := []corpus.Document{
		{Content: "Créer une SARL au Bénin", Source: "creation.json"},
		{Content: "Déclarer son impot annuel", Source: "fiscalite.json"},
		{Content: "Statuts de la SARL", Source: "creation.json"},
	}
	ix, err := rag.Build(context.Background(), keywordEmbedder{}, docs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	gen := &fakeGenerator{result: generator.Result{Kind: generator.KindOK, Text: "ok"}}
	a := newAssistant(t, ix, gen)

	start := time.Now()
	ans := a.Answer(context.Background(), "sarl")
	if time.Since(start) > time.Second {
		t.Fatal("answer took too long")
	}
	if ans.Retrieved != 2 {
		t.Fatalf("Retrieved = %d, want 2", ans.Retrieved)
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "creation.json" {
		t.Errorf("Sources = %v", ans.Sources)
	}
	if strings.Contains(gen.grounding, "impot") {
		t.Error("unrelated passage leaked into the context")
	}

	ans = a.Answer(context.Background(), "météo")
	if ans.Retrieved != 0 || gen.grounding != FallbackContext {
		t.Errorf("irrelevant query: Retrieved = %d, grounding = %q", ans.Retrieved, gen.grounding)
	}
}

// tableEmbedder returns the vector registered for each text, or a zero vector.
type tableEmbedder map[string][]float32

func (e tableEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0}
		}
	}
	return out, nil
}

func TestAnswer_IdenticalContentDistinctSources(t *testing.T) {
	t.Parallel()

	emb := tableEmbedder{
		"même texte":     {0.9, 0},
		"autre sujet":    {0, 1},
		"levée de fonds": {1, 0},
	}
	docs := []corpus.Document{
		{Content: "même texte", Source: "first.json"},
		{Content: "même texte", Source: "second.json"},
		{Content: "autre sujet", Source: "third.json"},
	}
	ix, err := rag.Build(context.Background(), emb, docs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	gen := &fakeGenerator{result: generator.Result{Kind: generator.KindOK, Text: "ok"}}
	ans := newAssistant(t, ix, gen).Answer(context.Background(), "levée de fonds")

	if ans.Retrieved != 2 {
		t.Fatalf("Retrieved = %d, want 2", ans.Retrieved)
	}
	if len(ans.Sources) != 2 {
		t.Fatalf("Sources = %v, want both labels", ans.Sources)
	}
	got := map[string]bool{}
	for _, s := range ans.Sources {
		got[s] = true
	}
	if !got["first.json"] || !got["second.json"] {
		t.Errorf("Sources = %v, want first.json and second.json", ans.Sources)
	}
	if strings.Count(gen.grounding, "même texte") != 2 {
		t.Errorf("both passages should be in the context: %q", gen.grounding)
	}
}
