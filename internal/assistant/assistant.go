// Package assistant answers chat questions by grounding a language model in
// the passages retrieved from the knowledge base.
//
// Answer never fails. Retrieval errors degrade to the no-context prompt and
// generation failures are turned into a French message for the user, so the
// HTTP layer always has a response to store and return.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/yolsda-go/internal/generator"
	"github.com/54b3r/yolsda-go/internal/logging"
	"github.com/54b3r/yolsda-go/internal/rag"
)

// DefaultTopK is the number of passages retrieved per question.
const DefaultTopK = 2

const (
	// FallbackContext is sent to the generator when no passage clears the
	// relevance threshold.
	FallbackContext = "Aucune information spécifique dans la base de connaissances. Réponds en tant qu'expert en entrepreneuriat."

	// ContextHeader opens the context built from retrieved passages.
	ContextHeader = "INFORMATIONS PERTINENTES DE LA BASE DE CONNAISSANCES:\n\n"

	// TimeoutMessage is returned when generation exceeds its deadline.
	TimeoutMessage = "Désolé, la requête a pris trop de temps. Veuillez réessayer."

	// EmptyMessage is returned when the model answers with nothing.
	EmptyMessage = "Désolé, aucune réponse n'a été générée. Veuillez réessayer."
)

// Config holds the collaborators of an [Assistant].
type Config struct {
	// Retriever supplies the grounding passages. Nil means every question
	// is answered with FallbackContext.
	Retriever rag.Retriever
	// Generator produces the answer. Required.
	Generator generator.Generator
	// TopK overrides DefaultTopK when positive.
	TopK int
}

// Assistant is safe for concurrent use when its collaborators are.
type Assistant struct {
	retriever rag.Retriever
	generator generator.Generator
	topK      int
}

// Answer is the outcome of one question.
type Answer struct {
	// Text is the user-facing response. Never empty.
	Text string
	// Sources lists the distinct corpus files that grounded Text, in
	// retrieval order. Never nil.
	Sources []string
	// Outcome is the generation result kind, for metrics.
	Outcome generator.Kind
	// Retrieved is the number of passages placed in the context.
	Retrieved int
	// SearchTime and GenerateTime measure the two stages.
	SearchTime   time.Duration
	GenerateTime time.Duration
}

// New constructs an Assistant from cfg.
func New(cfg *Config) (*Assistant, error) {
	if cfg == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("assistant: Generator must not be nil")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Assistant{
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		topK:      topK,
	}, nil
}

// Answer retrieves context for question and generates a response.
// Cancelling ctx does not abort an in-flight generation; the generator's own
// timeouts bound it.
func (a *Assistant) Answer(ctx context.Context, question string) Answer {
	log := logging.FromContext(ctx)

	start := time.Now()
	results := a.retrieve(ctx, question)
	searched := time.Since(start)

	grounding := FallbackContext
	if len(results) > 0 {
		grounding = BuildContext(results)
	}

	start = time.Now()
	res := a.generator.Generate(context.WithoutCancel(ctx), question, grounding)
	generated := time.Since(start)

	if res.Kind != generator.KindOK {
		log.Warn("assistant: generation failed",
			slog.String("kind", res.Kind.String()),
			slog.String("backend", res.Backend),
			slog.Int("status", res.Status),
			slog.Any("error", res.Err),
		)
	}

	answer := Answer{
		Text:         Message(res),
		Sources:      []string{},
		Outcome:      res.Kind,
		Retrieved:    len(results),
		SearchTime:   searched,
		GenerateTime: generated,
	}
	// A failed generation did not use the passages, so it cites nothing.
	if res.Kind == generator.KindOK {
		answer.Sources = Sources(results)
	}
	return answer
}

// retrieve returns the passages for question, or nil when retrieval is not
// configured or fails.
func (a *Assistant) retrieve(ctx context.Context, question string) []rag.Result {
	if a.retriever == nil {
		return nil
	}
	results, err := a.retriever.Retrieve(ctx, question, a.topK)
	if err != nil {
		logging.FromContext(ctx).Warn("assistant: retrieval failed, answering without context", slog.Any("error", err))
		return nil
	}
	return results
}

// BuildContext formats retrieved passages into the generator's context.
func BuildContext(results []rag.Result) string {
	var sb strings.Builder
	sb.WriteString(ContextHeader)
	for i, r := range results {
		fmt.Fprintf(&sb, "--- Source %d (%s) ---\n%s\n\n", i+1, r.Source, r.Content)
	}
	return sb.String()
}

// Sources returns the distinct source labels of results in first-seen order.
func Sources(results []rag.Result) []string {
	out := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r.Source)
	}
	return out
}

// Message maps a generation result to the text shown to the user.
func Message(r generator.Result) string {
	backend := r.Backend
	if backend == "" {
		backend = "Ollama"
	}
	switch r.Kind {
	case generator.KindOK:
		if strings.TrimSpace(r.Text) == "" {
			return EmptyMessage
		}
		return r.Text
	case generator.KindTimeout:
		return TimeoutMessage
	case generator.KindTransport:
		return fmt.Sprintf("Erreur de connexion à %s: %v", backend, r.Err)
	default:
		if r.Status == 0 {
			return fmt.Sprintf("Erreur %s: %s", backend, r.Body)
		}
		return fmt.Sprintf("Erreur %s %d: %s", backend, r.Status, r.Body)
	}
}
