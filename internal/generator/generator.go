// Package generator produces grounded answers from a language model.
//
// Generation never returns a Go error. Every outcome, including timeouts and
// upstream failures, is reported as a [Result] whose Kind tells the caller
// which class of failure occurred, so the chat path can always turn it into
// a user-visible message.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode/utf8"
)

// Kind classifies the outcome of a generation call.
type Kind int

const (
	// KindOK means Text holds the generated answer.
	KindOK Kind = iota
	// KindTimeout means the call did not complete within its deadline,
	// including connection establishment.
	KindTimeout
	// KindTransport means the backend could not be reached or the exchange
	// failed below the HTTP status level.
	KindTransport
	// KindUpstream means the backend answered with a failure status.
	KindUpstream
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindUpstream:
		return "upstream"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of one generation call.
type Result struct {
	// Kind selects which of the remaining fields are meaningful.
	Kind Kind
	// Backend names the service that was called, e.g. "Ollama".
	Backend string
	// Text is the generated answer (KindOK).
	Text string
	// Status is the HTTP status returned by the backend (KindUpstream).
	// Zero when the backend does not expose one.
	Status int
	// Body is the backend's error payload (KindUpstream).
	Body string
	// Err is the underlying error (KindTimeout, KindTransport).
	Err error
}

// Generator produces an answer to question grounded in the grounding text.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, question, grounding string) Result
}

// classify turns a failed call into a timeout or transport result.
func classify(backend string, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Kind: KindTimeout, Backend: backend, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Result{Kind: KindTimeout, Backend: backend, Err: err}
	}
	return Result{Kind: KindTransport, Backend: backend, Err: err}
}

// MaxContextChars bounds the grounding context placed in the prompt.
const MaxContextChars = 1000

// SystemPersona is sent as the system message of every generation.
const SystemPersona = "Tu es Yolsda, un assistant IA dédié à l'entrepreneuriat. " +
	"Tu réponds toujours en français et en anglais de manière professionnelle et utile."

// promptTemplate receives the grounding context then the question.
const promptTemplate = `Tu es un assistant IA spécialisé dans l'analyse d'informations entrepreneuriales. Ton objectif est de fournir des réponses **rapides (<5 secondes)**, **précises** et **factuelles**, basées uniquement sur le contexte fourni.

INSTRUCTIONS :
1. Utilise **uniquement les informations présentes dans le contexte** fourni par l'utilisateur.
2. Si une information n'est pas dans le contexte, réponds clairement : "Information non disponible dans le contexte fourni."
3. Sois **direct, concis et structuré en paragraphes fluides**.
4. **Structure tes réponses en paragraphes** :
   - Commence par une introduction qui répond directement à la question
   - Développe les détails pertinents dans un paragraphe organisé
   - Mentionne les points d'attention si nécessaire
   - Termine par une conclusion synthétique
5. Utilise des **connecteurs logiques** (ainsi, cependant, par conséquent, de plus) pour lier les idées.
6. Évite les listes à puces, privilégie les phrases complètes en paragraphes.
7. Limite les digressions et évite les généralisations.
8. Priorise la rapidité avec des phrases courtes mais structurées.

TON COMPORTEMENT :
- Tu agis comme un expert entrepreneurial capable d'analyser des données, des projets ou des situations d'affaires.
- Tu synthétises rapidement les informations pertinentes et les présentes en paragraphes fluides.
- Tu restes neutre, objectif et factuel.

Contexte disponible :
%s

Question : %s

Réponse structurée en paragraphes :`

// BuildPrompt renders the prompt for question, cutting grounding to
// MaxContextChars characters followed by "..." when it is longer.
func BuildPrompt(question, grounding string) string {
	return fmt.Sprintf(promptTemplate, truncate(grounding, MaxContextChars), question)
}

// truncate cuts s to limit characters and appends "..." when it was longer.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteString("...")
	return b.String()
}
