package generator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// errGenerationFailed marks a result the breaker should count as a failure.
var errGenerationFailed = errors.New("generator: generation failed")

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// Backend names the wrapped service in results produced while open.
	Backend string
	// ConsecutiveFailures trips the breaker. Defaults to 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open. Defaults to 30s.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed when half-open.
	// Defaults to 1.
	HalfOpenRequests uint32
	// Logger receives state changes. Defaults to slog.Default().
	Logger *slog.Logger
}

// Breaker stops calling a generator that keeps failing. While open it answers
// immediately with a KindTransport result wrapping gobreaker.ErrOpenState (or
// ErrTooManyRequests when half-open), so a dead backend costs nothing per
// request until the open timeout expires. Results are never retried.
type Breaker struct {
	next    Generator
	backend string
	cb      *gobreaker.CircuitBreaker[Result]
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Generator, cfg BreakerConfig) *Breaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	openFor := cfg.OpenTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	probes := cfg.HalfOpenRequests
	if probes == 0 {
		probes = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	backend := cfg.Backend
	if backend == "" {
		backend = ollamaBackend
	}

	settings := gobreaker.Settings{
		Name:        "generator",
		MaxRequests: probes,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("generator: circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Breaker{
		next:    next,
		backend: backend,
		cb:      gobreaker.NewCircuitBreaker[Result](settings),
	}
}

// Generate delegates to the wrapped generator unless the breaker is open.
// Timeouts, transport failures and 5xx upstream answers count as failures.
func (b *Breaker) Generate(ctx context.Context, question, grounding string) Result {
	res, err := b.cb.Execute(func() (Result, error) {
		r := b.next.Generate(ctx, question, grounding)
		if countsAsFailure(r) {
			return r, errGenerationFailed
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Result{Kind: KindTransport, Backend: b.backend, Err: err}
	}
	return res
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func countsAsFailure(r Result) bool {
	switch r.Kind {
	case KindTimeout, KindTransport:
		return true
	case KindUpstream:
		return r.Status >= http.StatusInternalServerError
	default:
		return false
	}
}
