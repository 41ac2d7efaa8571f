package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/yolsda-go/internal/generator"
	"github.com/54b3r/yolsda-go/internal/logging"
)

// probeTimeout bounds each dependency probe of a readiness or status check.
const probeTimeout = 5 * time.Second

// Values of the ollama_status field of GET /health.
const (
	ollamaHealthy     = "healthy"
	ollamaUnhealthy   = "unhealthy"
	ollamaUnreachable = "unreachable"
	ollamaUnknown     = "unknown"
)

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Each implementation must return nil when the dependency
// is healthy and a descriptive error otherwise.
// Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given context.
	// Returns nil on success, a descriptive error on failure.
	Ping(ctx context.Context) error

	// Name returns a short human-readable label used in readiness responses
	// (e.g. "ollama", "history").
	Name() string
}

// readyCheck holds the per-dependency result of a readiness probe.
type readyCheck struct {
	// Name is the dependency label (e.g. "ollama", "embedder").
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false. Empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency probe results.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready for readiness checks.
// It probes each registered Pinger with a short timeout and returns 200 when
// all dependencies are reachable, or 503 when any probe fails.
// Unlike /api/health (liveness), this endpoint reflects actual dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: []readyCheck{}}
	allOK := true

	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			allOK = false
			log.Warn("readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	resp.Ready = allOK

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, r, status, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /health, the status summary shown by the web UI.
// It always answers 200; ollama_status reflects GET /api/tags on the host.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:       "healthy",
		DataLoaded:   s.cfg.Documents,
		OllamaStatus: ollamaUnknown,
	}
	if s.models != nil {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		_, err := s.models.Models(ctx)
		cancel()

		var se *generator.StatusError
		switch {
		case err == nil:
			resp.OllamaStatus = ollamaHealthy
		case errors.As(err, &se):
			resp.OllamaStatus = ollamaUnhealthy
		default:
			resp.OllamaStatus = ollamaUnreachable
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleModels handles GET /models, listing the models installed on the
// Ollama host. Failures still answer 200, with an empty list and the reason
// in the error field, which is what the web UI reads.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		writeJSON(w, r, http.StatusOK, modelsResponse{
			Models: []generator.Model{},
			Error:  "model listing is only available with the Ollama backend",
		})
		return
	}

	models, err := s.models.Models(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Warn("models: list failed", slog.Any("error", err))
		writeJSON(w, r, http.StatusOK, modelsResponse{
			Models: []generator.Model{},
			Error:  err.Error(),
		})
		return
	}
	if models == nil {
		models = []generator.Model{}
	}
	writeJSON(w, r, http.StatusOK, modelsResponse{Models: models})
}
