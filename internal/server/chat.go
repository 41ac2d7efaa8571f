package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/yolsda-go/internal/logging"
)

// maxChatBody caps the size of a chat request body.
const maxChatBody = 64 << 10

// handleChat handles POST /chat and POST /api/chat. It answers the message,
// stores the exchange under the request's conversation (or a new one) and
// returns the answer with its sources.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, http.StatusBadRequest, "message is required")
		return
	}

	s.metrics.chatInFlight.Inc()
	defer s.metrics.chatInFlight.Dec()
	start := time.Now()

	answer := s.assistant.Answer(r.Context(), req.Message)
	s.metrics.observeAnswer(answer)

	id := req.ConversationID
	if id == "" {
		id = s.newConversationID()
	}

	if s.store != nil {
		if err := s.store.Save(r.Context(), id, req.Message, answer.Text, answer.Sources); err != nil {
			log.Error("chat: save exchange failed",
				slog.String("conversation_id", id),
				slog.Any("error", err),
			)
			s.metrics.observeChat("error", time.Since(start))
			writeError(w, r, http.StatusInternalServerError, "Erreur lors du traitement: "+err.Error())
			return
		}
	}

	s.metrics.observeChat(answer.Outcome.String(), time.Since(start))
	log.Info("chat: answered",
		slog.String("conversation_id", id),
		slog.String("outcome", answer.Outcome.String()),
		slog.Int("passages", answer.Retrieved),
		slog.Int("sources", len(answer.Sources)),
		slog.Duration("search", answer.SearchTime),
		slog.Duration("generate", answer.GenerateTime),
	)

	writeJSON(w, r, http.StatusOK, chatResponse{
		Response:       answer.Text,
		ConversationID: id,
		Sources:        answer.Sources,
	})
}

// newConversationID returns conv_YYYYMMDD_HHMMSS_<8 random hex digits>.
func (s *Server) newConversationID() string {
	suffix := uuid.NewString()[:8]
	return "conv_" + s.now().Format("20060102_150405") + "_" + suffix
}
