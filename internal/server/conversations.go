package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/54b3r/yolsda-go/internal/logging"
	"github.com/54b3r/yolsda-go/internal/store"
)

// maxQueryLimit caps the limit query parameter of the history routes.
const maxQueryLimit = 500

// historyEnabled writes 503 and returns false when no store is configured.
func (s *Server) historyEnabled(w http.ResponseWriter, r *http.Request) bool {
	if s.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "conversation history is disabled")
		return false
	}
	return true
}

// handleListConversations handles GET /api/conversations?limit=N. The body is
// a bare JSON array, most recently updated conversation first.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w, r) {
		return
	}
	limit, ok := queryLimit(w, r, store.DefaultListLimit)
	if !ok {
		return
	}

	convs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.storeError(w, r, "list", "", err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, r, http.StatusOK, convs)
}

// handleCreateConversation handles POST /api/conversations. Both fields of
// the body are optional and an empty body is accepted.
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w, r) {
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	title := strings.TrimSpace(req.Title)

	if err := s.store.Create(r.Context(), id, title); err != nil {
		s.storeError(w, r, "create", id, err)
		return
	}
	if title == "" {
		title = store.DefaultTitle
	}

	writeJSON(w, r, http.StatusOK, createConversationResponse{
		ID:        id,
		Title:     title,
		CreatedAt: s.now(),
	})
}

// handleGetConversation handles GET /api/conversations/{id}.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w, r) {
		return
	}
	id := r.PathValue("id")

	conv, err := s.store.Get(r.Context(), id, store.DefaultMessageLimit)
	if err != nil {
		s.storeError(w, r, "get", id, err)
		return
	}
	writeJSON(w, r, http.StatusOK, conv)
}

// handleUpdateConversation handles PUT /api/conversations/{id}.
func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w, r) {
		return
	}
	id := r.PathValue("id")

	var req updateConversationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, r, http.StatusBadRequest, "title is required")
		return
	}

	if err := s.store.UpdateTitle(r.Context(), id, title); err != nil {
		s.storeError(w, r, "update", id, err)
		return
	}
	writeJSON(w, r, http.StatusOK, updateConversationResponse{ID: id, Title: title})
}

// handleDeleteConversation handles DELETE /api/conversations/{id}.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w, r) {
		return
	}
	id := r.PathValue("id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.storeError(w, r, "delete", id, err)
		return
	}
	writeJSON(w, r, http.StatusOK, deleteConversationResponse{Status: "deleted", ID: id})
}

// handleHistory handles GET /api/conversations/{id}/history?limit=N.
// An unknown conversation has an empty history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w, r) {
		return
	}
	id := r.PathValue("id")
	limit, ok := queryLimit(w, r, store.DefaultHistoryLimit)
	if !ok {
		return
	}

	history, err := s.store.History(r.Context(), id, limit)
	if err != nil {
		s.storeError(w, r, "history", id, err)
		return
	}
	if history == nil {
		history = []store.Exchange{}
	}
	writeJSON(w, r, http.StatusOK, historyResponse{History: history})
}

// storeError maps a store failure to a response: 404 for
// [store.ErrNotFound], 500 otherwise.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Conversation non trouvée")
		return
	}
	logging.FromContext(r.Context()).Error("conversations: store failure",
		slog.String("op", op),
		slog.String("conversation_id", id),
		slog.Any("error", err),
	)
	writeError(w, r, http.StatusInternalServerError, "Erreur de la base de données")
}

// queryLimit parses the optional limit query parameter. It writes 400 and
// returns false when the value is not a positive integer.
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxQueryLimit), true
}
