package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/nikolang/niko/internal/log"
	"github.com/nikolang/niko/internal/session"
)

// Session validation constants.
const (
	MaxTitleLength   = 100
	DefaultListLimit = 100
	MaxListLimit     = 1000
	MaxListOffset    = 100000
)

// SessionHandler handles session-related HTTP endpoints.
type SessionHandler struct {
	store  *session.Store
	logger log.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(store *session.Store, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
	mux.HandleFunc("GET /api/sessions/{id}/messages", h.messages)
}

// list returns the owner's sessions, most recently updated first.
// Query parameters:
//   - ownerId: required
//   - limit: maximum sessions to return (default 100, max 1000)
//   - offset: sessions to skip (default 0)
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("ownerId")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "missing_owner", "ownerId is required")
		return
	}

	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	sessions, err := h.store.List(r.Context(), ownerID, int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
		"limit":    limit,
		"offset":   offset,
	})
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	OwnerID string `json:"ownerId"`
	Title   string `json:"title"`
}

// create creates a new, empty session.
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "title_too_long", "title too long (max 100 characters)")
		return
	}

	sess, err := h.store.Create(r.Context(), req.OwnerID, req.Title)
	if err != nil {
		if errors.Is(err, session.ErrEmptyOwner) {
			writeError(w, http.StatusBadRequest, "missing_owner", "ownerId is required")
			return
		}
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// delete removes a session and its messages.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("ownerId")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "missing_owner", "ownerId is required")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "invalid session id")
		return
	}

	if err := h.store.Delete(r.Context(), ownerID, id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		h.logger.Error("failed to delete session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// messages returns a session's messages in sequence order.
func (h *SessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "invalid session id")
		return
	}

	limit := parseIntParam(r, "limit", int(session.DefaultHistoryLimit), 1, int(session.MaxHistoryLimit))
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded above
	msgs, err := h.store.Messages(r.Context(), id, int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("failed to load messages", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "messages_failed", "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    len(msgs),
	})
}
