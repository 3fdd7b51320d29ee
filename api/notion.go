package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikolang/niko/internal/config"
	"github.com/nikolang/niko/internal/log"
	"github.com/nikolang/niko/internal/notion"
)

// NotionHandler handles save and listing endpoints backed by the note
// sink. Read requests without explicit credentials fall back to the
// stored preferences so the token never has to travel in the URL.
type NotionHandler struct {
	sink   *notion.Sink
	prefs  *config.PrefsStore
	logger log.Logger
}

// NewNotionHandler creates a new Notion handler. prefs may be nil; the
// listing endpoint then requires explicit credentials.
func NewNotionHandler(sink *notion.Sink, prefs *config.PrefsStore, logger log.Logger) *NotionHandler {
	return &NotionHandler{sink: sink, prefs: prefs, logger: logger}
}

// RegisterRoutes registers Notion routes on the given mux.
func (h *NotionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/notion", h.save)
	mux.HandleFunc("GET /api/notion/words", h.listWords)
}

// SaveRequest is the request body for saving to Notion. Data is
// decoded according to Type: a word entry, a word batch, or a
// sentence entry.
type SaveRequest struct {
	Token      string          `json:"token"`
	DatabaseID string          `json:"databaseId"`
	Type       string          `json:"type"` // "word" or "sentence"
	Data       json.RawMessage `json:"data"`
}

// SaveResponse reports a save outcome. Saved counts pages created
// before any failure, so a partially applied batch is visible to the
// caller.
type SaveResponse struct {
	OK    bool   `json:"ok"`
	Saved int    `json:"saved,omitempty"`
	Error string `json:"error,omitempty"`
}

// save creates one or more pages in the caller's database.
func (h *NotionHandler) save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	target := notion.Target{Token: req.Token, DatabaseID: req.DatabaseID}
	ctx := r.Context()

	var saved int
	var err error
	switch req.Type {
	case "word":
		saved, err = h.saveWords(ctx, target, req.Data)
	case "sentence":
		var entry notion.SentenceEntry
		if jsonErr := json.Unmarshal(req.Data, &entry); jsonErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_data", "invalid sentence data")
			return
		}
		if err = h.sink.SaveSentence(ctx, target, entry); err == nil {
			saved = 1
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid_type", `type must be "word" or "sentence"`)
		return
	}

	if err != nil {
		status := http.StatusBadGateway
		if isPrecondition(err) {
			status = http.StatusBadRequest
		}
		h.logger.Warn("notion save failed", "type", req.Type, "saved", saved, "error", err)
		writeJSON(w, status, SaveResponse{OK: false, Saved: saved, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, SaveResponse{OK: true, Saved: saved})
}

// saveWords accepts either a single word entry or a batch. A batch is
// written sequentially; entries saved before a failure stay saved.
func (h *NotionHandler) saveWords(ctx context.Context, target notion.Target, data json.RawMessage) (int, error) {
	var batch notion.WordBatch
	if err := json.Unmarshal(data, &batch); err == nil && len(batch.Words) > 0 {
		return h.sink.SaveWords(ctx, target, batch.Words)
	}

	var entry notion.WordEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Word == "" {
		return 0, errors.New("invalid word data")
	}
	if err := h.sink.SaveWord(ctx, target, entry); err != nil {
		return 0, err
	}
	return 1, nil
}

// listWords returns vocabulary entries whose status marks them as
// still being studied.
func (h *NotionHandler) listWords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := notion.Target{
		Token:      q.Get("token"),
		DatabaseID: q.Get("databaseId"),
	}
	if target.Token == "" && h.prefs != nil {
		stored, err := h.prefs.Load()
		if err != nil {
			h.logger.Error("failed to load preferences", "error", err)
			writeError(w, http.StatusInternalServerError, "prefs_failed", "failed to load preferences")
			return
		}
		target.Token = stored.Notion.Token
		if target.DatabaseID == "" {
			target.DatabaseID = stored.Notion.WordDatabaseID
		}
	}
	status := q.Get("status")
	if status == "" {
		status = config.DefaultWordStatus
	}

	words, err := h.sink.ListWords(r.Context(), target, status)
	if err != nil {
		if isPrecondition(err) {
			writeError(w, http.StatusBadRequest, "precondition_failed", err.Error())
			return
		}
		h.logger.Error("notion query failed", "error", err)
		writeError(w, http.StatusBadGateway, "query_failed", "failed to query notion")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"words": words,
		"total": len(words),
	})
}

// isPrecondition reports whether err is a sink precondition failure,
// meaning no network call was made.
func isPrecondition(err error) bool {
	return errors.Is(err, notion.ErrMissingToken) ||
		errors.Is(err, notion.ErrMissingDatabaseID) ||
		errors.Is(err, notion.ErrDisabled)
}
