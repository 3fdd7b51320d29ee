package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikolang/niko/internal/config"
	"github.com/nikolang/niko/internal/log"
)

// PrefsHandler exposes user preferences: the Notion integration
// settings and the UI theme.
type PrefsHandler struct {
	store  *config.PrefsStore
	logger log.Logger
}

// NewPrefsHandler creates a new preferences handler.
func NewPrefsHandler(store *config.PrefsStore, logger log.Logger) *PrefsHandler {
	return &PrefsHandler{store: store, logger: logger}
}

// RegisterRoutes registers preference routes on the given mux.
func (h *PrefsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/prefs", h.get)
	mux.HandleFunc("PUT /api/prefs", h.put)
}

// get returns the current preferences, defaults included.
func (h *PrefsHandler) get(w http.ResponseWriter, _ *http.Request) {
	prefs, err := h.store.Load()
	if err != nil {
		h.logger.Error("failed to load preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// put replaces the stored preferences.
func (h *PrefsHandler) put(w http.ResponseWriter, r *http.Request) {
	var prefs config.Prefs
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if err := h.store.Save(prefs); err != nil {
		if errors.Is(err, config.ErrInvalidTheme) || errors.Is(err, config.ErrNotionIncomplete) {
			writeError(w, http.StatusBadRequest, "invalid_prefs", err.Error())
			return
		}
		h.logger.Error("failed to save preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "save_failed", "failed to save preferences")
		return
	}

	writeJSON(w, http.StatusOK, prefs)
}
