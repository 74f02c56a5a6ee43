package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/store"
)

// WordsHandler manages the custom dictionary words.
type WordsHandler struct {
	store *store.Store
	// changed is called after the word list changes.
	changed func() error
	log     *zap.Logger
}

// NewWordsHandler creates a WordsHandler. changed and log may be nil.
func NewWordsHandler(s *store.Store, changed func() error, log *zap.Logger) *WordsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WordsHandler{store: s, changed: changed, log: log}
}

// ServeHTTP routes /api/words and /api/words/{word}.
func (h *WordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	word := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/words"), "/")

	if word == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.add(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.delete(w, r, word)
}

type addWordRequest struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
}

type listWordsResponse struct {
	Words []store.Word `json:"words"`
}

func (h *WordsHandler) list(w http.ResponseWriter, r *http.Request) {
	words, err := h.store.Words().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list words")
		return
	}
	if words == nil {
		words = []store.Word{}
	}
	writeJSON(w, http.StatusOK, listWordsResponse{Words: words})
}

func (h *WordsHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addWordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	word := strings.ToUpper(strings.TrimSpace(req.Word))
	if word == "" || strings.ContainsAny(word, " \t") {
		writeError(w, http.StatusBadRequest, "A single word is required")
		return
	}
	if req.Frequency <= 0 {
		req.Frequency = 1
	}

	if err := h.store.Words().Add(word, req.Frequency); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save word")
		return
	}
	h.notify()
	writeJSON(w, http.StatusCreated, addWordRequest{Word: word, Frequency: req.Frequency})
}

func (h *WordsHandler) delete(w http.ResponseWriter, r *http.Request, word string) {
	if err := h.store.Words().Delete(word); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Word not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete word")
		return
	}
	h.notify()
	w.WriteHeader(http.StatusNoContent)
}

func (h *WordsHandler) notify() {
	if h.changed == nil {
		return
	}
	if err := h.changed(); err != nil {
		h.log.Warn("failed to refresh dictionary", zap.Error(err))
	}
}
