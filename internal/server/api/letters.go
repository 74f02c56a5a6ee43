// Package api provides HTTP API handlers for mudra.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/spelling"
	"github.com/ayusman/mudra/internal/store"
)

// LetterHandler handles HTTP requests for letter template resources.
type LetterHandler struct {
	store            *store.Store
	defaultHands     int
	defaultTolerance float64
}

// NewLetterHandler creates a LetterHandler. New letters default to hands
// hands and tolerance tolerance.
func NewLetterHandler(s *store.Store, hands int, tolerance float64) *LetterHandler {
	if hands != 1 && hands != 2 {
		hands = 2
	}
	if tolerance <= 0 {
		tolerance = 0.25
	}
	return &LetterHandler{store: s, defaultHands: hands, defaultTolerance: tolerance}
}

// ServeHTTP routes /api/letters and /api/letters/{id}.
func (h *LetterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/letters"), "/")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type letterRequest struct {
	Symbol    string  `json:"symbol"`
	Hands     int     `json:"hands"`
	Tolerance float64 `json:"tolerance"`
}

type letterResponse struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Hands     int     `json:"hands"`
	Tolerance float64 `json:"tolerance"`
	Samples   int     `json:"samples"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type listLettersResponse struct {
	Letters []letterResponse `json:"letters"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(l *store.Letter) letterResponse {
	return letterResponse{
		ID:        l.ID,
		Symbol:    l.Symbol,
		Hands:     l.Hands,
		Tolerance: l.Tolerance,
		Samples:   l.Samples,
		CreatedAt: l.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: l.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// validSymbol accepts one letter or digit, or a control symbol.
func validSymbol(s spelling.Symbol) bool {
	if s.IsControl() {
		return true
	}
	r := []rune(string(s))
	return len(r) == 1 && (unicode.IsLetter(r[0]) || unicode.IsDigit(r[0]))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (h *LetterHandler) list(w http.ResponseWriter, r *http.Request) {
	letters, err := h.store.Letters().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list letters")
		return
	}

	response := listLettersResponse{Letters: make([]letterResponse, 0, len(letters))}
	for _, l := range letters {
		response.Letters = append(response.Letters, toResponse(l))
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *LetterHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	letter, err := h.store.Letters().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Letter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get letter")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(letter))
}

func (h *LetterHandler) create(w http.ResponseWriter, r *http.Request) {
	var req letterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	symbol := spelling.ParseSymbol(req.Symbol)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "Symbol is required")
		return
	}
	if !validSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "Symbol must be a single letter or SPACE, DELETE, CLEAR")
		return
	}

	hands := req.Hands
	if hands == 0 {
		hands = h.defaultHands
	}
	if hands != 1 && hands != 2 {
		writeError(w, http.StatusBadRequest, "Hands must be 1 or 2")
		return
	}

	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = h.defaultTolerance
	}
	if tolerance < 0 {
		writeError(w, http.StatusBadRequest, "Tolerance must be positive")
		return
	}

	if _, err := h.store.Letters().GetBySymbol(string(symbol)); err == nil {
		writeError(w, http.StatusConflict, "Letter already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to check letter")
		return
	}

	letter := &store.Letter{
		ID:        uuid.New().String(),
		Symbol:    string(symbol),
		Hands:     hands,
		Tolerance: tolerance,
	}
	if err := h.store.Letters().Create(letter); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create letter")
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(letter))
}

func (h *LetterHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	letter, err := h.store.Letters().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Letter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get letter")
		return
	}

	var req letterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if symbol := spelling.ParseSymbol(req.Symbol); symbol != "" {
		if !validSymbol(symbol) {
			writeError(w, http.StatusBadRequest, "Symbol must be a single letter or SPACE, DELETE, CLEAR")
			return
		}
		letter.Symbol = string(symbol)
	}
	if req.Hands != 0 {
		if req.Hands != 1 && req.Hands != 2 {
			writeError(w, http.StatusBadRequest, "Hands must be 1 or 2")
			return
		}
		letter.Hands = req.Hands
	}
	if req.Tolerance > 0 {
		letter.Tolerance = req.Tolerance
	}

	if err := h.store.Letters().Update(letter); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update letter")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(letter))
}

func (h *LetterHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Letters().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Letter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete letter")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
