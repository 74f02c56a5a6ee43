package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/store"
)

// SamplesHandler handles recorded samples and training for a letter.
type SamplesHandler struct {
	store   *store.Store
	trainer *classifier.Trainer
	// reload is called after a letter is trained so the new template is used.
	reload func(context.Context) error
	log    *zap.Logger
}

// NewSamplesHandler creates a SamplesHandler. reload and log may be nil.
func NewSamplesHandler(s *store.Store, reload func(context.Context) error, log *zap.Logger) *SamplesHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SamplesHandler{store: s, trainer: classifier.NewTrainer(), reload: reload, log: log}
}

// ServeHTTP routes /api/letters/{id}/samples and /api/letters/{id}/train.
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/letters/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	letterID := parts[0]

	switch parts[1] {
	case "samples":
		switch r.Method {
		case http.MethodGet:
			h.list(w, r, letterID)
		case http.MethodPost:
			h.create(w, r, letterID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "train":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.train(w, r, letterID)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type createSamplesRequest struct {
	Samples []json.RawMessage `json:"samples"`
}

type sampleResponse struct {
	ID          int64           `json:"id"`
	LetterID    string          `json:"letter_id"`
	SampleIndex int             `json:"sample_index"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   string          `json:"created_at"`
}

type listSamplesResponse struct {
	Samples []sampleResponse `json:"samples"`
}

type trainResponse struct {
	Letter    letterResponse `json:"letter"`
	Landmarks int            `json:"landmarks"`
	Reloaded  bool           `json:"reloaded"`
}

func (h *SamplesHandler) list(w http.ResponseWriter, r *http.Request, letterID string) {
	samples, err := h.store.Samples().GetByLetterID(letterID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	response := listSamplesResponse{Samples: make([]sampleResponse, 0, len(samples))}
	for _, s := range samples {
		response.Samples = append(response.Samples, sampleResponse{
			ID:          s.ID,
			LetterID:    s.LetterID,
			SampleIndex: s.SampleIndex,
			Data:        s.Data,
			CreatedAt:   s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *SamplesHandler) create(w http.ResponseWriter, r *http.Request, letterID string) {
	if _, err := h.store.Letters().GetByID(letterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Letter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to verify letter")
		return
	}

	var req createSamplesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "At least one sample is required")
		return
	}

	if err := h.store.Samples().Create(letterID, req.Samples); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save samples")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"samples": len(req.Samples)})
}

// train averages the stored samples into the letter's template.
func (h *SamplesHandler) train(w http.ResponseWriter, r *http.Request, letterID string) {
	letter, err := h.store.Letters().GetByID(letterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Letter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get letter")
		return
	}

	samples, err := h.store.Samples().GetByLetterID(letterID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load samples")
		return
	}
	data := make([]json.RawMessage, len(samples))
	for i, s := range samples {
		data[i] = s.Data
	}

	points, hands, err := h.trainer.Train(data)
	if err != nil {
		if errors.Is(err, classifier.ErrNoSamples) {
			writeError(w, http.StatusBadRequest, "Record samples before training")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Letters().SetLandmarks(letterID, points); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save template")
		return
	}
	if letter.Hands != hands {
		letter.Hands = hands
		if err := h.store.Letters().Update(letter); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update letter")
			return
		}
	}

	reloaded := false
	if h.reload != nil {
		if err := h.reload(r.Context()); err != nil {
			h.log.Warn("model reload after training failed", zap.String("letter", letter.Symbol), zap.Error(err))
		} else {
			reloaded = true
		}
	}

	h.log.Info("letter trained", zap.String("letter", letter.Symbol), zap.Int("samples", len(samples)), zap.Int("hands", hands))
	writeJSON(w, http.StatusOK, trainResponse{Letter: toResponse(letter), Landmarks: len(points), Reloaded: reloaded})
}
