package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/speech"
)

// Controller is the part of a session the HTTP API drives.
type Controller interface {
	Start() error
	Stop()
	Reset()
	Commit() (string, bool)
	AcceptSuggestion(i int) (string, bool)
	Snapshot() session.Snapshot
}

// SessionHandler exposes session controls under /api/session.
type SessionHandler struct {
	session Controller
	speaker speech.Speaker
	reload  func(context.Context) error
	log     *zap.Logger
}

// NewSessionHandler creates a SessionHandler. speaker and reload may be nil,
// in which case the matching endpoints report 501.
func NewSessionHandler(s Controller, speaker speech.Speaker, reload func(context.Context) error, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{session: s, speaker: speaker, reload: reload, log: log}
}

type acceptRequest struct {
	Index int `json:"index"`
}

type commitResponse struct {
	Word      string           `json:"word,omitempty"`
	Committed bool             `json:"committed"`
	Snapshot  session.Snapshot `json:"snapshot"`
}

// ServeHTTP routes GET /api/session and POST /api/session/{action}.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/session"), "/")

	if action == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.session.Snapshot())
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "start":
		h.start(w)
	case "stop":
		h.session.Stop()
		writeJSON(w, http.StatusOK, h.session.Snapshot())
	case "reset":
		h.session.Reset()
		writeJSON(w, http.StatusOK, h.session.Snapshot())
	case "commit":
		word, ok := h.session.Commit()
		writeJSON(w, http.StatusOK, commitResponse{Word: word, Committed: ok, Snapshot: h.session.Snapshot()})
	case "accept":
		h.accept(w, r)
	case "model":
		h.loadModel(w, r)
	case "speak":
		h.speak(w, r)
	default:
		writeError(w, http.StatusNotFound, "Unknown action")
	}
}

func (h *SessionHandler) start(w http.ResponseWriter) {
	err := h.session.Start()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.session.Snapshot())
	case errors.Is(err, session.ErrModelUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrCameraUnavailable), errors.Is(err, session.ErrNoSource):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *SessionHandler) accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	word, ok := h.session.AcceptSuggestion(req.Index)
	if !ok {
		writeError(w, http.StatusBadRequest, "No suggestion at that index")
		return
	}
	writeJSON(w, http.StatusOK, commitResponse{Word: word, Committed: true, Snapshot: h.session.Snapshot()})
}

func (h *SessionHandler) loadModel(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		writeError(w, http.StatusNotImplemented, "Model reload is not configured")
		return
	}
	if err := h.reload(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *SessionHandler) speak(w http.ResponseWriter, r *http.Request) {
	if h.speaker == nil {
		writeError(w, http.StatusNotImplemented, "Speech is disabled")
		return
	}

	text := h.session.Snapshot().FinalTranslation
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusConflict, "Nothing to speak")
		return
	}

	if err := h.speaker.Speak(r.Context(), text); err != nil {
		h.log.Warn("speech failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Speech failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"spoken": text})
}
