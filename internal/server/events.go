package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/session"
)

const (
	clientBuffer = 32
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is one WebSocket message sent to event clients.
type Message struct {
	Type     string           `json:"type"`
	Event    *session.Event   `json:"event,omitempty"`
	Snapshot session.Snapshot `json:"snapshot"`
}

// EventsHandler pushes session events and snapshots to WebSocket clients.
// A slow client loses messages instead of stalling the session.
type EventsHandler struct {
	session *session.Session
	log     *zap.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan Message
	detach  func()
}

// NewEventsHandler subscribes to s. Call Close to unsubscribe.
func NewEventsHandler(s *session.Session, log *zap.Logger) *EventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &EventsHandler{
		session: s,
		log:     log.Named("events"),
		clients: make(map[*websocket.Conn]chan Message),
	}
	h.detach = s.Subscribe(h.broadcast)
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	out := make(chan Message, clientBuffer)
	out <- Message{Type: "snapshot", Snapshot: h.session.Snapshot()}

	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()

	done := make(chan struct{})
	go h.write(conn, out, done)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		close(done)
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *EventsHandler) write(conn *websocket.Conn, out <-chan Message, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("websocket write failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

// broadcast runs on the session's delivery path.
func (h *EventsHandler) broadcast(e session.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	msg := Message{Type: "event", Event: &e, Snapshot: h.session.Snapshot()}
	for conn, out := range h.clients {
		select {
		case out <- msg:
		default:
			h.log.Debug("dropping event for slow client", zap.String("remote", conn.RemoteAddr().String()))
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from the session.
func (h *EventsHandler) Close() {
	h.detach()
}
