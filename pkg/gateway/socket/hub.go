// Package socket is the WebSocket push hub.
//
// Clients open GET /v1/socket, receive a socket id, and pass that id in
// chat requests; run events for the request are pushed to the socket as
// JSON frames {"event": name, "data": payload}. Inbound frames
// {"type":"stop"} and {"type":"stop_audio"} trigger the cancellation
// scopes of the run currently bound to the socket.
package socket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// EventReady carries the socket id right after the upgrade.
	EventReady = "socket.ready"

	pingInterval   = 20 * time.Second
	defaultTimeout = 5 * time.Second
)

type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type controlMessage struct {
	Type string `json:"type"`
}

// Socket is one connected client. Emit is safe for concurrent use and
// becomes a no-op once the connection is gone.
type Socket struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	closed    bool
	bindGen   uint64
	stop      func()
	stopAudio func()
}

func (s *Socket) ID() string { return s.id }

// Emit pushes one event frame. Write failures close the socket; events
// emitted afterwards are dropped silently.
func (s *Socket) Emit(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteJSON(frame{Event: event, Data: payload}); err != nil {
		if s.logger != nil {
			s.logger.Warn("socket write failed", "socket_id", s.id, "error", err)
		}
		s.closeLocked()
	}
}

// Bind attaches the cancellation hooks of the run currently being pushed
// through this socket. Returns a release func that detaches them again,
// but only if no newer run has been bound since.
func (s *Socket) Bind(stop, stopAudio func()) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindGen++
	gen := s.bindGen
	s.stop = stop
	s.stopAudio = stopAudio
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.bindGen != gen {
			return
		}
		s.stop = nil
		s.stopAudio = nil
	}
}

func (s *Socket) control(kind string) {
	s.mu.Lock()
	stop, stopAudio := s.stop, s.stopAudio
	s.mu.Unlock()

	switch kind {
	case "stop":
		if stop != nil {
			stop()
		}
	case "stop_audio":
		if stopAudio != nil {
			stopAudio()
		}
	default:
		if s.logger != nil {
			s.logger.Debug("ignoring unknown control message", "socket_id", s.id, "type", kind)
		}
	}
}

func (s *Socket) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Socket) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}

// Hub tracks connected sockets by id.
type Hub struct {
	logger       *slog.Logger
	writeTimeout time.Duration

	mu      sync.Mutex
	sockets map[string]*Socket
}

func NewHub(logger *slog.Logger, writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = defaultTimeout
	}
	return &Hub{
		logger:       logger,
		writeTimeout: writeTimeout,
		sockets:      make(map[string]*Socket),
	}
}

// Get looks up a connected socket by id.
func (h *Hub) Get(id string) (*Socket, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sockets[id]
	return s, ok
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sockets)
}

// CloseAll disconnects every socket. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sockets := make([]*Socket, 0, len(h.sockets))
	for _, s := range h.sockets {
		sockets = append(sockets, s)
	}
	h.mu.Unlock()
	for _, s := range sockets {
		s.close()
	}
}

func (h *Hub) register(s *Socket) {
	h.mu.Lock()
	h.sockets[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	delete(h.sockets, id)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and serves the socket until the client
// disconnects. Disconnecting stops any run still bound to the socket.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := &Socket{
		id:           "sock_" + uuid.NewString(),
		conn:         conn,
		writeTimeout: h.writeTimeout,
		logger:       h.logger,
	}
	h.register(s)
	defer func() {
		h.unregister(s.id)
		s.control("stop")
		s.close()
	}()

	s.Emit(EventReady, map[string]string{"socket_id": s.id})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(s, done)

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			if h.logger != nil {
				h.logger.Debug("bad control frame", "socket_id", s.id, "error", err)
			}
			continue
		}
		s.control(msg.Type)
	}
}

func (h *Hub) pingLoop(s *Socket, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.writeTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return
			}
		}
	}
}
