package ws

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voxcast/charchat/internal/metrics"
	"github.com/voxcast/charchat/internal/protocol"
	"github.com/voxcast/charchat/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler manages persistent chat connections with admission control.
type Handler struct {
	registry *session.Registry
	sem      chan struct{}
}

// NewHandler creates a WebSocket handler backed by the session registry,
// admitting at most maxConcurrent connections.
func NewHandler(registry *session.Registry, maxConcurrent int) *Handler {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Handler{
		registry: registry,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// ServeHTTP upgrades the connection and runs its session until the peer
// disconnects. Returns 503 at capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsTotal.Inc()
	defer metrics.ConnectionsActive.Dec()

	peer := newPeer(conn)
	sess := h.registry.Open(peer)
	defer h.registry.Close(sess.ID())

	slog.Info("connection opened", "session_id", sess.ID(), "remote", r.RemoteAddr)
	h.readLoop(conn, sess)
	slog.Info("connection closed", "session_id", sess.ID())
}

// readLoop feeds inbound text frames to the session. Binary frames from the
// client have no meaning in this protocol and are ignored.
func (h *Handler) readLoop(conn *websocket.Conn, sess *session.Session) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		sess.HandleControl(data)
	}
}

// peer serializes writes to one connection: JSON text frames for control
// messages, binary frames for raw audio.
type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{conn: conn}
}

func (p *peer) SendControl(msg protocol.ServerMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encode control message", "error", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("write control message", "error", err)
	}
}

func (p *peer) SendAudio(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		slog.Error("write audio frame", "error", err)
	}
}
