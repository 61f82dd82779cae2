package websocket

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/voxrelay/server/domain/repositories"
	"github.com/voxrelay/server/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced at the HTTP layer.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active sessions, keyed by connection identity.
// It is the only state shared across sessions.
type Hub struct {
	// Registered sessions.
	sessions map[string]*Session

	// Register requests from new connections.
	register chan *Session

	// Unregister requests from closing connections.
	unregister chan *Session

	// Mutex for thread-safe access to the sessions map
	mu sync.RWMutex

	transcriber    repositories.LiveTranscriber
	connectTimeout time.Duration

	logger *zap.Logger
}

// NewHub creates a new session hub. Every session opened through this hub
// bridges its client connection to a stream from the given transcriber.
func NewHub(transcriber repositories.LiveTranscriber, connectTimeout time.Duration, logger *zap.Logger) *Hub {
	return &Hub{
		sessions:       make(map[string]*Session),
		register:       make(chan *Session),
		unregister:     make(chan *Session),
		transcriber:    transcriber,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case session := <-h.register:
			h.mu.Lock()
			h.sessions[session.id] = session
			h.mu.Unlock()
			metrics.SessionsActive.Inc()
			h.logger.Info("Session registered", zap.String("sessionID", session.id))

		case session := <-h.unregister:
			h.mu.Lock()
			_, ok := h.sessions[session.id]
			if ok {
				delete(h.sessions, session.id)
			}
			h.mu.Unlock()
			if ok {
				metrics.SessionsActive.Dec()
				h.logger.Info("Session unregistered", zap.String("sessionID", session.id))
			}
		}
	}
}

// Lookup returns the session registered under the given id.
func (h *Hub) Lookup(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	session, ok := h.sessions[id]
	return session, ok
}

// ActiveSessions returns the ids of all registered sessions.
func (h *Hub) ActiveSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// WriteData is one outbound frame for the client connection.
type WriteData struct {
	// Type is the websocket message type, websocket.TextMessage or
	// websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// HandleWebSocket upgrades the request and runs a relay session on it.
// The subprotocol, when non-empty, is echoed back in the upgrade response
// so token-bearing handshakes complete.
func HandleWebSocket(hub *Hub, c echo.Context, defaults repositories.AudioConfig, subprotocol string, logger *zap.Logger) error {
	var responseHeader http.Header
	if subprotocol != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": {subprotocol}}
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), responseHeader)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	session := newSession(hub, conn, audioConfigFromQuery(c, defaults), logger)

	hub.register <- session
	metrics.SessionsTotal.Inc()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go session.writePump()
	go session.readPump()

	return nil
}

// audioConfigFromQuery applies per-connection query parameter overrides on
// top of the configured defaults.
func audioConfigFromQuery(c echo.Context, defaults repositories.AudioConfig) repositories.AudioConfig {
	config := defaults

	if v := c.QueryParam("model"); v != "" {
		config.Model = v
	}
	if v := c.QueryParam("language"); v != "" {
		config.Language = v
	}
	if v := c.QueryParam("encoding"); v != "" {
		config.Encoding = v
	}
	if v := c.QueryParam("sample_rate"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.SampleRate = n
		}
	}
	if v := c.QueryParam("channels"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Channels = n
		}
	}
	if v := c.QueryParam("smart_format"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.SmartFormat = b
		}
	}

	return config
}

func newSessionID() string {
	return uuid.New().String()
}
