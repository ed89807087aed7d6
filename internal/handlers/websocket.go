package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Message types pushed to /ws clients
const (
	MessageTypeHello       = "hello"
	MessageTypeRunSnapshot = "run_snapshot"
	MessageTypeJobSession  = "job_session"
	MessageTypeEvent       = "event"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope of every message sent to a client
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotFunc returns the current value of a snapshot message type
type SnapshotFunc func() interface{}

type WebSocketHandler struct {
	logger       arbor.ILogger
	clients      map[*websocket.Conn]bool
	clientMutex  map[*websocket.Conn]*sync.Mutex
	mu           sync.RWMutex
	eventService interfaces.EventService

	// Snapshot sent to every client when it connects, keyed by message type
	snapshots     map[string]SnapshotFunc
	snapshotOrder []string

	throttleInterval time.Duration
	throttleMu       sync.Mutex
	sendLocks        map[string]*sync.Mutex // serialises sends of one throttled type
	throttlers       map[string]*rate.Limiter
	pending          map[string]interface{} // latest payload waiting for its throttle slot
	flushTimers      map[string]*time.Timer
	closed           bool

	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		snapshots:        make(map[string]SnapshotFunc),
		sendLocks:        make(map[string]*sync.Mutex),
		throttlers:       make(map[string]*rate.Limiter),
		pending:          make(map[string]interface{}),
		flushTimers:      make(map[string]*time.Timer),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil && config.ThrottleInterval != "" {
		if d, err := time.ParseDuration(config.ThrottleInterval); err == nil && d > 0 {
			h.throttleInterval = d
		} else {
			logger.Warn().
				Str("interval", config.ThrottleInterval).
				Msg("Invalid websocket throttle interval - throttling disabled")
		}
	}

	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Dur("throttle_interval", h.throttleInterval).
		Msg("WebSocket handler initialized")

	return h
}

// RegisterSnapshot makes newly connected clients receive fn's value as msgType
func (h *WebSocketHandler) RegisterSnapshot(msgType string, fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.snapshots[msgType]; !exists {
		h.snapshotOrder = append(h.snapshotOrder, msgType)
	}
	h.snapshots[msgType] = fn
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	initial := make([]WSMessage, 0, len(h.snapshotOrder)+1)
	initial = append(initial, WSMessage{
		Type: MessageTypeHello,
		Payload: map[string]interface{}{
			"server_instance_id": h.serverInstanceID,
			"version":            common.GetVersion(),
		},
	})
	for _, msgType := range h.snapshotOrder {
		initial = append(initial, WSMessage{Type: msgType, Payload: h.snapshots[msgType]()})
	}
	h.mu.Unlock()

	h.logger.Info().Int("clients", clientCount).Msg("WebSocket client connected")

	for _, msg := range initial {
		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal initial message")
			continue
		}
		if err := h.writeTo(conn, data); err != nil {
			h.logger.Debug().Err(err).Msg("Failed to send initial message")
			break
		}
	}

	// Clients only listen; reading keeps control frames flowing and detects disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			break
		}
	}

	h.removeClient(conn)
	h.logger.Info().Int("clients", h.ClientCount()).Msg("WebSocket client disconnected")
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every client immediately
func (h *WebSocketHandler) Broadcast(msgType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.RUnlock()

	for _, conn := range clients {
		if err := h.writeTo(conn, data); err != nil {
			h.logger.Debug().Err(err).Str("type", msgType).Msg("Failed to send WebSocket message, dropping client")
			h.removeClient(conn)
		}
	}
}

// BroadcastLatest sends a snapshot message, at most once per throttle interval per type.
// Snapshots arriving inside the interval replace each other and the newest is sent when
// the interval elapses. Sends of one type never overlap, so clients see them in order.
func (h *WebSocketHandler) BroadcastLatest(msgType string, payload interface{}) {
	if h.throttleInterval <= 0 {
		h.Broadcast(msgType, payload)
		return
	}

	sendLock := h.sendLock(msgType)
	sendLock.Lock()
	defer sendLock.Unlock()

	h.throttleMu.Lock()
	if h.closed {
		h.throttleMu.Unlock()
		return
	}
	if _, waiting := h.flushTimers[msgType]; waiting {
		h.pending[msgType] = payload
		h.throttleMu.Unlock()
		return
	}

	limiter, ok := h.throttlers[msgType]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.throttleInterval), 1)
		h.throttlers[msgType] = limiter
	}
	if limiter.Allow() {
		h.throttleMu.Unlock()
		h.Broadcast(msgType, payload)
		return
	}

	reservation := limiter.Reserve()
	h.pending[msgType] = payload
	h.flushTimers[msgType] = time.AfterFunc(reservation.Delay(), func() {
		h.flush(msgType)
	})
	h.throttleMu.Unlock()
}

func (h *WebSocketHandler) flush(msgType string) {
	sendLock := h.sendLock(msgType)
	sendLock.Lock()
	defer sendLock.Unlock()

	h.throttleMu.Lock()
	payload, ok := h.pending[msgType]
	delete(h.pending, msgType)
	delete(h.flushTimers, msgType)
	closed := h.closed
	h.throttleMu.Unlock()

	if ok && !closed {
		h.Broadcast(msgType, payload)
	}
}

func (h *WebSocketHandler) sendLock(msgType string) *sync.Mutex {
	h.throttleMu.Lock()
	defer h.throttleMu.Unlock()

	lock, ok := h.sendLocks[msgType]
	if !ok {
		lock = &sync.Mutex{}
		h.sendLocks[msgType] = lock
	}
	return lock
}

// SubscribeToEvents forwards every application event to clients as an "event" message
func (h *WebSocketHandler) SubscribeToEvents() error {
	if h.eventService == nil {
		return nil
	}

	for _, eventType := range interfaces.AllEventTypes() {
		if err := h.eventService.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			h.Broadcast(MessageTypeEvent, map[string]interface{}{
				"type":    string(event.Type),
				"payload": event.Payload,
			})
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// ForwardFeed relays snapshots from updates as msgType until ctx is done or updates closes
func ForwardFeed[T any](ctx context.Context, h *WebSocketHandler, msgType string, updates <-chan T) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-updates:
			if !ok {
				return
			}
			h.BroadcastLatest(msgType, v)
		}
	}
}

// Close stops pending flushes and disconnects every client
func (h *WebSocketHandler) Close() error {
	h.throttleMu.Lock()
	h.closed = true
	for msgType, timer := range h.flushTimers {
		timer.Stop()
		delete(h.flushTimers, msgType)
	}
	h.pending = make(map[string]interface{})
	h.throttleMu.Unlock()

	h.mu.Lock()
	h.closed = true
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	for _, conn := range clients {
		h.writeControl(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		h.removeClient(conn)
	}
	return nil
}

func (h *WebSocketHandler) writeTo(conn *websocket.Conn, data []byte) error {
	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return websocket.ErrCloseSent
	}

	mutex.Lock()
	defer mutex.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WebSocketHandler) writeControl(conn *websocket.Conn, messageType int, data []byte) {
	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	mutex.Lock()
	defer mutex.Unlock()
	conn.WriteControl(messageType, data, time.Now().Add(time.Second))
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	h.mu.Unlock()

	if ok {
		conn.Close()
	}
}
