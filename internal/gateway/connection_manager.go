package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkarlin14/quizroom/internal/events"
)

// ConnectionManager tracks WebSocket connections and their per-room
// topic membership, and fans room events out to subscribers.
type ConnectionManager struct {
	// Connection pools organized by room code
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan *events.Envelope
}

// Connection represents one client socket. A socket subscribes to at
// most one room topic at a time; roomCode tracks the current one.
type Connection struct {
	ID       string
	PlayerID uuid.UUID
	Conn     *websocket.Conn
	Manager  *ConnectionManager

	ConnectedAt time.Time

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	// roomCode is guarded by the manager's mutex.
	roomCode string
}

// enqueue hands data to the write pump without ever blocking. It
// reports false when the connection is closed or its buffer is full.
func (c *Connection) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shut closes the send channel exactly once so the write pump drains
// and exits.
func (c *Connection) shut() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  2048,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *events.Envelope, 1000),
	}
}

// Start begins processing broadcast messages. Events drain from a
// single channel, which keeps per-room delivery order intact.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case ev := <-cm.broadcastCh:
			cm.handleBroadcast(ev)
		}
	}
}

// Upgrade upgrades an HTTP request to a WebSocket connection and hands
// incoming frames to onMessage.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, playerID uuid.UUID, onMessage func(*Connection, []byte)) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		Conn:        conn,
		Manager:     cm,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, cm.config.SendBufferSize),
	}

	go connection.writePump()
	go connection.readPump(onMessage)

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID.String()).
		Msg("WebSocket connection established")

	return connection, nil
}

// Subscribe moves a connection onto a room topic, leaving any previous
// one first.
func (cm *ConnectionManager) Subscribe(conn *Connection, roomCode string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.removeLocked(conn)

	if cm.roomConnections[roomCode] == nil {
		cm.roomConnections[roomCode] = make(map[*Connection]bool)
	}
	cm.roomConnections[roomCode][conn] = true
	conn.roomCode = roomCode

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_code", roomCode).
		Int("subscribers", len(cm.roomConnections[roomCode])).
		Msg("connection subscribed to room topic")
}

// Unsubscribe removes a connection from its room topic.
func (cm *ConnectionManager) Unsubscribe(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removeLocked(conn)
}

func (cm *ConnectionManager) removeLocked(conn *Connection) {
	if conn.roomCode == "" {
		return
	}
	if pool, ok := cm.roomConnections[conn.roomCode]; ok {
		delete(pool, conn)
		if len(pool) == 0 {
			delete(cm.roomConnections, conn.roomCode)
		}
	}
	conn.roomCode = ""
}

// disconnect tears a connection down: drops its topic membership and
// closes the send channel so the write pump exits.
func (cm *ConnectionManager) disconnect(conn *Connection) {
	cm.mu.Lock()
	cm.removeLocked(conn)
	cm.mu.Unlock()

	conn.shut()
}

// Dispatch enqueues a room event for fan-out.
func (cm *ConnectionManager) Dispatch(ev *events.Envelope) {
	select {
	case cm.broadcastCh <- ev:
	default:
		log.Warn().Str("room_code", ev.RoomCode).Msg("broadcast channel full, dropping event")
	}
}

// SendToConnection writes one event to a single socket, for direct
// replies like snapshot sync and command errors.
func (cm *ConnectionManager) SendToConnection(conn *Connection, ev *events.Envelope) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	if !conn.enqueue(data) {
		log.Warn().Str("connection_id", conn.ID).Msg("send buffer full, closing connection")
		cm.disconnect(conn)
	}
}

// handleBroadcast delivers one event to the room's subscribers,
// honoring the unicast target filter.
func (cm *ConnectionManager) handleBroadcast(ev *events.Envelope) {
	cm.mu.RLock()
	pool, ok := cm.roomConnections[ev.RoomCode]
	if !ok {
		cm.mu.RUnlock()
		return
	}

	var targets []*Connection
	for conn := range pool {
		if ev.TargetPlayerID != "" && conn.PlayerID.String() != ev.TargetPlayerID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if !conn.enqueue(data) {
			log.Warn().
				Str("connection_id", conn.ID).
				Str("player_id", conn.PlayerID.String()).
				Msg("connection send buffer full, closing connection")
			cm.disconnect(conn)
		}
	}

	log.Debug().
		Str("kind", string(ev.Kind)).
		Str("room_code", ev.RoomCode).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// Stats returns statistics about active connections.
func (cm *ConnectionManager) Stats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	roomCounts := make(map[string]int)
	for code, pool := range cm.roomConnections {
		total += len(pool)
		roomCounts[code] = len(pool)
	}

	return map[string]any{
		"total_connections": total,
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.disconnect(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump(onMessage func(*Connection, []byte)) {
	defer func() {
		c.Manager.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close")
			}
			break
		}
		onMessage(c, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
