package agentlink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

var (
	// ErrNoAgent is returned when no agent socket is attached.
	ErrNoAgent = errors.New("no agent connected")
	// ErrBufferFull is returned when every attached agent is backed up.
	ErrBufferFull = errors.New("agent send buffer full")
)

// Resolver receives callbacks that agents send back over the socket.
type Resolver func(req domain.CallbackRequest)

// SocketConfig tunes connection keepalive.
type SocketConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func (c SocketConfig) withDefaults() SocketConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 20
	}
	return c
}

type connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *connection) close() {
	c.once.Do(func() { close(c.send) })
}

// Socket pushes envelopes to agents that dialled in over WebSocket. Agents
// may answer on the same socket with callback messages.
type Socket struct {
	cfg      SocketConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu          sync.RWMutex
	connections map[string]*connection
	resolve     Resolver
}

// NewSocket creates a socket transport with no attached agents.
func NewSocket(cfg SocketConfig, logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{
		cfg: cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:      logger.With("component", "agent_socket"),
		connections: make(map[string]*connection),
	}
}

// SetResolver installs the handler for callbacks received on the socket.
func (s *Socket) SetResolver(r Resolver) {
	s.mu.Lock()
	s.resolve = r
	s.mu.Unlock()
}

// Enabled is always true; a missing agent surfaces as a delivery error.
func (s *Socket) Enabled() bool {
	return true
}

// ConnectionCount returns the number of attached agents.
func (s *Socket) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Deliver queues env on every attached agent. It succeeds when at least one
// agent accepted the message.
func (s *Socket) Deliver(_ context.Context, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.connections) == 0 {
		return ErrNoAgent
	}
	delivered := 0
	for _, conn := range s.connections {
		select {
		case conn.send <- data:
			delivered++
		default:
			s.logger.Warn("agent buffer full, message dropped", "connection_id", conn.id)
		}
	}
	if delivered == 0 {
		return ErrBufferFull
	}
	return nil
}

// HandleWebSocket upgrades the request and attaches the agent.
func (s *Socket) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return err
	}

	conn := &connection{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, 64),
	}
	s.mu.Lock()
	s.connections[conn.id] = conn
	s.mu.Unlock()
	s.logger.Info("agent connected", "connection_id", conn.id)

	ws.SetReadLimit(s.cfg.MaxMessageSize)
	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

func (s *Socket) unregister(conn *connection) {
	s.mu.Lock()
	if _, ok := s.connections[conn.id]; ok {
		delete(s.connections, conn.id)
		conn.close()
	}
	s.mu.Unlock()
	s.logger.Info("agent disconnected", "connection_id", conn.id)
}

func (s *Socket) readPump(conn *connection) {
	defer func() {
		s.unregister(conn)
		conn.ws.Close()
	}()

	_ = conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("agent socket error", "connection_id", conn.id, "error", err)
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		var req domain.CallbackRequest
		if err := json.Unmarshal(message, &req); err != nil || req.CorrelationID == "" {
			s.logger.Debug("ignoring agent message without correlation id", "connection_id", conn.id)
			continue
		}
		s.mu.RLock()
		resolve := s.resolve
		s.mu.RUnlock()
		if resolve != nil {
			resolve(req)
		}
	}
}

func (s *Socket) writePump(conn *connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				_ = conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write to agent", "connection_id", conn.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close detaches every agent.
func (s *Socket) Close() {
	s.mu.Lock()
	for id, conn := range s.connections {
		delete(s.connections, id)
		conn.close()
	}
	s.mu.Unlock()
}
