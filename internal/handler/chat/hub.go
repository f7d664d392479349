package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/chat"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
)

// Outgoing message types.
const (
	TypeSnapshot = "snapshot"
	TypeNotice   = "notice"
	TypeCommand  = "command"
	TypeError    = "error"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	sendBuffer   = 32
)

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan outgoingMessage
}

// Hub WebSocket连接管理器，按会话分组广播。
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub 创建连接管理器
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger.Named("hub"),
		clients: make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) register(sessionID string, conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan outgoingMessage, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]struct{})
	}
	h.clients[sessionID][c] = struct{}{}
	return c
}

// unregister 移除连接；send 通道只在这里关闭。
func (h *Hub) unregister(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[sessionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, sessionID)
	}
}

// Broadcast queues msg for every client of the session. It never blocks: session and
// playback listeners call it while holding their locks, so a slow client loses messages
// instead of stalling the session.
func (h *Hub) Broadcast(sessionID, typ string, data interface{}) {
	msg := outgoingMessage{Type: typ, SessionID: sessionID, Data: data, Timestamp: time.Now().Unix()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[sessionID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client send buffer full, dropping message",
				zap.String("session", sessionID), zap.String("type", typ))
		}
	}
}

// Publish forwards a session event: the snapshot, then the notice if there is one.
func (h *Hub) Publish(sessionID string, snap chat.Snapshot, notice *apperr.Notice) {
	h.Broadcast(sessionID, TypeSnapshot, snap)
	if notice != nil {
		h.Broadcast(sessionID, TypeNotice, *notice)
	}
}

// Commander returns the playback command channel of one session.
func (h *Hub) Commander(sessionID string) playback.Commander {
	return sessionCommander{hub: h, sessionID: sessionID}
}

type sessionCommander struct {
	hub       *Hub
	sessionID string
}

func (c sessionCommander) SendCommand(cmd playback.Command) {
	c.hub.Broadcast(c.sessionID, TypeCommand, cmd)
}

// Clients reports how many connections a session has.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// CloseSession 关闭会话的所有连接
func (h *Hub) CloseSession(sessionID string) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[sessionID]))
	for c := range h.clients[sessionID] {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()

	// 读循环退出后自行 unregister
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// CloseAll 关闭所有连接
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var conns []*websocket.Conn
	for _, set := range h.clients {
		for c := range set {
			conns = append(conns, c.conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// writePump 发送排队消息并定期 ping
func (c *client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
