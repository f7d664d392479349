package chat

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/service/session"
)

// Inbound message types.
const (
	InboundMediaEvent     = "media-event"
	InboundTogglePlayback = "toggle-playback"
	InboundStopPlayback   = "stop-playback"
	InboundInput          = "input"
)

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type mediaEventMessage struct {
	Token string `json:"token"`
	Event string `json:"event"`
}

type playbackMessage struct {
	MessageID int64 `json:"messageId"`
}

type inputMessage struct {
	Text string `json:"text"`
}

// handleWebSocket 处理WebSocket连接：推送快照/通知/播放指令，接收播放器事件
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sessionID := sess.ID()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	logger := h.logger.With(zap.String("session", sessionID))
	c := h.hub.register(sessionID, conn)
	defer h.hub.unregister(sessionID, c)
	go c.writePump(logger)

	logger.Info("websocket connected")
	reply(c, sessionID, TypeSnapshot, sess.Snapshot())

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", zap.Error(err))
			}
			logger.Info("websocket disconnected")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := h.handleInbound(sess, &msg); err != nil {
			reply(c, sessionID, TypeError, map[string]any{
				"message": err.Error(),
				"notice":  apperr.NoticeFor(err),
			})
		}
	}
}

func (h *Handler) handleInbound(sess *session.Session, msg *inboundMessage) error {
	switch msg.Type {
	case InboundMediaEvent:
		var ev mediaEventMessage
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return err
		}
		return h.bridge.Report(sess.ID(), ev.Token, ev.Event)
	case InboundTogglePlayback:
		var p playbackMessage
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return err
		}
		return sess.TogglePlayback(p.MessageID)
	case InboundStopPlayback:
		sess.StopPlayback()
		return nil
	case InboundInput:
		var in inputMessage
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			return err
		}
		sess.SetInput(in.Text)
		return nil
	default:
		return &unknownTypeError{typ: msg.Type}
	}
}

type unknownTypeError struct{ typ string }

func (e *unknownTypeError) Error() string { return "unknown message type: " + e.typ }

// reply 只发给当前连接，缓冲满时丢弃
func reply(c *client, sessionID, typ string, data interface{}) {
	select {
	case c.send <- outgoingMessage{Type: typ, SessionID: sessionID, Data: data, Timestamp: time.Now().Unix()}:
	default:
	}
}
