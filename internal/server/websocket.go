// File: internal/server/websocket.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/internal/chat"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 8192
	// Send buffer size. A typewriter reveal emits one frame per rune.
	sendChannelSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The REST routes allow any origin; the socket matches them. Access is
	// decided by the session, not the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient is one chat socket bound to a single conversation.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	orch   *chat.Orchestrator
	logger *zap.Logger
	// Buffered channel of outgoing messages. The writePump reads from this.
	send chan WSMessage

	ctx    context.Context
	cancel context.CancelFunc
}

// handleChatSocket upgrades an access-checked request and streams the
// conversation: a History frame on connect, then status, typewriter chunks
// and the final reply for every prompt.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	orch := s.conversation(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Error("Failed to upgrade connection to WebSocket", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	client := &wsClient{
		server: s,
		conn:   conn,
		orch:   orch,
		logger: s.logger.With(zap.String("handle", chi.URLParam(r, "handle")), zap.String("remote_addr", r.RemoteAddr)),
		send:   make(chan WSMessage, sendChannelSize),
		ctx:    ctx,
		cancel: cancel,
	}
	client.logger.Info("Chat socket connected.")

	client.sendMessage(MsgTypeHistory, "", map[string]interface{}{
		"history": orch.History(),
		"state":   orch.State(),
	})

	go client.writePump()
	// readPump blocks until the connection closes.
	client.readPump()
	client.logger.Debug("Chat socket handler finished.")
}

// readPump reads client frames until the connection drops.
func (c *wsClient) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("Failed to set initial read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Chat socket closed unexpectedly", zap.Error(err))
			} else {
				c.logger.Info("Chat socket closed.")
			}
			return
		}
		if msg.RequestID == "" {
			msg.RequestID = uuid.New().String()
		}
		c.processMessage(msg)
	}
}

// writePump is the only writer on the connection. It also keeps the
// connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("Failed to set write deadline", zap.Error(err))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("Error writing chat frame", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Error sending PING", zap.Error(err))
				return
			}
		}
	}
}

// processMessage dispatches one client frame. Sends run off the read loop so
// pongs and close frames are still handled while the agent works.
func (c *wsClient) processMessage(msg WSMessage) {
	switch msg.Type {
	case MsgTypeUserPrompt:
		prompt, _ := msg.Data["prompt"].(string)
		if strings.TrimSpace(prompt) == "" {
			c.sendError(msg.RequestID, "Invalid or empty 'prompt' provided.")
			return
		}
		c.dispatch(msg.RequestID, func(ctx context.Context) (chat.Reply, error) { return c.orch.Send(ctx, prompt) })
	case MsgTypeConfirmDeploy:
		c.dispatch(msg.RequestID, c.orch.ConfirmDeploy)
	case MsgTypeCancelDeploy:
		c.dispatch(msg.RequestID, c.orch.CancelDeploy)
	case MsgTypeDismissModal:
		c.orch.DismissModal()
		c.sendState(msg.RequestID)
	case MsgTypeReset:
		if err := c.orch.Reset(c.ctx); err != nil {
			c.logger.Warn("Failed to clear transcript mirror.", zap.Error(err))
		}
		c.sendMessage(MsgTypeHistory, msg.RequestID, map[string]interface{}{
			"history": c.orch.History(),
			"state":   c.orch.State(),
		})
	default:
		c.logger.Warn("Received unknown message type from client", zap.String("type", string(msg.Type)))
		c.sendError(msg.RequestID, fmt.Sprintf("Unknown or unsupported message type: %s", msg.Type))
	}
}

// dispatch runs one send in the background. The send itself is bound to the
// server context so a dropped socket does not abort a reply that is already
// being produced; only the streaming stops.
func (c *wsClient) dispatch(requestID string, send func(ctx context.Context) (chat.Reply, error)) {
	if c.orch.State().Busy {
		c.sendError(requestID, chat.ErrBusy.Error())
		return
	}
	c.sendStatus(requestID, chat.ThinkingText)

	c.server.goBackground(c.logger, func(ctx context.Context) {
		reply, err := send(ctx)
		switch {
		case errors.Is(err, chat.ErrBusy), errors.Is(err, chat.ErrEmptyMessage):
			c.sendError(requestID, err.Error())
			return
		case errors.Is(err, chat.ErrReset):
			return
		case err != nil:
			c.logger.Warn("Chat message did not resolve.", zap.String("request_id", requestID), zap.Error(err))
		}
		c.stream(requestID, reply)
	})
}

// stream reveals an animated reply frame by frame, then sends the reply.
func (c *wsClient) stream(requestID string, reply chat.Reply) {
	if reply.Message.ShouldAnimate {
		speed := c.server.cfg.Chat().TypewriterSpeed
		for prefix := range chat.Typewriter(c.ctx, reply.Message.Content, speed) {
			c.sendMessage(MsgTypeAgentChunk, requestID, map[string]interface{}{"content": prefix})
		}
	}
	c.sendMessage(MsgTypeAgentResponse, requestID, map[string]interface{}{
		"message": reply.Message,
		"modal":   reply.Modal,
		"state":   c.orch.State(),
	})
}

// sendMessage queues a frame for the writePump. Frames are dropped once the
// socket is gone or its buffer is full.
func (c *wsClient) sendMessage(msgType MessageType, requestID string, data map[string]interface{}) {
	msg := WSMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	}
	select {
	case <-c.ctx.Done():
	case c.send <- msg:
	default:
		c.logger.Error("WebSocket send buffer full, dropping message. Client may be unresponsive.",
			zap.String("request_id", requestID), zap.String("type", string(msgType)))
	}
}

func (c *wsClient) sendError(requestID, errorMessage string) {
	c.sendMessage(MsgTypeSystemError, requestID, map[string]interface{}{"error": errorMessage})
}

func (c *wsClient) sendStatus(requestID, status string) {
	c.sendMessage(MsgTypeStatusUpdate, requestID, map[string]interface{}{
		"status": status,
		"state":  c.orch.State(),
	})
}

func (c *wsClient) sendState(requestID string) {
	c.sendMessage(MsgTypeStatusUpdate, requestID, map[string]interface{}{"state": c.orch.State()})
}
