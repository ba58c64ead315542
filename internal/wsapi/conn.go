package wsapi

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oriane-labs/hearth/pkg/models"
)

// clientConn owns one upgraded WebSocket connection: a single reader
// goroutine dispatching frames, and a single writer goroutine serializing
// concurrent sends from streaming handlers.
type clientConn struct {
	server *Server
	conn   *websocket.Conn
	user   *models.User
	send   chan []byte
}

func (c *clientConn) readLoop() {
	defer func() {
		close(c.send)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := decodeEnvelope(data)
		if err != nil {
			c.emit(errorFrame("", err))
			continue
		}
		go c.dispatch(env)
	}
}

func (c *clientConn) writeLoop() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// emit enqueues a frame for delivery, dropping it if the connection is
// already closing rather than blocking the caller.
func (c *clientConn) emit(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.server.logger.Warn("dropping frame, client send buffer full")
	}
}

func (c *clientConn) dispatch(env *envelope) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			c.server.logger.Error("panic handling frame", "type", env.Type, "panic", r)
			c.emit(errorFrame(env.ID, errPanic))
		}
	}()

	handler, ok := c.server.handlers()[env.Type]
	if !ok {
		c.emit(errorFrame(env.ID, unknownFrameType(env.Type)))
		return
	}
	handler(ctx, c, env)
}
