package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	field "github.com/esimov/pixel-particles/particle-field"
)

// client is a middleman between a websocket connection and the server.
type client struct {
	id      string
	server  *Server
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	// dropped counts frames skipped because send was full. Guarded by server.mu.
	dropped int
}

// readPump forwards pointer messages from the connection to the server.
func (c *client) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			continue
		}

		var ev field.PointerEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			c.server.logger.Debug("malformed pointer message", zap.String("client_id", c.id), zap.ByteString("message", msg))
			continue
		}
		select {
		case c.server.events <- ev:
		default:
		}
	}
}

// writePump sends frames and keepalive pings to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
