package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Images travel inline as base64, so frames are much larger than the
	// per-image limit.
	maxMessageSize = 16 << 20
)

// Client is one WebSocket connection. Commands from a single client are
// dispatched in arrival order; no order holds across clients.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
}

func (c *Client) readPump() {
	defer func() {
		c.server.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}
		c.server.dispatch(c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// sendEvent queues a reply on this client's channel only.
func (c *Client) sendEvent(requestID, eventType string, data interface{}) {
	env := Envelope{Type: eventType, RequestID: requestID}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("[WS] Failed to marshal %s reply: %v", eventType, err)
			return
		}
		env.Data = payload
	}
	frame, err := json.Marshal(env)
	if err != nil {
		log.Printf("[WS] Failed to marshal %s envelope: %v", eventType, err)
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Printf("[WS] Dropping %s reply to a slow client", eventType)
	}
}
