package hub

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/connecthub/backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // enough for WebRTC SDP payloads

	sendBufferSize = 256
)

// Client wraps one live websocket connection. The hub assigns it an opaque
// connection id on open; the declared identity arrives later with the first
// join request. The joined set is owned by the hub's event loop.
type Client struct {
	ID     string
	UserID string

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	joined map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		joined: make(map[string]bool),
	}
}

// readPump pumps frames from the websocket into the hub's event loop.
// It is the only reader of the connection. On any read error the client
// is unregistered, which tears down every room membership.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] read error on connection %s: %v", c.ID, err)
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("[WS] dropping malformed frame from connection %s: %v", c.ID, err)
			continue
		}

		c.hub.inbound <- inbound{client: c, env: env}
	}
}

// writePump drains the send channel onto the websocket and keeps the
// connection alive with pings. It is the only writer of the connection.
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
				// The hub closed the channel on disconnect.
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
