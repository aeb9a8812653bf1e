package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16
	sendBuffer     = 32
)

type outbound struct {
	event   string
	payload interface{}
}

// Client is a single websocket connection. Writes are serialized through
// the send channel; the read pump dispatches inbound envelopes to the
// event handler.
type Client struct {
	id      string
	conn    *websocket.Conn
	hub     *Hub
	handler EventHandler
	send    chan outbound
	done    chan struct{}
}

// NewClient wraps an upgraded connection and starts its pumps.
func NewClient(conn *websocket.Conn, hub *Hub, handler EventHandler) *Client {
	c := &Client{
		id:      uuid.NewString(),
		conn:    conn,
		hub:     hub,
		handler: handler,
		send:    make(chan outbound, sendBuffer),
		done:    make(chan struct{}),
	}
	hub.add(c)

	go c.writePump()
	go c.readPump()

	return c
}

// ID returns the connection's session identifier.
func (c *Client) ID() string {
	return c.id
}

// Send queues an event for delivery. Fire-and-forget: frames are dropped
// when the client's buffer is full.
func (c *Client) Send(event string, payload interface{}) {
	select {
	case c.send <- outbound{event: event, payload: payload}:
	default:
		c.hub.logger.Warn("Dropping frame for slow channel", map[string]interface{}{
			"session_id": c.id,
			"event":      event,
		})
	}
}

// Join adds the client to a broadcast room.
func (c *Client) Join(room string) {
	c.hub.join(c, room)
}

func (c *Client) readPump() {
	defer func() {
		c.handler.HandleDisconnect(c)
		c.hub.remove(c)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.Send("error", map[string]string{"message": "Invalid message envelope"})
			continue
		}

		c.handler.HandleEvent(c, env.Event, env.Data)
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
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(msg.payload)
			if err != nil {
				c.hub.logger.Error("Failed to encode outbound payload", map[string]interface{}{
					"event": msg.event,
					"error": err.Error(),
				})
				continue
			}
			if err := c.conn.WriteJSON(Envelope{Event: msg.event, Data: data}); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
