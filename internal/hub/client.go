package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

// Client is one websocket connection. Send is never closed; done tells the
// pumps to stop.
type Client struct {
	ID     string
	UserID string
	Role   string

	conn *websocket.Conn
	send chan []byte

	// room is guarded by the hub's lock.
	room string

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, userID, role string, sendQueue int) *Client {
	if sendQueue <= 0 {
		sendQueue = 64
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		conn:   conn,
		send:   make(chan []byte, sendQueue),
		done:   make(chan struct{}),
	}
}

// Send queues a frame for the writer. It reports false when the client is
// closed or its queue is full.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// ReadPump hands every text frame to handle until the connection fails or
// the client is closed. It closes the client on return.
func (c *Client) ReadPump(pingInterval time.Duration, handle func([]byte)) {
	defer c.Close()

	pongWait := pingInterval * 10 / 9
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("client_id", c.ID).Debug("websocket read failed")
			}
			return
		}
		handle(message)
	}
}

// WritePump drains the send queue and keeps the connection alive with
// pings. It owns the connection and closes it on return.
func (c *Client) WritePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
