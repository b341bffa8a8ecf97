package notifications

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"vibefeed/internal/models"
	"vibefeed/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	sendBufferSize = 256
)

// WSHub is the side of the hub a Client reports back to.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is one realtime connection: an id, the principal it authenticated
// as, and a buffered outbound queue drained by WritePump.
type Client struct {
	ID        string
	Principal models.Principal
	Hub       WSHub

	// The websocket connection. Nil for in-process clients.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// IncomingHandler receives every inbound frame.
	IncomingHandler func(*Client, []byte)

	// OnActivity runs on every inbound frame and pong.
	OnActivity func(*Client)

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewClient creates a client with a fresh connection id.
func NewClient(hub WSHub, conn *websocket.Conn, principal models.Principal) *Client {
	return &Client{
		ID:        uuid.NewString(),
		Principal: principal,
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, sendBufferSize),
	}
}

// UserID is the principal's user id.
func (c *Client) UserID() uint { return c.Principal.UserID }

// ReadPump pumps messages from the websocket connection to IncomingHandler
// and unregisters the client when the connection ends.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.activity()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.GlobalLogger.Debug("websocket read ended",
					"hub", c.Hub.Name(), "conn_id", c.ID, "user_id", c.UserID(), "error", err)
			}
			break
		}

		c.activity()
		if c.IncomingHandler != nil {
			c.IncomingHandler(c, message)
		}
	}
}

func (c *Client) activity() {
	if c.OnActivity != nil {
		c.OnActivity(c)
	}
}

// WritePump pumps messages from Send to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues message without blocking. A full buffer or a closed client
// drops the message; it is never retried.
func (c *Client) TrySend(message []byte) (sent bool) {
	if c.closed.Load() {
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "closed").Inc()
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "closed").Inc()
			sent = false
		}
	}()

	select {
	case c.Send <- message:
		return true
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "full").Inc()
		observability.NewRealtimeLogger(c.Hub.Name()).Failed(context.Background(), "", "send", errSendBufferFull, "user_id", c.UserID())
		return false
	}
}

// Close closes the outbound queue once; WritePump then sends a close frame.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.Send)
	})
}

// Closed reports whether Close has run.
func (c *Client) Closed() bool {
	return c.closed.Load()
}
