package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gatherhq/gather/internal/config"
	"github.com/gatherhq/gather/pkg/log"
)

// Client is one live duplex connection. Reads and writes run in their own
// goroutines so one slow connection never blocks another.
type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	Session *Session

	// OnClose runs once when the read pump exits, before the client is
	// unregistered. The gateway service uses it to release subscriptions.
	OnClose func(*Client)

	config config.WebSocketConfig

	// closed gates every write to Send. Broker dispatch can race the hub
	// closing the channel; a send on a closed channel would take the whole
	// process down.
	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:      id,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Session: NewSession(id),
		config:  cfg,
	}
}

// ReadPump reads inbound frames until the connection dies. Liveness: the
// read deadline is refreshed on every pong, so a peer that misses the pong
// window set by PongWait gets closed here.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		if c.OnClose != nil {
			c.OnClose(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldConnectionID, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

// WritePump drains the send channel and probes the peer on a ping ticker.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendFrame marshals and queues an outbound frame, dropping it if the
// connection's buffer is full or the client is already closed.
func (c *Client) SendFrame(frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	select {
	case c.Send <- data:
	default:
	}
	return nil
}

// TrySend queues an outbound frame and reports whether the client's send
// buffer had room. A false return marks the client as too slow to keep up.
// A client already closed by the hub absorbs the frame silently; its
// teardown is underway and there is nothing left to evict.
func (c *Client) TrySend(frame interface{}) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}

	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once and blocks any later
// queued writes. Only the hub calls this, from its unregister path.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
