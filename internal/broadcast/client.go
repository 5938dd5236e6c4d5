package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// DefaultMaxPending bounds the live backlog of a single client.
	DefaultMaxPending = 256
)

// Client is a websocket observer. Messages are queued by Send and written
// by a dedicated goroutine so a slow peer never blocks the main loop.
type Client struct {
	id         string
	conn       *websocket.Conn
	maxPending int

	mu     sync.Mutex
	outbox [][]byte
	closed bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// NewClient wraps an upgraded connection. maxPending <= 0 uses
// DefaultMaxPending.
func NewClient(conn *websocket.Conn, maxPending int) *Client {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Client{
		id:         uuid.NewString(),
		conn:       conn,
		maxPending: maxPending,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// ID returns the client's unique id.
func (c *Client) ID() string {
	return c.id
}

// Send queues msg. Returns false if the client is closed or its backlog is
// full.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	if c.closed || len(c.outbox) >= c.maxPending {
		c.mu.Unlock()
		return false
	}
	c.outbox = append(c.outbox, msg)
	c.mu.Unlock()
	c.notify()
	return true
}

// SendHistory queues the replayed history regardless of the backlog limit.
func (c *Client) SendHistory(msgs [][]byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.outbox = append(c.outbox, msgs...)
	c.mu.Unlock()
	c.notify()
	return true
}

func (c *Client) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Close stops the client. The connection is closed by the write pump.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.outbox = nil
		c.mu.Unlock()
		close(c.done)
	})
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Run starts the write pump and reads from the connection until the peer
// goes away or the client is closed. onGone is called once reading stops.
func (c *Client) Run(onGone func()) {
	go c.writePump()
	c.readPump()
	c.Close()
	if onGone != nil {
		onGone()
	}
}

// readPump discards inbound messages; it exists to process control frames
// and notice disconnects.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) take() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.outbox
	c.outbox = nil
	return msgs
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.wake:
			for _, msg := range c.take() {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					c.Close()
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
