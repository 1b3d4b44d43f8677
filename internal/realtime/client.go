package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/hop/internal/presence"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// State is where a connection is in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateInSpace
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInSpace:
		return "in_space"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Client is one websocket connection. Reads happen on the goroutine that
// calls readPump; writes only on writePump.
type Client struct {
	id     string
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	spaceID uuid.UUID
}

func newClient(conn *websocket.Conn, userID uuid.UUID, logger *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("conn_id", id), zap.Stringer("user_id", userID)),
		state:  StateConnecting,
	}
}

func (c *Client) ID() string        { return c.id }
func (c *Client) UserID() uuid.UUID { return c.userID }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SpaceID returns the space the client is in, if any.
func (c *Client) SpaceID() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spaceID, c.state == StateInSpace
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	if s != StateInSpace {
		c.spaceID = uuid.Nil
	}
	c.mu.Unlock()
}

func (c *Client) enterSpace(spaceID uuid.UUID) {
	c.mu.Lock()
	c.state = StateInSpace
	c.spaceID = spaceID
	c.mu.Unlock()
}

// Close asks the write pump to close the connection. Safe to call more
// than once and from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks. It reports false when the buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	if c.closed() {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) sendError(message string) {
	payload, err := json.Marshal(presence.Notification{
		Event: presence.EventError,
		Data:  map[string]string{"message": message},
	})
	if err != nil {
		return
	}
	if !c.enqueue(payload) {
		c.logger.Warn("dropping error event for slow client")
	}
}

// readPump decodes envelopes in arrival order and hands them to handle.
// It returns when the connection fails or is closed.
func (c *Client) readPump(ctx context.Context, handle func(context.Context, *Client, Envelope)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.closed() {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.sendError("malformed message")
			continue
		}
		handle(ctx, c, env)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings. It owns closing the underlying connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is already queued.
func (c *Client) flush() {
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}
