// Package realtime serves the websocket channel: one Client per
// connection, a Hub that routes notifications to connections, and the
// Lifecycle that keeps presence in step with connects and events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lalith-99/hop/internal/observ"
	"github.com/lalith-99/hop/internal/presence"
	"go.uber.org/zap"
)

var (
	// ErrUnknownConnection means no instance holds the connection.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrSendBufferFull means the client is not draining its queue.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Relay forwards deliveries and evictions for connections held by other
// instances.
type Relay interface {
	Deliver(ctx context.Context, connID string, payload []byte) error
	Evict(ctx context.Context, connID string) error
}

// Hub owns the connections held by this process. It implements
// presence.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	relay   Relay
	metrics *observ.Metrics
	logger  *zap.Logger
}

func NewHub(metrics *observ.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		metrics: metrics,
		logger:  logger,
	}
}

// SetRelay enables cross-instance routing. Call before serving.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	cur, ok := h.clients[c.id]
	if ok && cur == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	if ok && cur == c {
		h.metrics.ConnectionClosed()
	}
}

func (h *Hub) get(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Len returns the number of local connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify queues n for connID, locally or through the relay.
func (h *Hub) Notify(ctx context.Context, connID string, n presence.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := h.deliverLocal(connID, payload); !errors.Is(err, ErrUnknownConnection) {
		return err
	}
	if h.relay == nil {
		return ErrUnknownConnection
	}
	return h.relay.Deliver(ctx, connID, payload)
}

// Evict closes connID wherever it lives. Closing an unknown connection is
// a no-op.
func (h *Hub) Evict(ctx context.Context, connID string) error {
	if h.evictLocal(connID) {
		return nil
	}
	if h.relay == nil {
		return nil
	}
	return h.relay.Evict(ctx, connID)
}

func (h *Hub) deliverLocal(connID string, payload []byte) error {
	c, ok := h.get(connID)
	if !ok {
		return ErrUnknownConnection
	}
	if !c.enqueue(payload) {
		h.logger.Warn("dropping notification for slow client",
			zap.String("conn_id", connID),
			zap.Stringer("user_id", c.userID),
		)
		return ErrSendBufferFull
	}
	return nil
}

func (h *Hub) evictLocal(connID string) bool {
	c, ok := h.get(connID)
	if !ok {
		return false
	}
	c.Close()
	return true
}
