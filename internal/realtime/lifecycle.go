package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/presence"
	"github.com/lalith-99/hop/internal/repository"
	"go.uber.org/zap"
)

const (
	cleanupTimeout = 5 * time.Second

	msgConnectionReplaced = "connection replaced by a newer session"
)

// PresenceNotifier is the part of presence.Coordinator the lifecycle uses.
type PresenceNotifier interface {
	BroadcastPresenceChange(ctx context.Context, userID uuid.UUID) error
	NotifyUsers(ctx context.Context, n presence.Notification, userIDs ...uuid.UUID) error
}

// Lifecycle moves connections through connecting, connected, in-space and
// disconnected, keeping the registry and status rows in step.
//
// Persistence failures are logged and never close the connection.
type Lifecycle struct {
	store    repository.Store
	registry presence.Registry
	presence PresenceNotifier
	hub      *Hub
	now      func() time.Time
	logger   *zap.Logger
}

func NewLifecycle(store repository.Store, registry presence.Registry, notifier PresenceNotifier, hub *Hub, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		store:    store,
		registry: registry,
		presence: notifier,
		hub:      hub,
		now:      time.Now,
		logger:   logger,
	}
}

// Connect registers an authenticated client. An error means the client
// could not be registered and must be closed.
func (l *Lifecycle) Connect(ctx context.Context, c *Client) error {
	l.hub.add(c)

	evicted, err := l.registry.Register(ctx, c.userID, c.id)
	if err != nil {
		l.hub.remove(c)
		return err
	}
	c.setState(StateConnected)

	if evicted != "" {
		c.logger.Info("replacing previous connection", zap.String("evicted_conn_id", evicted))
		if err := l.hub.Evict(ctx, evicted); err != nil {
			c.logger.Warn("evict previous connection", zap.Error(err))
		}
	}

	if err := l.store.Statuses().Upsert(ctx, c.userID, c.id, nil); err != nil {
		c.logger.Error("upsert status on connect", zap.Error(err))
	}
	l.broadcast(ctx, c)
	return nil
}

// HandleEvent applies one client event. Events from one client arrive
// here in order.
func (l *Lifecycle) HandleEvent(ctx context.Context, c *Client, env Envelope) {
	switch env.Event {
	case EventSpaceJoin:
		l.joinSpace(ctx, c, env)
	case EventSpaceLeave:
		l.leaveSpace(ctx, c, env)
	case EventFriendRequest:
		target, err := decodeTarget(env.Data)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		l.notify(ctx, c, presence.EventFriendRequests, target)
		l.broadcast(ctx, c)
	case EventSpaceRequest:
		target, err := decodeTarget(env.Data)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		l.notify(ctx, c, presence.EventSpaceRequests, target)
	case EventDisconnect:
		c.Close()
	default:
		c.sendError("unknown event")
	}
}

func (l *Lifecycle) joinSpace(ctx context.Context, c *Client, env Envelope) {
	spaceID, err := decodeSpaceID(env.Data)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	m, err := l.store.Members().Get(ctx, spaceID, c.userID)
	if err != nil {
		c.logger.Error("load membership on space join", zap.Error(err))
		return
	}
	if m == nil {
		c.sendError("not a member of this space")
		return
	}
	if !l.current(ctx, c) {
		c.sendError(msgConnectionReplaced)
		return
	}

	ok, err := l.store.Statuses().SetSpace(ctx, c.userID, c.id, &spaceID)
	if err != nil {
		c.logger.Error("set status on space join", zap.Error(err))
		return
	}
	if !ok {
		c.sendError(msgConnectionReplaced)
		return
	}
	if err := l.store.Members().TouchLastConnection(ctx, spaceID, c.userID, l.now().UTC()); err != nil {
		c.logger.Warn("touch last connection", zap.Error(err))
	}
	c.enterSpace(spaceID)
	l.broadcast(ctx, c)
}

func (l *Lifecycle) leaveSpace(ctx context.Context, c *Client, env Envelope) {
	spaceID, err := decodeSpaceID(env.Data)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	current, inSpace := c.SpaceID()
	if !inSpace || current != spaceID {
		c.sendError("not in that space")
		return
	}

	if !l.current(ctx, c) {
		c.sendError(msgConnectionReplaced)
		return
	}
	ok, err := l.store.Statuses().SetSpace(ctx, c.userID, c.id, nil)
	if err != nil {
		c.logger.Error("set status on space leave", zap.Error(err))
		return
	}
	if !ok {
		c.sendError(msgConnectionReplaced)
		return
	}
	c.setState(StateConnected)
	l.broadcast(ctx, c)
}

// Disconnect tears down a client. If a newer connection already replaced
// it, presence is left alone. The socket is closed only after presence is
// cleaned up, so the read loop ending cannot race a caller's cleanup.
func (l *Lifecycle) Disconnect(ctx context.Context, c *Client) {
	c.setState(StateDisconnected)
	l.hub.remove(c)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	released, err := l.registry.Release(ctx, c.userID, c.id)
	if err != nil {
		c.logger.Error("release registry entry", zap.Error(err))
		return
	}
	if !released {
		return
	}
	// A reconnect may already have claimed the row; Delete leaves it alone then.
	if err := l.store.Statuses().Delete(ctx, c.userID, c.id); err != nil {
		c.logger.Error("delete status on disconnect", zap.Error(err))
	}
	l.broadcast(ctx, c)
}

// Shutdown disconnects every client held by this process so their
// registry entries and status rows do not outlive it.
func (l *Lifecycle) Shutdown(ctx context.Context) {
	clients := l.hub.snapshot()
	for _, c := range clients {
		l.Disconnect(ctx, c)
	}
	l.logger.Info("realtime connections closed", zap.Int("count", len(clients)))
}

// current reports whether c still holds its user's registry entry. A
// replaced connection may keep reading until its close lands.
func (l *Lifecycle) current(ctx context.Context, c *Client) bool {
	connID, ok, err := l.registry.Lookup(ctx, c.userID)
	if err != nil {
		c.logger.Error("lookup registry entry", zap.Error(err))
		return false
	}
	return ok && connID == c.id
}

func (l *Lifecycle) broadcast(ctx context.Context, c *Client) {
	if err := l.presence.BroadcastPresenceChange(ctx, c.userID); err != nil {
		c.logger.Error("broadcast presence change", zap.Error(err))
	}
}

func (l *Lifecycle) notify(ctx context.Context, c *Client, event string, target uuid.UUID) {
	if err := l.presence.NotifyUsers(ctx, presence.Updated(event), target); err != nil {
		c.logger.Error("relay request signal", zap.String("event", event), zap.Error(err))
	}
}
