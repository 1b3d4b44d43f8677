package presence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/observ"
	"go.uber.org/zap"
)

// Realtime event names pushed to clients. Every push carries only the
// payload "updated"; clients re-fetch what changed over HTTP.
const (
	EventOnlineFriends  = "online_friends"
	EventFriendRequests = "friend_requests"
	EventSpaceRequests  = "space_requests"
	EventError          = "error"

	PayloadUpdated = "updated"
)

// Notification is one server-to-client message.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Updated builds the coarse invalidation signal for event.
func Updated(event string) Notification {
	return Notification{Event: event, Data: PayloadUpdated}
}

// Notifier delivers a notification to one live connection.
type Notifier interface {
	Notify(ctx context.Context, connID string, n Notification) error
}

// FriendLister returns the ids of a user's friends.
type FriendLister interface {
	ListIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// OnlineFriend is a friend with a live connection.
type OnlineFriend struct {
	UserID       uuid.UUID
	ConnectionID string
}

// Coordinator joins the friend graph with the registry to decide who
// hears about a presence change.
type Coordinator struct {
	friends  FriendLister
	registry Registry
	notifier Notifier
	metrics  *observ.Metrics
	logger   *zap.Logger
}

func NewCoordinator(friends FriendLister, registry Registry, notifier Notifier, metrics *observ.Metrics, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		friends:  friends,
		registry: registry,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// ComputeOnlineFriends returns the friends of userID that currently hold
// a connection, with that connection's id.
func (c *Coordinator) ComputeOnlineFriends(ctx context.Context, userID uuid.UUID) ([]OnlineFriend, error) {
	friendIDs, err := c.friends.ListIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	if len(friendIDs) == 0 {
		return []OnlineFriend{}, nil
	}

	snapshot, err := c.registry.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot registry: %w", err)
	}
	online := make(map[uuid.UUID]string, len(snapshot))
	for _, e := range snapshot {
		online[e.UserID] = e.ConnectionID
	}

	out := make([]OnlineFriend, 0, len(friendIDs))
	for _, id := range friendIDs {
		if connID, ok := online[id]; ok {
			out = append(out, OnlineFriend{UserID: id, ConnectionID: connID})
		}
	}
	return out, nil
}

// BroadcastPresenceChange tells every online friend of userID to refresh
// their friends list. A failed delivery to one friend is logged and does
// not stop delivery to the rest.
func (c *Coordinator) BroadcastPresenceChange(ctx context.Context, userID uuid.UUID) error {
	friends, err := c.ComputeOnlineFriends(ctx, userID)
	if err != nil {
		return err
	}

	n := Updated(EventOnlineFriends)
	for _, f := range friends {
		c.deliver(ctx, f.UserID, f.ConnectionID, n)
	}
	return nil
}

// NotifyUsers pushes n to each listed user that is online. Offline users
// are skipped.
func (c *Coordinator) NotifyUsers(ctx context.Context, n Notification, userIDs ...uuid.UUID) error {
	for _, id := range userIDs {
		connID, ok, err := c.registry.Lookup(ctx, id)
		if err != nil {
			return fmt.Errorf("lookup connection: %w", err)
		}
		if !ok {
			continue
		}
		c.deliver(ctx, id, connID, n)
	}
	return nil
}

func (c *Coordinator) deliver(ctx context.Context, userID uuid.UUID, connID string, n Notification) {
	if err := c.notifier.Notify(ctx, connID, n); err != nil {
		c.metrics.NotificationFailed(n.Event)
		c.logger.Warn("notification not delivered",
			zap.String("event", n.Event),
			zap.Stringer("user_id", userID),
			zap.String("conn_id", connID),
			zap.Error(err),
		)
		return
	}
	c.metrics.NotificationSent(n.Event)
}
