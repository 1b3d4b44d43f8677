package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRelay struct {
	delivered map[string][]byte
	evicted   []string
}

func (f *fakeRelay) Deliver(_ context.Context, connID string, payload []byte) error {
	if f.delivered == nil {
		f.delivered = make(map[string][]byte)
	}
	f.delivered[connID] = payload
	return nil
}

func (f *fakeRelay) Evict(_ context.Context, connID string) error {
	f.evicted = append(f.evicted, connID)
	return nil
}

func bareClient(buffer int) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: uuid.New(),
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: zap.NewNop(),
	}
}

func TestHubNotifyLocal(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	c := bareClient(1)
	hub.add(c)

	require.NoError(t, hub.Notify(context.Background(), c.id, presence.Updated(presence.EventOnlineFriends)))

	var n presence.Notification
	require.NoError(t, json.Unmarshal(<-c.send, &n))
	assert.Equal(t, presence.EventOnlineFriends, n.Event)
	assert.Equal(t, presence.PayloadUpdated, n.Data)
}

func TestHubNotifyDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	c := bareClient(1)
	hub.add(c)
	ctx := context.Background()

	require.NoError(t, hub.Notify(ctx, c.id, presence.Updated(presence.EventOnlineFriends)))
	err := hub.Notify(ctx, c.id, presence.Updated(presence.EventOnlineFriends))
	assert.ErrorIs(t, err, ErrSendBufferFull)
}

func TestHubNotifyUnknownConnection(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	ctx := context.Background()

	err := hub.Notify(ctx, "nope", presence.Updated(presence.EventOnlineFriends))
	assert.ErrorIs(t, err, ErrUnknownConnection)

	relay := &fakeRelay{}
	hub.SetRelay(relay)
	require.NoError(t, hub.Notify(ctx, "elsewhere", presence.Updated(presence.EventSpaceRequests)))
	assert.Contains(t, string(relay.delivered["elsewhere"]), presence.EventSpaceRequests)
}

func TestHubEvict(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	relay := &fakeRelay{}
	hub.SetRelay(relay)
	c := bareClient(1)
	hub.add(c)
	ctx := context.Background()

	require.NoError(t, hub.Evict(ctx, c.id))
	assert.True(t, c.closed())
	assert.Empty(t, relay.evicted)

	require.NoError(t, hub.Evict(ctx, "remote"))
	assert.Equal(t, []string{"remote"}, relay.evicted)
}

func TestHubRemoveIgnoresReplacedClient(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	a := bareClient(1)
	hub.add(a)
	stale := &Client{id: a.id}

	hub.remove(stale)
	assert.Equal(t, 1, hub.Len())

	hub.remove(a)
	assert.Equal(t, 0, hub.Len())
}
