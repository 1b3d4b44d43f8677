package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	deliverPrefix = "hop.deliver."
	evictPrefix   = "hop.evict."
)

// natsConn is the subset of *nats.Conn the relay uses.
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// NATSRelay routes deliveries to whichever instance holds a connection.
// Every instance subscribes to the wildcard subjects and ignores
// connections it does not own.
type NATSRelay struct {
	nc     natsConn
	hub    *Hub
	subs   []*nats.Subscription
	logger *zap.Logger
}

func NewNATSRelay(nc natsConn, hub *Hub, logger *zap.Logger) *NATSRelay {
	return &NATSRelay{nc: nc, hub: hub, logger: logger}
}

// Start subscribes to deliver and evict subjects.
func (r *NATSRelay) Start() error {
	deliverSub, err := r.nc.Subscribe(deliverPrefix+"*", r.handleDeliver)
	if err != nil {
		return fmt.Errorf("subscribe %s*: %w", deliverPrefix, err)
	}
	evictSub, err := r.nc.Subscribe(evictPrefix+"*", r.handleEvict)
	if err != nil {
		if deliverSub != nil {
			_ = deliverSub.Unsubscribe()
		}
		return fmt.Errorf("subscribe %s*: %w", evictPrefix, err)
	}
	r.subs = append(r.subs, deliverSub, evictSub)
	return nil
}

// Stop removes the subscriptions.
func (r *NATSRelay) Stop() {
	for _, sub := range r.subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Warn("unsubscribe relay", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	r.subs = nil
}

func (r *NATSRelay) Deliver(_ context.Context, connID string, payload []byte) error {
	if err := r.nc.Publish(deliverPrefix+connID, payload); err != nil {
		return fmt.Errorf("publish delivery: %w", err)
	}
	return nil
}

func (r *NATSRelay) Evict(_ context.Context, connID string) error {
	if err := r.nc.Publish(evictPrefix+connID, nil); err != nil {
		return fmt.Errorf("publish eviction: %w", err)
	}
	return nil
}

func (r *NATSRelay) handleDeliver(msg *nats.Msg) {
	connID := strings.TrimPrefix(msg.Subject, deliverPrefix)
	err := r.hub.deliverLocal(connID, msg.Data)
	if err != nil && !errors.Is(err, ErrUnknownConnection) {
		r.logger.Warn("relayed delivery failed", zap.String("conn_id", connID), zap.Error(err))
	}
}

func (r *NATSRelay) handleEvict(msg *nats.Msg) {
	connID := strings.TrimPrefix(msg.Subject, evictPrefix)
	if r.hub.evictLocal(connID) {
		r.logger.Info("closed connection evicted by another instance", zap.String("conn_id", connID))
	}
}
