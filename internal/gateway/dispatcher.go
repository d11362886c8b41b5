package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/proto"
	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// FriendLister resolves a user's friend list for fan-out.
type FriendLister interface {
	FriendsOf(ctx context.Context, userID int64) ([]*store.Friend, error)
}

// Dispatcher delivers serialized events to the registry entries matching
// a target audience. Delivery is strictly connection-based: an offline
// target is a no-op, never an error. Visibility rules are the presence
// layer's concern and must be applied before a payload reaches here.
type Dispatcher struct {
	registry *Registry
	friends  FriendLister
	elog     *EventLog
	log      *zerolog.Logger
}

// NewDispatcher constructs a dispatcher over the given registry.
func NewDispatcher(registry *Registry, friends FriendLister, elog *EventLog, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		friends:  friends,
		elog:     elog,
		log:      logger,
	}
}

// Notify delivers a message to the user's bound peer, if any. Reports
// whether the message was actually handed to a connection.
func (d *Dispatcher) Notify(userID int64, msg proto.Outbound) bool {
	peer, ok := d.registry.Peer(userID)
	if !ok {
		return false
	}
	d.elog.Append(EntrySend, fmt.Sprintf("%s to user %d", msg.Type, userID))
	if !peer.TrySend(msg) {
		d.log.Warn().
			Str("peer_id", peer.ID).
			Int64("user_id", userID).
			Str("type", msg.Type).
			Msg("dropped event for slow consumer")
		return false
	}
	return true
}

// Broadcast delivers a message to every currently bound peer.
func (d *Dispatcher) Broadcast(msg proto.Outbound) {
	d.elog.Append(EntrySend, fmt.Sprintf("%s to all", msg.Type))
	for _, peer := range d.registry.Peers() {
		if !peer.TrySend(msg) {
			d.log.Warn().Str("peer_id", peer.ID).Str("type", msg.Type).Msg("dropped event for slow consumer")
		}
	}
}

// NotifyFriendsOf resolves the user's friends and delivers the message
// to each friend that is currently bound.
func (d *Dispatcher) NotifyFriendsOf(ctx context.Context, userID int64, msg proto.Outbound) error {
	friends, err := d.friends.FriendsOf(ctx, userID)
	if err != nil {
		return fmt.Errorf("list friends: %w", err)
	}
	for _, f := range friends {
		d.Notify(f.FriendID, msg)
	}
	return nil
}
