package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/proto"
	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

var (
	// ErrInvalidToken is returned when a CONNECT credential does not
	// resolve to a user.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnboundPeer is returned when an authenticated-only operation
	// arrives on a peer with no binding. Should be unreachable given the
	// handshake contract; the gateway defends against it anyway.
	ErrUnboundPeer = errors.New("peer not bound to a user")
)

// CredentialResolver resolves an opaque session credential to a user id.
type CredentialResolver interface {
	ResolveToken(token string) (int64, error)
}

// Store is the persistence surface the gateway needs. Satisfied by
// store.Store; narrowed so tests can fabricate it.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
	SetStatus(ctx context.Context, id int64, status store.UserStatus) error
	FriendsOf(ctx context.Context, userID int64) ([]*store.Friend, error)
	ChannelRecipients(ctx context.Context, channelID int64) ([]*store.PublicUser, error)
	CreateMessage(ctx context.Context, authorID, channelID int64, content string) (*store.Message, error)
	IncrementUnread(ctx context.Context, userID, channelID int64) error
	AddFriendNotification(ctx context.Context, userID, fromID int64, kind store.FriendNotificationKind) error
}

// Gateway is the realtime presence and delivery service: it binds
// authenticated sockets to users, tracks presence, and fans events out
// to exactly the currently connected audience.
type Gateway struct {
	creds    CredentialResolver
	store    Store
	registry *Registry
	presence *Tracker
	dispatch *Dispatcher
	elog     *EventLog
	log      *zerolog.Logger
}

// New constructs a gateway with its own registry, tracker and log.
func New(creds CredentialResolver, st Store, logger *zerolog.Logger) *Gateway {
	registry := NewRegistry()
	elog := NewEventLog()
	return &Gateway{
		creds:    creds,
		store:    st,
		registry: registry,
		presence: NewTracker(st),
		dispatch: NewDispatcher(registry, st, elog, logger),
		elog:     elog,
		log:      logger,
	}
}

// Registry exposes the connection registry.
func (g *Gateway) Registry() *Registry { return g.registry }

// Presence exposes the presence tracker.
func (g *Gateway) Presence() *Tracker { return g.presence }

// EventLog exposes the diagnostic log for the admin API.
func (g *Gateway) EventLog() *EventLog { return g.elog }

// HandleOpen records a newly accepted connection.
func (g *Gateway) HandleOpen(p *Peer) {
	g.elog.Append(EntryOpen, "connection "+p.ID+" opened")
}

// HandleRecv records an inbound application message.
func (g *Gateway) HandleRecv(p *Peer, msgType string) {
	g.elog.Append(EntryRecv, msgType+" from connection "+p.ID)
}

// HandleKill records a fatal protocol violation on a connection. The
// transport closes the socket; this only keeps the diagnostic trail.
func (g *Gateway) HandleKill(p *Peer, reason string) {
	g.elog.Append(EntryKill, "connection "+p.ID+": "+reason)
}

// Authenticate resolves the CONNECT credential and, on success, binds
// the peer to the user. A prior binding for the same user is superseded
// and its connection closed. If the stored status was OFFLINE the user
// comes ONLINE and currently connected friends are notified; any other
// stored status survives reconnection without a broadcast.
func (g *Gateway) Authenticate(ctx context.Context, p *Peer, token string) (*store.User, error) {
	userID, err := g.creds.ResolveToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := g.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if prev := g.registry.Bind(p, user.ID); prev != nil {
		// Second login replaces the first; the stale socket is told why.
		g.log.Info().Int64("user_id", user.ID).Str("peer_id", prev.ID).Msg("superseding stale session")
		prev.Close(proto.CloseProtocolError, "session superseded by a newer connection")
	}

	g.presence.Track(user.ID, user.Status)
	if user.Status == store.StatusOffline {
		changed, err := g.presence.Set(ctx, user.ID, store.StatusOnline)
		if err != nil {
			g.log.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to persist presence")
		}
		if changed {
			g.broadcastStatus(ctx, user.ID, store.StatusOnline)
		}
	}

	g.elog.Append(EntryOpen, fmt.Sprintf("connection %s authenticated as %s (%d)", p.ID, user.Username, user.ID))
	g.log.Info().Str("peer_id", p.ID).Str("username", user.Username).Msg("socket authenticated")
	return user, nil
}

// HandleSend runs the message send path for a bound connection.
func (g *Gateway) HandleSend(ctx context.Context, p *Peer, channelID int64, content string) error {
	authorID, ok := g.registry.Resolve(p)
	if !ok {
		g.elog.Append(EntryError, "SEND from unbound connection "+p.ID)
		g.log.Error().Str("peer_id", p.ID).Msg("send from unbound connection")
		return ErrUnboundPeer
	}
	_, err := g.Send(ctx, authorID, channelID, content)
	return err
}

// Send persists a message, then for every channel recipient except the
// author either delivers it live (if bound at dispatch time) or
// accumulates an unread notification. A recipient never gets both.
// Used by both the socket SEND path and the REST message endpoint.
func (g *Gateway) Send(ctx context.Context, authorID, channelID int64, content string) (*store.Message, error) {
	author, err := g.store.GetUserByID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("load author: %w", err)
	}

	g.elog.Append(EntryRecv, fmt.Sprintf("%s sent message in channel %d", author.Username, channelID))

	msg, err := g.store.CreateMessage(ctx, authorID, channelID, content)
	if err != nil {
		g.elog.Append(EntryError, fmt.Sprintf("persist message in channel %d failed", channelID))
		return nil, fmt.Errorf("persist message: %w", err)
	}

	recipients, err := g.store.ChannelRecipients(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	out := proto.Outbound{
		Type: proto.OutboundTypeMessage,
		Message: &proto.MessageDTO{
			ID:        msg.ID,
			ChannelID: msg.ChannelID,
			Author:    proto.PublicUser{ID: author.ID, Username: author.Username, Avatar: author.Avatar},
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.Unix(),
		},
	}

	for _, r := range recipients {
		if r.ID == authorID {
			continue
		}
		// Bindings may have changed while the persistence calls above
		// were in flight; Notify checks them at dispatch time.
		if g.dispatch.Notify(r.ID, out) {
			continue
		}
		if err := g.store.IncrementUnread(ctx, r.ID, channelID); err != nil {
			g.log.Warn().Err(err).Int64("user_id", r.ID).Int64("channel_id", channelID).Msg("failed to accumulate unread")
		}
	}
	return msg, nil
}

// HandleClose unbinds the peer and applies the disconnect presence
// rule: only an ONLINE user flips to OFFLINE (and friends are told); a
// user who set IDLE or DND keeps that status from peers' perspective.
func (g *Gateway) HandleClose(ctx context.Context, p *Peer) {
	userID, ok := g.registry.Unbind(p)
	if !ok {
		g.elog.Append(EntryClose, "connection "+p.ID+" closed without binding")
		return
	}

	if status, tracked := g.presence.Status(userID); tracked && status == store.StatusOnline {
		changed, err := g.presence.Set(ctx, userID, store.StatusOffline)
		if err != nil {
			g.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to persist presence")
		}
		if changed {
			g.broadcastStatus(ctx, userID, store.StatusOffline)
		}
	}
	g.presence.Forget(userID)

	g.elog.Append(EntryClose, fmt.Sprintf("user %d disconnected (connection %s)", userID, p.ID))
	g.log.Info().Str("peer_id", p.ID).Int64("user_id", userID).Msg("socket closed")
}

// SetStatus applies a user-chosen presence status (the only way to
// reach IDLE, DND or INVISIBLE) and broadcasts when the visible status
// changed.
func (g *Gateway) SetStatus(ctx context.Context, userID int64, status store.UserStatus) error {
	user, err := g.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	g.presence.Track(userID, user.Status)

	changed, err := g.presence.Set(ctx, userID, status)
	if err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	if changed {
		g.broadcastStatus(ctx, userID, status)
	}
	return nil
}

// NotifyFriendRequest delivers a FRIEND_REQ event live, or accumulates
// a friend notification when the recipient is not connected.
func (g *Gateway) NotifyFriendRequest(ctx context.Context, toID int64, from *store.PublicUser) {
	out := proto.Outbound{
		Type: proto.OutboundTypeFriendRequest,
		From: &proto.PublicUser{ID: from.ID, Username: from.Username, Avatar: from.Avatar},
	}
	if g.dispatch.Notify(toID, out) {
		return
	}
	if err := g.store.AddFriendNotification(ctx, toID, from.ID, store.FriendNotificationIncomingRequest); err != nil {
		g.log.Warn().Err(err).Int64("user_id", toID).Msg("failed to accumulate friend request notification")
	}
}

// NotifyNewFriend delivers a NEW_FRIEND event live, or accumulates a
// friend notification when the recipient is not connected. The friend's
// status goes through Visible before it leaves the server.
func (g *Gateway) NotifyNewFriend(ctx context.Context, toID int64, friend *store.PublicUser, channelID int64) {
	out := proto.Outbound{
		Type: proto.OutboundTypeNewFriend,
		Friend: &proto.FriendView{
			ID:        friend.ID,
			Username:  friend.Username,
			Avatar:    friend.Avatar,
			Status:    string(Visible(friend.Status)),
			ChannelID: channelID,
		},
	}
	if g.dispatch.Notify(toID, out) {
		return
	}
	if err := g.store.AddFriendNotification(ctx, toID, friend.ID, store.FriendNotificationNewFriend); err != nil {
		g.log.Warn().Err(err).Int64("user_id", toID).Msg("failed to accumulate new friend notification")
	}
}

func (g *Gateway) broadcastStatus(ctx context.Context, userID int64, status store.UserStatus) {
	out := proto.Outbound{
		Type:   proto.OutboundTypeStatusChange,
		ID:     userID,
		Status: string(Visible(status)),
	}
	if err := g.dispatch.NotifyFriendsOf(ctx, userID, out); err != nil {
		g.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to broadcast status change")
	}
}
