package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by any store when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// UserStatus is the presence state persisted for a user. The in-memory
// tracker in the gateway is authoritative while the user is connected;
// this is the durable mirror.
type UserStatus string

const (
	StatusOnline       UserStatus = "ONLINE"
	StatusOffline      UserStatus = "OFFLINE"
	StatusIdle         UserStatus = "IDLE"
	StatusDoNotDisturb UserStatus = "DO_NOT_DISTURB"
	StatusInvisible    UserStatus = "INVISIBLE"
)

// ValidStatus reports whether s is one of the known presence states.
func ValidStatus(s UserStatus) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusIdle, StatusDoNotDisturb, StatusInvisible:
		return true
	}
	return false
}

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Avatar       string
	Status       UserStatus
	CreatedAt    time.Time
}

// PublicUser is the projection of a user that other users may see.
type PublicUser struct {
	ID       int64
	Username string
	Avatar   string
	Status   UserStatus
}

// ChannelType defines different kinds of channels.
type ChannelType string

const (
	ChannelTypePublic ChannelType = "public"
	ChannelTypeDirect ChannelType = "direct"
)

// Channel represents a chat channel.
type Channel struct {
	ID        int64
	Name      string
	Type      ChannelType
	CreatedAt time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	ChannelID int64
	AuthorID  int64
	Content   string
	CreatedAt time.Time
}

// Friend is one direction of an accepted friendship. Friendships are
// stored as two rows, one per direction, sharing a direct channel.
type Friend struct {
	UserID    int64
	FriendID  int64
	ChannelID int64
	Username  string
	Avatar    string
	Status    UserStatus
}

// FriendRequest is a pending friend request.
type FriendRequest struct {
	FromID      int64
	ToID        int64
	RequestedAt time.Time
}

// FriendNotificationKind tags accumulated friend notifications.
type FriendNotificationKind string

const (
	FriendNotificationIncomingRequest FriendNotificationKind = "INCOMING_REQUEST"
	FriendNotificationNewFriend       FriendNotificationKind = "NEW_FRIEND"
)

// FriendNotification is a friend event accumulated while the recipient
// was not connected.
type FriendNotification struct {
	UserID int64
	FromID int64
	Kind   FriendNotificationKind
}

// MessageNotification is the unread counter for one user and channel.
type MessageNotification struct {
	UserID    int64
	ChannelID int64
	Count     int
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password and grants
	// access to the public channel.
	CreateUser(ctx context.Context, username, email, passwordHash, avatar string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListPublicUsers lists the public projection of every user.
	ListPublicUsers(ctx context.Context) ([]*PublicUser, error)

	// SetStatus durably persists a user's presence status.
	SetStatus(ctx context.Context, id int64, status UserStatus) error
}

// ChannelStore handles channel persistence and membership.
type ChannelStore interface {
	// CreateChannel creates a channel without granting access.
	CreateChannel(ctx context.Context, name string, channelType ChannelType) (*Channel, error)

	// ListChannels lists channels the user has access to.
	ListChannels(ctx context.Context, userID int64) ([]*Channel, error)

	// HasAccess checks whether the user may read and write the channel.
	HasAccess(ctx context.Context, userID, channelID int64) (bool, error)

	// ChannelRecipients lists every user with access to the channel.
	ChannelRecipients(ctx context.Context, channelID int64) ([]*PublicUser, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message and returns it with ID and timestamp.
	CreateMessage(ctx context.Context, authorID, channelID int64, content string) (*Message, error)

	// ListMessages retrieves the messages of a channel in insertion order.
	ListMessages(ctx context.Context, channelID int64) ([]*Message, error)
}

// FriendStore handles friend relationships and requests.
type FriendStore interface {
	// CreateFriendRequest records a pending request from one user to another.
	CreateFriendRequest(ctx context.Context, fromID, toID int64) error

	// GetFriendRequest retrieves a pending request, if any.
	GetFriendRequest(ctx context.Context, fromID, toID int64) (*FriendRequest, error)

	// ListFriendRequests lists pending requests addressed to the user.
	ListFriendRequests(ctx context.Context, toID int64) ([]*FriendRequest, error)

	// AcceptFriendRequest atomically creates the direct channel, both
	// friendship rows and both access grants, and removes the request
	// in either direction. Returns the new friend and shared channel.
	AcceptFriendRequest(ctx context.Context, userID, fromID int64) (*PublicUser, int64, error)

	// DeleteFriendRequest removes a request in either direction.
	DeleteFriendRequest(ctx context.Context, userID, otherID int64) error

	// FriendsOf lists the accepted friends of a user.
	FriendsOf(ctx context.Context, userID int64) ([]*Friend, error)

	// BestFriend returns the friend who has authored the most messages,
	// or ErrNotFound when no friend has sent anything yet.
	BestFriend(ctx context.Context, userID int64) (*Friend, error)
}

// NotificationStore accumulates notifications for users who are not
// connected when an event happens.
type NotificationStore interface {
	// IncrementUnread bumps the unread counter for a user and channel.
	IncrementUnread(ctx context.Context, userID, channelID int64) error

	// ListUnread lists non-zero unread counters for a user.
	ListUnread(ctx context.Context, userID int64) ([]*MessageNotification, error)

	// ClearUnread resets the unread counter for a user and channel.
	ClearUnread(ctx context.Context, userID, channelID int64) error

	// AddFriendNotification records a friend event for later delivery.
	AddFriendNotification(ctx context.Context, userID, fromID int64, kind FriendNotificationKind) error

	// ListFriendNotifications lists accumulated friend events for a user.
	ListFriendNotifications(ctx context.Context, userID int64) ([]*FriendNotification, error)

	// ClearFriendNotifications removes all friend events for a user.
	ClearFriendNotifications(ctx context.Context, userID int64) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChannelStore
	MessageStore
	FriendStore
	NotificationStore

	// Close closes the underlying database connection.
	Close() error
}
