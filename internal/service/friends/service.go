package friends

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// Common errors for friend operations.
var (
	ErrCannotFriendSelf = errors.New("cannot send friend request to yourself")
	ErrAlreadyRequested = errors.New("friend request already exists")
	ErrRequestNotFound  = errors.New("friend request not found")
	ErrUserNotFound     = errors.New("user not found")
)

// Notifier pushes realtime friend events; the gateway implements it and
// falls back to accumulated notifications for offline recipients.
type Notifier interface {
	NotifyFriendRequest(ctx context.Context, toID int64, from *store.PublicUser)
	NotifyNewFriend(ctx context.Context, toID int64, friend *store.PublicUser, channelID int64)
}

// Service provides friend management business logic.
type Service struct {
	store    store.Store
	notifier Notifier
	log      *zerolog.Logger
}

// New creates a friend service.
func New(st store.Store, notifier Notifier, logger *zerolog.Logger) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		log:      logger,
	}
}

// Request sends a friend request from one user to another, addressed by
// id or by username.
func (s *Service) Request(ctx context.Context, fromID int64, toID int64, toUsername string) error {
	if toID == 0 && toUsername != "" {
		target, err := s.store.GetUserByUsername(ctx, toUsername)
		if err != nil {
			return ErrUserNotFound
		}
		toID = target.ID
	}
	if fromID == toID {
		return ErrCannotFriendSelf
	}

	from, err := s.store.GetUserByID(ctx, fromID)
	if err != nil {
		return fmt.Errorf("load requester: %w", err)
	}
	if _, err := s.store.GetUserByID(ctx, toID); err != nil {
		return ErrUserNotFound
	}

	if existing, err := s.store.GetFriendRequest(ctx, fromID, toID); err == nil && existing != nil {
		return ErrAlreadyRequested
	}

	if err := s.store.CreateFriendRequest(ctx, fromID, toID); err != nil {
		return fmt.Errorf("create friend request: %w", err)
	}

	s.notifier.NotifyFriendRequest(ctx, toID, &store.PublicUser{
		ID:       from.ID,
		Username: from.Username,
		Avatar:   from.Avatar,
		Status:   from.Status,
	})
	return nil
}

// Accept converts a pending request into a friendship: the store creates
// the shared direct channel and both relationship rows atomically, then
// both parties are told about their new friend.
func (s *Service) Accept(ctx context.Context, userID, fromID int64) (*store.PublicUser, int64, error) {
	if userID == fromID {
		return nil, 0, ErrCannotFriendSelf
	}

	newFriend, channelID, err := s.store.AcceptFriendRequest(ctx, userID, fromID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, ErrRequestNotFound
		}
		return nil, 0, fmt.Errorf("accept friend request: %w", err)
	}

	// The accepting user gets the result over REST; the requester gets a
	// NEW_FRIEND event (live or accumulated).
	accepter, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Int64("from_id", fromID).Msg("failed to load accepter for new friend notification")
	} else {
		s.notifier.NotifyNewFriend(ctx, fromID, &store.PublicUser{
			ID:       accepter.ID,
			Username: accepter.Username,
			Avatar:   accepter.Avatar,
			Status:   accepter.Status,
		}, channelID)
	}

	return newFriend, channelID, nil
}

// Reject removes a pending friend request.
func (s *Service) Reject(ctx context.Context, userID, fromID int64) error {
	if _, err := s.store.GetFriendRequest(ctx, fromID, userID); err != nil {
		return ErrRequestNotFound
	}
	if err := s.store.DeleteFriendRequest(ctx, userID, fromID); err != nil {
		return fmt.Errorf("reject friend request: %w", err)
	}
	return nil
}

// List returns the user's friends.
func (s *Service) List(ctx context.Context, userID int64) ([]*store.Friend, error) {
	friends, err := s.store.FriendsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

// Best returns the friend who has authored the most messages, or
// store.ErrNotFound when no friend has sent anything yet.
func (s *Service) Best(ctx context.Context, userID int64) (*store.Friend, error) {
	friend, err := s.store.BestFriend(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("best friend: %w", err)
	}
	return friend, nil
}

// ListRequests returns pending requests addressed to the user.
func (s *Service) ListRequests(ctx context.Context, userID int64) ([]*store.FriendRequest, error) {
	requests, err := s.store.ListFriendRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	return requests, nil
}
