package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/gateway"
	"github.com/chatterbox-im/chatterbox-server/internal/service/friends"
	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// FriendsHandlers provides HTTP handlers for friendships and requests.
type FriendsHandlers struct {
	friends *friends.Service
	store   store.Store
	log     *zerolog.Logger
}

// NewFriendsHandlers creates a new friends handlers instance.
func NewFriendsHandlers(svc *friends.Service, st store.Store, logger *zerolog.Logger) *FriendsHandlers {
	return &FriendsHandlers{
		friends: svc,
		store:   st,
		log:     logger,
	}
}

// FriendResponse represents an accepted friend in API responses.
type FriendResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Status    string `json:"status"`
	ChannelID int64  `json:"channelId"`
}

// FriendRequestResponse represents a pending incoming request.
type FriendRequestResponse struct {
	From        UserResponse `json:"from"`
	RequestedAt time.Time    `json:"requestedAt"`
}

// SendFriendRequest represents the friend request body. Either the
// recipient's id or username must be set.
type SendFriendRequest struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// ListFriends lists the authenticated user's accepted friends.
// GET /api/friends
func (h *FriendsHandlers) ListFriends(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	list, err := h.friends.List(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list friends")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]FriendResponse, 0, len(list))
	for _, f := range list {
		resp = append(resp, FriendResponse{
			ID:        f.FriendID,
			Username:  f.Username,
			Avatar:    f.Avatar,
			Status:    string(gateway.Visible(f.Status)),
			ChannelID: f.ChannelID,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// BestFriend returns the caller's friend who has sent the most
// messages.
// GET /api/friends/best
func (h *FriendsHandlers) BestFriend(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	friend, err := h.friends.Best(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no best friend yet"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to resolve best friend")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, FriendResponse{
		ID:        friend.FriendID,
		Username:  friend.Username,
		Avatar:    friend.Avatar,
		Status:    string(gateway.Visible(friend.Status)),
		ChannelID: friend.ChannelID,
	})
}

// ListRequests lists pending friend requests addressed to the caller.
// GET /api/friends/requests
func (h *FriendsHandlers) ListRequests(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	requests, err := h.friends.ListRequests(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list friend requests")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]FriendRequestResponse, 0, len(requests))
	for _, r := range requests {
		from, err := h.store.GetUserByID(ctx, r.FromID)
		if err != nil {
			h.log.Warn().Err(err).Int64("from_id", r.FromID).Msg("failed to load request sender")
			continue
		}
		resp = append(resp, FriendRequestResponse{
			From: UserResponse{
				ID:       from.ID,
				Username: from.Username,
				Avatar:   from.Avatar,
				Status:   string(gateway.Visible(from.Status)),
			},
			RequestedAt: r.RequestedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// SendRequest creates a friend request addressed by id or username.
// POST /api/friends/requests
func (h *FriendsHandlers) SendRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == 0 && req.Username == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId or username is required"})
		return
	}

	err := h.friends.Request(c.Request.Context(), userID, req.UserID, req.Username)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"status": "requested"})
	case errors.Is(err, friends.ErrCannotFriendSelf):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot send a friend request to yourself"})
	case errors.Is(err, friends.ErrAlreadyRequested):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "friend request already pending"})
	case errors.Is(err, friends.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	default:
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to create friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// AcceptRequest accepts a pending request from the user named by :id.
// POST /api/friends/requests/:id/accept
func (h *FriendsHandlers) AcceptRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	fromID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	friend, channelID, err := h.friends.Accept(c.Request.Context(), userID, fromID)
	if err != nil {
		if errors.Is(err, friends.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "friend request not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Int64("from_id", fromID).Msg("failed to accept friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, FriendResponse{
		ID:        friend.ID,
		Username:  friend.Username,
		Avatar:    friend.Avatar,
		Status:    string(gateway.Visible(friend.Status)),
		ChannelID: channelID,
	})
}

// RejectRequest removes a pending request from the user named by :id.
// POST /api/friends/requests/:id/reject
func (h *FriendsHandlers) RejectRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	fromID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	if err := h.friends.Reject(c.Request.Context(), userID, fromID); err != nil {
		if errors.Is(err, friends.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "friend request not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Int64("from_id", fromID).Msg("failed to reject friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}
