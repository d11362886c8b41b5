package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/gateway"
	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// UserHandlers provides HTTP handlers for user listing and presence.
type UserHandlers struct {
	store store.UserStore
	gw    *gateway.Gateway
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, gw *gateway.Gateway, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		gw:    gw,
		log:   logger,
	}
}

// UserResponse is the public projection of a user as other users see
// it: the status has already been passed through the visibility rule.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status"`
}

// StatusRequest represents the status change request body.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// visibleStatus renders a user's status for other users: the live
// tracked status when one exists, the stored one otherwise, with
// INVISIBLE masked as OFFLINE either way.
func (h *UserHandlers) visibleStatus(userID int64, durable store.UserStatus) store.UserStatus {
	if s, ok := h.gw.Presence().Status(userID); ok {
		return gateway.Visible(s)
	}
	return gateway.Visible(durable)
}

// ListUsers lists every registered user.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	users, err := h.store.ListPublicUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, UserResponse{
			ID:       u.ID,
			Username: u.Username,
			Avatar:   u.Avatar,
			Status:   string(h.visibleStatus(u.ID, u.Status)),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// GetUser returns one user's public projection.
// GET /api/users/:id
func (h *UserHandlers) GetUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", id).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Avatar:   user.Avatar,
		Status:   string(h.visibleStatus(user.ID, user.Status)),
	})
}

// SetStatus changes the authenticated user's presence status. Friends
// are notified over their sockets when the visible status changes.
// PATCH /api/status
func (h *UserHandlers) SetStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	status := store.UserStatus(req.Status)
	if !store.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status"})
		return
	}

	if err := h.gw.SetStatus(c.Request.Context(), userID, status); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Str("status", req.Status).Msg("failed to set status")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status})
}
