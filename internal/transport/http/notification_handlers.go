package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/gateway"
	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// NotificationHandlers provides HTTP handlers for accumulated offline
// notifications and the gateway diagnostic log.
type NotificationHandlers struct {
	store store.NotificationStore
	gw    *gateway.Gateway
	log   *zerolog.Logger
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(st store.NotificationStore, gw *gateway.Gateway, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{
		store: st,
		gw:    gw,
		log:   logger,
	}
}

// UnreadResponse is the unread message counter for one channel.
type UnreadResponse struct {
	ChannelID int64 `json:"channelId"`
	Count     int   `json:"count"`
}

// FriendNotificationResponse is a friend event accumulated while the
// user was offline.
type FriendNotificationResponse struct {
	FromID int64  `json:"fromId"`
	Kind   string `json:"kind"`
}

// NotificationsResponse bundles everything that accumulated while the
// user was not connected.
type NotificationsResponse struct {
	Unread  []UnreadResponse             `json:"unread"`
	Friends []FriendNotificationResponse `json:"friends"`
}

// ListNotifications returns unread counters and accumulated friend
// events for the caller.
// GET /api/notifications
func (h *NotificationHandlers) ListNotifications(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	unread, err := h.store.ListUnread(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list unread counters")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	friendEvents, err := h.store.ListFriendNotifications(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list friend notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := NotificationsResponse{
		Unread:  make([]UnreadResponse, 0, len(unread)),
		Friends: make([]FriendNotificationResponse, 0, len(friendEvents)),
	}
	for _, n := range unread {
		resp.Unread = append(resp.Unread, UnreadResponse{ChannelID: n.ChannelID, Count: n.Count})
	}
	for _, n := range friendEvents {
		resp.Friends = append(resp.Friends, FriendNotificationResponse{FromID: n.FromID, Kind: string(n.Kind)})
	}
	c.JSON(http.StatusOK, resp)
}

// ClearNotifications removes the caller's accumulated notifications.
// DELETE /api/notifications
func (h *NotificationHandlers) ClearNotifications(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	unread, err := h.store.ListUnread(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list unread counters")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	for _, n := range unread {
		if err := h.store.ClearUnread(ctx, userID, n.ChannelID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", userID).Int64("channel_id", n.ChannelID).Msg("failed to clear unread counter")
		}
	}

	if err := h.store.ClearFriendNotifications(ctx, userID); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to clear friend notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// GatewayLog returns the gateway's diagnostic event log.
// GET /api/admin/gateway-log
func (h *NotificationHandlers) GatewayLog(c *gin.Context) {
	c.JSON(http.StatusOK, h.gw.EventLog().Entries())
}

// ResetGatewayLog clears the gateway's diagnostic event log.
// POST /api/admin/gateway-log/reset
func (h *NotificationHandlers) ResetGatewayLog(c *gin.Context) {
	h.gw.EventLog().Reset()
	c.JSON(http.StatusNoContent, nil)
}
