package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/gateway"
	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// ChannelHandlers provides HTTP handlers for channels and messages.
type ChannelHandlers struct {
	store store.Store
	gw    *gateway.Gateway
	log   *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(st store.Store, gw *gateway.Gateway, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{
		store: st,
		gw:    gw,
		log:   logger,
	}
}

// ChannelResponse represents a channel in API responses.
type ChannelResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageResponse represents a persisted message in API responses.
type MessageResponse struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channelId"`
	AuthorID  int64     `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// SendMessageRequest represents the message creation request body.
type SendMessageRequest struct {
	ChannelID int64  `json:"channelId" binding:"required"`
	Content   string `json:"content" binding:"required,max=4000"`
}

// ListChannels lists the channels the authenticated user has access to.
// GET /api/channels
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	channels, err := h.store.ListChannels(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list channels")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		resp = append(resp, ChannelResponse{
			ID:        ch.ID,
			Name:      ch.Name,
			Type:      string(ch.Type),
			CreatedAt: ch.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// ListMessages returns a channel's message history in insertion order.
// Fetching history counts as reading the channel, so the caller's
// unread counter for it is reset.
// GET /api/channels/:id/messages
func (h *ChannelHandlers) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	channelID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid channel id"})
		return
	}

	ctx := c.Request.Context()
	access, err := h.store.HasAccess(ctx, userID, channelID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Int64("channel_id", channelID).Msg("failed to check channel access")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !access {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "no access to channel"})
		return
	}

	messages, err := h.store.ListMessages(ctx, channelID)
	if err != nil {
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if err := h.store.ClearUnread(ctx, userID, channelID); err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Int64("channel_id", channelID).Msg("failed to clear unread counter")
	}

	resp := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, MessageResponse{
			ID:        m.ID,
			ChannelID: m.ChannelID,
			AuthorID:  m.AuthorID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// CreateMessage persists a message and fans it out the same way a
// socket SEND does: connected recipients get it live, everyone else
// gets an unread counter bump.
// POST /api/messages
func (h *ChannelHandlers) CreateMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	access, err := h.store.HasAccess(ctx, userID, req.ChannelID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Int64("channel_id", req.ChannelID).Msg("failed to check channel access")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !access {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "no access to channel"})
		return
	}

	msg, err := h.gw.Send(ctx, userID, req.ChannelID, req.Content)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Int64("channel_id", req.ChannelID).Msg("failed to send message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	})
}
