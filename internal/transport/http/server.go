package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/auth"
	"github.com/chatterbox-im/chatterbox-server/internal/config"
	"github.com/chatterbox-im/chatterbox-server/internal/gateway"
	"github.com/chatterbox-im/chatterbox-server/internal/service/friends"
	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// NewServer builds the HTTP server: REST API, health check and the
// websocket endpoint.
func NewServer(gw *gateway.Gateway, authService *auth.Service, friendsService *friends.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	router.GET("/ws", gin.WrapH(NewWSHandler(gw, cfg.HandshakeTimeout, logger)))

	apiHandlers := NewAPIHandlers(authService, st, logger)
	userHandlers := NewUserHandlers(st, gw, logger)
	channelHandlers := NewChannelHandlers(st, gw, logger)
	friendsHandlers := NewFriendsHandlers(friendsService, st, logger)
	notificationHandlers := NewNotificationHandlers(st, gw, logger)

	api := router.Group("/api")
	{
		api.POST("/signup", apiHandlers.Signup)
		api.POST("/login", apiHandlers.Login)
	}

	authorized := api.Group("")
	authorized.Use(AuthMiddleware(authService, logger))
	{
		authorized.GET("/me", apiHandlers.Me)
		authorized.GET("/users", userHandlers.ListUsers)
		authorized.GET("/users/:id", userHandlers.GetUser)
		authorized.PATCH("/status", userHandlers.SetStatus)

		authorized.GET("/channels", channelHandlers.ListChannels)
		authorized.GET("/channels/:id/messages", channelHandlers.ListMessages)
		authorized.POST("/messages", channelHandlers.CreateMessage)

		authorized.GET("/friends", friendsHandlers.ListFriends)
		authorized.GET("/friends/best", friendsHandlers.BestFriend)
		authorized.GET("/friends/requests", friendsHandlers.ListRequests)
		authorized.POST("/friends/requests", friendsHandlers.SendRequest)
		authorized.POST("/friends/requests/:id/accept", friendsHandlers.AcceptRequest)
		authorized.POST("/friends/requests/:id/reject", friendsHandlers.RejectRequest)

		authorized.GET("/notifications", notificationHandlers.ListNotifications)
		authorized.DELETE("/notifications", notificationHandlers.ClearNotifications)

		authorized.GET("/admin/gateway-log", notificationHandlers.GatewayLog)
		authorized.POST("/admin/gateway-log/reset", notificationHandlers.ResetGatewayLog)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
