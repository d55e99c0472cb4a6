package routes

import (
	"log"
	"net/http"
	"strings"

	"triviarena/handlers"
	"triviarena/middleware"
	"triviarena/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	roomHandler *handlers.RoomHandler,
	gateway *services.Gateway,
	verifier *services.JWTVerifier,
) {
	// API routes
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(verifier))
		{
			protected.GET("/auth/profile", authHandler.GetProfile)
			protected.POST("/rooms", roomHandler.CreateRoom)
		}

		// Public room preview
		api.GET("/rooms/:pin", roomHandler.GetRoomByPin)
	}

	// WebSocket endpoint: the handshake parameters ride in the URL, the rest
	// of the session is message traffic.
	router.GET("/ws/:pin", func(c *gin.Context) {
		pin := strings.ToLower(c.Param("pin"))
		name := c.Query("name")
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Display name required"})
			return
		}
		name = services.TruncateRunes(name, 32)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for room %s: %v", pin, err)
			return
		}

		gateway.HandleConnection(conn, services.HandshakeParams{
			Pin:            pin,
			Name:           name,
			Password:       c.Query("password"),
			AuthToken:      c.Query("auth_token"),
			ReconnectToken: c.Query("reconnect_token"),
			HostToken:      c.Query("host_token"),
		})
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
