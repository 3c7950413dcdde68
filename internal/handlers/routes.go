package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the signaling endpoint and the status API on engine
func RegisterRoutes(engine *gin.Engine, signaling *Signaling, rooms *Rooms) {
	engine.GET("/health", Health)

	// Room status API (read-only)
	api := engine.Group("/api")
	{
		api.GET("/rooms", rooms.ListRooms)
		api.GET("/rooms/:code", rooms.GetRoom)
	}

	// WebSocket signaling. Clients may connect on any path, so upgrades that
	// match no other route land here too.
	engine.GET("/", signaling.Handle)
	engine.GET("/ws", signaling.Handle)
	engine.NoRoute(signaling.HandleAnyPath)
}
