package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/screenview-signaling/internal/models"
	"github.com/mossy-p/screenview-signaling/internal/registry"
)

// Rooms serves the read-only room status API
type Rooms struct {
	rooms *registry.Registry
}

func NewRooms(rooms *registry.Registry) *Rooms {
	return &Rooms{rooms: rooms}
}

// ListRooms lists every active room
func (h *Rooms) ListRooms(c *gin.Context) {
	snapshot := h.rooms.Rooms()
	out := make([]models.RoomInfo, 0, len(snapshot))
	for _, room := range snapshot {
		out = append(out, roomInfo(room))
	}

	c.JSON(http.StatusOK, models.RoomListResponse{
		Rooms: out,
		Count: len(out),
	})
}

// GetRoom gets one room by code
func (h *Rooms) GetRoom(c *gin.Context) {
	room, ok := h.rooms.LookupRoom(c.Param("code"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": models.MessageRoomNotFound})
		return
	}
	c.JSON(http.StatusOK, roomInfo(room))
}

// Health reports liveness
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func roomInfo(room registry.Room) models.RoomInfo {
	ids := room.ViewerIDs()
	if ids == nil {
		ids = []string{}
	}
	return models.RoomInfo{
		Code:        room.Code,
		HasHost:     room.Host != nil,
		ViewerCount: len(room.Viewers),
		ViewerIDs:   ids,
	}
}
