package models

// RoomInfo is the read-only view of a room served by the status API
type RoomInfo struct {
	Code        string   `json:"code"`
	HasHost     bool     `json:"hasHost"`
	ViewerCount int      `json:"viewerCount"`
	ViewerIDs   []string `json:"viewerIds"`
}

// RoomListResponse is the response for listing active rooms
type RoomListResponse struct {
	Rooms []RoomInfo `json:"rooms"`
	Count int        `json:"count"`
}
