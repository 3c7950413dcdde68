package router

import "context"

// Presence receives room membership changes after the registry applied them
// and the affected peers were notified.
// Implementations mirror membership somewhere else for observers; the router
// never reads it back.
type Presence interface {
	RoomOpened(ctx context.Context, room, hostID string)
	RoomClosed(ctx context.Context, room string)
	ViewerAdded(ctx context.Context, room, viewerID string)
	ViewerRemoved(ctx context.Context, room, viewerID string)
	Reset(ctx context.Context)
}

// NopPresence discards every membership change
type NopPresence struct{}

func (NopPresence) RoomOpened(context.Context, string, string)    {}
func (NopPresence) RoomClosed(context.Context, string)            {}
func (NopPresence) ViewerAdded(context.Context, string, string)   {}
func (NopPresence) ViewerRemoved(context.Context, string, string) {}
func (NopPresence) Reset(context.Context)                         {}
