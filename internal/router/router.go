package router

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mossy-p/screenview-signaling/internal/models"
	"github.com/mossy-p/screenview-signaling/internal/registry"
)

// Router decides what each inbound envelope does given the sender's role.
// It is called from the sender's read loop; the only shared state it touches
// is the registry, and it only ever delivers through Peer.Send.
type Router struct {
	rooms    *registry.Registry
	presence Presence
	newID    func() string
	logger   *slog.Logger
}

type Option func(*Router)

// WithPresence mirrors membership changes into p
func WithPresence(p Presence) Option {
	return func(r *Router) {
		if p != nil {
			r.presence = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithIDGenerator replaces the viewer id source
func WithIDGenerator(f func() string) Option {
	return func(r *Router) {
		if f != nil {
			r.newID = f
		}
	}
}

func New(rooms *registry.Registry, opts ...Option) *Router {
	r := &Router{
		rooms:    rooms,
		presence: NopPresence{},
		newID:    func() string { return uuid.New().String() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch applies env sent by self while holding role and returns the role
// self holds afterwards. Envelopes that do not fit the role are dropped.
func (r *Router) Dispatch(ctx context.Context, self registry.Peer, role Role, env models.Envelope) Role {
	if models.ServerOnly(env) {
		r.drop(self, env, "server notification sent by client")
		return role
	}

	switch role := role.(type) {
	case Unassigned:
		return r.claim(ctx, self, env)
	case HostRole:
		r.fromHost(self, role, env)
		return role
	case ViewerRole:
		r.fromViewer(self, role, env)
		return role
	default:
		r.logger.Error("Unknown connection role", "conn", self.ID(), "role", role)
		return role
	}
}

func (r *Router) claim(ctx context.Context, self registry.Peer, env models.Envelope) Role {
	switch m := env.(type) {
	case models.Host:
		r.rooms.CreateRoom(m.Room, self)
		r.presence.RoomOpened(ctx, m.Room, self.ID())
		r.logger.Info("Room created", "room", m.Room, "conn", self.ID())
		return HostRole{Room: m.Room}
	case models.Viewer:
		return r.join(ctx, self, m.Room)
	}

	r.drop(self, env, "no role claimed yet")
	return Unassigned{}
}

func (r *Router) join(ctx context.Context, self registry.Peer, code string) Role {
	room, ok := r.rooms.LookupRoom(code)
	if !ok {
		r.logger.Info("Viewer join failed: room not found", "room", code, "conn", self.ID())
		self.Send(models.Error{Message: models.MessageRoomNotFound})
		return Unassigned{}
	}

	viewerID := r.newID()
	// The room can be torn down between the lookup and the insert.
	if !r.rooms.AddViewer(code, viewerID, self) {
		r.logger.Info("Viewer join failed: room closed", "room", code, "conn", self.ID())
		self.Send(models.Error{Message: models.MessageRoomNotFound})
		return Unassigned{}
	}
	r.logger.Info("Viewer joined room", "room", code, "viewer", viewerID, "conn", self.ID(),
		"viewers", len(room.Viewers)+1)

	if room.Host != nil {
		r.deliver(room.Host, models.ViewerJoined{ViewerID: viewerID})
	}
	// Mirror after signaling so a slow presence store never delays the host.
	r.presence.ViewerAdded(ctx, code, viewerID)
	return ViewerRole{Room: code, ViewerID: viewerID}
}

func (r *Router) fromHost(self registry.Peer, role HostRole, env models.Envelope) {
	switch m := env.(type) {
	case models.Offer:
		if viewer, ok := r.rooms.LookupViewer(role.Room, m.ViewerID); ok {
			r.deliver(viewer, models.Offer{ViewerID: m.ViewerID, SDP: m.SDP})
			return
		}
		r.logger.Debug("Target viewer not found", "room", role.Room, "viewer", m.ViewerID, "type", m.Type())
	case models.IceCandidate:
		if m.ViewerID == "" {
			r.drop(self, env, "host candidate without viewerId")
			return
		}
		if viewer, ok := r.rooms.LookupViewer(role.Room, m.ViewerID); ok {
			r.deliver(viewer, m)
			return
		}
		r.logger.Debug("Target viewer not found", "room", role.Room, "viewer", m.ViewerID, "type", m.Type())
	default:
		r.drop(self, env, "not valid for host")
	}
}

func (r *Router) fromViewer(self registry.Peer, role ViewerRole, env models.Envelope) {
	var out models.Envelope
	switch m := env.(type) {
	case models.Answer:
		out = models.Answer{ViewerID: role.ViewerID, SDP: m.SDP}
	case models.IceCandidate:
		out = models.IceCandidate{ViewerID: role.ViewerID, Candidate: m.Candidate}
	default:
		r.drop(self, env, "not valid for viewer")
		return
	}

	host, ok := r.rooms.LookupHost(role.Room)
	if !ok {
		r.logger.Debug("Host not found", "room", role.Room, "viewer", role.ViewerID, "type", env.Type())
		return
	}
	r.deliver(host, out)
}

// Leave runs the disconnect procedure for a connection that held role.
func (r *Router) Leave(ctx context.Context, self registry.Peer, role Role) {
	switch role := role.(type) {
	case HostRole:
		if room, ok := r.rooms.LookupRoom(role.Room); ok {
			for _, viewer := range room.Viewers {
				r.deliver(viewer, models.HostLeft{})
			}
		}
		r.rooms.RemoveHost(role.Room)
		r.presence.RoomClosed(ctx, role.Room)
		r.logger.Info("Host left, room closed", "room", role.Room, "conn", self.ID())
	case ViewerRole:
		r.rooms.RemoveViewer(role.Room, role.ViewerID)
		if host, ok := r.rooms.LookupHost(role.Room); ok {
			r.deliver(host, models.ViewerLeft{ViewerID: role.ViewerID})
		}
		r.presence.ViewerRemoved(ctx, role.Room, role.ViewerID)
		r.logger.Info("Viewer left room", "room", role.Room, "viewer", role.ViewerID, "conn", self.ID())
	}
}

func (r *Router) deliver(to registry.Peer, env models.Envelope) {
	if !to.Send(env) {
		r.logger.Debug("Dropped message for closed connection", "conn", to.ID(), "type", env.Type())
	}
}

func (r *Router) drop(self registry.Peer, env models.Envelope, reason string) {
	r.logger.Debug("Dropping message", "conn", self.ID(), "type", env.Type(), "reason", reason)
}
