package registry

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/mossy-p/screenview-signaling/internal/models"
)

// Peer is the registry's handle on a live connection. Send queues an envelope
// for delivery and reports false once the connection is gone.
type Peer interface {
	ID() string
	Send(env models.Envelope) bool
}

// Room is a copy of one registry entry. Viewers is owned by the caller.
type Room struct {
	Code    string
	Host    Peer
	Viewers map[string]Peer
}

// ViewerIDs returns the room's viewer ids in sorted order
func (r Room) ViewerIDs() []string {
	return slices.Sorted(maps.Keys(r.Viewers))
}

type room struct {
	host    Peer
	viewers map[string]Peer
}

// Registry maps room codes to their host and viewers. One lock covers the
// whole map and every method is its own critical section.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// CreateRoom binds host to code with no viewers. An existing room with the
// same code is replaced and its members are not told.
func (r *Registry) CreateRoom(code string, host Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[code] = &room{
		host:    host,
		viewers: make(map[string]Peer),
	}
}

// LookupRoom returns a snapshot of the room, or false if it does not exist
func (r *Registry) LookupRoom(code string) (Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[code]
	if !ok {
		return Room{}, false
	}
	return Room{
		Code:    code,
		Host:    rm.host,
		Viewers: maps.Clone(rm.viewers),
	}, true
}

// LookupHost returns the host of a room
func (r *Registry) LookupHost(code string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[code]
	if !ok || rm.host == nil {
		return nil, false
	}
	return rm.host, true
}

// LookupViewer returns one viewer of a room
func (r *Registry) LookupViewer(code, viewerID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[code]
	if !ok {
		return nil, false
	}
	p, ok := rm.viewers[viewerID]
	return p, ok
}

// AddViewer registers a viewer under viewerID. It returns false if the room
// does not exist.
func (r *Registry) AddViewer(code, viewerID string, viewer Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		return false
	}
	rm.viewers[viewerID] = viewer
	return true
}

// RemoveHost deletes the room entirely
func (r *Registry) RemoveHost(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, code)
}

// RemoveViewer deletes one viewer; the room and its other members stay
func (r *Registry) RemoveViewer(code, viewerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[code]; ok {
		delete(rm.viewers, viewerID)
	}
}

// Clear drops every room
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.rooms)
}

// Len returns the number of rooms
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Rooms returns snapshots of every room ordered by code
func (r *Registry) Rooms() []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Room, 0, len(r.rooms))
	for code, rm := range r.rooms {
		out = append(out, Room{
			Code:    code,
			Host:    rm.host,
			Viewers: maps.Clone(rm.viewers),
		})
	}
	slices.SortFunc(out, func(a, b Room) int { return strings.Compare(a.Code, b.Code) })
	return out
}
