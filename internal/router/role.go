package router

// Role is what a connection has claimed in the protocol. A connection starts
// Unassigned and moves to exactly one of HostRole or ViewerRole.
type Role interface {
	role()
}

type Unassigned struct{}

// HostRole is held by the connection that created Room
type HostRole struct {
	Room string
}

// ViewerRole is held by a connection that joined Room. ViewerID is assigned
// by the relay at join time.
type ViewerRole struct {
	Room     string
	ViewerID string
}

func (Unassigned) role() {}
func (HostRole) role()   {}
func (ViewerRole) role() {}
