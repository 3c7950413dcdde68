package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/screenview-signaling/internal/models"
	"github.com/mossy-p/screenview-signaling/internal/registry"
)

type recordingPeer struct {
	id     string
	mu     sync.Mutex
	got    []models.Envelope
	closed bool
}

func newPeer(id string) *recordingPeer { return &recordingPeer{id: id} }

func (p *recordingPeer) ID() string { return p.id }

func (p *recordingPeer) Send(env models.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.got = append(p.got, env)
	return true
}

func (p *recordingPeer) received() []models.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Envelope(nil), p.got...)
}

type presenceEvent struct {
	kind, room, id string
}

type recordingPresence struct {
	mu     sync.Mutex
	events []presenceEvent
}

func (p *recordingPresence) add(kind, room, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, presenceEvent{kind, room, id})
}

func (p *recordingPresence) RoomOpened(_ context.Context, room, hostID string) {
	p.add("opened", room, hostID)
}
func (p *recordingPresence) RoomClosed(_ context.Context, room string) { p.add("closed", room, "") }
func (p *recordingPresence) ViewerAdded(_ context.Context, room, viewerID string) {
	p.add("added", room, viewerID)
}
func (p *recordingPresence) ViewerRemoved(_ context.Context, room, viewerID string) {
	p.add("removed", room, viewerID)
}
func (p *recordingPresence) Reset(context.Context) { p.add("reset", "", "") }

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("viewer-%d", n)
	}
}

type fixture struct {
	ctx      context.Context
	rooms    *registry.Registry
	router   *Router
	presence *recordingPresence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rooms := registry.New()
	presence := &recordingPresence{}
	return &fixture{
		ctx:      context.Background(),
		rooms:    rooms,
		router:   New(rooms, WithPresence(presence), WithIDGenerator(sequentialIDs())),
		presence: presence,
	}
}

// hostAndViewer sets up room "A" with one host and one viewer and clears
// their inboxes.
func (f *fixture) hostAndViewer(t *testing.T) (*recordingPeer, Role, *recordingPeer, Role) {
	t.Helper()
	host := newPeer("host")
	hostRole := f.router.Dispatch(f.ctx, host, Unassigned{}, models.Host{Room: "A"})
	viewer := newPeer("viewer")
	viewerRole := f.router.Dispatch(f.ctx, viewer, Unassigned{}, models.Viewer{Room: "A"})
	require.IsType(t, ViewerRole{}, viewerRole)
	host.got, viewer.got = nil, nil
	return host, hostRole, viewer, viewerRole
}

func TestDispatch_HostClaimsRoom(t *testing.T) {
	f := newFixture(t)
	host := newPeer("host")

	role := f.router.Dispatch(f.ctx, host, Unassigned{}, models.Host{Room: "A"})

	assert.Equal(t, HostRole{Room: "A"}, role)
	got, ok := f.rooms.LookupHost("A")
	require.True(t, ok)
	assert.Same(t, host, got)
	assert.Empty(t, host.received())
	assert.Equal(t, []presenceEvent{{"opened", "A", "host"}}, f.presence.events)
}

func TestDispatch_ViewerJoinNotifiesHost(t *testing.T) {
	f := newFixture(t)
	host := newPeer("host")
	f.router.Dispatch(f.ctx, host, Unassigned{}, models.Host{Room: "A"})

	v1 := newPeer("v1")
	role1 := f.router.Dispatch(f.ctx, v1, Unassigned{}, models.Viewer{Room: "A"})
	v2 := newPeer("v2")
	role2 := f.router.Dispatch(f.ctx, v2, Unassigned{}, models.Viewer{Room: "A"})

	assert.Equal(t, ViewerRole{Room: "A", ViewerID: "viewer-1"}, role1)
	assert.Equal(t, ViewerRole{Room: "A", ViewerID: "viewer-2"}, role2)
	assert.Empty(t, v1.received())
	assert.Empty(t, v2.received())
	assert.Equal(t, []models.Envelope{
		models.ViewerJoined{ViewerID: "viewer-1"},
		models.ViewerJoined{ViewerID: "viewer-2"},
	}, host.received())

	room, _ := f.rooms.LookupRoom("A")
	assert.Equal(t, []string{"viewer-1", "viewer-2"}, room.ViewerIDs())
}

func TestDispatch_DefaultViewerIDsAreDistinct(t *testing.T) {
	rooms := registry.New()
	r := New(rooms)
	host := newPeer("host")
	r.Dispatch(context.Background(), host, Unassigned{}, models.Host{Room: "A"})

	first := r.Dispatch(context.Background(), newPeer("v1"), Unassigned{}, models.Viewer{Room: "A"}).(ViewerRole)
	second := r.Dispatch(context.Background(), newPeer("v2"), Unassigned{}, models.Viewer{Room: "A"}).(ViewerRole)

	assert.NotEmpty(t, first.ViewerID)
	assert.NotEqual(t, first.ViewerID, second.ViewerID)
}

func TestDispatch_ViewerUnknownRoom(t *testing.T) {
	f := newFixture(t)
	viewer := newPeer("viewer")

	role := f.router.Dispatch(f.ctx, viewer, Unassigned{}, models.Viewer{Room: "B"})

	assert.Equal(t, Unassigned{}, role)
	assert.Equal(t, []models.Envelope{models.Error{Message: "Room not found"}}, viewer.received())
	assert.Equal(t, 0, f.rooms.Len())
	assert.Empty(t, f.presence.events)
}

func TestDispatch_OfferReachesOnlyTargetViewer(t *testing.T) {
	f := newFixture(t)
	host, hostRole, v1, _ := f.hostAndViewer(t)
	v2 := newPeer("v2")
	f.router.Dispatch(f.ctx, v2, Unassigned{}, models.Viewer{Room: "A"})
	host.got = nil

	f.router.Dispatch(f.ctx, host, hostRole, models.Offer{ViewerID: "viewer-1", SDP: "offer-sdp"})

	assert.Equal(t, []models.Envelope{models.Offer{ViewerID: "viewer-1", SDP: "offer-sdp"}}, v1.received())
	assert.Empty(t, v2.received())
	assert.Empty(t, host.received())
}

func TestDispatch_OfferToUnknownViewerIsDropped(t *testing.T) {
	f := newFixture(t)
	host, hostRole, viewer, _ := f.hostAndViewer(t)

	f.router.Dispatch(f.ctx, host, hostRole, models.Offer{ViewerID: "nobody", SDP: "x"})

	assert.Empty(t, viewer.received())
	assert.Empty(t, host.received())
}

func TestDispatch_AnswerCarriesServerAssignedID(t *testing.T) {
	f := newFixture(t)
	host, _, viewer, viewerRole := f.hostAndViewer(t)

	f.router.Dispatch(f.ctx, viewer, viewerRole, models.Answer{ViewerID: "spoofed", SDP: "answer-sdp"})
	f.router.Dispatch(f.ctx, viewer, viewerRole, models.Answer{SDP: "answer-2"})

	assert.Equal(t, []models.Envelope{
		models.Answer{ViewerID: "viewer-1", SDP: "answer-sdp"},
		models.Answer{ViewerID: "viewer-1", SDP: "answer-2"},
	}, host.received())
}

func TestDispatch_IceCandidates(t *testing.T) {
	f := newFixture(t)
	host, hostRole, viewer, viewerRole := f.hostAndViewer(t)
	cand := json.RawMessage(`{"candidate":"candidate:0 1 UDP 1 10.0.0.2 5000 typ host"}`)

	f.router.Dispatch(f.ctx, host, hostRole, models.IceCandidate{ViewerID: "viewer-1", Candidate: cand})
	f.router.Dispatch(f.ctx, host, hostRole, models.IceCandidate{Candidate: cand})
	f.router.Dispatch(f.ctx, viewer, viewerRole, models.IceCandidate{ViewerID: "spoofed", Candidate: cand})

	assert.Equal(t, []models.Envelope{models.IceCandidate{ViewerID: "viewer-1", Candidate: cand}}, viewer.received())
	assert.Equal(t, []models.Envelope{models.IceCandidate{ViewerID: "viewer-1", Candidate: cand}}, host.received())
}

func TestDispatch_DropsMessagesOutsideRole(t *testing.T) {
	f := newFixture(t)
	host, hostRole, viewer, viewerRole := f.hostAndViewer(t)

	tests := []struct {
		name string
		peer *recordingPeer
		role Role
		env  models.Envelope
	}{
		{"host twice", host, hostRole, models.Host{Room: "B"}},
		{"host joins as viewer", host, hostRole, models.Viewer{Room: "A"}},
		{"host answers", host, hostRole, models.Answer{SDP: "x"}},
		{"viewer offers", viewer, viewerRole, models.Offer{ViewerID: "viewer-1", SDP: "x"}},
		{"viewer hosts", viewer, viewerRole, models.Host{Room: "A"}},
		{"viewer joins again", viewer, viewerRole, models.Viewer{Room: "A"}},
		{"unassigned offer", newPeer("x"), Unassigned{}, models.Offer{ViewerID: "viewer-1", SDP: "x"}},
		{"unassigned answer", newPeer("x"), Unassigned{}, models.Answer{SDP: "x"}},
		{"unassigned candidate", newPeer("x"), Unassigned{}, models.IceCandidate{ViewerID: "viewer-1"}},
		{"client host-left", viewer, viewerRole, models.HostLeft{}},
		{"client viewer-joined", newPeer("x"), Unassigned{}, models.ViewerJoined{ViewerID: "v"}},
		{"client viewer-left", host, hostRole, models.ViewerLeft{ViewerID: "viewer-1"}},
		{"client error", host, hostRole, models.Error{Message: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role := f.router.Dispatch(f.ctx, tt.peer, tt.role, tt.env)
			assert.Equal(t, tt.role, role)
		})
	}

	assert.Empty(t, host.received())
	assert.Empty(t, viewer.received())
	assert.Equal(t, 1, f.rooms.Len())
	room, _ := f.rooms.LookupRoom("A")
	assert.Same(t, host, room.Host)
	assert.Equal(t, []string{"viewer-1"}, room.ViewerIDs())
}

func TestLeave_HostNotifiesViewersAndClosesRoom(t *testing.T) {
	f := newFixture(t)
	host, hostRole, v1, _ := f.hostAndViewer(t)
	v2 := newPeer("v2")
	f.router.Dispatch(f.ctx, v2, Unassigned{}, models.Viewer{Room: "A"})

	f.router.Leave(f.ctx, host, hostRole)

	assert.Equal(t, []models.Envelope{models.HostLeft{}}, v1.received())
	assert.Equal(t, []models.Envelope{models.HostLeft{}}, v2.received())
	_, ok := f.rooms.LookupRoom("A")
	assert.False(t, ok)

	late := newPeer("late")
	role := f.router.Dispatch(f.ctx, late, Unassigned{}, models.Viewer{Room: "A"})
	assert.Equal(t, Unassigned{}, role)
	assert.Equal(t, []models.Envelope{models.Error{Message: "Room not found"}}, late.received())
}

func TestLeave_HostSkipsClosedViewers(t *testing.T) {
	f := newFixture(t)
	host, hostRole, viewer, _ := f.hostAndViewer(t)
	viewer.closed = true

	f.router.Leave(f.ctx, host, hostRole)

	assert.Empty(t, viewer.received())
	assert.Equal(t, 0, f.rooms.Len())
}

func TestLeave_ViewerNotifiesHost(t *testing.T) {
	f := newFixture(t)
	host, _, v1, v1Role := f.hostAndViewer(t)
	v2 := newPeer("v2")
	f.router.Dispatch(f.ctx, v2, Unassigned{}, models.Viewer{Room: "A"})
	host.got = nil

	f.router.Leave(f.ctx, v1, v1Role)

	assert.Equal(t, []models.Envelope{models.ViewerLeft{ViewerID: "viewer-1"}}, host.received())
	assert.Empty(t, v2.received())
	room, ok := f.rooms.LookupRoom("A")
	require.True(t, ok)
	assert.Equal(t, []string{"viewer-2"}, room.ViewerIDs())

	v3 := newPeer("v3")
	role := f.router.Dispatch(f.ctx, v3, Unassigned{}, models.Viewer{Room: "A"})
	assert.Equal(t, ViewerRole{Room: "A", ViewerID: "viewer-3"}, role)
}

func TestLeave_ViewerAfterRoomClosed(t *testing.T) {
	f := newFixture(t)
	host, hostRole, viewer, viewerRole := f.hostAndViewer(t)
	f.router.Leave(f.ctx, host, hostRole)
	host.got = nil

	f.router.Leave(f.ctx, viewer, viewerRole)

	assert.Empty(t, host.received())
	assert.Equal(t, 0, f.rooms.Len())
}

func TestLeave_UnassignedHasNoEffect(t *testing.T) {
	f := newFixture(t)
	host, _, viewer, _ := f.hostAndViewer(t)
	before := len(f.presence.events)

	f.router.Leave(f.ctx, newPeer("idle"), Unassigned{})

	assert.Empty(t, host.received())
	assert.Empty(t, viewer.received())
	assert.Equal(t, 1, f.rooms.Len())
	assert.Len(t, f.presence.events, before)
}

func TestPresence_FollowsMembership(t *testing.T) {
	f := newFixture(t)
	host, hostRole, viewer, viewerRole := f.hostAndViewer(t)

	f.router.Leave(f.ctx, viewer, viewerRole)
	f.router.Leave(f.ctx, host, hostRole)

	assert.Equal(t, []presenceEvent{
		{"opened", "A", "host"},
		{"added", "A", "viewer-1"},
		{"removed", "A", "viewer-1"},
		{"closed", "A", ""},
	}, f.presence.events)
}

// hostInboxPresence records how many envelopes the host had been sent at the
// moment each mirror call happened.
type hostInboxPresence struct {
	NopPresence
	host          *recordingPeer
	atViewerAdd   int
	atViewerLeave int
}

func (p *hostInboxPresence) ViewerAdded(context.Context, string, string) {
	p.atViewerAdd = len(p.host.received())
}

func (p *hostInboxPresence) ViewerRemoved(context.Context, string, string) {
	p.atViewerLeave = len(p.host.received())
}

func TestPresence_UpdatedAfterHostIsNotified(t *testing.T) {
	rooms := registry.New()
	host := newPeer("host")
	presence := &hostInboxPresence{host: host}
	r := New(rooms, WithPresence(presence), WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	r.Dispatch(ctx, host, Unassigned{}, models.Host{Room: "A"})
	viewer := newPeer("viewer")
	viewerRole := r.Dispatch(ctx, viewer, Unassigned{}, models.Viewer{Room: "A"})
	r.Leave(ctx, viewer, viewerRole)

	assert.Equal(t, []models.Envelope{
		models.ViewerJoined{ViewerID: "viewer-1"},
		models.ViewerLeft{ViewerID: "viewer-1"},
	}, host.received())
	assert.Equal(t, 1, presence.atViewerAdd, "ViewerJoined queued before the mirror update")
	assert.Equal(t, 2, presence.atViewerLeave, "ViewerLeft queued before the mirror update")
}

func TestDispatch_SecondHostReplacesRoom(t *testing.T) {
	f := newFixture(t)
	first, firstRole, viewer, _ := f.hostAndViewer(t)

	second := newPeer("second")
	secondRole := f.router.Dispatch(f.ctx, second, Unassigned{}, models.Host{Room: "A"})

	assert.Equal(t, HostRole{Room: "A"}, secondRole)
	got, ok := f.rooms.LookupHost("A")
	require.True(t, ok)
	assert.Same(t, second, got)
	room, _ := f.rooms.LookupRoom("A")
	assert.Empty(t, room.ViewerIDs(), "earlier viewers are discarded")
	assert.Empty(t, viewer.received(), "discarded viewers are not notified")

	// The earlier host still holds its role, and its disconnect removes the
	// room by code, taking the newer host's room with it.
	f.router.Leave(f.ctx, first, firstRole)

	_, ok = f.rooms.LookupRoom("A")
	assert.False(t, ok)
	assert.Empty(t, second.received())
	assert.Empty(t, first.received())

	late := newPeer("late")
	role := f.router.Dispatch(f.ctx, late, Unassigned{}, models.Viewer{Room: "A"})
	assert.Equal(t, Unassigned{}, role)
	assert.Equal(t, []models.Envelope{models.Error{Message: "Room not found"}}, late.received())
}
