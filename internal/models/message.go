package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SignalType is the "type" discriminator carried by every signaling frame
type SignalType string

const (
	SignalTypeHost         SignalType = "host"
	SignalTypeViewer       SignalType = "viewer"
	SignalTypeOffer        SignalType = "offer"
	SignalTypeAnswer       SignalType = "answer"
	SignalTypeIceCandidate SignalType = "ice-candidate"
	SignalTypeViewerJoined SignalType = "viewer-joined"
	SignalTypeViewerLeft   SignalType = "viewer-left"
	SignalTypeHostLeft     SignalType = "host-left"
	SignalTypeError        SignalType = "error"
)

// MessageRoomNotFound is sent back to a viewer that asks for an unknown room
const MessageRoomNotFound = "Room not found"

var (
	ErrMissingType  = errors.New("missing message type")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
)

// Envelope is one message of the signaling protocol. The concrete types below
// are the only implementations.
type Envelope interface {
	Type() SignalType
	envelope()
}

// ServerOnly reports whether env is a notification the relay generates itself.
// Such envelopes are never acted upon when a client sends them.
func ServerOnly(env Envelope) bool {
	switch env.(type) {
	case ViewerJoined, ViewerLeft, HostLeft, Error:
		return true
	}
	return false
}

// Host claims the host role for a room
type Host struct {
	Room string `json:"room"`
}

// Viewer asks to join a room as a viewer
type Viewer struct {
	Room string `json:"room"`
}

// Offer carries the host's session description to one viewer
type Offer struct {
	ViewerID string `json:"viewerId"`
	SDP      string `json:"sdp"`
}

// Answer carries a viewer's session description to the host. ViewerID is
// filled in by the relay; whatever the client put there is discarded.
type Answer struct {
	ViewerID string `json:"viewerId,omitempty"`
	SDP      string `json:"sdp"`
}

// IceCandidate carries an opaque connectivity candidate. From the host,
// ViewerID names the target; towards the host, it names the sending viewer.
type IceCandidate struct {
	ViewerID  string          `json:"viewerId,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

type ViewerJoined struct {
	ViewerID string `json:"viewerId"`
}

type ViewerLeft struct {
	ViewerID string `json:"viewerId"`
}

type HostLeft struct{}

type Error struct {
	Message string `json:"message"`
}

func (Host) Type() SignalType         { return SignalTypeHost }
func (Viewer) Type() SignalType       { return SignalTypeViewer }
func (Offer) Type() SignalType        { return SignalTypeOffer }
func (Answer) Type() SignalType       { return SignalTypeAnswer }
func (IceCandidate) Type() SignalType { return SignalTypeIceCandidate }
func (ViewerJoined) Type() SignalType { return SignalTypeViewerJoined }
func (ViewerLeft) Type() SignalType   { return SignalTypeViewerLeft }
func (HostLeft) Type() SignalType     { return SignalTypeHostLeft }
func (Error) Type() SignalType        { return SignalTypeError }

func (Host) envelope()         {}
func (Viewer) envelope()       {}
func (Offer) envelope()        {}
func (Answer) envelope()       {}
func (IceCandidate) envelope() {}
func (ViewerJoined) envelope() {}
func (ViewerLeft) envelope()   {}
func (HostLeft) envelope()     {}
func (Error) envelope()        {}

// Each MarshalJSON flattens the payload next to the "type" discriminator.

func (m Host) MarshalJSON() ([]byte, error) {
	type payload Host
	return json.Marshal(struct {
		Type SignalType `json:"type"`
		payload
	}{m.Type(), payload(m)})
}

func (m Viewer) MarshalJSON() ([]byte, error) {
	type payload Viewer
	return json.Marshal(struct {
		Type SignalType `json:"type"`
		payload
	}{m.Type(), payload(m)})
}

func (m Offer) MarshalJSON() ([]byte, error) {
	type payload Offer
	return json.Marshal(struct {
		Type SignalType `json:"type"`
		payload
	}{m.Type(), payload(m)})
}

func (m Answer) MarshalJSON() ([]byte, error) {
	type payload Answer
	return json.Marshal(struct {
		Type SignalType `json:"type"`
		payload
	}{m.Type(), payload(m)})
}

func (m IceCandidate) MarshalJSON() ([]byte, error) {
	type payload IceCandidate
	if m.Candidate == nil {
		m.Candidate = json.RawMessage("null")
	}
	return json.Marshal(struct {
		Type SignalType `json:"type"`
		payload
	}{m.Type(), payload(m)})
}

func (m ViewerJoined) MarshalJSON() ([]byte, error) {
	type payload ViewerJoined
	return json.Marshal(struct {
		Type SignalType `json:"type"`
		payload
	}{m.Type(), payload(m)})
}

func (m ViewerLeft) MarshalJSON() ([]byte, error) {
	type payload ViewerLeft
	return json.Marshal(struct {
		Type SignalType `json:"type"`
		payload
	}{m.Type(), payload(m)})
}

func (m HostLeft) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type SignalType `json:"type"`
	}{m.Type()})
}

func (m Error) MarshalJSON() ([]byte, error) {
	type payload Error
	return json.Marshal(struct {
		Type SignalType `json:"type"`
		payload
	}{m.Type(), payload(m)})
}

// Encode serializes an envelope into a text frame payload
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", env.Type(), err)
	}
	return data, nil
}

// frame is the union of every field any envelope may carry. Pointers tell an
// absent field apart from an empty one.
type frame struct {
	Type      SignalType      `json:"type"`
	Room      *string         `json:"room"`
	ViewerID  *string         `json:"viewerId"`
	SDP       *string         `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
	Message   *string         `json:"message"`
}

// Decode parses a text frame into an envelope. Unknown fields are ignored;
// a missing required field or an unknown type is an error.
func Decode(data []byte) (Envelope, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	switch f.Type {
	case "":
		return nil, ErrMissingType
	case SignalTypeHost:
		if f.Room == nil {
			return nil, missing(f.Type, "room")
		}
		return Host{Room: *f.Room}, nil
	case SignalTypeViewer:
		if f.Room == nil {
			return nil, missing(f.Type, "room")
		}
		return Viewer{Room: *f.Room}, nil
	case SignalTypeOffer:
		if f.ViewerID == nil {
			return nil, missing(f.Type, "viewerId")
		}
		if f.SDP == nil {
			return nil, missing(f.Type, "sdp")
		}
		return Offer{ViewerID: *f.ViewerID, SDP: *f.SDP}, nil
	case SignalTypeAnswer:
		if f.SDP == nil {
			return nil, missing(f.Type, "sdp")
		}
		return Answer{ViewerID: deref(f.ViewerID), SDP: *f.SDP}, nil
	case SignalTypeIceCandidate:
		if len(f.Candidate) == 0 {
			return nil, missing(f.Type, "candidate")
		}
		return IceCandidate{ViewerID: deref(f.ViewerID), Candidate: f.Candidate}, nil
	case SignalTypeViewerJoined:
		if f.ViewerID == nil {
			return nil, missing(f.Type, "viewerId")
		}
		return ViewerJoined{ViewerID: *f.ViewerID}, nil
	case SignalTypeViewerLeft:
		if f.ViewerID == nil {
			return nil, missing(f.Type, "viewerId")
		}
		return ViewerLeft{ViewerID: *f.ViewerID}, nil
	case SignalTypeHostLeft:
		return HostLeft{}, nil
	case SignalTypeError:
		if f.Message == nil {
			return nil, missing(f.Type, "message")
		}
		return Error{Message: *f.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

func missing(t SignalType, field string) error {
	return fmt.Errorf("%w %q in %s message", ErrMissingField, field, t)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
