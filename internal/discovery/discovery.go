package discovery

import (
	"context"
	"net"
)

const (
	DefaultServiceType = "_screenview-signal._tcp"
	DefaultDomain      = "local"
)

// ServiceInfo describes the signaling endpoint being advertised
type ServiceInfo struct {
	Name   string // instance name, usually the hostname
	Type   string // service type, e.g. "_screenview-signal._tcp"
	Domain string // e.g. "local"
	Addr   net.IP
	Port   int
	Text   map[string]string
}

// Announcer advertises a service until ctx is cancelled
type Announcer interface {
	Announce(ctx context.Context, service ServiceInfo) error
}
