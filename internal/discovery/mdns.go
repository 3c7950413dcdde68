package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/brutella/dnssd"
	dnssdlog "github.com/brutella/dnssd/log"
)

func init() {
	dnssdlog.Info.SetOutput(io.Discard)
	dnssdlog.Debug.SetOutput(io.Discard)
}

// MDNSAdapter announces services over multicast DNS
type MDNSAdapter struct{}

func (m *MDNSAdapter) Announce(ctx context.Context, serviceInfo ServiceInfo) error {
	text := map[string]string{"desc": "Screen share signaling"}
	for k, v := range serviceInfo.Text {
		text[k] = v
	}

	var ips []net.IP
	if serviceInfo.Addr != nil {
		ips = []net.IP{serviceInfo.Addr}
	}

	cfg := dnssd.Config{
		Name:   serviceInfo.Name,
		Type:   serviceInfo.Type,
		Domain: serviceInfo.Domain,
		// nil lets the responder use every interface address
		IPs:  ips,
		Text: text,
		Port: serviceInfo.Port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	if _, err = rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	if err = rp.Respond(ctx); err != nil {
		// Context cancellation is how the announcement is withdrawn
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to respond to mDNS service: %w", err)
	}
	return nil
}

// Lookup browses for services of the given type until ctx is done and
// returns what was found. service is e.g. "_screenview-signal._tcp.local.".
func (m *MDNSAdapter) Lookup(ctx context.Context, service string) ([]ServiceInfo, error) {
	found := make(map[string]ServiceInfo)

	addFn := func(e dnssd.BrowseEntry) {
		info := ServiceInfo{
			Name:   e.Name,
			Type:   e.Type,
			Domain: e.Domain,
			Port:   e.Port,
			Text:   e.Text,
		}
		if len(e.IPs) > 0 {
			info.Addr = e.IPs[0]
		}
		found[fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain)] = info
	}
	rmvFn := func(e dnssd.BrowseEntry) {
		delete(found, fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain))
	}

	err := dnssd.LookupType(ctx, service, addFn, rmvFn)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("mDNS lookup failed: %w", err)
	}

	out := make([]ServiceInfo, 0, len(found))
	for _, info := range found {
		out = append(out, info)
	}
	return out, nil
}
