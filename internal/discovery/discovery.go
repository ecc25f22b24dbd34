// Package discovery advertises the firmware update endpoint over mDNS.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Service parameters for the update endpoint.
const (
	ServiceType = "_http._tcp"
	Domain      = "local."
	UpdatePath  = "/update"
)

// Config describes the advertised service.
type Config struct {
	Instance string
	Port     int
	Thing    string

	// Interface restricts advertising to one interface. Empty means all.
	Interface string

	// TTL overrides the record TTL when positive.
	TTL time.Duration
}

// Advertiser owns the mDNS responder.
type Advertiser struct {
	config Config

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. Nothing is sent until Start.
func NewAdvertiser(config Config) *Advertiser {
	return &Advertiser{config: config}
}

// TXT returns the TXT records for the service.
func (a *Advertiser) TXT() []string {
	txt := []string{"path=" + UpdatePath}
	if a.config.Thing != "" {
		txt = append([]string{"thing=" + a.config.Thing}, txt...)
	}
	return txt
}

// Start registers the service, replacing any earlier registration.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var ifaces []net.Interface
	if a.config.Interface != "" {
		iface, err := net.InterfaceByName(a.config.Interface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", a.config.Interface, err)
		}
		ifaces = []net.Interface{*iface}
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(a.config.Instance, ServiceType, Domain, a.config.Port, a.TXT(), ifaces, opts...)
	if err != nil {
		return fmt.Errorf("register %s: %w", ServiceType, err)
	}
	a.server = server
	return nil
}

// Stop withdraws the service. Safe to call when not started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// PortFromAddr extracts the TCP port from a listen address such as ":81".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}
