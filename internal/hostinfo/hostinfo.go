// Package hostinfo detects the local host's primary network identity: its
// hostname, the interface carrying the default route, and that interface's
// MAC and IPv4 address.
package hostinfo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// DefaultPrefixLength is appended to the detected IPv4 address. The real
// netmask is not read from the OS.
const DefaultPrefixLength = 24

// HostInfo is the probed identity of the local host
type HostInfo struct {
	Hostname      string `json:"hostname"`
	InterfaceName string `json:"interface"`
	MACAddress    string `json:"mac_address"`
	IPv4CIDR      string `json:"address"`
}

// HostnameFunc returns the name the device is registered under
type HostnameFunc func(ctx context.Context) (string, error)

// SystemHostname asks gopsutil for the hostname and falls back to os.Hostname
func SystemHostname(ctx context.Context) (string, error) {
	info, err := host.InfoWithContext(ctx)
	if err == nil && info.Hostname != "" {
		return info.Hostname, nil
	}
	return os.Hostname()
}

// StaticHostname returns a HostnameFunc that always yields name
func StaticHostname(name string) HostnameFunc {
	return func(context.Context) (string, error) {
		return name, nil
	}
}

// Prober runs the host queries in order: hostname, default route, addresses
type Prober struct {
	logger       *zap.Logger
	hostname     HostnameFunc
	routes       RouteResolver
	addrs        AddressLookup
	prefixLength int
}

// NewProber creates a prober. A prefixLength of 0 means DefaultPrefixLength.
func NewProber(logger *zap.Logger, routes RouteResolver, addrs AddressLookup, prefixLength int) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefixLength <= 0 {
		prefixLength = DefaultPrefixLength
	}
	return &Prober{
		logger:       logger,
		hostname:     SystemHostname,
		routes:       routes,
		addrs:        addrs,
		prefixLength: prefixLength,
	}
}

// WithHostname replaces the hostname source
func (p *Prober) WithHostname(fn HostnameFunc) *Prober {
	p.hostname = fn
	return p
}

// Probe returns the host identity or a *ProbeError
func (p *Prober) Probe(ctx context.Context) (HostInfo, error) {
	hostname, err := p.hostname(ctx)
	if err != nil {
		return HostInfo{}, &ProbeError{Stage: StageHostname, Err: err}
	}
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return HostInfo{}, &ProbeError{Stage: StageHostname, Err: errors.New("empty hostname")}
	}

	ifname, err := p.routes.DefaultInterface(ctx)
	if err != nil {
		return HostInfo{}, &ProbeError{Stage: StageRoute, Err: err}
	}
	p.logger.Debug("Resolved default route interface", zap.String("interface", ifname))

	addrs, err := p.addrs.Lookup(ctx, ifname)
	if err != nil {
		return HostInfo{}, &ProbeError{Stage: StageAddress, Err: err}
	}
	if addrs.MAC == "" {
		return HostInfo{}, &ProbeError{Stage: StageAddress, Err: fmt.Errorf("%w: %s", ErrNoLinkAddress, ifname)}
	}
	if len(addrs.IPv4) == 0 {
		return HostInfo{}, &ProbeError{Stage: StageAddress, Err: fmt.Errorf("%w: %s", ErrNoIPv4Address, ifname)}
	}
	if len(addrs.IPv4) > 1 {
		p.logger.Debug("Interface has several IPv4 addresses, using the first",
			zap.String("interface", ifname),
			zap.Int("count", len(addrs.IPv4)))
	}

	info := HostInfo{
		Hostname:      hostname,
		InterfaceName: ifname,
		MACAddress:    addrs.MAC,
		IPv4CIDR:      FormatCIDR(addrs.IPv4[0].String(), p.prefixLength),
	}

	p.logger.Info("Probed host",
		zap.String("hostname", info.Hostname),
		zap.String("interface", info.InterfaceName),
		zap.String("mac", info.MACAddress),
		zap.String("address", info.IPv4CIDR))

	return info, nil
}

// FormatCIDR appends a prefix length to a bare address
func FormatCIDR(ip string, prefixLength int) string {
	return fmt.Sprintf("%s/%d", ip, prefixLength)
}
