package hostinfo

import (
	"context"
	"fmt"
	"net/netip"

	gnet "github.com/shirou/gopsutil/v3/net"
)

// InterfaceAddrs holds the addresses reported for one interface
type InterfaceAddrs struct {
	Name string
	MAC  string
	IPv4 []netip.Addr // in OS order
}

// AddressLookup returns the addresses of a named interface
type AddressLookup interface {
	Lookup(ctx context.Context, name string) (InterfaceAddrs, error)
}

// SystemAddressLookup reads interface addresses through gopsutil
type SystemAddressLookup struct{}

func (SystemAddressLookup) Lookup(ctx context.Context, name string) (InterfaceAddrs, error) {
	interfaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		return InterfaceAddrs{}, fmt.Errorf("failed to list interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Name != name {
			continue
		}

		result := InterfaceAddrs{
			Name: iface.Name,
			MAC:  iface.HardwareAddr,
		}
		for _, addr := range iface.Addrs {
			if ip, ok := parseIPv4(addr.Addr); ok {
				result.IPv4 = append(result.IPv4, ip)
			}
		}
		return result, nil
	}

	return InterfaceAddrs{}, fmt.Errorf("%w: %s", ErrInterfaceNotFound, name)
}

// parseIPv4 accepts "10.0.0.5/24" or "10.0.0.5" and rejects IPv6
func parseIPv4(s string) (netip.Addr, bool) {
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return prefix.Addr(), prefix.Addr().Is4()
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr, addr.Is4()
	}
	return netip.Addr{}, false
}
