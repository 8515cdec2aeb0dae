package hostinfo

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ProbeError
var (
	// ErrNoDefaultRoute is returned when the routing table has no default route
	ErrNoDefaultRoute = errors.New("no default route found")

	// ErrUnparseableRoute is returned when a default route line carries no interface
	ErrUnparseableRoute = errors.New("default route has no interface")

	// ErrInterfaceNotFound is returned when the default route names an interface
	// the OS does not report
	ErrInterfaceNotFound = errors.New("interface not found")

	// ErrNoLinkAddress is returned when the interface has no MAC address
	ErrNoLinkAddress = errors.New("interface has no link-layer address")

	// ErrNoIPv4Address is returned when the interface has no IPv4 address
	ErrNoIPv4Address = errors.New("interface has no IPv4 address")
)

// Probe stages reported in ProbeError.Stage
const (
	StageHostname = "hostname"
	StageRoute    = "route"
	StageAddress  = "address"
)

// ProbeError records which host query failed.
// Use errors.As to extract it and errors.Is to match the sentinel.
type ProbeError struct {
	Stage string
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Stage, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
