package hostinfo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// RouteResolver finds the interface that carries the default route
type RouteResolver interface {
	DefaultInterface(ctx context.Context) (string, error)
}

// CommandRouteResolver asks iproute2 for the default route
type CommandRouteResolver struct {
	executor CommandExecutor
}

// NewCommandRouteResolver creates a resolver that runs "ip route show default"
func NewCommandRouteResolver(executor CommandExecutor) *CommandRouteResolver {
	return &CommandRouteResolver{executor: executor}
}

func (r *CommandRouteResolver) DefaultInterface(ctx context.Context) (string, error) {
	output, err := r.executor.Execute(ctx, "ip", "route", "show", "default")
	if err != nil {
		return "", err
	}
	return ParseDefaultRoute(output)
}

// ParseDefaultRoute extracts the interface name following "dev" from the
// first default route line in ip-route output, e.g.
// "default via 10.0.0.1 dev eth0 proto static" yields "eth0".
// Hosts with several default routes get the first one listed.
func ParseDefaultRoute(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "default" {
			continue
		}

		for i, field := range fields {
			if field == "dev" && i+1 < len(fields) {
				return fields[i+1], nil
			}
		}
		return "", fmt.Errorf("%w: %q", ErrUnparseableRoute, strings.TrimSpace(line))
	}

	return "", ErrNoDefaultRoute
}

// ProcRouteResolver reads the Linux kernel routing table directly
// for hosts without the ip binary
type ProcRouteResolver struct {
	path string
}

// NewProcRouteResolver creates a resolver reading /proc/net/route
func NewProcRouteResolver() *ProcRouteResolver {
	return &ProcRouteResolver{path: "/proc/net/route"}
}

func (r *ProcRouteResolver) DefaultInterface(ctx context.Context) (string, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return "", fmt.Errorf("failed to read routing table: %w", err)
	}
	defer file.Close()

	return parseProcRoute(file)
}

// rtfUp is RTF_UP from linux/route.h
const rtfUp = 0x1

// parseProcRoute returns the interface of the first usable default route
// in /proc/net/route format (hex destination and mask, header line first)
func parseProcRoute(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)

	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) < 8 {
			continue
		}

		iface, destination, flagsHex, mask := fields[0], fields[1], fields[3], fields[7]
		if destination != "00000000" || mask != "00000000" {
			continue
		}

		flags, err := strconv.ParseUint(flagsHex, 16, 32)
		if err != nil {
			return "", fmt.Errorf("%w: bad flags %q", ErrUnparseableRoute, flagsHex)
		}
		if flags&rtfUp == 0 {
			continue
		}

		return iface, nil
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read routing table: %w", err)
	}

	return "", ErrNoDefaultRoute
}

// StaticRouteResolver parses a fixed ip-route output. Used in tests and
// when the default route is known ahead of time.
type StaticRouteResolver struct {
	Output string
}

func (r StaticRouteResolver) DefaultInterface(ctx context.Context) (string, error) {
	return ParseDefaultRoute(r.Output)
}
