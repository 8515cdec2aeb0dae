package hostinfo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// mockExecutor is a test double that implements CommandExecutor
type mockExecutor struct {
	outputs   map[string]string
	errors    map[string]error
	callCount map[string]int
	lastArgs  []string
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		outputs:   make(map[string]string),
		errors:    make(map[string]error),
		callCount: make(map[string]int),
	}
}

func (m *mockExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	m.callCount[name]++
	m.lastArgs = args

	if err, exists := m.errors[name]; exists {
		return "", err
	}
	if output, exists := m.outputs[name]; exists {
		return output, nil
	}
	return "", fmt.Errorf("command %q not configured in mock", name)
}

// TestParseDefaultRoute tests interface extraction from ip-route output
func TestParseDefaultRoute(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr error
	}{
		{
			name:   "static default route",
			output: "default via 10.0.0.1 dev eth0 proto static",
			want:   "eth0",
		},
		{
			name:   "dhcp default route with metric",
			output: "default via 192.168.1.1 dev wlp2s0 proto dhcp src 192.168.1.42 metric 600\n",
			want:   "wlp2s0",
		},
		{
			name:   "device only route",
			output: "default dev ppp0 scope link",
			want:   "ppp0",
		},
		{
			name: "default after other routes",
			output: "10.0.0.0/24 dev eth1 proto kernel scope link src 10.0.0.5\n" +
				"default via 172.16.0.1 dev ens3 proto static\n",
			want: "ens3",
		},
		{
			name: "multiple default routes picks first",
			output: "default via 10.0.0.1 dev eth0 proto static metric 100\n" +
				"default via 10.1.0.1 dev eth1 proto static metric 200\n",
			want: "eth0",
		},
		{
			name:    "empty output",
			output:  "",
			wantErr: ErrNoDefaultRoute,
		},
		{
			name:    "no default line",
			output:  "10.0.0.0/24 dev eth0 proto kernel scope link src 10.0.0.5",
			wantErr: ErrNoDefaultRoute,
		},
		{
			name:    "default without dev",
			output:  "default via 10.0.0.1 proto static",
			wantErr: ErrUnparseableRoute,
		},
		{
			name:    "dev as last token",
			output:  "default via 10.0.0.1 dev",
			wantErr: ErrUnparseableRoute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDefaultRoute(tt.output)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseDefaultRoute() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDefaultRoute() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseDefaultRoute() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestCommandRouteResolver tests that the resolver runs ip route and parses it
func TestCommandRouteResolver(t *testing.T) {
	mock := newMockExecutor()
	mock.outputs["ip"] = "default via 10.0.0.1 dev eth0 proto static\n"

	resolver := NewCommandRouteResolver(mock)
	got, err := resolver.DefaultInterface(context.Background())
	if err != nil {
		t.Fatalf("DefaultInterface() error = %v", err)
	}
	if got != "eth0" {
		t.Errorf("DefaultInterface() = %q, want eth0", got)
	}
	if mock.callCount["ip"] != 1 {
		t.Errorf("ip called %d times, want 1", mock.callCount["ip"])
	}
	if strings.Join(mock.lastArgs, " ") != "route show default" {
		t.Errorf("ip args = %v, want [route show default]", mock.lastArgs)
	}
}

// TestCommandRouteResolverError tests that command failures propagate
func TestCommandRouteResolverError(t *testing.T) {
	mock := newMockExecutor()
	mock.errors["ip"] = errors.New("exec: \"ip\": executable file not found in $PATH")

	_, err := NewCommandRouteResolver(mock).DefaultInterface(context.Background())
	if err == nil {
		t.Fatal("DefaultInterface() error = nil, want error")
	}
}

// TestParseProcRoute tests /proc/net/route parsing
func TestParseProcRoute(t *testing.T) {
	const header = "Iface\tDestination\tGateway \tFlags\tRefCnt\tUse\tMetric\tMask\t\tMTU\tWindow\tIRTT\n"

	tests := []struct {
		name    string
		table   string
		want    string
		wantErr error
	}{
		{
			name: "default route",
			table: header +
				"eth0\t00000000\t0100000A\t0003\t0\t0\t100\t00000000\t0\t0\t0\n" +
				"eth0\t0000000A\t00000000\t0001\t0\t0\t100\t00FFFFFF\t0\t0\t0\n",
			want: "eth0",
		},
		{
			name: "default route after subnet route",
			table: header +
				"ens3\t0010A8C0\t00000000\t0001\t0\t0\t0\t00FFFFFF\t0\t0\t0\n" +
				"ens3\t00000000\t0110A8C0\t0003\t0\t0\t0\t00000000\t0\t0\t0\n",
			want: "ens3",
		},
		{
			name: "down default route skipped",
			table: header +
				"eth1\t00000000\t0100000A\t0002\t0\t0\t0\t00000000\t0\t0\t0\n" +
				"eth0\t00000000\t0100000A\t0003\t0\t0\t0\t00000000\t0\t0\t0\n",
			want: "eth0",
		},
		{
			name:    "no default route",
			table:   header + "eth0\t0000000A\t00000000\t0001\t0\t0\t100\t00FFFFFF\t0\t0\t0\n",
			wantErr: ErrNoDefaultRoute,
		},
		{
			name:    "header only",
			table:   header,
			wantErr: ErrNoDefaultRoute,
		},
		{
			name:    "bad flags",
			table:   header + "eth0\t00000000\t0100000A\tzz\t0\t0\t0\t00000000\t0\t0\t0\n",
			wantErr: ErrUnparseableRoute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProcRoute(strings.NewReader(tt.table))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseProcRoute() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseProcRoute() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseProcRoute() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestStaticRouteResolver tests the fixed-output resolver
func TestStaticRouteResolver(t *testing.T) {
	got, err := StaticRouteResolver{Output: "default via 10.0.0.1 dev eth0 proto static"}.DefaultInterface(context.Background())
	if err != nil || got != "eth0" {
		t.Errorf("DefaultInterface() = %q, %v; want eth0, nil", got, err)
	}
}
