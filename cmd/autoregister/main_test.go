package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stone-age-io/autoregister/internal/agent"
	"github.com/stone-age-io/autoregister/internal/hostinfo"
	"github.com/stone-age-io/autoregister/internal/reconcile"
)

func testReport(status reconcile.Status) agent.Report {
	return agent.Report{
		Host: hostinfo.HostInfo{
			Hostname:      "web-01",
			InterfaceName: "eth0",
			MACAddress:    "aa:bb:cc:dd:ee:ff",
			IPv4CIDR:      "10.0.0.5/24",
		},
		Result: reconcile.Result{
			Status:   status,
			Hostname: "web-01",
			SiteID:   1,
			DeviceID: 42,
		},
	}
}

func TestPrintReportAlreadyExists(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, testReport(reconcile.StatusAlreadyExists))

	out := buf.String()
	if !strings.Contains(out, "Device 'web-01' already exists in site 1. Skipping creation.\n") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "registered in site") {
		t.Errorf("skip output also reports registration: %q", out)
	}
}

func TestPrintReportCreated(t *testing.T) {
	report := testReport(reconcile.StatusCreated)
	report.Result.Created = []reconcile.Record{
		{Kind: reconcile.KindDevice, ID: 42, Name: "web-01"},
		{Kind: reconcile.KindInterface, ID: 43, Name: "eth0"},
		{Kind: reconcile.KindIPAddress, ID: 44, Name: "10.0.0.5/24"},
	}

	var buf bytes.Buffer
	printReport(&buf, report)

	out := buf.String()
	for _, want := range []string{
		"IP address: 10.0.0.5/24",
		"Created interface 'eth0' (id 43)",
		"Device 'web-01' registered in site 1 with id 42.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
