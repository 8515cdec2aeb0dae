package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/stone-age-io/autoregister/internal/agent"
	"github.com/stone-age-io/autoregister/internal/config"
	"github.com/stone-age-io/autoregister/internal/reconcile"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", config.GetDefaultConfigPath(), "path to config file")
	serviceAction := flag.String("service", "", "service control action (install|uninstall|start|stop|restart|run)")
	daemon := flag.Bool("daemon", false, "register now and then on the configured schedule")
	showVersion := flag.Bool("version", false, "show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "autoregister - register this host as a device in NetBox\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  autoregister [flags]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("autoregister version: %s\n", version)
		return
	}

	if *serviceAction != "" {
		if err := agent.RunService(*serviceAction, *configPath, version); err != nil {
			fatal(err)
		}
		if *serviceAction != "run" {
			fmt.Printf("Service %s: ok\n", *serviceAction)
		}
		return
	}

	a, err := agent.New(*configPath, version)
	if err != nil {
		fatal(err)
	}

	if *daemon {
		if err := a.Run(); err != nil {
			fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Detecting host network identity...")
	report, err := a.RunOnce(ctx)
	if err != nil {
		fatal(err)
	}
	printReport(os.Stdout, report)
	a.Shutdown()
}

// printReport writes the human-readable summary of a run
func printReport(w io.Writer, report agent.Report) {
	host := report.Host
	result := report.Result

	fmt.Fprintf(w, "Hostname: %s\n", host.Hostname)
	fmt.Fprintf(w, "Interface: %s (MAC %s)\n", host.InterfaceName, host.MACAddress)
	fmt.Fprintf(w, "IP address: %s\n", host.IPv4CIDR)

	if result.Status == reconcile.StatusAlreadyExists {
		fmt.Fprintf(w, "Device '%s' already exists in site %d. Skipping creation.\n", host.Hostname, result.SiteID)
		return
	}

	for _, rec := range result.Created {
		fmt.Fprintf(w, "Created %s '%s' (id %d)\n", rec.Kind, rec.Name, rec.ID)
	}
	fmt.Fprintf(w, "Device '%s' registered in site %d with id %d.\n", host.Hostname, result.SiteID, result.DeviceID)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
